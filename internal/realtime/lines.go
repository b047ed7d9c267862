package realtime

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/sandeepkv93/capture-session-service/internal/domain"
	"github.com/sandeepkv93/capture-session-service/internal/observability"
	"github.com/sandeepkv93/capture-session-service/internal/repository"

	"go.opentelemetry.io/otel/attribute"
)

const (
	msgInvalidLine  = "invalid line payload"
	msgNotInRoom    = "join the room before sending lines"
	msgLinesLimited = "too many lines, slow down"
)

// SendLine persists a line to the room and relays it, as received, to every
// other member. A line that fails to persist is dropped without relay.
func (h *Hub) SendLine(ctx context.Context, p Peer, req SendLineRequest) {
	ctx, span := observability.StartSpan(ctx, "realtime.send_line", attribute.String("room.id", req.RoomID))
	defer span.End()

	var line domain.Line
	if len(req.LineData) == 0 || json.Unmarshal(req.LineData, &line) != nil || line.Validate() != nil {
		observability.RecordLineSend(ctx, "invalid", 0)
		h.sendError(p, msgInvalidLine)
		return
	}
	if req.RoomID == "" {
		h.sendError(p, msgRoomIDRequired)
		return
	}
	if !h.isMember(req.RoomID, p.ID()) {
		observability.RecordLineSend(ctx, "not_member", 0)
		h.sendError(p, msgNotInRoom)
		return
	}
	if !h.allowLine(ctx, p.ID()) {
		observability.RecordLineSend(ctx, "rate_limited", 0)
		h.sendError(p, msgLinesLimited)
		return
	}

	_, added, err := h.store.AppendLines(ctx, domain.RoomKey{RoomID: req.RoomID}, []domain.Line{line})
	if err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			observability.RecordLineSend(ctx, "not_found", 0)
			h.sendError(p, msgRoomNotFound)
			return
		}
		observability.RecordLineSend(ctx, "persist_error", 0)
		h.logger.Error("persist line failed", "room_id", req.RoomID, "conn_id", p.ID(), "line_id", line.ID, "error", err)
		return
	}
	if added == 0 {
		observability.RecordLineSend(ctx, "duplicate", 0)
		return
	}

	recipients := 0
	for _, m := range h.presence.MembersOf(req.RoomID) {
		if m.ConnID == p.ID() {
			continue
		}
		if peer, ok := h.peers.Get(m.ConnID); ok {
			h.send(peer, EventReceiveLine, req.LineData)
			recipients++
		}
	}
	observability.RecordLineSend(ctx, "relayed", recipients)
}

func (h *Hub) allowLine(ctx context.Context, connID string) bool {
	if h.limiter == nil {
		return true
	}
	decision, err := h.limiter.Allow(ctx, "line:"+connID, h.linePolicy)
	if err != nil {
		observability.RecordRateLimitDecision(ctx, "line", "backend_error", modeLabel(h.failOpen))
		h.logger.Warn("line rate limiter unavailable", "conn_id", connID, "error", err)
		return h.failOpen
	}
	if !decision.Allowed {
		observability.RecordRateLimitDecision(ctx, "line", "deny", modeLabel(h.failOpen))
		return false
	}
	observability.RecordRateLimitDecision(ctx, "line", "allow", modeLabel(h.failOpen))
	return true
}

func modeLabel(failOpen bool) string {
	if failOpen {
		return "fail_open"
	}
	return "fail_closed"
}
