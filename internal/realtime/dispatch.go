package realtime

import (
	"context"
	"encoding/json"

	"github.com/sandeepkv93/capture-session-service/internal/domain"
)

// Dispatch decodes one inbound envelope and routes it. Malformed frames are
// answered with an error event; the connection stays open.
func (h *Hub) Dispatch(ctx context.Context, p Peer, caller domain.Caller, raw []byte) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		h.sendError(p, "malformed message")
		return
	}
	switch env.Event {
	case EventJoinRoom:
		var req JoinRequest
		if err := json.Unmarshal(env.Data, &req); err != nil {
			h.sendError(p, "malformed join_room payload")
			return
		}
		h.Join(ctx, p, caller, req)
	case EventSendLine:
		var req SendLineRequest
		if err := json.Unmarshal(env.Data, &req); err != nil {
			h.sendError(p, msgInvalidLine)
			return
		}
		h.SendLine(ctx, p, req)
	default:
		h.logger.Debug("unknown event", "conn_id", p.ID(), "event", env.Event)
		h.sendError(p, "unknown event: "+env.Event)
	}
}
