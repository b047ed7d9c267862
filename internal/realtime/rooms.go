package realtime

import (
	"context"
	"errors"

	"github.com/sandeepkv93/capture-session-service/internal/domain"
	"github.com/sandeepkv93/capture-session-service/internal/observability"
	"github.com/sandeepkv93/capture-session-service/internal/repository"
	"github.com/sandeepkv93/capture-session-service/internal/security"

	"go.opentelemetry.io/otel/attribute"
)

const (
	msgRoomIDRequired   = "roomId is required"
	msgInvalidRole      = "role must be host or guest"
	msgRoomNotFound     = "room not found"
	msgInvalidHostToken = "invalid host token"
	msgJoinFailed       = "failed to join room"
	msgRoomExpired      = "room expired"
)

// Join runs the host/guest join protocol for one connection.
func (h *Hub) Join(ctx context.Context, p Peer, caller domain.Caller, req JoinRequest) {
	ctx, span := observability.StartSpan(ctx, "realtime.join_room",
		attribute.String("room.id", req.RoomID),
		attribute.String("room.role", req.Role),
	)
	defer span.End()

	if req.RoomID == "" {
		h.sendError(p, msgRoomIDRequired)
		return
	}
	role, ok := domain.ParseRole(req.Role)
	if !ok {
		h.sendError(p, msgInvalidRole)
		return
	}

	unlock := h.locks.Lock(req.RoomID)
	defer unlock()

	var joined bool
	if role == domain.RoleHost {
		joined = h.joinAsHost(ctx, p, req)
	} else {
		joined = h.joinAsGuest(ctx, p, req)
	}
	if !joined {
		return
	}

	h.presence.Join(req.RoomID, Member{
		ConnID:   p.ID(),
		Role:     role,
		Username: displayName(req, caller),
		UserID:   memberUserID(req, caller),
	})
	h.broadcastPresence(req.RoomID, h.presence.MembersOf(req.RoomID))
}

func (h *Hub) joinAsHost(ctx context.Context, p Peer, req JoinRequest) bool {
	candidate := req.HostToken
	if candidate == "" {
		candidate = h.newToken()
	}
	session, created, err := h.store.FindOrCreateRoom(ctx, req.RoomID, candidate, h.now().Add(h.roomTTL))
	if err != nil {
		observability.RecordRoomJoin(ctx, string(domain.RoleHost), "error")
		h.logger.Error("host join failed", "room_id", req.RoomID, "conn_id", p.ID(), "error", err)
		h.sendError(p, msgJoinFailed)
		return false
	}
	if created {
		h.evictStale(ctx, req.RoomID, p.ID())
		observability.RecordRoomJoin(ctx, string(domain.RoleHost), "created")
		observability.Audit(ctx, "room.created", "room_id", req.RoomID, "conn_id", p.ID())
		h.send(p, EventRoomCreated, RoomCreatedPayload{RoomID: req.RoomID, HostToken: candidate})
		h.send(p, EventRoomJoined, RoomJoinedPayload{Role: domain.RoleHost, RoomID: req.RoomID})
		return true
	}

	room, _ := session.Room()
	if !security.HostTokenMatches(room.HostToken, req.HostToken) {
		observability.RecordRoomJoin(ctx, string(domain.RoleHost), "forbidden")
		h.logger.Info("host join rejected", "room_id", req.RoomID, "conn_id", p.ID())
		h.sendError(p, msgInvalidHostToken)
		return false
	}
	observability.RecordRoomJoin(ctx, string(domain.RoleHost), "rejoined")
	h.send(p, EventRoomJoined, RoomJoinedPayload{Role: domain.RoleHost, RoomID: req.RoomID})
	h.send(p, EventLoadHistory, session.Lines)
	return true
}

// evictStale drops members left over from an earlier room under the same id,
// which expired or was swept while they were still connected. They are told
// the room expired; keep is the connection now creating the room.
func (h *Hub) evictStale(ctx context.Context, roomID, keep string) {
	stale := h.presence.MembersOf(roomID)
	if len(stale) == 0 {
		return
	}
	for _, m := range stale {
		if !h.presence.LeaveRoom(roomID, m.ConnID) || m.ConnID == keep {
			continue
		}
		if peer, ok := h.peers.Get(m.ConnID); ok {
			h.sendError(peer, msgRoomExpired)
		}
	}
	observability.RecordReaperEvent(ctx, "evicted_stale")
	h.logger.Info("evicted members of expired room", "room_id", roomID, "members", len(stale))
}

func (h *Hub) joinAsGuest(ctx context.Context, p Peer, req JoinRequest) bool {
	session, err := h.store.Find(ctx, domain.RoomKey{RoomID: req.RoomID})
	if err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			observability.RecordRoomJoin(ctx, string(domain.RoleGuest), "not_found")
			h.sendError(p, msgRoomNotFound)
			return false
		}
		observability.RecordRoomJoin(ctx, string(domain.RoleGuest), "error")
		h.logger.Error("guest join failed", "room_id", req.RoomID, "conn_id", p.ID(), "error", err)
		h.sendError(p, msgJoinFailed)
		return false
	}
	observability.RecordRoomJoin(ctx, string(domain.RoleGuest), "joined")
	h.send(p, EventRoomJoined, RoomJoinedPayload{Role: domain.RoleGuest, RoomID: req.RoomID})
	h.send(p, EventLoadHistory, session.Lines)
	return true
}
