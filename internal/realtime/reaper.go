package realtime

import (
	"context"

	"github.com/sandeepkv93/capture-session-service/internal/domain"
	"github.com/sandeepkv93/capture-session-service/internal/observability"
)

// Disconnect tears down a connection: it leaves every room it was in, and
// each room left without members is deleted. Safe to call more than once.
func (h *Hub) Disconnect(ctx context.Context, connID string) {
	if _, ok := h.peers.Get(connID); ok {
		h.peers.Remove(connID)
		observability.RecordConnectionDelta(ctx, -1)
	}
	for _, roomID := range h.presence.Leave(connID) {
		h.reapRoom(ctx, roomID)
	}
}

func (h *Hub) reapRoom(ctx context.Context, roomID string) {
	unlock := h.locks.Lock(roomID)
	defer unlock()

	remaining := h.presence.MembersOf(roomID)
	if len(remaining) > 0 {
		observability.RecordReaperEvent(ctx, "presence_update")
		h.broadcastPresence(roomID, remaining)
		return
	}

	deleted, err := h.store.Delete(ctx, domain.RoomKey{RoomID: roomID})
	switch {
	case err != nil:
		observability.RecordReaperEvent(ctx, "delete_error")
		h.logger.Error("delete empty room failed", "room_id", roomID, "error", err)
	case deleted:
		observability.RecordReaperEvent(ctx, "deleted")
		observability.Audit(ctx, "room.deleted", "room_id", roomID, "reason", "empty")
		h.logger.Info("room deleted", "room_id", roomID)
	default:
		observability.RecordReaperEvent(ctx, "already_gone")
	}
}
