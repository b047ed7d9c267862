package realtime

import (
	"context"
	"log/slog"
	"time"

	"github.com/sandeepkv93/capture-session-service/internal/domain"
	"github.com/sandeepkv93/capture-session-service/internal/observability"
	"github.com/sandeepkv93/capture-session-service/internal/ratelimit"
	"github.com/sandeepkv93/capture-session-service/internal/security"
)

// RoomStore is the slice of the session repository the room logic needs.
type RoomStore interface {
	FindOrCreateRoom(ctx context.Context, roomID, hostToken string, expireAt time.Time) (*domain.Session, bool, error)
	Find(ctx context.Context, key domain.SessionKey) (*domain.Session, error)
	AppendLines(ctx context.Context, key domain.SessionKey, lines []domain.Line) (*domain.Session, int, error)
	Delete(ctx context.Context, key domain.SessionKey) (bool, error)
}

type HubConfig struct {
	RoomTTL           time.Duration
	LineLimitPerMin   int
	LineLimitFailOpen bool
}

// Hub owns the room protocol: joins, line relay and teardown of
// connections. It is transport agnostic; peers deliver frames.
type Hub struct {
	store      RoomStore
	presence   PresenceRegistry
	peers      *Directory
	locks      *keyedMutex
	limiter    ratelimit.Limiter
	linePolicy ratelimit.Policy
	failOpen   bool
	roomTTL    time.Duration
	logger     *slog.Logger

	now      func() time.Time
	newToken func() string
}

func NewHub(store RoomStore, presence PresenceRegistry, limiter ratelimit.Limiter, cfg HubConfig, logger *slog.Logger) *Hub {
	if cfg.RoomTTL <= 0 {
		cfg.RoomTTL = 24 * time.Hour
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		store:      store,
		presence:   presence,
		peers:      NewDirectory(),
		locks:      newKeyedMutex(),
		limiter:    limiter,
		linePolicy: ratelimit.NewPolicy(cfg.LineLimitPerMin, time.Minute, 1.5),
		failOpen:   cfg.LineLimitFailOpen,
		roomTTL:    cfg.RoomTTL,
		logger:     logger.With("module", "realtime"),
		now:        time.Now,
		newToken:   security.NewHostToken,
	}
}

func (h *Hub) Connect(ctx context.Context, p Peer) {
	h.peers.Add(p)
	observability.RecordConnectionDelta(ctx, 1)
	h.logger.Debug("connection registered", "conn_id", p.ID())
}

func (h *Hub) Presence() PresenceRegistry { return h.presence }

func (h *Hub) sendError(p Peer, msg string) {
	h.send(p, EventErrorMessage, msg)
}

func (h *Hub) send(p Peer, event string, payload any) {
	if err := p.Send(event, payload); err != nil {
		h.logger.Warn("drop outbound event", "conn_id", p.ID(), "event", event, "error", err)
	}
}

func (h *Hub) broadcastPresence(roomID string, members []Member) {
	views := make([]MemberView, 0, len(members))
	for _, m := range members {
		views = append(views, m.view())
	}
	for _, m := range members {
		if p, ok := h.peers.Get(m.ConnID); ok {
			h.send(p, EventRoomUsersUpdate, views)
		}
	}
}

func (h *Hub) isMember(roomID, connID string) bool {
	for _, r := range h.presence.RoomsOf(connID) {
		if r == roomID {
			return true
		}
	}
	return false
}

func displayName(req JoinRequest, caller domain.Caller) string {
	switch {
	case req.Username != "":
		return req.Username
	case caller.DisplayName != "":
		return caller.DisplayName
	default:
		return "Anonymous"
	}
}

func memberUserID(req JoinRequest, caller domain.Caller) uint {
	if caller.Authenticated() {
		return caller.UserID
	}
	return uint(req.UserID)
}
