package handler

import (
	"context"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/sandeepkv93/capture-session-service/internal/domain"
	"github.com/sandeepkv93/capture-session-service/internal/realtime"
)

type CallerResolver interface {
	Resolve(r *http.Request) domain.Caller
}

type SocketConfig struct {
	PingPeriod     time.Duration
	PongWait       time.Duration
	WriteWait      time.Duration
	SendBuffer     int
	ReadLimit      int64
	AllowedOrigins []string
}

// SocketHandler upgrades GET /ws and bridges frames to the hub. Each
// connection gets one reader (this goroutine) and one writer.
type SocketHandler struct {
	hub      *realtime.Hub
	callers  CallerResolver
	cfg      SocketConfig
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

func NewSocketHandler(hub *realtime.Hub, callers CallerResolver, cfg SocketConfig, logger *slog.Logger) *SocketHandler {
	if cfg.PongWait <= 0 {
		cfg.PongWait = 60 * time.Second
	}
	if cfg.PingPeriod <= 0 || cfg.PingPeriod >= cfg.PongWait {
		cfg.PingPeriod = cfg.PongWait * 9 / 10
	}
	if cfg.WriteWait <= 0 {
		cfg.WriteWait = 10 * time.Second
	}
	if cfg.ReadLimit <= 0 {
		cfg.ReadLimit = 64 << 10
	}
	if logger == nil {
		logger = slog.Default()
	}
	h := &SocketHandler{
		hub:     hub,
		callers: callers,
		cfg:     cfg,
		logger:  logger.With("module", "socket"),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

func (h *SocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	caller := h.callers.Resolve(r)
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("websocket upgrade failed", "error", err)
		return
	}

	ctx := context.WithoutCancel(r.Context())
	conn := newSocketConn(uuid.NewString(), ws, h.cfg.SendBuffer, h.logger)
	h.hub.Connect(ctx, conn)
	go conn.writePump(h.cfg.PingPeriod, h.cfg.WriteWait)
	h.readPump(ctx, conn, caller)
}

func (h *SocketHandler) readPump(ctx context.Context, c *socketConn, caller domain.Caller) {
	defer func() {
		c.Close()
		h.hub.Disconnect(ctx, c.ID())
	}()

	c.ws.SetReadLimit(h.cfg.ReadLimit)
	_ = c.ws.SetReadDeadline(time.Now().Add(h.cfg.PongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(h.cfg.PongWait))
	})
	for {
		msgType, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				c.logger.Debug("readPump read error", "error", err)
			}
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		h.hub.Dispatch(ctx, c, caller, data)
	}
}

func (h *SocketHandler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(h.cfg.AllowedOrigins) == 0 {
		return true
	}
	return slices.Contains(h.cfg.AllowedOrigins, origin) || slices.Contains(h.cfg.AllowedOrigins, "*")
}
