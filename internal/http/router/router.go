package router

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/sandeepkv93/capture-session-service/internal/health"
	"github.com/sandeepkv93/capture-session-service/internal/http/handler"
	"github.com/sandeepkv93/capture-session-service/internal/http/middleware"
	"github.com/sandeepkv93/capture-session-service/internal/http/response"
)

const socketPath = "/ws"

type Dependencies struct {
	SessionHandler    *handler.SessionHandler
	SocketHandler     http.Handler
	TokenParser       middleware.AccessTokenParser
	CORSOrigins       []string
	// PublicRateLimiter guards unauthenticated routes, keyed by client IP.
	PublicRateLimiter func(http.Handler) http.Handler
	// CallerRateLimiter runs after authentication so each caller gets its own budget.
	CallerRateLimiter func(http.Handler) http.Handler
	Readiness         *health.ProbeRunner
	Logger            *slog.Logger
	EnableOTelHTTP    bool
}

func NewRouter(dep Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.StructuredRequestLogger(dep.Logger))
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.CORS(dep.CORSOrigins))

	public := r.With(optional(dep.PublicRateLimiter)...)
	public.Get("/health/live", func(w http.ResponseWriter, r *http.Request) {
		response.JSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
	})
	public.Get("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		if dep.Readiness == nil {
			response.JSON(w, r, http.StatusOK, map[string]any{"status": "ready", "checks": []any{}})
			return
		}
		ready, results := dep.Readiness.Ready(r.Context())
		if ready {
			response.JSON(w, r, http.StatusOK, map[string]any{"status": "ready", "checks": results})
			return
		}
		response.Error(w, r, http.StatusServiceUnavailable, response.CodeUnready, "dependencies are not ready", map[string]any{"checks": results})
	})

	if dep.SocketHandler != nil {
		public.Get(socketPath, dep.SocketHandler.ServeHTTP)
	}

	r.Route("/api/v1/sessions", func(r chi.Router) {
		r.Use(middleware.BodyLimit(1 << 20))
		r.With(optional(dep.PublicRateLimiter)...).Get("/room/{roomId}/exists", dep.SessionHandler.RoomExists)

		r.Group(func(r chi.Router) {
			r.Use(middleware.AuthMiddleware(dep.TokenParser))
			r.Use(optional(dep.CallerRateLimiter)...)
			r.Get("/recent", dep.SessionHandler.Recent)
			r.Get("/{contentId}", dep.SessionHandler.Get)
			r.Delete("/{contentId}", dep.SessionHandler.Delete)
			r.Put("/{contentId}/timer", dep.SessionHandler.UpdateTimer)
			r.Post("/{contentId}/lines", dep.SessionHandler.AddLines)
			r.Delete("/{contentId}/lines", dep.SessionHandler.RemoveLines)
			r.Delete("/{contentId}/lines/all", dep.SessionHandler.ClearLines)
		})
	})

	var h http.Handler = r
	if dep.EnableOTelHTTP {
		// Upgraded connections must reach the socket handler with the raw
		// ResponseWriter so it can be hijacked.
		h = otelhttp.NewHandler(r, "http.server", otelhttp.WithFilter(func(req *http.Request) bool {
			return req.URL.Path != socketPath
		}))
	}
	return h
}

func optional(mw func(http.Handler) http.Handler) []func(http.Handler) http.Handler {
	if mw == nil {
		return nil
	}
	return []func(http.Handler) http.Handler{mw}
}
