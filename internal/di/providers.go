package di

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/wire"
	"github.com/redis/go-redis/v9"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"gorm.io/gorm"

	"github.com/sandeepkv93/capture-session-service/internal/app"
	"github.com/sandeepkv93/capture-session-service/internal/config"
	"github.com/sandeepkv93/capture-session-service/internal/database"
	"github.com/sandeepkv93/capture-session-service/internal/health"
	"github.com/sandeepkv93/capture-session-service/internal/http/handler"
	"github.com/sandeepkv93/capture-session-service/internal/http/middleware"
	"github.com/sandeepkv93/capture-session-service/internal/http/router"
	"github.com/sandeepkv93/capture-session-service/internal/observability"
	"github.com/sandeepkv93/capture-session-service/internal/ratelimit"
	"github.com/sandeepkv93/capture-session-service/internal/realtime"
	"github.com/sandeepkv93/capture-session-service/internal/repository"
	"github.com/sandeepkv93/capture-session-service/internal/security"
	"github.com/sandeepkv93/capture-session-service/internal/service"
)

var ProviderSet = wire.NewSet(
	provideLogProvider,
	provideLogger,
	provideRuntime,
	provideDB,
	provideRedis,
	repository.NewSessionRepository,
	repository.NewMediaRepository,
	provideLimiter,
	provideMissCache,
	provideMediaResolver,
	wire.Bind(new(service.MediaResolverInterface), new(*service.MediaResolver)),
	provideMediaSessionService,
	wire.Bind(new(service.MediaSessionServiceInterface), new(*service.MediaSessionService)),
	provideJWTManager,
	provideGateway,
	provideHub,
	provideSweeper,
	provideSessionHandler,
	provideSocketHandler,
	provideReadiness,
	provideRouter,
	provideServer,
	provideApp,
)

func provideLogProvider(ctx context.Context, cfg *config.Config) (*sdklog.LoggerProvider, error) {
	return observability.InitLogs(ctx, cfg)
}

func provideLogger(cfg *config.Config, lp *sdklog.LoggerProvider) *slog.Logger {
	logger := observability.NewLogger(cfg, lp)
	slog.SetDefault(logger)
	return logger
}

func provideRuntime(ctx context.Context, cfg *config.Config, lp *sdklog.LoggerProvider, logger *slog.Logger) (*observability.Runtime, error) {
	return observability.InitRuntime(ctx, cfg, lp, logger)
}

func provideDB(cfg *config.Config, logger *slog.Logger) (*gorm.DB, func(), error) {
	db, err := database.Open(cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
	return db, cleanup, nil
}

// provideRedis returns nil when no component is configured to use Redis.
func provideRedis(cfg *config.Config) (redis.UniversalClient, func()) {
	if !cfg.RedisEnabled() {
		return nil, func() {}
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	return client, func() { _ = client.Close() }
}

func provideLimiter(cfg *config.Config, client redis.UniversalClient) ratelimit.Limiter {
	if cfg.RateLimitBackend == "redis" && client != nil {
		return ratelimit.NewRedisLimiter(client, "capture:rl")
	}
	return ratelimit.NewLocalLimiter()
}

func provideMissCache(cfg *config.Config, client redis.UniversalClient) service.MediaMissCache {
	switch {
	case cfg.NegativeCacheBackend == "redis" && client != nil:
		return service.NewRedisMissCache(client, "")
	case cfg.NegativeCacheBackend == "memory":
		return service.NewMemoryMissCache()
	default:
		return service.NoMissCache{}
	}
}

func provideMediaResolver(cfg *config.Config, repo repository.MediaRepository, misses service.MediaMissCache, logger *slog.Logger) *service.MediaResolver {
	return service.NewMediaResolver(repo, misses, cfg.MediaNegativeCacheTTL, nil, logger)
}

func provideMediaSessionService(cfg *config.Config, sessions repository.SessionRepository, logger *slog.Logger) *service.MediaSessionService {
	return service.NewMediaSessionService(sessions, cfg.RecentSessionsDefault, logger)
}

func provideJWTManager(cfg *config.Config) *security.JWTManager {
	return security.NewJWTManager(cfg.JWTIssuer, cfg.JWTAudience, cfg.JWTAccessSecret)
}

func provideGateway(jwtMgr *security.JWTManager, logger *slog.Logger) *realtime.Gateway {
	return realtime.NewGateway(jwtMgr, logger)
}

func provideHub(cfg *config.Config, sessions repository.SessionRepository, limiter ratelimit.Limiter, logger *slog.Logger) *realtime.Hub {
	return realtime.NewHub(sessions, realtime.NewMemoryPresence(), limiter, realtime.HubConfig{
		RoomTTL:         cfg.RoomTTL,
		LineLimitPerMin: cfg.WSLineRateLimitPerMin,
	}, logger)
}

func provideSweeper(cfg *config.Config, sessions repository.SessionRepository, logger *slog.Logger) *realtime.Sweeper {
	return realtime.NewSweeper(sessions, cfg.RoomSweepInterval, logger)
}

func provideSessionHandler(sessions service.MediaSessionServiceInterface, media service.MediaResolverInterface, rooms repository.SessionRepository, logger *slog.Logger) *handler.SessionHandler {
	return handler.NewSessionHandler(sessions, media, rooms, logger)
}

func provideSocketHandler(cfg *config.Config, hub *realtime.Hub, gateway *realtime.Gateway, logger *slog.Logger) *handler.SocketHandler {
	return handler.NewSocketHandler(hub, gateway, handler.SocketConfig{
		PingPeriod:     cfg.WSPingPeriod,
		PongWait:       cfg.WSPongWait,
		SendBuffer:     cfg.WSSendBuffer,
		ReadLimit:      cfg.WSReadLimitBytes,
		AllowedOrigins: cfg.CORSAllowedOrigins,
	}, logger)
}

func provideReadiness(db *gorm.DB, client redis.UniversalClient) *health.ProbeRunner {
	checks := []health.Check{health.DBCheck(db)}
	if client != nil {
		checks = append(checks, health.RedisCheck(client))
	}
	return health.NewProbeRunner(2*time.Second, checks...)
}

func provideRouter(
	cfg *config.Config,
	sessions *handler.SessionHandler,
	socket *handler.SocketHandler,
	jwtMgr *security.JWTManager,
	limiter ratelimit.Limiter,
	readiness *health.ProbeRunner,
	logger *slog.Logger,
) http.Handler {
	publicLimiter := middleware.NewRateLimiter(limiter, cfg.APIRateLimitPerMin, time.Minute, ratelimit.FailOpen, "public").
		WithLogger(logger)
	callerLimiter := middleware.NewRateLimiter(limiter, cfg.APIRateLimitPerMin, time.Minute, ratelimit.FailOpen, "api").
		WithKeyFunc(middleware.CallerOrIPKey).
		WithLogger(logger)
	return router.NewRouter(router.Dependencies{
		SessionHandler:    sessions,
		SocketHandler:     socket,
		TokenParser:       jwtMgr,
		CORSOrigins:       cfg.CORSAllowedOrigins,
		PublicRateLimiter: publicLimiter.Middleware(),
		CallerRateLimiter: callerLimiter.Middleware(),
		Readiness:         readiness,
		Logger:            logger,
		EnableOTelHTTP:    cfg.OTELTracingEnabled || cfg.OTELMetricsEnabled,
	})
}

func provideServer(cfg *config.Config, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}

func provideApp(cfg *config.Config, logger *slog.Logger, server *http.Server, runtime *observability.Runtime, sweeper *realtime.Sweeper) *app.App {
	return app.New(cfg, logger, server, runtime, nil, sweeper)
}
