package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Env      string
	HTTPAddr string

	DBDriver    string
	DatabaseURL string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	JWTIssuer       string
	JWTAudience     string
	JWTAccessSecret string

	RoomTTL           time.Duration
	RoomSweepInterval time.Duration

	WSPingPeriod           time.Duration
	WSPongWait             time.Duration
	WSSendBuffer           int
	WSReadLimitBytes       int64
	WSLineRateLimitPerMin  int
	APIRateLimitPerMin     int
	RateLimitBackend       string
	NegativeCacheBackend   string
	MediaNegativeCacheTTL  time.Duration
	RecentSessionsDefault  int
	CORSAllowedOrigins     []string
	ShutdownTimeout        time.Duration
	ShutdownHTTPDrainDelay time.Duration

	LogLevel  string
	LogFormat string

	OTELServiceName           string
	OTELEnvironment           string
	OTELExporterOTLPEndpoint  string
	OTELExporterOTLPInsecure  bool
	OTELMetricsEnabled        bool
	OTELTracingEnabled        bool
	OTELLogsEnabled           bool
	OTELMetricsExportInterval time.Duration
	OTELTraceSampleRatio      float64
}

var (
	ErrEnvFile = errors.New("load .env")
	ErrParse   = errors.New("parse config")
	ErrInvalid = errors.New("validate config")
)

// Load reads configuration from the environment, after merging an optional
// .env file. Variables already present in the environment win.
func Load() (*Config, error) {
	env := getEnv("APP_ENV", "development")
	cfg, err := load()
	recordLoadOutcome(context.Background(), env, err)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

func load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %w", ErrEnvFile, err)
	}
	cfg, err := fromEnv()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func fromEnv() (*Config, error) {
	p := &parser{}
	cfg := &Config{
		Env:      getEnv("APP_ENV", "development"),
		HTTPAddr: getEnv("HTTP_ADDR", ":8080"),

		DBDriver:    strings.ToLower(getEnv("DB_DRIVER", "sqlite")),
		DatabaseURL: getEnv("DATABASE_URL", "file:capture_sessions.db?cache=shared"),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       p.int("REDIS_DB", 0),

		JWTIssuer:       getEnv("JWT_ISSUER", "capture-session-service"),
		JWTAudience:     getEnv("JWT_AUDIENCE", "capture-session-clients"),
		JWTAccessSecret: os.Getenv("JWT_ACCESS_SECRET"),

		RoomTTL:           p.duration("ROOM_TTL", 24*time.Hour),
		RoomSweepInterval: p.duration("ROOM_SWEEP_INTERVAL", 5*time.Minute),

		WSPingPeriod:          p.duration("WS_PING_PERIOD", 25*time.Second),
		WSPongWait:            p.duration("WS_PONG_WAIT", 60*time.Second),
		WSSendBuffer:          p.int("WS_SEND_BUFFER", 64),
		WSReadLimitBytes:      int64(p.int("WS_READ_LIMIT_BYTES", 64*1024)),
		WSLineRateLimitPerMin: p.int("WS_LINE_RATE_LIMIT_PER_MIN", 600),
		APIRateLimitPerMin:    p.int("API_RATE_LIMIT_PER_MIN", 300),
		RateLimitBackend:      strings.ToLower(getEnv("RATE_LIMIT_BACKEND", "local")),
		NegativeCacheBackend:  strings.ToLower(getEnv("NEGATIVE_CACHE_BACKEND", "memory")),
		MediaNegativeCacheTTL: p.duration("MEDIA_NEGATIVE_CACHE_TTL", 30*time.Second),
		RecentSessionsDefault: p.int("RECENT_SESSIONS_DEFAULT", 10),
		CORSAllowedOrigins:    splitCSV(getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173")),

		ShutdownTimeout:        p.duration("SHUTDOWN_TIMEOUT", 15*time.Second),
		ShutdownHTTPDrainDelay: p.duration("SHUTDOWN_HTTP_DRAIN_DELAY", 0),

		LogLevel:  strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFormat: strings.ToLower(getEnv("LOG_FORMAT", "json")),

		OTELServiceName:           getEnv("OTEL_SERVICE_NAME", "capture-session-service"),
		OTELEnvironment:           getEnv("OTEL_ENVIRONMENT", getEnv("APP_ENV", "development")),
		OTELExporterOTLPEndpoint:  getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		OTELExporterOTLPInsecure:  p.bool("OTEL_EXPORTER_OTLP_INSECURE", true),
		OTELMetricsEnabled:        p.bool("OTEL_METRICS_ENABLED", false),
		OTELTracingEnabled:        p.bool("OTEL_TRACING_ENABLED", false),
		OTELLogsEnabled:           p.bool("OTEL_LOGS_ENABLED", false),
		OTELMetricsExportInterval: p.duration("OTEL_METRICS_EXPORT_INTERVAL", 15*time.Second),
		OTELTraceSampleRatio:      p.float("OTEL_TRACE_SAMPLE_RATIO", 1.0),
	}
	if p.err != nil {
		return nil, p.err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []string
	switch c.DBDriver {
	case "postgres", "sqlite":
	default:
		errs = append(errs, fmt.Sprintf("DB_DRIVER must be postgres or sqlite, got %q", c.DBDriver))
	}
	if strings.TrimSpace(c.DatabaseURL) == "" {
		errs = append(errs, "DATABASE_URL is required")
	}
	if len(c.JWTAccessSecret) < 32 {
		errs = append(errs, "JWT_ACCESS_SECRET must be at least 32 bytes")
	}
	if c.RoomTTL <= 0 {
		errs = append(errs, "ROOM_TTL must be positive")
	}
	if c.RoomSweepInterval <= 0 {
		errs = append(errs, "ROOM_SWEEP_INTERVAL must be positive")
	}
	if c.WSPingPeriod <= 0 || c.WSPongWait <= c.WSPingPeriod {
		errs = append(errs, "WS_PONG_WAIT must be greater than WS_PING_PERIOD")
	}
	if c.WSSendBuffer <= 0 {
		errs = append(errs, "WS_SEND_BUFFER must be positive")
	}
	if c.WSReadLimitBytes <= 0 {
		errs = append(errs, "WS_READ_LIMIT_BYTES must be positive")
	}
	switch c.RateLimitBackend {
	case "local":
	case "redis":
		if c.RedisAddr == "" {
			errs = append(errs, "REDIS_ADDR is required when RATE_LIMIT_BACKEND=redis")
		}
	default:
		errs = append(errs, fmt.Sprintf("RATE_LIMIT_BACKEND must be local or redis, got %q", c.RateLimitBackend))
	}
	switch c.NegativeCacheBackend {
	case "noop", "memory":
	case "redis":
		if c.RedisAddr == "" {
			errs = append(errs, "REDIS_ADDR is required when NEGATIVE_CACHE_BACKEND=redis")
		}
	default:
		errs = append(errs, fmt.Sprintf("NEGATIVE_CACHE_BACKEND must be noop, memory or redis, got %q", c.NegativeCacheBackend))
	}
	if c.OTELTraceSampleRatio < 0 || c.OTELTraceSampleRatio > 1 {
		errs = append(errs, "OTEL_TRACE_SAMPLE_RATIO must be within [0,1]")
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(errs, "; "))
	}
	return nil
}

// RedisEnabled reports whether any component needs a Redis client.
func (c *Config) RedisEnabled() bool {
	return c.RedisAddr != "" && (c.RateLimitBackend == "redis" || c.NegativeCacheBackend == "redis")
}

type parser struct{ err error }

func (p *parser) fail(key, raw string, err error) {
	if p.err == nil {
		p.err = fmt.Errorf("%w: %s: invalid value %q: %w", ErrParse, key, raw, err)
	}
}

func (p *parser) duration(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		p.fail(key, raw, err)
		return def
	}
	return v
}

func (p *parser) int(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		p.fail(key, raw, err)
		return def
	}
	return v
}

func (p *parser) bool(key string, def bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		p.fail(key, raw, err)
		return def
	}
	return v
}

func (p *parser) float(key string, def float64) float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		p.fail(key, raw, err)
		return def
	}
	return v
}

func getEnv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func splitCSV(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if v := strings.TrimSpace(p); v != "" {
			out = append(out, v)
		}
	}
	return out
}
