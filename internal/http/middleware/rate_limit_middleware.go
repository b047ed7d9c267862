package middleware

import (
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sandeepkv93/capture-session-service/internal/http/response"
	"github.com/sandeepkv93/capture-session-service/internal/observability"
	"github.com/sandeepkv93/capture-session-service/internal/ratelimit"
)

type RateLimiter struct {
	limiter ratelimit.Limiter
	policy  ratelimit.Policy
	mode    ratelimit.FailureMode
	scope   string
	keyFunc func(r *http.Request) string
	logger  *slog.Logger
}

// NewRateLimiter limits requests per client IP, in limit per window.
func NewRateLimiter(limiter ratelimit.Limiter, limit int, window time.Duration, mode ratelimit.FailureMode, scope string) *RateLimiter {
	if limiter == nil {
		limiter = ratelimit.NewLocalLimiter()
	}
	if scope == "" {
		scope = "api"
	}
	return &RateLimiter{
		limiter: limiter,
		policy:  ratelimit.NewPolicy(limit, window, 1.0),
		mode:    mode,
		scope:   scope,
		keyFunc: clientIPKey,
		logger:  slog.Default(),
	}
}

// WithKeyFunc overrides the bucket key. An empty key falls back to the client IP.
func (rl *RateLimiter) WithKeyFunc(fn func(r *http.Request) string) *RateLimiter {
	if fn != nil {
		rl.keyFunc = fn
	}
	return rl
}

func (rl *RateLimiter) WithLogger(logger *slog.Logger) *RateLimiter {
	if logger != nil {
		rl.logger = logger
	}
	return rl
}

func (rl *RateLimiter) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := rl.keyFunc(r)
			if key == "" {
				key = clientIPKey(r)
			}
			key = rl.scope + ":" + key
			decision, err := rl.limiter.Allow(r.Context(), key, rl.policy)
			if err != nil {
				observability.RecordRateLimitDecision(r.Context(), rl.scope, "backend_error", string(rl.mode))
				if rl.mode == ratelimit.FailOpen {
					rl.logger.Warn("rate limiter backend unavailable, allowing request",
						"scope", rl.scope,
						"error", err.Error(),
					)
					next.ServeHTTP(w, r)
					return
				}
				writeRateLimitHeaders(w.Header(), rl.policy.SustainedLimit, 0, time.Now().Add(rl.policy.SustainedWindow))
				w.Header().Set("Retry-After", retryAfterHeader(rl.policy.SustainedWindow))
				response.Error(w, r, http.StatusTooManyRequests, response.CodeRateLimited, "too many requests", nil)
				return
			}
			writeRateLimitHeaders(w.Header(), rl.policy.SustainedLimit, decision.Remaining, decision.ResetAt)
			if !decision.Allowed {
				observability.RecordRateLimitDecision(r.Context(), rl.scope, "deny", string(rl.mode))
				w.Header().Set("Retry-After", retryAfterHeader(decision.RetryAfter))
				response.Error(w, r, http.StatusTooManyRequests, response.CodeRateLimited, "too many requests", nil)
				return
			}
			observability.RecordRateLimitDecision(r.Context(), rl.scope, "allow", string(rl.mode))
			next.ServeHTTP(w, r)
		})
	}
}

// CallerOrIPKey buckets authenticated callers by user id, everyone else by IP.
func CallerOrIPKey(r *http.Request) string {
	if caller, ok := CallerFromContext(r.Context()); ok {
		return "user:" + strconv.FormatUint(uint64(caller.UserID), 10)
	}
	return clientIPKey(r)
}

func clientIPKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err != nil {
		host = r.RemoteAddr
	}
	if ip := net.ParseIP(host); ip != nil {
		return ip.String()
	}
	return host
}

func retryAfterHeader(d time.Duration) string {
	seconds := int(d.Round(time.Second).Seconds())
	if seconds <= 0 {
		seconds = 1
	}
	return strconv.Itoa(seconds)
}

func writeRateLimitHeaders(h http.Header, limit int, remaining int, resetAt time.Time) {
	h.Set("X-RateLimit-Limit", fmt.Sprintf("%d", max(limit, 0)))
	h.Set("X-RateLimit-Remaining", fmt.Sprintf("%d", max(remaining, 0)))
	if resetAt.IsZero() {
		resetAt = time.Now().Add(time.Second)
	}
	h.Set("X-RateLimit-Reset", fmt.Sprintf("%d", resetAt.Unix()))
}
