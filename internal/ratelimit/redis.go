package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisLimiter is a fixed-window counter shared by every process that talks
// to the same Redis. Burst settings of the policy are ignored.
type RedisLimiter struct {
	client redis.UniversalClient
	prefix string
	now    func() time.Time
}

func NewRedisLimiter(client redis.UniversalClient, prefix string) *RedisLimiter {
	if prefix == "" {
		prefix = "rl"
	}
	return &RedisLimiter{client: client, prefix: prefix, now: time.Now}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string, policy Policy) (Decision, error) {
	policy = Normalize(policy)
	now := l.now()
	window := policy.SustainedWindow
	bucket := now.UnixMilli() / window.Milliseconds()
	redisKey := fmt.Sprintf("%s:%s:%d", l.prefix, key, bucket)
	resetAt := time.UnixMilli((bucket + 1) * window.Milliseconds())

	pipe := l.client.TxPipeline()
	incr := pipe.Incr(ctx, redisKey)
	pipe.PExpire(ctx, redisKey, window+time.Second)
	if _, err := pipe.Exec(ctx); err != nil {
		return Decision{}, fmt.Errorf("rate limit %s: %w", key, err)
	}

	count := int(incr.Val())
	remaining := max(policy.SustainedLimit-count, 0)
	if count > policy.SustainedLimit {
		return Decision{
			Allowed:    false,
			RetryAfter: max(resetAt.Sub(now), time.Second),
			Remaining:  0,
			ResetAt:    resetAt,
			Reason:     "window",
		}, nil
	}
	return Decision{Allowed: true, Remaining: remaining, ResetAt: resetAt}, nil
}
