package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisMissCache shares remembered misses between replicas. Entries are
// keyed under a generation number; Flush bumps the generation and the old
// entries age out on their own TTL.
type RedisMissCache struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisMissCache(client redis.UniversalClient, prefix string) *RedisMissCache {
	if prefix == "" {
		prefix = "capture:media-miss"
	}
	return &RedisMissCache{client: client, prefix: prefix}
}

func (c *RedisMissCache) Seen(ctx context.Context, contentID string) (bool, error) {
	gen, err := c.generation(ctx)
	if err != nil {
		return false, err
	}
	n, err := c.client.Exists(ctx, c.entryKey(gen, contentID)).Result()
	if err != nil {
		return false, fmt.Errorf("media miss cache seen: %w", err)
	}
	return n > 0, nil
}

func (c *RedisMissCache) Remember(ctx context.Context, contentID string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	gen, err := c.generation(ctx)
	if err != nil {
		return err
	}
	if err := c.client.Set(ctx, c.entryKey(gen, contentID), "1", ttl).Err(); err != nil {
		return fmt.Errorf("media miss cache remember: %w", err)
	}
	return nil
}

func (c *RedisMissCache) Flush(ctx context.Context) error {
	if err := c.client.Incr(ctx, c.generationKey()).Err(); err != nil {
		return fmt.Errorf("media miss cache flush: %w", err)
	}
	return nil
}

func (c *RedisMissCache) generation(ctx context.Context) (int64, error) {
	gen, err := c.client.Get(ctx, c.generationKey()).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("media miss cache generation: %w", err)
	}
	return gen, nil
}

func (c *RedisMissCache) generationKey() string {
	return c.prefix + ":gen"
}

func (c *RedisMissCache) entryKey(gen int64, contentID string) string {
	sum := sha256.Sum256([]byte(contentID))
	return fmt.Sprintf("%s:%d:%s", c.prefix, gen, hex.EncodeToString(sum[:12]))
}
