package service

import (
	"context"
	"sync"
	"time"
)

// MediaMissCache remembers content ids that resolved to nothing, so clients
// polling an unknown id do not hit the database on every request.
type MediaMissCache interface {
	Seen(ctx context.Context, contentID string) (bool, error)
	Remember(ctx context.Context, contentID string, ttl time.Duration) error
	// Flush forgets every remembered miss, e.g. after a catalog import.
	Flush(ctx context.Context) error
}

type NoMissCache struct{}

func (NoMissCache) Seen(context.Context, string) (bool, error) { return false, nil }
func (NoMissCache) Remember(context.Context, string, time.Duration) error     { return nil }
func (NoMissCache) Flush(context.Context) error                               { return nil }

// MemoryMissCache is a per-process MediaMissCache. Expired entries are
// dropped lazily on read and in bulk once the map grows past pruneAt.
type MemoryMissCache struct {
	mu      sync.Mutex
	misses  map[string]time.Time
	pruneAt int
	now     func() time.Time
}

func NewMemoryMissCache() *MemoryMissCache {
	return &MemoryMissCache{misses: make(map[string]time.Time), pruneAt: 4096, now: time.Now}
}

func (c *MemoryMissCache) Seen(_ context.Context, contentID string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	until, ok := c.misses[contentID]
	if !ok {
		return false, nil
	}
	if !c.now().Before(until) {
		delete(c.misses, contentID)
		return false, nil
	}
	return true, nil
}

func (c *MemoryMissCache) Remember(_ context.Context, contentID string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	if len(c.misses) >= c.pruneAt {
		for id, until := range c.misses {
			if !now.Before(until) {
				delete(c.misses, id)
			}
		}
	}
	c.misses[contentID] = now.Add(ttl)
	return nil
}

func (c *MemoryMissCache) Flush(context.Context) error {
	c.mu.Lock()
	c.misses = make(map[string]time.Time)
	c.mu.Unlock()
	return nil
}

func (c *MemoryMissCache) size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.misses)
}
