package ratelimit

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestLocalLimiterSustainedWindow(t *testing.T) {
	l := NewLocalLimiter()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }
	policy := NewPolicy(3, time.Minute, 1)

	for i := 0; i < 3; i++ {
		d, err := l.Allow(context.Background(), "conn-1", policy)
		if err != nil || !d.Allowed {
			t.Fatalf("request %d denied: %+v err=%v", i, d, err)
		}
	}
	d, _ := l.Allow(context.Background(), "conn-1", policy)
	if d.Allowed {
		t.Fatal("expected fourth request in window to be denied")
	}
	if d.RetryAfter <= 0 {
		t.Fatalf("expected positive retry-after, got %s", d.RetryAfter)
	}
	if d2, _ := l.Allow(context.Background(), "conn-2", policy); !d2.Allowed {
		t.Fatal("keys must be limited independently")
	}

	now = now.Add(61 * time.Second)
	if d, _ := l.Allow(context.Background(), "conn-1", policy); !d.Allowed {
		t.Fatalf("expected window to reset, got %+v", d)
	}
}

func TestLocalLimiterBucketBindsAfterWindowClears(t *testing.T) {
	l := NewLocalLimiter()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }
	policy := Policy{SustainedLimit: 2, SustainedWindow: time.Second, BurstCapacity: 2, BurstRefillPerSec: 0.1}

	for i := 0; i < 2; i++ {
		if d, _ := l.Allow(context.Background(), "line:conn-1", policy); !d.Allowed {
			t.Fatalf("event %d denied: %+v", i, d)
		}
	}
	now = now.Add(2 * time.Second)
	d, _ := l.Allow(context.Background(), "line:conn-1", policy)
	if d.Allowed || d.Reason != "bucket" {
		t.Fatalf("expected bucket denial, got %+v", d)
	}
	if d.RetryAfter != 8*time.Second {
		t.Fatalf("expected 8s until a token refills, got %s", d.RetryAfter)
	}
}

func TestRedisLimiterFixedWindow(t *testing.T) {
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	l := NewRedisLimiter(client, "test")
	now := time.Date(2026, 1, 1, 0, 0, 5, 0, time.UTC)
	l.now = func() time.Time { return now }
	policy := NewPolicy(2, time.Minute, 1)

	for i := 0; i < 2; i++ {
		d, err := l.Allow(context.Background(), "ip:1", policy)
		if err != nil || !d.Allowed {
			t.Fatalf("request %d denied: %+v err=%v", i, d, err)
		}
	}
	d, err := l.Allow(context.Background(), "ip:1", policy)
	if err != nil {
		t.Fatalf("allow: %v", err)
	}
	if d.Allowed || d.Reason != "window" {
		t.Fatalf("expected window denial, got %+v", d)
	}

	now = now.Add(time.Minute)
	if d, _ := l.Allow(context.Background(), "ip:1", policy); !d.Allowed {
		t.Fatalf("expected next window to allow, got %+v", d)
	}
}

func TestRedisLimiterBackendError(t *testing.T) {
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	server.Close()

	l := NewRedisLimiter(client, "")
	if _, err := l.Allow(context.Background(), "k", NewPolicy(1, time.Minute, 1)); err == nil {
		t.Fatal("expected error when redis is down")
	}
}
