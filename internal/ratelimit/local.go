package ratelimit

import (
	"context"
	"math"
	"sync"
	"time"
)

// LocalLimiter enforces a Policy in process memory: a token bucket absorbs
// bursts and a sliding log of admitted events caps the sustained rate.
type LocalLimiter struct {
	mu        sync.Mutex
	buckets   map[string]*bucket
	nextSweep time.Time
	now       func() time.Time
}

type bucket struct {
	tokens   float64
	refilled time.Time
	admitted []time.Time
}

func NewLocalLimiter() *LocalLimiter {
	return &LocalLimiter{
		buckets:   make(map[string]*bucket),
		nextSweep: time.Now().Add(time.Minute),
		now:       time.Now,
	}
}

func (l *LocalLimiter) Allow(_ context.Context, key string, policy Policy) (Decision, error) {
	policy = Normalize(policy)
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()
	l.sweep(now, policy.SustainedWindow)

	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{tokens: float64(policy.BurstCapacity), refilled: now}
		l.buckets[key] = b
	}
	b.refill(now, policy)
	b.forget(now.Add(-policy.SustainedWindow))

	wait, reason := b.wait(now, policy)
	if wait > 0 {
		return Decision{
			Allowed:    false,
			RetryAfter: wait,
			Remaining:  0,
			ResetAt:    now.Add(wait),
			Reason:     reason,
		}, nil
	}

	b.tokens = max(b.tokens-1, 0)
	b.admitted = append(b.admitted, now)
	return Decision{
		Allowed:   true,
		Remaining: b.remaining(policy),
		ResetAt:   b.admitted[0].Add(policy.SustainedWindow),
	}, nil
}

// sweep drops idle buckets at most once per window.
func (l *LocalLimiter) sweep(now time.Time, window time.Duration) {
	if now.Before(l.nextSweep) {
		return
	}
	for key, b := range l.buckets {
		if len(b.admitted) == 0 && now.Sub(b.refilled) > 2*window {
			delete(l.buckets, key)
		}
	}
	l.nextSweep = now.Add(window)
}

func (b *bucket) refill(now time.Time, policy Policy) {
	if !now.After(b.refilled) {
		return
	}
	gained := now.Sub(b.refilled).Seconds() * policy.BurstRefillPerSec
	b.tokens = min(float64(policy.BurstCapacity), b.tokens+gained)
	b.refilled = now
}

func (b *bucket) forget(cutoff time.Time) {
	kept := b.admitted[:0]
	for _, at := range b.admitted {
		if at.After(cutoff) {
			kept = append(kept, at)
		}
	}
	b.admitted = kept
}

// wait reports how long until one more event fits, and which limit binds.
func (b *bucket) wait(now time.Time, policy Policy) (time.Duration, string) {
	var (
		bucketWait time.Duration
		windowWait time.Duration
	)
	if b.tokens < 1 {
		bucketWait = time.Duration(math.Ceil((1 - b.tokens) / policy.BurstRefillPerSec * float64(time.Second)))
	}
	if len(b.admitted) >= policy.SustainedLimit {
		windowWait = max(b.admitted[0].Add(policy.SustainedWindow).Sub(now), time.Second)
	}
	switch {
	case windowWait == 0 && bucketWait == 0:
		return 0, ""
	case windowWait >= bucketWait:
		return windowWait, "window"
	default:
		return max(bucketWait, time.Second), "bucket"
	}
}

func (b *bucket) remaining(policy Policy) int {
	return max(min(int(math.Floor(b.tokens)), policy.SustainedLimit-len(b.admitted)), 0)
}
