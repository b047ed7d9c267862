package ratelimit

import (
	"context"
	"math"
	"time"
)

type Decision struct {
	Allowed    bool
	RetryAfter time.Duration
	Remaining  int
	ResetAt    time.Time
	Reason     string
}

type Policy struct {
	SustainedLimit    int
	SustainedWindow   time.Duration
	BurstCapacity     int
	BurstRefillPerSec float64
}

// Limiter decides whether one more event for key fits the policy. Both the
// HTTP middleware and the realtime line relay share this contract.
type Limiter interface {
	Allow(ctx context.Context, key string, policy Policy) (Decision, error)
}

type FailureMode string

const (
	FailOpen   FailureMode = "fail_open"
	FailClosed FailureMode = "fail_closed"
)

// NewPolicy allows limit events per window, with bursts of up to
// limit*burstMultiplier refilled at the sustained rate.
func NewPolicy(limit int, window time.Duration, burstMultiplier float64) Policy {
	p := Normalize(Policy{SustainedLimit: limit, SustainedWindow: window})
	if burstMultiplier > 1 {
		p.BurstCapacity = int(math.Ceil(float64(p.SustainedLimit) * burstMultiplier))
	}
	return p
}

func Normalize(policy Policy) Policy {
	if policy.SustainedLimit <= 0 {
		policy.SustainedLimit = 1
	}
	if policy.SustainedWindow <= 0 {
		policy.SustainedWindow = time.Minute
	}
	if policy.BurstCapacity < policy.SustainedLimit {
		policy.BurstCapacity = policy.SustainedLimit
	}
	if policy.BurstRefillPerSec <= 0 {
		policy.BurstRefillPerSec = float64(policy.SustainedLimit) / policy.SustainedWindow.Seconds()
	}
	if policy.BurstRefillPerSec <= 0 {
		policy.BurstRefillPerSec = 1
	}
	return policy
}
