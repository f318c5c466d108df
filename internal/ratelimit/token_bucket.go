package ratelimit

import (
	"time"

	"golang.org/x/time/rate"
)

// TokenBucket is a single client's rate limit state.
//
// Refill is greedy: tokens accrue continuously in proportion to elapsed time
// and are kept as a float, so partial tokens are never lost between checks.
// The level is clamped to the capacity. All mutation happens under the
// limiter's own lock, which makes TryConsume atomic per bucket.
type TokenBucket struct {
	limiter  *rate.Limiter
	capacity int
}

// NewTokenBucket creates a full bucket for the given policy.
func NewTokenBucket(cfg Config) *TokenBucket {
	return &TokenBucket{
		limiter:  rate.NewLimiter(rate.Limit(cfg.TokensPerSecond()), cfg.Capacity),
		capacity: cfg.Capacity,
	}
}

// TryConsume takes cost tokens at time now if available. A denied call
// leaves the bucket unchanged.
func (b *TokenBucket) TryConsume(now time.Time, cost int) bool {
	if cost <= 0 {
		return true
	}
	return b.limiter.AllowN(now, cost)
}

// Tokens reports the bucket level at time now after refill.
func (b *TokenBucket) Tokens(now time.Time) float64 {
	return b.limiter.TokensAt(now)
}

// Capacity returns the bucket capacity.
func (b *TokenBucket) Capacity() int {
	return b.capacity
}
