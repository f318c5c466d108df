// Package ratelimit implements per-client token bucket rate limiting.
//
// A Store owns one TokenBucket per client key. Buckets are created lazily on
// the first request from a key and are never evicted, so memory grows with
// the number of distinct clients seen by the process.
package ratelimit

import (
	"errors"
	"fmt"
	"time"
)

// Default policy: 100 requests, fully replenished over one minute.
const (
	DefaultCapacity       = 100
	DefaultRefillTokens   = 100
	DefaultRefillInterval = time.Minute
	DefaultCost           = 1
)

// ErrInvalidConfig is returned for a bucket policy that cannot admit anything.
var ErrInvalidConfig = errors.New("invalid rate limit configuration")

// Config describes the bucket policy shared by all clients.
type Config struct {
	// Capacity is the maximum number of tokens a bucket holds.
	Capacity int

	// RefillTokens is the number of tokens added per RefillInterval.
	RefillTokens int

	// RefillInterval is the window over which RefillTokens are added.
	RefillInterval time.Duration
}

// DefaultConfig returns the default bucket policy.
func DefaultConfig() Config {
	return Config{
		Capacity:       DefaultCapacity,
		RefillTokens:   DefaultRefillTokens,
		RefillInterval: DefaultRefillInterval,
	}
}

// Validate checks the policy.
func (c Config) Validate() error {
	switch {
	case c.Capacity < 1:
		return fmt.Errorf("%w: capacity must be at least 1, got %d", ErrInvalidConfig, c.Capacity)
	case c.RefillTokens < 1:
		return fmt.Errorf("%w: refill tokens must be at least 1, got %d", ErrInvalidConfig, c.RefillTokens)
	case c.RefillInterval <= 0:
		return fmt.Errorf("%w: refill interval must be positive, got %s", ErrInvalidConfig, c.RefillInterval)
	}
	return nil
}

// TokensPerSecond returns the sustained refill rate.
func (c Config) TokensPerSecond() float64 {
	return float64(c.RefillTokens) / c.RefillInterval.Seconds()
}
