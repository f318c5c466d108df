package ratelimit

import (
	"sync"
	"sync/atomic"
	"time"
)

// Store maps client keys to buckets. Lookups and creations for different
// keys proceed without contention; consumption on one key is serialized by
// that key's bucket.
type Store struct {
	config  Config
	buckets sync.Map // map[string]*TokenBucket
	size    atomic.Int64
	now     func() time.Time
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithClock overrides the time source used for refill.
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) {
		s.now = now
	}
}

// NewStore creates an empty store for the given policy.
func NewStore(cfg Config, opts ...StoreOption) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Store{
		config: cfg,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// TryConsume charges cost tokens to key's bucket, creating the bucket on the
// first request for key. It reports whether the request is admitted.
func (s *Store) TryConsume(key string, cost int) bool {
	return s.bucket(key).TryConsume(s.now(), cost)
}

// bucket returns the bucket for key. Concurrent first requests for the same
// key all observe the single bucket that won LoadOrStore.
func (s *Store) bucket(key string) *TokenBucket {
	if b, ok := s.buckets.Load(key); ok {
		return b.(*TokenBucket)
	}

	actual, loaded := s.buckets.LoadOrStore(key, NewTokenBucket(s.config))
	if !loaded {
		s.size.Add(1)
	}
	return actual.(*TokenBucket)
}

// Tokens reports the current level of key's bucket, or the capacity if the
// key has never been seen.
func (s *Store) Tokens(key string) float64 {
	b, ok := s.buckets.Load(key)
	if !ok {
		return float64(s.config.Capacity)
	}
	return b.(*TokenBucket).Tokens(s.now())
}

// Len returns the number of buckets created so far.
func (s *Store) Len() int {
	return int(s.size.Load())
}

// Config returns the bucket policy.
func (s *Store) Config() Config {
	return s.config
}
