package ratelimit

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestStore(t *testing.T, cfg Config) (*Store, *fakeClock) {
	t.Helper()
	clock := newFakeClock()
	store, err := NewStore(cfg, WithClock(clock.Now))
	require.NoError(t, err)
	return store, clock
}

func TestNewStore_InvalidConfig(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		cfg  Config
	}{
		{name: "zero capacity", cfg: Config{Capacity: 0, RefillTokens: 1, RefillInterval: time.Second}},
		{name: "zero refill", cfg: Config{Capacity: 1, RefillTokens: 0, RefillInterval: time.Second}},
		{name: "zero interval", cfg: Config{Capacity: 1, RefillTokens: 1}},
		{name: "negative interval", cfg: Config{Capacity: 1, RefillTokens: 1, RefillInterval: -time.Second}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := NewStore(tt.cfg)
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestStore_AdmitsExactlyCapacity(t *testing.T) {
	t.Parallel()

	store, _ := newTestStore(t, DefaultConfig())

	for i := 0; i < DefaultCapacity; i++ {
		assert.True(t, store.TryConsume("10.0.0.1", 1), "request %d should be admitted", i+1)
	}
	assert.False(t, store.TryConsume("10.0.0.1", 1), "request beyond capacity should be denied")
	assert.False(t, store.TryConsume("10.0.0.1", 1))
}

func TestStore_DenyLeavesStateUnchanged(t *testing.T) {
	t.Parallel()

	store, _ := newTestStore(t, Config{Capacity: 5, RefillTokens: 5, RefillInterval: time.Minute})

	require.True(t, store.TryConsume("k", 3))
	assert.InDelta(t, 2.0, store.Tokens("k"), 1e-9)

	assert.False(t, store.TryConsume("k", 3))
	assert.InDelta(t, 2.0, store.Tokens("k"), 1e-9)

	assert.True(t, store.TryConsume("k", 2))
	assert.InDelta(t, 0.0, store.Tokens("k"), 1e-9)
}

func TestStore_RefillsToCapacityAfterOneInterval(t *testing.T) {
	t.Parallel()

	store, clock := newTestStore(t, DefaultConfig())

	for i := 0; i < DefaultCapacity; i++ {
		require.True(t, store.TryConsume("client", 1))
	}
	require.False(t, store.TryConsume("client", 1))

	clock.Advance(DefaultRefillInterval)
	assert.InDelta(t, float64(DefaultCapacity), store.Tokens("client"), 1e-9)

	// Waiting longer never exceeds capacity.
	clock.Advance(10 * DefaultRefillInterval)
	assert.InDelta(t, float64(DefaultCapacity), store.Tokens("client"), 1e-9)

	for i := 0; i < DefaultCapacity; i++ {
		assert.True(t, store.TryConsume("client", 1), "request %d after refill should be admitted", i+1)
	}
	assert.False(t, store.TryConsume("client", 1))
}

func TestStore_FractionalRefillAccumulates(t *testing.T) {
	t.Parallel()

	// One token per second.
	store, clock := newTestStore(t, Config{Capacity: 1, RefillTokens: 60, RefillInterval: time.Minute})

	require.True(t, store.TryConsume("k", 1))
	require.False(t, store.TryConsume("k", 1))

	// Four quarter-second steps must add up to a whole token.
	for i := 0; i < 3; i++ {
		clock.Advance(250 * time.Millisecond)
		assert.False(t, store.TryConsume("k", 1))
	}
	clock.Advance(250 * time.Millisecond)
	assert.True(t, store.TryConsume("k", 1))
}

func TestStore_PerKeyIsolation(t *testing.T) {
	t.Parallel()

	store, _ := newTestStore(t, Config{Capacity: 3, RefillTokens: 3, RefillInterval: time.Minute})

	for i := 0; i < 3; i++ {
		require.True(t, store.TryConsume("client-a", 1))
	}
	require.False(t, store.TryConsume("client-a", 1))

	assert.True(t, store.TryConsume("client-b", 1))
	assert.Equal(t, 2, store.Len())
}

func TestStore_ConcurrentConsumeAdmitsExactlyCapacity(t *testing.T) {
	t.Parallel()

	const n = 200
	store, _ := newTestStore(t, Config{Capacity: n, RefillTokens: n, RefillInterval: time.Hour})

	var (
		admitted atomic.Int64
		wg       sync.WaitGroup
		start    = make(chan struct{})
	)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if store.TryConsume("shared", 1) {
				admitted.Add(1)
			}
		}()
	}

	close(start)
	wg.Wait()

	assert.Equal(t, int64(n), admitted.Load())
	assert.False(t, store.TryConsume("shared", 1))
}

func TestStore_ConcurrentFirstRequestsCreateOneBucket(t *testing.T) {
	t.Parallel()

	store, _ := newTestStore(t, Config{Capacity: 1000, RefillTokens: 1, RefillInterval: time.Hour})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				store.TryConsume(fmt.Sprintf("key-%d", j), 1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 10, store.Len())
	for j := 0; j < 10; j++ {
		assert.InDelta(t, 950.0, store.Tokens(fmt.Sprintf("key-%d", j)), 1e-6)
	}
}

func TestStore_TokensForUnknownKey(t *testing.T) {
	t.Parallel()

	store, _ := newTestStore(t, DefaultConfig())
	assert.InDelta(t, float64(DefaultCapacity), store.Tokens("never-seen"), 1e-9)
	assert.Equal(t, 0, store.Len())
}

func TestStore_CostLargerThanCapacityIsDenied(t *testing.T) {
	t.Parallel()

	store, _ := newTestStore(t, Config{Capacity: 2, RefillTokens: 2, RefillInterval: time.Second})
	assert.False(t, store.TryConsume("k", 3))
	assert.True(t, store.TryConsume("k", 2))
}
