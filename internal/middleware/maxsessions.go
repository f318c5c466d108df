package middleware

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/letsplay/gateway/internal/observability"
	"github.com/letsplay/gateway/internal/util"
)

// DefaultQueueTimeout bounds how long a queued request waits for a slot when
// no timeout is configured.
const DefaultQueueTimeout = time.Second

// MaxSessionsLimiter caps the number of requests served at once. When every
// slot is busy up to queueSize callers wait for one to free up; the rest are
// turned away immediately.
type MaxSessionsLimiter struct {
	slots        chan struct{}
	queue        chan struct{}
	queueTimeout time.Duration
	logger       observability.Logger

	stopOnce sync.Once
	stopCh   chan struct{}
}

// MaxSessionsOption configures a MaxSessionsLimiter.
type MaxSessionsOption func(*MaxSessionsLimiter)

// WithMaxSessionsLogger sets the logger used for rejections.
func WithMaxSessionsLogger(logger observability.Logger) MaxSessionsOption {
	return func(l *MaxSessionsLimiter) {
		l.logger = logger
	}
}

// NewMaxSessionsLimiter creates a limiter with maxConcurrent slots, raised to
// one if smaller.
func NewMaxSessionsLimiter(
	maxConcurrent, queueSize int,
	queueTimeout time.Duration,
	opts ...MaxSessionsOption,
) *MaxSessionsLimiter {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	if queueTimeout <= 0 {
		queueTimeout = DefaultQueueTimeout
	}

	l := &MaxSessionsLimiter{
		slots:        make(chan struct{}, maxConcurrent),
		queueTimeout: queueTimeout,
		logger:       observability.NopLogger(),
		stopCh:       make(chan struct{}),
	}
	if queueSize > 0 {
		l.queue = make(chan struct{}, queueSize)
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Acquire takes a slot, waiting in the queue if there is room there. It
// reports false when the request must be rejected.
func (l *MaxSessionsLimiter) Acquire(ctx context.Context) bool {
	select {
	case l.slots <- struct{}{}:
		return true
	default:
	}

	if l.queue == nil {
		return false
	}
	select {
	case l.queue <- struct{}{}:
		defer func() { <-l.queue }()
	default:
		return false
	}

	timer := time.NewTimer(l.queueTimeout)
	defer timer.Stop()

	select {
	case l.slots <- struct{}{}:
		return true
	case <-ctx.Done():
		return false
	case <-timer.C:
		return false
	case <-l.stopCh:
		return false
	}
}

// Release frees a slot taken by Acquire.
func (l *MaxSessionsLimiter) Release() {
	select {
	case <-l.slots:
	default:
	}
}

// Current returns the number of requests holding a slot.
func (l *MaxSessionsLimiter) Current() int {
	return len(l.slots)
}

// MaxConcurrent returns the slot count.
func (l *MaxSessionsLimiter) MaxConcurrent() int {
	return cap(l.slots)
}

// QueueLength returns the number of requests waiting for a slot.
func (l *MaxSessionsLimiter) QueueLength() int {
	if l.queue == nil {
		return 0
	}
	return len(l.queue)
}

// Stop releases every queued request with a rejection. It is safe to call
// more than once.
func (l *MaxSessionsLimiter) Stop() {
	l.stopOnce.Do(func() { close(l.stopCh) })
}

// MaxSessions returns a middleware that answers 503 when l has no slot for
// the request. A nil limiter disables the check.
func MaxSessions(l *MaxSessionsLimiter) Middleware {
	return func(next http.Handler) http.Handler {
		if l == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !l.Acquire(r.Context()) {
				l.logger.Warn("max sessions exceeded",
					observability.String("path", r.URL.Path),
					observability.String("method", r.Method),
					observability.Int("current", l.Current()),
					observability.Int("max", l.MaxConcurrent()),
				)
				w.Header().Set(HeaderRetryAfter, "1")
				util.WriteJSONError(w, http.StatusServiceUnavailable, MsgServerBusy)
				return
			}
			defer l.Release()
			next.ServeHTTP(w, r)
		})
	}
}
