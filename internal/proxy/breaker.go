package proxy

import (
	"fmt"
	"math"
	"net/http"

	"github.com/sony/gobreaker"

	"github.com/letsplay/gateway/internal/observability"
)

// breakerTransport trips a gobreaker circuit on transport errors and 5xx
// responses from one upstream.
type breakerTransport struct {
	next http.RoundTripper
	cb   *gobreaker.CircuitBreaker
}

// StateFunc is called when a breaker changes state.
// States are 0 closed, 1 half-open, 2 open.
type StateFunc func(upstream string, state int)

func newBreakerTransport(
	name string,
	cfg BreakerConfig,
	next http.RoundTripper,
	logger observability.Logger,
	onState StateFunc,
) *breakerTransport {
	minRequests := safeIntToUint32(cfg.MinRequests)

	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    cfg.Interval,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < minRequests || counts.Requests == 0 {
				return false
			}
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			return ratio >= cfg.FailureRatio
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				observability.String("upstream", name),
				observability.String("from", from.String()),
				observability.String("to", to.String()),
			)
			if onState != nil {
				onState(name, int(to))
			}
		},
	}

	return &breakerTransport{
		next: next,
		cb:   gobreaker.NewCircuitBreaker(settings),
	}
}

// RoundTrip implements http.RoundTripper. A 5xx response counts as a failure
// but is still returned to the caller unchanged.
func (t *breakerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	result, err := t.cb.Execute(func() (interface{}, error) {
		resp, err := t.next.RoundTrip(req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= http.StatusInternalServerError {
			return resp, fmt.Errorf("%w: status %d", ErrUpstreamFailure, resp.StatusCode)
		}
		return resp, nil
	})

	if resp, ok := result.(*http.Response); ok && resp != nil {
		return resp, nil
	}
	return nil, err
}

func (t *breakerTransport) state() gobreaker.State {
	return t.cb.State()
}

func safeIntToUint32(n int) uint32 {
	if n < 0 {
		return 0
	}
	if n > math.MaxUint32 {
		return math.MaxUint32
	}
	return uint32(n) //nolint:gosec // bounds checked above
}
