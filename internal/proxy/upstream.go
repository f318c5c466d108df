package proxy

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/letsplay/gateway/internal/util"
)

// Default upstream settings.
const (
	DefaultUpstreamTimeout     = 30 * time.Second
	DefaultBreakerMinRequests  = 10
	DefaultBreakerFailureRatio = 0.5
	DefaultBreakerOpenTimeout  = 30 * time.Second
	DefaultBreakerInterval     = 60 * time.Second
)

// BreakerConfig configures the circuit breaker guarding one upstream.
type BreakerConfig struct {
	Enabled bool

	// MinRequests is the number of requests in an interval before the
	// failure ratio is considered.
	MinRequests int

	// FailureRatio trips the breaker once reached.
	FailureRatio float64

	// OpenTimeout is how long the breaker stays open before probing.
	OpenTimeout time.Duration

	// Interval is the closed-state window after which counts reset.
	Interval time.Duration
}

// DefaultBreakerConfig returns an enabled breaker with default thresholds.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		Enabled:      true,
		MinRequests:  DefaultBreakerMinRequests,
		FailureRatio: DefaultBreakerFailureRatio,
		OpenTimeout:  DefaultBreakerOpenTimeout,
		Interval:     DefaultBreakerInterval,
	}
}

// Upstream is a downstream service and the path prefixes it serves.
type Upstream struct {
	Name     string
	URL      string
	Prefixes []string
	Timeout  time.Duration
	Breaker  BreakerConfig
}

// DefaultUpstreams returns the letsplay services on their local ports.
func DefaultUpstreams() []Upstream {
	return []Upstream{
		{
			Name:     "user-service",
			URL:      "http://localhost:8081",
			Prefixes: []string{"/api/auth", "/api/users"},
			Timeout:  DefaultUpstreamTimeout,
			Breaker:  DefaultBreakerConfig(),
		},
		{
			Name:     "product-service",
			URL:      "http://localhost:8082",
			Prefixes: []string{"/api/products"},
			Timeout:  DefaultUpstreamTimeout,
			Breaker:  DefaultBreakerConfig(),
		},
		{
			Name:     "media-service",
			URL:      "http://localhost:8083",
			Prefixes: []string{"/api/media"},
			Timeout:  DefaultUpstreamTimeout,
			Breaker:  DefaultBreakerConfig(),
		},
	}
}

// Validate checks the upstream definition.
func (u Upstream) Validate() error {
	if u.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidUpstream)
	}
	if err := util.ValidateURL(u.URL); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrInvalidUpstream, u.Name, err)
	}
	if len(u.Prefixes) == 0 {
		return fmt.Errorf("%w: %s: at least one prefix is required", ErrInvalidUpstream, u.Name)
	}
	for _, p := range u.Prefixes {
		if err := util.ValidatePathPrefix(p); err != nil {
			return fmt.Errorf("%w: %s: %w", ErrInvalidUpstream, u.Name, err)
		}
	}
	if b := u.Breaker; b.Enabled && (b.FailureRatio <= 0 || b.FailureRatio > 1) {
		return fmt.Errorf("%w: %s: failure ratio must be in (0, 1], got %v", ErrInvalidUpstream, u.Name, b.FailureRatio)
	}
	return nil
}

func (u Upstream) parsedURL() (*url.URL, error) {
	target, err := url.Parse(u.URL)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidUpstream, u.Name, err)
	}
	return target, nil
}

// route maps one prefix to its upstream.
type route struct {
	prefix string
	target *target
}

// routeTable resolves the longest matching prefix.
type routeTable []route

func newRouteTable(routes []route) routeTable {
	t := routeTable(routes)
	sort.SliceStable(t, func(i, j int) bool {
		return len(t[i].prefix) > len(t[j].prefix)
	})
	return t
}

// match expects a cleaned path.
func (t routeTable) match(p string) (*target, bool) {
	for _, r := range t {
		if hasPathPrefix(p, r.prefix) {
			return r.target, true
		}
	}
	return nil, false
}

// hasPathPrefix reports whether prefix covers p at a segment boundary.
func hasPathPrefix(p, prefix string) bool {
	prefix = strings.TrimSuffix(prefix, "/")
	if prefix == "" {
		return true
	}
	if !strings.HasPrefix(p, prefix) {
		return false
	}
	return len(p) == len(prefix) || p[len(prefix)] == '/'
}
