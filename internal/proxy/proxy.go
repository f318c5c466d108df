package proxy

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"time"

	"github.com/sony/gobreaker"

	"github.com/letsplay/gateway/internal/observability"
	"github.com/letsplay/gateway/internal/policy"
	"github.com/letsplay/gateway/internal/util"
)

// target is one upstream with its reverse proxy.
type target struct {
	name    string
	url     *url.URL
	timeout time.Duration
	breaker *breakerTransport
	proxy   *httputil.ReverseProxy
}

// Proxy forwards requests to the upstream owning the longest matching path
// prefix. It is safe for concurrent use.
type Proxy struct {
	routes    routeTable
	targets   []*target
	logger    observability.Logger
	metrics   *observability.Metrics
	transport http.RoundTripper
}

// Option configures a Proxy.
type Option func(*Proxy)

// WithLogger sets the logger for the proxy.
func WithLogger(logger observability.Logger) Option {
	return func(p *Proxy) {
		p.logger = logger
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(metrics *observability.Metrics) Option {
	return func(p *Proxy) {
		p.metrics = metrics
	}
}

// WithTransport sets the base transport used to reach upstreams.
func WithTransport(transport http.RoundTripper) Option {
	return func(p *Proxy) {
		p.transport = transport
	}
}

// New builds a Proxy for upstreams.
func New(upstreams []Upstream, opts ...Option) (*Proxy, error) {
	p := &Proxy{
		logger:    observability.NopLogger(),
		transport: http.DefaultTransport,
	}
	for _, opt := range opts {
		opt(p)
	}

	var routes []route
	seen := make(map[string]string)

	for _, u := range upstreams {
		if err := u.Validate(); err != nil {
			return nil, err
		}
		t, err := p.newTarget(u)
		if err != nil {
			return nil, err
		}
		p.targets = append(p.targets, t)

		for _, prefix := range u.Prefixes {
			prefix = policy.CleanPath(prefix)
			if owner, dup := seen[prefix]; dup {
				return nil, fmt.Errorf("%w: prefix %s is served by both %s and %s",
					ErrInvalidUpstream, prefix, owner, u.Name)
			}
			seen[prefix] = u.Name
			routes = append(routes, route{prefix: prefix, target: t})
		}
	}

	p.routes = newRouteTable(routes)
	return p, nil
}

func (p *Proxy) newTarget(u Upstream) (*target, error) {
	targetURL, err := u.parsedURL()
	if err != nil {
		return nil, err
	}

	t := &target{
		name:    u.Name,
		url:     targetURL,
		timeout: u.Timeout,
	}

	transport := p.transport
	if u.Breaker.Enabled {
		t.breaker = newBreakerTransport(u.Name, u.Breaker, p.transport, p.logger, p.onBreakerState)
		transport = t.breaker
	}

	t.proxy = &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			rewrite(pr, targetURL)
		},
		Transport: transport,
		ModifyResponse: func(resp *http.Response) error {
			p.recordUpstream(u.Name, resp.StatusCode)
			return nil
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			p.handleError(w, r, u.Name, err)
		},
	}

	if p.metrics != nil && t.breaker != nil {
		p.metrics.SetCircuitBreakerState(u.Name, int(gobreaker.StateClosed))
	}

	return t, nil
}

// rewrite points the outbound request at target, forwarding the cleaned path
// so the upstream sees the same path the gateway classified.
func rewrite(pr *httputil.ProxyRequest, target *url.URL) {
	pr.Out.URL.Path = policy.CleanPath(pr.In.URL.Path)
	pr.Out.URL.RawPath = ""
	pr.SetURL(target)
	pr.SetXForwarded()
	observability.InjectTraceContext(pr.Out.Context(), pr.Out.Header)
}

// ServeHTTP implements http.Handler.
func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	t, ok := p.routes.match(policy.CleanPath(r.URL.Path))
	if !ok {
		p.logger.Debug("route not found",
			observability.String("path", r.URL.Path),
			observability.String("method", r.Method),
			observability.Error(ErrRouteNotFound),
		)
		util.WriteJSONError(w, http.StatusNotFound, MsgNotFound)
		return
	}

	ctx := util.ContextWithUpstream(r.Context(), t.name)
	if t.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	t.proxy.ServeHTTP(w, r.WithContext(ctx))
}

// Match returns the upstream name serving path.
func (p *Proxy) Match(path string) (string, bool) {
	t, ok := p.routes.match(policy.CleanPath(path))
	if !ok {
		return "", false
	}
	return t.name, true
}

// BreakerStates returns the breaker state of each guarded upstream.
func (p *Proxy) BreakerStates() map[string]string {
	states := make(map[string]string, len(p.targets))
	for _, t := range p.targets {
		if t.breaker != nil {
			states[t.name] = t.breaker.state().String()
		}
	}
	return states
}

func (p *Proxy) handleError(w http.ResponseWriter, r *http.Request, upstream string, err error) {
	status, msg := http.StatusBadGateway, MsgBadGateway
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		status, msg = http.StatusRequestEntityTooLarge, MsgPayloadTooLarge
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		status, msg = http.StatusServiceUnavailable, MsgServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		status, msg = http.StatusGatewayTimeout, MsgGatewayTimeout
	}

	log := p.logger.Error
	if errors.Is(err, context.Canceled) || tooLarge != nil {
		log = p.logger.Debug
	}
	log("proxy error",
		observability.String("upstream", upstream),
		observability.String("method", r.Method),
		observability.String("path", r.URL.Path),
		observability.String("request_id", observability.RequestIDFromContext(r.Context())),
		observability.Error(err),
	)

	p.recordUpstream(upstream, status)
	util.WriteJSONError(w, status, msg)
}

func (p *Proxy) recordUpstream(upstream string, status int) {
	if p.metrics != nil {
		p.metrics.RecordUpstream(upstream, status)
	}
}

func (p *Proxy) onBreakerState(upstream string, state int) {
	if p.metrics != nil {
		p.metrics.SetCircuitBreakerState(upstream, state)
	}
}
