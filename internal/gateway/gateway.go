// Package gateway assembles the letsplay API gateway: the admission
// pipeline, the upstream proxy, probes and metrics behind one HTTP listener.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/letsplay/gateway/internal/admission"
	"github.com/letsplay/gateway/internal/auth"
	"github.com/letsplay/gateway/internal/config"
	"github.com/letsplay/gateway/internal/health"
	"github.com/letsplay/gateway/internal/middleware"
	"github.com/letsplay/gateway/internal/observability"
	"github.com/letsplay/gateway/internal/policy"
	"github.com/letsplay/gateway/internal/proxy"
	"github.com/letsplay/gateway/internal/ratelimit"
)

// State represents the gateway lifecycle state.
type State int32

const (
	// StateStopped indicates the gateway is stopped.
	StateStopped State = iota
	// StateStarting indicates the gateway is starting.
	StateStarting
	// StateRunning indicates the gateway is running.
	StateRunning
	// StateStopping indicates the gateway is stopping.
	StateStopping
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	default:
		return "unknown"
	}
}

var (
	// ErrNotStopped is returned by Start when the gateway is already up.
	ErrNotStopped = errors.New("gateway is not in stopped state")

	// ErrNotRunning is returned by Stop when the gateway is not running.
	ErrNotRunning = errors.New("gateway is not running")
)

// Gateway wires the request path
//
//	recovery -> request id -> tracing -> logging -> metrics -> security headers -> CORS
//	  -> max sessions -> body limit -> admission -> proxy
//
// behind a Gin engine that also serves /health, /ready and /metrics. Those
// routes spend from the same per-client rate limit bucket as API traffic.
type Gateway struct {
	config    *config.GatewayConfig
	validator auth.CredentialValidator
	logger    observability.Logger
	metrics   *observability.Metrics
	tracer    *observability.Tracer
	health    *health.Checker

	store    *ratelimit.Store
	sessions *middleware.MaxSessionsLimiter
	proxy    *proxy.Proxy
	pipeline *admission.Pipeline
	engine   *gin.Engine
	listener *Listener

	state     atomic.Int32
	startTime time.Time

	shutdownTimeout time.Duration
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithLogger sets the logger for the gateway.
func WithLogger(logger observability.Logger) Option {
	return func(g *Gateway) {
		g.logger = logger
	}
}

// WithMetrics sets the metrics sink. Without it no metrics are recorded and
// the metrics route is not registered.
func WithMetrics(metrics *observability.Metrics) Option {
	return func(g *Gateway) {
		g.metrics = metrics
	}
}

// WithTracer enables per-request server spans.
func WithTracer(tracer *observability.Tracer) Option {
	return func(g *Gateway) {
		g.tracer = tracer
	}
}

// WithHealthChecker replaces the default checker, typically to add checks.
func WithHealthChecker(checker *health.Checker) Option {
	return func(g *Gateway) {
		g.health = checker
	}
}

// WithShutdownTimeout sets the shutdown timeout.
func WithShutdownTimeout(timeout time.Duration) Option {
	return func(g *Gateway) {
		g.shutdownTimeout = timeout
	}
}

// New builds a gateway from cfg. validator verifies bearer credentials on
// private routes.
func New(cfg *config.GatewayConfig, validator auth.CredentialValidator, opts ...Option) (*Gateway, error) {
	if cfg == nil {
		return nil, fmt.Errorf("configuration is required")
	}
	if validator == nil {
		return nil, fmt.Errorf("credential validator is required")
	}

	g := &Gateway{
		config:          cfg,
		validator:       validator,
		logger:          observability.NopLogger(),
		shutdownTimeout: orDefault(cfg.Spec.Listener.ShutdownTimeout, config.DefaultShutdownTimeout),
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.health == nil {
		g.health = health.NewChecker("", health.WithLogger(g.logger))
	}
	g.state.Store(int32(StateStopped))

	if err := g.build(); err != nil {
		return nil, err
	}
	return g, nil
}

func (g *Gateway) build() error {
	spec := &g.config.Spec

	store, err := ratelimit.NewStore(spec.RateLimit.Policy())
	if err != nil {
		return fmt.Errorf("rate limit store: %w", err)
	}
	g.store = store

	classifier, err := policy.NewClassifier(spec.PolicyEntries())
	if err != nil {
		return fmt.Errorf("route policy: %w", err)
	}

	proxyOpts := []proxy.Option{proxy.WithLogger(g.logger)}
	if g.metrics != nil {
		proxyOpts = append(proxyOpts, proxy.WithMetrics(g.metrics))
	}
	g.proxy, err = proxy.New(spec.ProxyUpstreams(), proxyOpts...)
	if err != nil {
		return fmt.Errorf("upstreams: %w", err)
	}

	pipelineOpts := []admission.Option{
		admission.WithLogger(g.logger),
		admission.WithValidationTimeout(spec.Auth.ValidationTimeout.Duration()),
		admission.WithCost(spec.RateLimit.Cost),
	}
	if g.metrics != nil {
		pipelineOpts = append(pipelineOpts, admission.WithMetrics(g.metrics))
	}
	g.pipeline, err = admission.New(store, classifier, g.validator, pipelineOpts...)
	if err != nil {
		return fmt.Errorf("admission pipeline: %w", err)
	}

	if l := spec.Limits; l.MaxConcurrent > 0 {
		g.sessions = middleware.NewMaxSessionsLimiter(l.MaxConcurrent, l.QueueSize, l.QueueTimeout.Duration(),
			middleware.WithMaxSessionsLogger(g.logger))
	}

	g.registerHealth()
	g.engine = g.newEngine()
	return nil
}

func (g *Gateway) registerHealth() {
	g.health.AddInfo("state", func() any { return g.State().String() })
	g.health.AddInfo("ratelimit_buckets", func() any { return g.store.Len() })
	g.health.AddInfo("circuit_breakers", func() any { return g.proxy.BreakerStates() })
	if g.sessions != nil {
		g.health.AddInfo("active_sessions", func() any { return g.sessions.Current() })
	}
	g.health.AddCheck(health.NewCheckFunc("gateway", func(context.Context) error {
		if s := g.State(); s != StateRunning {
			return fmt.Errorf("gateway is %s", s)
		}
		return nil
	}))

	if g.metrics != nil {
		ns := g.config.Spec.Observability.Metrics.Namespace
		g.metrics.RegisterGaugeFunc(ns, "ratelimit_buckets", "Client buckets tracked by the rate limiter",
			func() float64 { return float64(g.store.Len()) })
		if g.sessions != nil {
			g.metrics.RegisterGaugeFunc(ns, "sessions_active", "Requests holding a concurrency slot",
				func() float64 { return float64(g.sessions.Current()) })
		}
	}
}

func (g *Gateway) newEngine() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()

	ops := engine.Group("", g.rateLimitOperational())
	g.health.RegisterRoutes(ops)

	obs := g.config.Spec.Observability
	if g.metrics != nil && obs.Metrics.Enabled {
		ops.GET(obs.Metrics.Path, gin.WrapH(g.metrics.Handler()))
	}

	engine.NoRoute(gin.WrapH(g.apiHandler()))
	return engine
}

// rateLimitOperational charges health and metrics requests against the
// caller's bucket and aborts with 429 once it is empty.
func (g *Gateway) rateLimitOperational() gin.HandlerFunc {
	return func(c *gin.Context) {
		admitted := false
		g.pipeline.RateLimitHandler(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
			admitted = true
			c.Request = r
		})).ServeHTTP(c.Writer, c.Request)

		if !admitted {
			c.Abort()
			return
		}
		c.Next()
	}
}

// apiHandler is the chain every API request runs through.
func (g *Gateway) apiHandler() http.Handler {
	var tracing middleware.Middleware
	if g.tracer != nil {
		tracing = observability.TracingMiddleware(g.tracer)
	}

	var security middleware.Middleware
	if sec := g.config.Spec.Security; sec.Enabled {
		security = middleware.SecurityHeaders(sec.Middleware())
	}

	return middleware.Chain(
		middleware.Recovery(g.logger),
		middleware.RequestID(),
		tracing,
		middleware.Logging(g.logger),
		middleware.Metrics(g.metrics),
		security,
		middleware.CORS(g.config.Spec.CORS.Middleware()),
		middleware.MaxSessions(g.sessions),
		middleware.BodyLimit(g.config.Spec.Limits.MaxBodyBytes, g.logger),
	)(g.pipeline.Handler(g.proxy))
}

// Handler returns the gateway's root handler.
func (g *Gateway) Handler() http.Handler {
	return g.engine
}

// Start binds the listener and begins serving.
func (g *Gateway) Start(ctx context.Context) error {
	if !g.state.CompareAndSwap(int32(StateStopped), int32(StateStarting)) {
		return ErrNotStopped
	}

	g.logger.Info("starting gateway",
		observability.String("name", g.config.Metadata.Name),
	)

	g.listener = NewListener(g.config.Spec.Listener, g.engine, WithListenerLogger(g.logger))
	if err := g.listener.Start(ctx); err != nil {
		g.state.Store(int32(StateStopped))
		return fmt.Errorf("failed to start listener: %w", err)
	}

	g.startTime = time.Now()
	g.state.Store(int32(StateRunning))

	g.logger.Info("gateway started",
		observability.String("name", g.config.Metadata.Name),
		observability.String("address", g.listener.Address()),
	)
	return nil
}

// Stop drains in-flight requests and stops the listener.
func (g *Gateway) Stop(ctx context.Context) error {
	if !g.state.CompareAndSwap(int32(StateRunning), int32(StateStopping)) {
		return ErrNotRunning
	}

	g.logger.Info("stopping gateway",
		observability.String("name", g.config.Metadata.Name),
	)

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.shutdownTimeout)
		defer cancel()
	}

	if g.sessions != nil {
		g.sessions.Stop()
	}
	err := g.listener.Stop(ctx)
	g.state.Store(int32(StateStopped))

	if err != nil {
		g.logger.Error("gateway stopped with error", observability.Error(err))
		return err
	}
	g.logger.Info("gateway stopped",
		observability.String("name", g.config.Metadata.Name),
	)
	return nil
}

// State returns the current gateway state.
func (g *Gateway) State() State {
	return State(g.state.Load())
}

// IsRunning returns true if the gateway is running.
func (g *Gateway) IsRunning() bool {
	return g.State() == StateRunning
}

// Uptime returns the time since the gateway started.
func (g *Gateway) Uptime() time.Duration {
	if g.startTime.IsZero() {
		return 0
	}
	return time.Since(g.startTime)
}

// Address returns the listener address, resolved once started.
func (g *Gateway) Address() string {
	if g.listener != nil {
		return g.listener.Address()
	}
	return g.config.Spec.Listener.Address()
}

// Config returns the configuration the gateway was built from.
func (g *Gateway) Config() *config.GatewayConfig {
	return g.config
}

func orDefault(d config.Duration, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d.Duration()
}
