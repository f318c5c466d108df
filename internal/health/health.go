// Package health provides the gateway's liveness and readiness endpoints.
package health

import (
	"context"
	"sync"
	"time"

	"github.com/letsplay/gateway/internal/observability"
)

// Status values reported by probes.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// DefaultCheckTimeout bounds a readiness run.
const DefaultCheckTimeout = 5 * time.Second

// HealthCheck is a named readiness dependency.
type HealthCheck interface {
	Name() string
	Check(ctx context.Context) error
}

// InfoFunc reports an informational value included in /health.
type InfoFunc func() any

// HealthStatus is the probe response body.
type HealthStatus struct {
	Status    string                  `json:"status"`
	Version   string                  `json:"version,omitempty"`
	Uptime    string                  `json:"uptime,omitempty"`
	Timestamp time.Time               `json:"timestamp"`
	Checks    map[string]*CheckResult `json:"checks,omitempty"`
	Info      map[string]any          `json:"info,omitempty"`
}

// CheckResult is the outcome of one check.
type CheckResult struct {
	Status   string `json:"status"`
	Error    string `json:"error,omitempty"`
	Duration string `json:"duration"`
}

// Checker runs readiness checks and reports process health.
type Checker struct {
	version   string
	startTime time.Time
	timeout   time.Duration
	logger    observability.Logger

	mu     sync.RWMutex
	checks []HealthCheck
	info   map[string]InfoFunc
}

// Option configures a Checker.
type Option func(*Checker)

// WithLogger sets the logger.
func WithLogger(logger observability.Logger) Option {
	return func(c *Checker) {
		c.logger = logger
	}
}

// WithTimeout bounds each readiness run.
func WithTimeout(d time.Duration) Option {
	return func(c *Checker) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// NewChecker creates a new health checker.
func NewChecker(version string, opts ...Option) *Checker {
	c := &Checker{
		version:   version,
		startTime: time.Now(),
		timeout:   DefaultCheckTimeout,
		logger:    observability.NopLogger(),
		info:      make(map[string]InfoFunc),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// AddCheck registers a readiness check.
func (c *Checker) AddCheck(check HealthCheck) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks = append(c.checks, check)
}

// AddInfo registers an informational value reported by /health.
func (c *Checker) AddInfo(name string, fn InfoFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.info[name] = fn
}

// Health reports liveness. It never runs checks.
func (c *Checker) Health() *HealthStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()

	status := &HealthStatus{
		Status:    StatusOK,
		Version:   c.version,
		Uptime:    time.Since(c.startTime).Round(time.Second).String(),
		Timestamp: time.Now().UTC(),
	}
	if len(c.info) > 0 {
		status.Info = make(map[string]any, len(c.info))
		for name, fn := range c.info {
			status.Info[name] = fn()
		}
	}
	return status
}

// Readiness runs every check concurrently within the configured timeout.
func (c *Checker) Readiness(ctx context.Context) *HealthStatus {
	c.mu.RLock()
	checks := make([]HealthCheck, len(c.checks))
	copy(checks, c.checks)
	c.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	status := &HealthStatus{
		Status:    StatusOK,
		Timestamp: time.Now().UTC(),
		Checks:    make(map[string]*CheckResult, len(checks)),
	}

	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)

	for _, check := range checks {
		wg.Add(1)
		go func(hc HealthCheck) {
			defer wg.Done()

			start := time.Now()
			err := hc.Check(ctx)
			duration := time.Since(start)

			result := &CheckResult{Status: StatusOK, Duration: duration.String()}
			if err != nil {
				result.Status = StatusError
				result.Error = err.Error()

				c.logger.Warn("readiness check failed",
					observability.String("check", hc.Name()),
					observability.Duration("duration", duration),
					observability.Error(err),
				)
			}

			mu.Lock()
			defer mu.Unlock()
			status.Checks[hc.Name()] = result
			if err != nil {
				status.Status = StatusError
			}
		}(check)
	}

	wg.Wait()
	return status
}
