package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the gateway's Prometheus collectors. Each instance owns its
// registry so tests can build isolated instances.
type Metrics struct {
	requestsTotal      *prometheus.CounterVec
	requestDuration    *prometheus.HistogramVec
	admissionDecisions *prometheus.CounterVec
	upstreamRequests   *prometheus.CounterVec
	circuitBreaker     *prometheus.GaugeVec
	registry           *prometheus.Registry
}

// NewMetrics creates and registers the gateway collectors.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "gateway"
	}

	m := &Metrics{
		registry: prometheus.NewRegistry(),
	}

	m.requestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "status"},
	)

	m.requestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets: []float64{
				.001, .005, .01, .025, .05,
				.1, .25, .5, 1, 2.5, 5, 10,
			},
		},
		[]string{"method", "status"},
	)

	m.admissionDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "admission_decisions_total",
			Help:      "Admission pipeline decisions by terminating stage and outcome",
		},
		[]string{"stage", "outcome"},
	)

	m.upstreamRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_requests_total",
			Help:      "Requests forwarded to upstream services",
		},
		[]string{"upstream", "status"},
	)

	m.circuitBreaker = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "circuit_breaker_state",
			Help:      "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"upstream"},
	)

	m.registry.MustRegister(
		m.requestsTotal,
		m.requestDuration,
		m.admissionDecisions,
		m.upstreamRequests,
		m.circuitBreaker,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// RecordRequest records a completed HTTP request.
func (m *Metrics) RecordRequest(method string, status int, duration time.Duration) {
	code := strconv.Itoa(status)
	m.requestsTotal.WithLabelValues(method, code).Inc()
	m.requestDuration.WithLabelValues(method, code).Observe(duration.Seconds())
}

// RecordAdmission records the stage that settled a request and its outcome.
func (m *Metrics) RecordAdmission(stage, outcome string) {
	m.admissionDecisions.WithLabelValues(stage, outcome).Inc()
}

// RecordUpstream records a forwarded request result.
func (m *Metrics) RecordUpstream(upstream string, status int) {
	m.upstreamRequests.WithLabelValues(upstream, strconv.Itoa(status)).Inc()
}

// SetCircuitBreakerState sets the breaker state gauge for an upstream.
func (m *Metrics) SetCircuitBreakerState(upstream string, state int) {
	m.circuitBreaker.WithLabelValues(upstream).Set(float64(state))
}

// RegisterGaugeFunc registers a gauge whose value is sampled on scrape.
func (m *Metrics) RegisterGaugeFunc(namespace, name, help string, fn func() float64) {
	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      name,
			Help:      help,
		},
		fn,
	))
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns the /metrics handler for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}
