package jwt

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds Prometheus collectors for token operations.
type Metrics struct {
	validationTotal    *prometheus.CounterVec
	validationDuration *prometheus.HistogramVec
	signingTotal       *prometheus.CounterVec
}

// NewMetrics creates the collectors. They are not registered until
// MustRegister is called.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "gateway"
	}

	return &Metrics{
		validationTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "jwt",
				Name:      "validation_total",
				Help:      "Total number of JWT validation attempts",
			},
			[]string{"result"},
		),
		validationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "jwt",
				Name:      "validation_duration_seconds",
				Help:      "JWT validation duration in seconds",
				Buckets:   []float64{.0001, .0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"result"},
		),
		signingTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "jwt",
				Name:      "signing_total",
				Help:      "Total number of JWT signing attempts",
			},
			[]string{"status"},
		),
	}
}

// MustRegister registers the collectors, tolerating duplicates.
func (m *Metrics) MustRegister(reg prometheus.Registerer) {
	for _, c := range []prometheus.Collector{m.validationTotal, m.validationDuration, m.signingTotal} {
		if err := reg.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if !errors.As(err, &are) {
				panic(err)
			}
		}
	}
}

// RecordValidation records a validation result.
func (m *Metrics) RecordValidation(result string, duration time.Duration) {
	m.validationTotal.WithLabelValues(result).Inc()
	m.validationDuration.WithLabelValues(result).Observe(duration.Seconds())
}

// RecordSigning records a signing attempt.
func (m *Metrics) RecordSigning(status string) {
	m.signingTotal.WithLabelValues(status).Inc()
}
