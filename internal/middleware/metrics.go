package middleware

import (
	"net/http"
	"time"

	"github.com/letsplay/gateway/internal/observability"
	"github.com/letsplay/gateway/internal/util"
)

// Metrics returns a middleware that records request count and latency.
func Metrics(m *observability.Metrics) Middleware {
	return func(next http.Handler) http.Handler {
		if m == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := util.NewStatusCapturingResponseWriter(w)
			next.ServeHTTP(rw, r)
			m.RecordRequest(r.Method, rw.StatusCode, time.Since(start))
		})
	}
}
