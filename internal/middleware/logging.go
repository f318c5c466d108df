package middleware

import (
	"net/http"
	"time"

	"github.com/letsplay/gateway/internal/observability"
	"github.com/letsplay/gateway/internal/util"
)

// Logging returns a middleware that logs HTTP requests.
func Logging(logger observability.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			r = r.WithContext(util.ContextWithStartTime(r.Context(), start))

			rw := util.NewStatusCapturingResponseWriter(w)
			next.ServeHTTP(rw, r)

			//nolint:contextcheck // request context carries the request ID
			logger.WithContext(r.Context()).Info("http request",
				observability.String("method", r.Method),
				observability.String("path", r.URL.Path),
				observability.String("query", r.URL.RawQuery),
				observability.Int("status", rw.StatusCode),
				observability.Int("size", rw.Size),
				observability.Duration("duration", time.Since(start)),
				observability.String("remote_addr", r.RemoteAddr),
				observability.String("user_agent", r.UserAgent()),
			)
		})
	}
}
