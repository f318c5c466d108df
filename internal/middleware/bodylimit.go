package middleware

import (
	"net/http"

	"github.com/letsplay/gateway/internal/observability"
	"github.com/letsplay/gateway/internal/util"
)

// BodyLimit returns a middleware that caps request bodies at maxBytes.
// Requests declaring a larger Content-Length are answered with 413 up front;
// other bodies are wrapped so reading past the limit fails with
// *http.MaxBytesError. A non-positive maxBytes disables the limit.
func BodyLimit(maxBytes int64, logger observability.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		if maxBytes <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > maxBytes {
				logger.Warn("request body too large",
					observability.Int64("content_length", r.ContentLength),
					observability.Int64("max_size", maxBytes),
					observability.String("path", r.URL.Path),
				)
				util.WriteJSONError(w, http.StatusRequestEntityTooLarge, MsgRequestTooLarge)
				return
			}

			if r.Body != nil && r.Body != http.NoBody {
				r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			}
			next.ServeHTTP(w, r)
		})
	}
}
