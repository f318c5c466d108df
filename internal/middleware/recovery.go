package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/letsplay/gateway/internal/observability"
	"github.com/letsplay/gateway/internal/util"
)

// Recovery returns a middleware that recovers from panics and answers 500
// with a JSON error body. The stack is logged, never returned.
func Recovery(logger observability.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rw := util.NewStatusCapturingResponseWriter(w)

			defer func() {
				err := recover()
				if err == nil {
					return
				}
				if err == http.ErrAbortHandler {
					panic(err)
				}

				logger.Error("panic recovered",
					observability.String("path", r.URL.Path),
					observability.String("method", r.Method),
					observability.String("request_id", observability.RequestIDFromContext(r.Context())),
					observability.Any("error", err),
					observability.String("stack", string(debug.Stack())),
				)

				if !rw.HeaderWritten {
					util.WriteJSONError(w, http.StatusInternalServerError, MsgInternalServerError)
				}
			}()

			next.ServeHTTP(rw, r)
		})
	}
}
