package middleware

import "net/http"

// HTTP header constants.
const (
	// HeaderOrigin is the Origin header name.
	HeaderOrigin = "Origin"

	// HeaderVary is the Vary header name.
	HeaderVary = "Vary"

	// HeaderXRequestID is the X-Request-ID header name.
	HeaderXRequestID = "X-Request-ID"

	// HeaderRetryAfter is the Retry-After header name.
	HeaderRetryAfter = "Retry-After"
)

// Error response messages.
const (
	// MsgInternalServerError is returned when a handler panics.
	MsgInternalServerError = "Internal server error"

	// MsgServerBusy is returned when every concurrency slot is taken.
	MsgServerBusy = "Server is busy. Please try again later."

	// MsgRequestTooLarge is returned when the body exceeds the size limit.
	MsgRequestTooLarge = "Request body too large"
)

// Middleware wraps an http.Handler.
type Middleware func(http.Handler) http.Handler

// Chain composes middleware so the first argument is the outermost.
func Chain(mws ...Middleware) Middleware {
	return func(next http.Handler) http.Handler {
		for i := len(mws) - 1; i >= 0; i-- {
			if mws[i] != nil {
				next = mws[i](next)
			}
		}
		return next
	}
}
