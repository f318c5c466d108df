// Package middleware provides the HTTP middleware wrapped around the
// admission pipeline: panic recovery, request IDs, access logging, request
// metrics, security headers and CORS.
//
// Middleware functions follow the standard Go pattern and compose with
// Chain:
//
//	handler := middleware.Chain(
//	    middleware.Recovery(logger),
//	    middleware.RequestID(),
//	    middleware.Logging(logger),
//	)(next)
package middleware
