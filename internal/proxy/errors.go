// Package proxy forwards admitted requests to the downstream services.
package proxy

import (
	"errors"
)

// Sentinel errors for proxy operations.
var (
	// ErrRouteNotFound indicates that no upstream serves the request path.
	ErrRouteNotFound = errors.New("no matching upstream")

	// ErrInvalidUpstream indicates a malformed upstream definition.
	ErrInvalidUpstream = errors.New("invalid upstream")

	// ErrUpstreamFailure indicates the upstream answered with a server error.
	ErrUpstreamFailure = errors.New("upstream server error")
)

// Client-facing messages.
const (
	MsgNotFound           = "Not found"
	MsgBadGateway         = "Upstream service unavailable"
	MsgServiceUnavailable = "Service temporarily unavailable"
	MsgGatewayTimeout     = "Upstream service timed out"
	MsgPayloadTooLarge    = "Request body too large"
)
