// Package util provides small helpers shared across the gateway: JSON error
// responses, a status-capturing response writer, request-scoped context
// values and input validation used by the config layer.
package util
