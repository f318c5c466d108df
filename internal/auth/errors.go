package auth

import (
	"errors"
)

// Sentinel errors for credential handling.
var (
	// ErrMissingCredential indicates the request carries no Authorization header.
	ErrMissingCredential = errors.New("missing credential")

	// ErrMalformedCredential indicates the Authorization header is not a Bearer credential.
	ErrMalformedCredential = errors.New("malformed credential")

	// ErrInvalidCredential indicates the credential failed verification.
	ErrInvalidCredential = errors.New("invalid credential")

	// ErrExpiredCredential indicates the credential is past its expiry.
	ErrExpiredCredential = errors.New("expired credential")

	// ErrInvalidRole indicates a role outside the supported set.
	ErrInvalidRole = errors.New("invalid role")
)

// Status is the three-way outcome of credential validation.
type Status int

const (
	// StatusOK means the credential is valid.
	StatusOK Status = iota
	// StatusInvalid means the credential is not acceptable.
	StatusInvalid
	// StatusExpired means the credential was valid but has expired.
	StatusExpired
)

// String returns the status name, used as a metric label.
func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusExpired:
		return "expired"
	default:
		return "invalid"
	}
}

// StatusOf maps a validation error to a Status. Any error that is not an
// expiry, including unexpected ones, is treated as invalid.
func StatusOf(err error) Status {
	switch {
	case err == nil:
		return StatusOK
	case errors.Is(err, ErrExpiredCredential):
		return StatusExpired
	default:
		return StatusInvalid
	}
}
