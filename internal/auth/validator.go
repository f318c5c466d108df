package auth

import (
	"context"
)

// CredentialValidator verifies a bearer credential and decodes the identity
// it asserts.
//
// Implementations return ErrExpiredCredential for credentials past their
// expiry and ErrInvalidCredential (possibly wrapped) for every other
// rejection. Validate must honor ctx cancellation when it performs I/O such
// as fetching remote keys.
type CredentialValidator interface {
	Validate(ctx context.Context, token string) (*Identity, error)
}

// ValidatorFunc adapts a function to CredentialValidator.
type ValidatorFunc func(ctx context.Context, token string) (*Identity, error)

// Validate calls f.
func (f ValidatorFunc) Validate(ctx context.Context, token string) (*Identity, error) {
	return f(ctx, token)
}
