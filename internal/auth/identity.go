package auth

import (
	"context"
	"fmt"
	"strings"
)

// Role is a member of the closed set of user roles.
type Role string

// Supported roles.
const (
	RoleSeller Role = "seller"
	RoleClient Role = "client"
	RoleAdmin  Role = "admin"
)

// ParseRole converts a claim value into a Role. Matching is case-insensitive;
// anything outside the supported set is rejected.
func ParseRole(s string) (Role, error) {
	switch r := Role(strings.ToLower(strings.TrimSpace(s))); r {
	case RoleSeller, RoleClient, RoleAdmin:
		return r, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidRole, s)
	}
}

// String returns the role name.
func (r Role) String() string {
	return string(r)
}

// Identity is the verified caller derived from a credential. It is built once
// per request and never cached.
type Identity struct {
	SubjectID string
	Role      Role
}

// NewIdentity validates the raw claim values and returns an Identity.
func NewIdentity(subjectID, role string) (*Identity, error) {
	if strings.TrimSpace(subjectID) == "" {
		return nil, fmt.Errorf("%w: empty subject", ErrInvalidCredential)
	}
	r, err := ParseRole(role)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidCredential, err)
	}
	return &Identity{SubjectID: subjectID, Role: r}, nil
}

type identityKey struct{}

// ContextWithIdentity stores the identity in ctx.
func ContextWithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFromContext returns the identity stored in ctx.
func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(*Identity)
	return id, ok && id != nil
}
