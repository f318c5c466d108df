package auth

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRole(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input    string
		expected Role
		wantErr  bool
	}{
		{input: "seller", expected: RoleSeller},
		{input: "client", expected: RoleClient},
		{input: "admin", expected: RoleAdmin},
		{input: "ADMIN", expected: RoleAdmin},
		{input: " client ", expected: RoleClient},
		{input: "root", wantErr: true},
		{input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			t.Parallel()

			role, err := ParseRole(tt.input)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidRole)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, role)
		})
	}
}

func TestNewIdentity(t *testing.T) {
	t.Parallel()

	id, err := NewIdentity("42", "seller")
	require.NoError(t, err)
	assert.Equal(t, "42", id.SubjectID)
	assert.Equal(t, RoleSeller, id.Role)

	_, err = NewIdentity("", "seller")
	assert.ErrorIs(t, err, ErrInvalidCredential)

	_, err = NewIdentity("42", "superuser")
	assert.ErrorIs(t, err, ErrInvalidCredential)
	assert.ErrorIs(t, err, ErrInvalidRole)
}

func TestIdentityContext(t *testing.T) {
	t.Parallel()

	_, ok := IdentityFromContext(context.Background())
	assert.False(t, ok)

	ctx := ContextWithIdentity(context.Background(), &Identity{SubjectID: "u1", Role: RoleClient})
	id, ok := IdentityFromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, "u1", id.SubjectID)
}

func TestStatusOf(t *testing.T) {
	t.Parallel()

	assert.Equal(t, StatusOK, StatusOf(nil))
	assert.Equal(t, StatusExpired, StatusOf(fmt.Errorf("wrapped: %w", ErrExpiredCredential)))
	assert.Equal(t, StatusInvalid, StatusOf(ErrInvalidCredential))
	assert.Equal(t, StatusInvalid, StatusOf(errors.New("boom")))

	assert.Equal(t, "ok", StatusOK.String())
	assert.Equal(t, "expired", StatusExpired.String())
	assert.Equal(t, "invalid", StatusInvalid.String())
}
