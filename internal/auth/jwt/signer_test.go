package jwt

import (
	"context"
	"testing"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	jwxjwt "github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/letsplay/gateway/internal/auth"
)

func TestNewSigner_Validation(t *testing.T) {
	t.Parallel()

	_, err := NewSigner([]byte("short"))
	assert.ErrorIs(t, err, ErrWeakSecret)

	_, err = NewSigner(testSecret, WithSigningAlgorithm(jwa.RS256))
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewSigner(testSecret, WithTokenTTL(0))
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestSigner_RoundTrip(t *testing.T) {
	t.Parallel()

	signer, err := NewSigner(testSecret,
		WithSignerClock(fixedClock),
		WithTokenTTL(time.Hour),
		WithSignerIssuer("letsplay"),
	)
	require.NoError(t, err)

	token, err := signer.Sign("user-7", "admin@example.com", auth.RoleAdmin)
	require.NoError(t, err)

	v := newTestValidator(t, Config{Issuer: "letsplay"})
	id, err := v.Validate(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "user-7", id.SubjectID)
	assert.Equal(t, auth.RoleAdmin, id.Role)

	parsed, err := jwxjwt.ParseString(token, jwxjwt.WithVerify(false), jwxjwt.WithValidate(false))
	require.NoError(t, err)
	assert.Equal(t, testNow.Add(time.Hour).Unix(), parsed.Expiration().Unix())
	assert.NotEmpty(t, parsed.JwtID())
	email, ok := parsed.Get("email")
	require.True(t, ok)
	assert.Equal(t, "admin@example.com", email)
}

func TestSigner_ExpiredToken(t *testing.T) {
	t.Parallel()

	signer, err := NewSigner(testSecret,
		WithSignerClock(func() time.Time { return testNow.Add(-2 * time.Hour) }),
		WithTokenTTL(time.Hour),
	)
	require.NoError(t, err)

	token, err := signer.Sign("user-7", "", auth.RoleClient)
	require.NoError(t, err)

	v := newTestValidator(t, DefaultConfig())
	_, err = v.Validate(context.Background(), token)
	assert.ErrorIs(t, err, auth.ErrExpiredCredential)
}

func TestSigner_RejectsUnknownRole(t *testing.T) {
	t.Parallel()

	signer, err := NewSigner(testSecret)
	require.NoError(t, err)

	_, err = signer.Sign("user-1", "", auth.Role("root"))
	assert.ErrorIs(t, err, auth.ErrInvalidRole)
}
