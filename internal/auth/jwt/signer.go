package jwt

import (
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/lestrrat-go/jwx/v2/jwa"
	jwxjwt "github.com/lestrrat-go/jwx/v2/jwt"

	"github.com/letsplay/gateway/internal/auth"
)

// Signer issues HMAC-signed tokens in the shape the gateway validates:
// userId, email and role claims plus sub, iat, exp and jti.
type Signer struct {
	secret    []byte
	algorithm jwa.SignatureAlgorithm
	issuer    string
	audience  string
	ttl       time.Duration
	now       func() time.Time
	metrics   *Metrics
}

// SignerOption is a functional option for the signer.
type SignerOption func(*Signer)

// WithSigningAlgorithm selects HS256, HS384 or HS512.
func WithSigningAlgorithm(alg jwa.SignatureAlgorithm) SignerOption {
	return func(s *Signer) {
		s.algorithm = alg
	}
}

// WithTokenTTL sets the token lifetime.
func WithTokenTTL(ttl time.Duration) SignerOption {
	return func(s *Signer) {
		s.ttl = ttl
	}
}

// WithSignerIssuer sets the iss claim.
func WithSignerIssuer(issuer string) SignerOption {
	return func(s *Signer) {
		s.issuer = issuer
	}
}

// WithSignerAudience sets the aud claim.
func WithSignerAudience(audience string) SignerOption {
	return func(s *Signer) {
		s.audience = audience
	}
}

// WithSignerClock overrides the time source for iat and exp.
func WithSignerClock(now func() time.Time) SignerOption {
	return func(s *Signer) {
		s.now = now
	}
}

// WithSignerMetrics sets the metrics.
func WithSignerMetrics(metrics *Metrics) SignerOption {
	return func(s *Signer) {
		s.metrics = metrics
	}
}

// NewSigner creates a signer for secret.
func NewSigner(secret []byte, opts ...SignerOption) (*Signer, error) {
	if len(secret) < minHMACSecretLength {
		return nil, fmt.Errorf("%w: need at least %d bytes, got %d", ErrWeakSecret, minHMACSecretLength, len(secret))
	}

	s := &Signer{
		secret:    slices.Clone(secret),
		algorithm: jwa.HS256,
		ttl:       DefaultTokenTTL,
		now:       time.Now,
		metrics:   NewMetrics("gateway"),
	}
	for _, opt := range opts {
		opt(s)
	}

	if !isHMAC(s.algorithm) {
		return nil, fmt.Errorf("%w: signer supports HMAC algorithms only, got %s", ErrInvalidConfig, s.algorithm)
	}
	if s.ttl <= 0 {
		return nil, fmt.Errorf("%w: token ttl must be positive", ErrInvalidConfig)
	}
	return s, nil
}

// Sign issues a token for the given user.
func (s *Signer) Sign(userID, email string, role auth.Role) (string, error) {
	if _, err := auth.ParseRole(string(role)); err != nil {
		s.metrics.RecordSigning("error")
		return "", err
	}

	now := s.now()
	builder := jwxjwt.NewBuilder().
		JwtID(uuid.NewString()).
		Subject(userID).
		IssuedAt(now).
		Expiration(now.Add(s.ttl)).
		Claim(DefaultSubjectClaim, userID).
		Claim(DefaultRoleClaim, string(role))
	if email != "" {
		builder = builder.Claim("email", email)
	}
	if s.issuer != "" {
		builder = builder.Issuer(s.issuer)
	}
	if s.audience != "" {
		builder = builder.Audience([]string{s.audience})
	}

	tok, err := builder.Build()
	if err != nil {
		s.metrics.RecordSigning("error")
		return "", fmt.Errorf("failed to build token: %w", err)
	}

	signed, err := jwxjwt.Sign(tok, jwxjwt.WithKey(s.algorithm, s.secret))
	if err != nil {
		s.metrics.RecordSigning("error")
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	s.metrics.RecordSigning("success")
	return string(signed), nil
}
