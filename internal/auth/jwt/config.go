// Package jwt validates and issues JSON Web Tokens for the gateway using
// github.com/lestrrat-go/jwx/v2.
package jwt

import (
	"errors"
	"fmt"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
)

// Defaults.
const (
	DefaultAlgorithm        = "HS256"
	DefaultSubjectClaim     = "userId"
	DefaultRoleClaim        = "role"
	DefaultClockSkew        = 30 * time.Second
	DefaultJWKSRefresh      = 15 * time.Minute
	DefaultJWKSFetchTimeout = 5 * time.Second
	DefaultTokenTTL         = 24 * time.Hour
)

const (
	minHMACSecretLength  = 32
	fallbackSubjectClaim = "sub"
)

// Config configures token validation.
type Config struct {
	// Algorithms lists accepted signing algorithms. Defaults to HS256.
	Algorithms []string

	// JWKSURL is an optional remote key set. Keys from it are used in
	// addition to the HMAC secret.
	JWKSURL string

	// JWKSRefreshInterval is how often the remote key set is refreshed.
	JWKSRefreshInterval time.Duration

	// JWKSFetchTimeout bounds a single key set fetch.
	JWKSFetchTimeout time.Duration

	// Issuer, when set, must match the iss claim.
	Issuer string

	// Audience, when set, must be contained in the aud claim.
	Audience string

	// ClockSkew is the tolerance applied to exp, nbf and iat.
	ClockSkew time.Duration

	// SubjectClaim names the claim carrying the user ID. The registered
	// sub claim is used when it is absent.
	SubjectClaim string

	// RoleClaim names the claim carrying the role.
	RoleClaim string
}

// DefaultConfig returns validation defaults for HMAC tokens.
func DefaultConfig() Config {
	return Config{
		Algorithms:          []string{DefaultAlgorithm},
		JWKSRefreshInterval: DefaultJWKSRefresh,
		JWKSFetchTimeout:    DefaultJWKSFetchTimeout,
		ClockSkew:           DefaultClockSkew,
		SubjectClaim:        DefaultSubjectClaim,
		RoleClaim:           DefaultRoleClaim,
	}
}

// withDefaults fills zero values.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if len(c.Algorithms) == 0 {
		c.Algorithms = d.Algorithms
	}
	if c.JWKSRefreshInterval <= 0 {
		c.JWKSRefreshInterval = d.JWKSRefreshInterval
	}
	if c.JWKSFetchTimeout <= 0 {
		c.JWKSFetchTimeout = d.JWKSFetchTimeout
	}
	if c.ClockSkew < 0 {
		c.ClockSkew = 0
	}
	if c.SubjectClaim == "" {
		c.SubjectClaim = d.SubjectClaim
	}
	if c.RoleClaim == "" {
		c.RoleClaim = d.RoleClaim
	}
	return c
}

// ErrInvalidConfig is returned for unusable validator settings.
var ErrInvalidConfig = errors.New("invalid jwt configuration")

// parseAlgorithms converts algorithm names into jwa values.
func parseAlgorithms(names []string) ([]jwa.SignatureAlgorithm, error) {
	algs := make([]jwa.SignatureAlgorithm, 0, len(names))
	for _, name := range names {
		var alg jwa.SignatureAlgorithm
		if err := alg.Accept(name); err != nil {
			return nil, fmt.Errorf("%w: unsupported algorithm %q", ErrInvalidConfig, name)
		}
		if alg == jwa.NoSignature {
			return nil, fmt.Errorf("%w: algorithm %q is not allowed", ErrInvalidConfig, name)
		}
		algs = append(algs, alg)
	}
	return algs, nil
}

func isHMAC(alg jwa.SignatureAlgorithm) bool {
	switch alg {
	case jwa.HS256, jwa.HS384, jwa.HS512:
		return true
	default:
		return false
	}
}
