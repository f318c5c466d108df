package jwt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	jwxjwt "github.com/lestrrat-go/jwx/v2/jwt"

	"github.com/letsplay/gateway/internal/auth"
	"github.com/letsplay/gateway/internal/observability"
)

// Validator verifies signed tokens and decodes the caller identity.
// It implements auth.CredentialValidator.
type Validator struct {
	config  Config
	keys    *keyProvider
	logger  observability.Logger
	metrics *Metrics
	now     func() time.Time
	cancel  context.CancelFunc
	optErr  error
}

// ValidatorOption is a functional option for the validator.
type ValidatorOption func(*Validator)

// WithValidatorLogger sets the logger.
func WithValidatorLogger(logger observability.Logger) ValidatorOption {
	return func(v *Validator) {
		v.logger = logger
	}
}

// WithValidatorMetrics sets the metrics.
func WithValidatorMetrics(metrics *Metrics) ValidatorOption {
	return func(v *Validator) {
		v.metrics = metrics
	}
}

// WithValidatorClock overrides the time source used for exp/nbf checks.
func WithValidatorClock(now func() time.Time) ValidatorOption {
	return func(v *Validator) {
		v.now = now
	}
}

// WithSecret sets the initial HMAC secret.
func WithSecret(secret []byte) ValidatorOption {
	return func(v *Validator) {
		if err := v.keys.setSecret(secret); err != nil {
			v.optErr = err
		}
	}
}

// NewValidator creates a validator. At least one key source, an HMAC
// secret or a JWKS URL, must be configured.
func NewValidator(cfg Config, opts ...ValidatorOption) (*Validator, error) {
	cfg = cfg.withDefaults()

	algs, err := parseAlgorithms(cfg.Algorithms)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	keys, err := newKeyProvider(ctx, cfg, algs)
	if err != nil {
		cancel()
		return nil, err
	}

	v := &Validator{
		config:  cfg,
		keys:    keys,
		logger:  observability.NopLogger(),
		metrics: NewMetrics("gateway"),
		now:     time.Now,
		cancel:  cancel,
	}

	for _, opt := range opts {
		opt(v)
	}

	if v.optErr != nil {
		cancel()
		return nil, v.optErr
	}

	if !v.keys.hasSecret() && cfg.JWKSURL == "" {
		cancel()
		return nil, fmt.Errorf("%w: no usable key source (hmac secret of at least %d bytes or jwks url)",
			ErrInvalidConfig, minHMACSecretLength)
	}

	return v, nil
}

// SetSecret rotates the HMAC secret. Tokens signed with the previous secret
// stop validating immediately.
func (v *Validator) SetSecret(secret []byte) error {
	if err := v.keys.setSecret(secret); err != nil {
		return err
	}
	v.logger.Info("jwt hmac secret rotated")
	return nil
}

// Refresh forces a JWKS refresh when a remote key set is configured.
func (v *Validator) Refresh(ctx context.Context) error {
	return v.keys.refresh(ctx)
}

// Close stops background key set refreshes.
func (v *Validator) Close() error {
	v.cancel()
	return nil
}

// Validate verifies token and returns the identity it carries.
func (v *Validator) Validate(ctx context.Context, token string) (*auth.Identity, error) {
	start := time.Now()

	identity, err := v.validate(ctx, token)
	result := auth.StatusOf(err).String()
	v.metrics.RecordValidation(result, time.Since(start))

	if err != nil {
		v.logger.Debug("token rejected",
			observability.String("result", result),
			observability.Error(err),
		)
		return nil, err
	}
	return identity, nil
}

func (v *Validator) validate(ctx context.Context, token string) (*auth.Identity, error) {
	if token == "" {
		return nil, fmt.Errorf("%w: empty token", auth.ErrInvalidCredential)
	}

	opts := []jwxjwt.ParseOption{
		jwxjwt.WithContext(ctx),
		jwxjwt.WithKeyProvider(v.keys),
		jwxjwt.WithValidate(true),
		jwxjwt.WithRequiredClaim("exp"),
		jwxjwt.WithClock(jwxjwt.ClockFunc(v.now)),
		jwxjwt.WithAcceptableSkew(v.config.ClockSkew),
	}
	if v.config.Issuer != "" {
		opts = append(opts, jwxjwt.WithIssuer(v.config.Issuer))
	}
	if v.config.Audience != "" {
		opts = append(opts, jwxjwt.WithAudience(v.config.Audience))
	}

	parsed, err := jwxjwt.ParseString(token, opts...)
	if err != nil {
		if errors.Is(err, jwxjwt.ErrTokenExpired()) {
			return nil, fmt.Errorf("%w: %w", auth.ErrExpiredCredential, err)
		}
		return nil, fmt.Errorf("%w: %w", auth.ErrInvalidCredential, err)
	}

	return v.identityFrom(parsed)
}

// identityFrom decodes the subject and role claims.
func (v *Validator) identityFrom(tok jwxjwt.Token) (*auth.Identity, error) {
	subject := ""
	if raw, ok := tok.Get(v.config.SubjectClaim); ok {
		subject = claimString(raw)
	}
	if subject == "" && v.config.SubjectClaim != fallbackSubjectClaim {
		subject = tok.Subject()
	}

	role := ""
	if raw, ok := tok.Get(v.config.RoleClaim); ok {
		role = claimString(raw)
	}

	return auth.NewIdentity(subject, role)
}

// claimString renders a scalar claim as a string. Numeric user IDs are
// accepted; structured values are not.
func claimString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case json.Number:
		return t.String()
	case int64:
		return strconv.FormatInt(t, 10)
	default:
		return ""
	}
}

var _ auth.CredentialValidator = (*Validator)(nil)
