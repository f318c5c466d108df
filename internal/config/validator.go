package config

import (
	"fmt"
	"strings"

	"github.com/letsplay/gateway/internal/secrets"
	"github.com/letsplay/gateway/internal/util"
)

// ValidationError is a problem with one configuration field.
type ValidationError struct {
	Path    string
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: %s", e.Path, e.Message)
	}
	return e.Message
}

// ValidationErrors collects every problem found in one pass.
type ValidationErrors []ValidationError

// Error implements the error interface.
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%d validation errors:\n", len(e))
	for i, err := range e {
		fmt.Fprintf(&sb, "  %d. %s\n", i+1, err.Error())
	}
	return sb.String()
}

// HasErrors returns true if there are validation errors.
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

// Validator validates gateway configuration.
type Validator struct {
	errors ValidationErrors
}

// NewValidator creates a Validator.
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateConfig validates cfg and returns ValidationErrors on failure.
func ValidateConfig(cfg *GatewayConfig) error {
	return NewValidator().Validate(cfg)
}

// Validate checks cfg and returns every problem found.
func (v *Validator) Validate(cfg *GatewayConfig) error {
	v.errors = nil

	if cfg == nil {
		v.addError("", "configuration is nil")
		return v.errors
	}

	v.validateRoot(cfg)
	v.validateListener(&cfg.Spec.Listener)
	v.validateRateLimit(&cfg.Spec.RateLimit)
	v.validateAuth(&cfg.Spec.Auth, &cfg.Spec.Secrets)
	v.validateCORS(&cfg.Spec.CORS)
	v.validateSecurity(&cfg.Spec.Security)
	v.validateLimits(&cfg.Spec.Limits)
	v.validatePolicies(cfg.Spec.Policies)
	v.validateUpstreams(cfg.Spec.Upstreams)
	v.validateObservability(&cfg.Spec.Observability)

	if v.errors.HasErrors() {
		return v.errors
	}
	return nil
}

func (v *Validator) validateRoot(cfg *GatewayConfig) {
	switch {
	case cfg.APIVersion == "":
		v.addError("apiVersion", "apiVersion is required")
	case !strings.HasPrefix(cfg.APIVersion, APIVersionPrefix):
		v.addError("apiVersion", "apiVersion must start with '"+APIVersionPrefix+"'")
	}

	switch {
	case cfg.Kind == "":
		v.addError("kind", "kind is required")
	case cfg.Kind != Kind:
		v.addError("kind", "kind must be '"+Kind+"'")
	}

	if cfg.Metadata.Name == "" {
		v.addError("metadata.name", "name is required")
	}
}

func (v *Validator) validateListener(l *ListenerConfig) {
	if err := util.ValidatePort(l.Port); err != nil {
		v.addError("spec.listener.port", err.Error())
	}

	for path, d := range map[string]Duration{
		"spec.listener.readTimeout":       l.ReadTimeout,
		"spec.listener.readHeaderTimeout": l.ReadHeaderTimeout,
		"spec.listener.writeTimeout":      l.WriteTimeout,
		"spec.listener.idleTimeout":       l.IdleTimeout,
		"spec.listener.shutdownTimeout":   l.ShutdownTimeout,
	} {
		if d < 0 {
			v.addError(path, "must not be negative")
		}
	}
}

func (v *Validator) validateRateLimit(rl *RateLimitConfig) {
	if err := rl.Policy().Validate(); err != nil {
		v.addError("spec.rateLimit", err.Error())
	}
	if rl.Cost < 0 {
		v.addError("spec.rateLimit.cost", "must not be negative")
	}
	if rl.Cost > rl.Capacity {
		v.addError("spec.rateLimit.cost", "must not exceed capacity")
	}
}

func (v *Validator) validateAuth(a *AuthConfig, s *secrets.Config) {
	if a.ValidationTimeout < 0 {
		v.addError("spec.auth.validationTimeout", "must not be negative")
	}

	jwt := &a.JWT
	if len(jwt.Algorithms) == 0 {
		v.addError("spec.auth.jwt.algorithms", "at least one algorithm is required")
	}
	hmac := false
	for _, alg := range jwt.Algorithms {
		if strings.HasPrefix(strings.ToUpper(alg), "HS") {
			hmac = true
		}
	}
	if hmac && jwt.SecretRef.IsZero() {
		v.addError("spec.auth.jwt.secretRef.path", "required for HMAC algorithms")
	}
	if !hmac && jwt.JWKSURL == "" {
		v.addError("spec.auth.jwt.jwksUrl", "required when no HMAC algorithm is accepted")
	}
	if jwt.JWKSURL != "" {
		if err := util.ValidateURL(jwt.JWKSURL); err != nil {
			v.addError("spec.auth.jwt.jwksUrl", err.Error())
		}
	}
	if jwt.ClockSkew < 0 {
		v.addError("spec.auth.jwt.clockSkew", "must not be negative")
	}

	t, err := secrets.ParseProviderType(s.Provider)
	if err != nil {
		v.addError("spec.secrets.provider", err.Error())
		return
	}
	if t == secrets.ProviderTypeFile && s.BaseDir == "" {
		v.addError("spec.secrets.baseDir", "required for the file provider")
	}
	if jwt.WatchSecret && t == secrets.ProviderTypeEnv {
		v.addError("spec.auth.jwt.watchSecret", "the env provider cannot be watched")
	}
}

func (v *Validator) validateCORS(c *CORSConfig) {
	if c.MaxAge < 0 {
		v.addError("spec.cors.maxAge", "must not be negative")
	}
	for i, m := range c.AllowMethods {
		if err := util.ValidateHTTPMethod(m); err != nil {
			v.addError(fmt.Sprintf("spec.cors.allowMethods[%d]", i), err.Error())
		}
	}
	if c.AllowCredentials {
		for _, o := range c.AllowOrigins {
			if o == "*" {
				v.addError("spec.cors.allowCredentials", "cannot be combined with a wildcard origin")
				break
			}
		}
	}
}

func (v *Validator) validateSecurity(s *SecurityConfig) {
	switch strings.ToUpper(s.FrameOptions) {
	case "", "DENY", "SAMEORIGIN":
	default:
		v.addError("spec.security.frameOptions", "must be 'DENY' or 'SAMEORIGIN'")
	}
	if s.HSTSMaxAge < 0 {
		v.addError("spec.security.hstsMaxAge", "must not be negative")
	}
}

func (v *Validator) validateLimits(l *LimitsConfig) {
	if l.MaxBodyBytes < 0 {
		v.addError("spec.limits.maxBodyBytes", "must not be negative")
	}
	if l.MaxConcurrent < 0 {
		v.addError("spec.limits.maxConcurrent", "must not be negative")
	}
	if l.QueueSize < 0 {
		v.addError("spec.limits.queueSize", "must not be negative")
	}
	if l.QueueSize > 0 && l.MaxConcurrent == 0 {
		v.addError("spec.limits.queueSize", "requires maxConcurrent")
	}
	if l.QueueTimeout < 0 {
		v.addError("spec.limits.queueTimeout", "must not be negative")
	}
}

func (v *Validator) validatePolicies(policies []RoutePolicy) {
	for i := range policies {
		p := &policies[i]
		path := fmt.Sprintf("spec.policies[%d]", i)

		if err := util.ValidateHTTPMethod(p.Method); err != nil {
			v.addError(path+".method", err.Error())
		}
		if err := util.ValidatePathPrefix(p.Path); err != nil {
			v.addError(path+".path", err.Error())
		}
		switch p.Match {
		case "", "exact", "prefix":
		default:
			v.addError(path+".match", "must be 'exact' or 'prefix'")
		}
	}
}

func (v *Validator) validateUpstreams(upstreams []UpstreamConfig) {
	names := make(map[string]bool, len(upstreams))
	prefixes := make(map[string]string)

	for i := range upstreams {
		u := &upstreams[i]
		path := fmt.Sprintf("spec.upstreams[%d]", i)

		switch {
		case u.Name == "":
			v.addError(path+".name", "name is required")
		case names[u.Name]:
			v.addError(path+".name", fmt.Sprintf("duplicate upstream name %q", u.Name))
		default:
			names[u.Name] = true
		}

		if err := util.ValidateURL(u.URL); err != nil {
			v.addError(path+".url", err.Error())
		}

		if len(u.Prefixes) == 0 {
			v.addError(path+".prefixes", "at least one prefix is required")
		}
		for j, p := range u.Prefixes {
			ppath := fmt.Sprintf("%s.prefixes[%d]", path, j)
			if err := util.ValidatePathPrefix(p); err != nil {
				v.addError(ppath, err.Error())
				continue
			}
			if owner, dup := prefixes[p]; dup {
				v.addError(ppath, fmt.Sprintf("prefix %q already served by %q", p, owner))
				continue
			}
			prefixes[p] = u.Name
		}

		if u.Timeout < 0 {
			v.addError(path+".timeout", "must not be negative")
		}

		if cb := u.CircuitBreaker; cb != nil && cb.Enabled {
			if cb.FailureRatio < 0 || cb.FailureRatio > 1 {
				v.addError(path+".circuitBreaker.failureRatio", "must be between 0 and 1")
			}
			if cb.MinRequests < 0 {
				v.addError(path+".circuitBreaker.minRequests", "must not be negative")
			}
		}
	}
}

func (v *Validator) validateObservability(o *ObservabilityConfig) {
	switch strings.ToLower(o.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		v.addError("spec.observability.logging.level", "must be one of debug, info, warn, error")
	}
	switch o.Logging.Format {
	case "json", "console":
	default:
		v.addError("spec.observability.logging.format", "must be 'json' or 'console'")
	}

	if o.Metrics.Enabled {
		if err := util.ValidatePathPrefix(o.Metrics.Path); err != nil {
			v.addError("spec.observability.metrics.path", err.Error())
		}
	}

	if o.Tracing.SamplingRate < 0 || o.Tracing.SamplingRate > 1 {
		v.addError("spec.observability.tracing.samplingRate", "must be between 0 and 1")
	}
	if o.Tracing.Enabled && o.Tracing.Endpoint == "" {
		v.addError("spec.observability.tracing.endpoint", "required when tracing is enabled")
	}
}

func (v *Validator) addError(path, message string) {
	v.errors = append(v.errors, ValidationError{Path: path, Message: message})
}
