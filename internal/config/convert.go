package config

import (
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/letsplay/gateway/internal/auth/jwt"
	"github.com/letsplay/gateway/internal/middleware"
	"github.com/letsplay/gateway/internal/observability"
	"github.com/letsplay/gateway/internal/policy"
	"github.com/letsplay/gateway/internal/proxy"
	"github.com/letsplay/gateway/internal/ratelimit"
)

// Address returns the host:port the listener binds.
func (l ListenerConfig) Address() string {
	return net.JoinHostPort(l.Bind, strconv.Itoa(l.Port))
}

// Policy returns the token bucket policy.
func (rl RateLimitConfig) Policy() ratelimit.Config {
	return ratelimit.Config{
		Capacity:       rl.Capacity,
		RefillTokens:   rl.RefillTokens,
		RefillInterval: rl.RefillInterval.Duration(),
	}
}

// ValidatorConfig returns the JWT validator settings.
func (j JWTConfig) ValidatorConfig() jwt.Config {
	return jwt.Config{
		Algorithms:          j.Algorithms,
		JWKSURL:             j.JWKSURL,
		JWKSRefreshInterval: j.JWKSRefreshInterval.Duration(),
		Issuer:              j.Issuer,
		Audience:            j.Audience,
		ClockSkew:           j.ClockSkew.Duration(),
		SubjectClaim:        j.SubjectClaim,
		RoleClaim:           j.RoleClaim,
	}
}

// Middleware returns the CORS middleware settings.
func (c CORSConfig) Middleware() middleware.CORSConfig {
	return middleware.CORSConfig{
		AllowOrigins:     c.AllowOrigins,
		AllowMethods:     c.AllowMethods,
		AllowHeaders:     c.AllowHeaders,
		ExposeHeaders:    c.ExposeHeaders,
		AllowCredentials: c.AllowCredentials,
		MaxAge:           c.MaxAge,
	}
}

// Middleware returns the security headers middleware settings.
func (s SecurityConfig) Middleware() middleware.SecurityHeadersConfig {
	return middleware.SecurityHeadersConfig{
		FrameOptions:   s.FrameOptions,
		ReferrerPolicy: s.ReferrerPolicy,
		HSTSMaxAge:     s.HSTSMaxAge,
		RemoveHeaders:  s.RemoveHeaders,
	}
}

// PolicyEntries returns the route classification table, falling back to the
// built-in public allowlist when none is configured.
func (s *GatewaySpec) PolicyEntries() []policy.Entry {
	if len(s.Policies) == 0 {
		return policy.DefaultEntries()
	}

	entries := make([]policy.Entry, 0, len(s.Policies))
	for _, p := range s.Policies {
		entries = append(entries, policy.Entry{
			Method:       strings.ToUpper(p.Method),
			Path:         p.Path,
			Match:        policy.MatchType(p.Match),
			RequiresAuth: p.RequiresAuth,
		})
	}
	return entries
}

// ProxyUpstreams returns the upstream table, falling back to the local
// letsplay services when none is configured.
func (s *GatewaySpec) ProxyUpstreams() []proxy.Upstream {
	if len(s.Upstreams) == 0 {
		return proxy.DefaultUpstreams()
	}

	out := make([]proxy.Upstream, 0, len(s.Upstreams))
	for _, u := range s.Upstreams {
		up := proxy.Upstream{
			Name:     u.Name,
			URL:      u.URL,
			Prefixes: u.Prefixes,
			Timeout:  orDefault(u.Timeout, proxy.DefaultUpstreamTimeout),
			Breaker:  proxy.DefaultBreakerConfig(),
		}
		if cb := u.CircuitBreaker; cb != nil {
			up.Breaker = proxy.BreakerConfig{
				Enabled:      cb.Enabled,
				MinRequests:  cb.MinRequests,
				FailureRatio: cb.FailureRatio,
				OpenTimeout:  orDefault(cb.OpenTimeout, proxy.DefaultBreakerOpenTimeout),
				Interval:     orDefault(cb.Interval, proxy.DefaultBreakerInterval),
			}
			if up.Breaker.MinRequests == 0 {
				up.Breaker.MinRequests = proxy.DefaultBreakerMinRequests
			}
			if up.Breaker.FailureRatio == 0 {
				up.Breaker.FailureRatio = proxy.DefaultBreakerFailureRatio
			}
		}
		out = append(out, up)
	}
	return out
}

// LogConfig returns the logger settings.
func (o ObservabilityConfig) LogConfig() observability.LogConfig {
	return observability.LogConfig{
		Level:  o.Logging.Level,
		Format: o.Logging.Format,
		Output: o.Logging.Output,
	}
}

// TracerConfig returns the tracer settings.
func (o ObservabilityConfig) TracerConfig() observability.TracerConfig {
	return observability.TracerConfig{
		ServiceName:  o.Tracing.ServiceName,
		OTLPEndpoint: o.Tracing.Endpoint,
		SamplingRate: o.Tracing.SamplingRate,
		Enabled:      o.Tracing.Enabled,
	}
}

func orDefault(d Duration, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d.Duration()
}
