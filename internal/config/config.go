// Package config loads the gateway configuration from a YAML file.
//
// The file uses a Kubernetes-style envelope:
//
//	apiVersion: gateway.letsplay.io/v1
//	kind: Gateway
//	metadata:
//	  name: letsplay-gateway
//	spec:
//	  listener: {port: 8080}
//	  ...
//
// ${VAR} and ${VAR:-default} references are replaced with environment
// values before parsing. Fields left out of the file keep their defaults.
package config

import (
	"time"

	"github.com/letsplay/gateway/internal/secrets"
)

// Envelope values.
const (
	APIVersionPrefix = "gateway.letsplay.io/"
	APIVersion       = APIVersionPrefix + "v1"
	Kind             = "Gateway"
)

// Listener defaults.
const (
	DefaultPort              = 8080
	DefaultReadTimeout       = 30 * time.Second
	DefaultReadHeaderTimeout = 10 * time.Second
	DefaultWriteTimeout      = 30 * time.Second
	DefaultIdleTimeout       = 120 * time.Second
	DefaultShutdownTimeout   = 30 * time.Second
)

// Request limit defaults.
const (
	DefaultMaxBodyBytes  = 10 << 20
	DefaultMaxConcurrent = 1024
	DefaultQueueSize     = 256
	DefaultQueueTimeout  = 2 * time.Second
)

// DefaultJWTSecretPath names the secret holding the HMAC key. With the env
// provider it maps to GATEWAY_SECRET_JWT_SECRET.
const DefaultJWTSecretPath = "jwt-secret"

// GatewayConfig is the root of the configuration file.
type GatewayConfig struct {
	APIVersion string      `yaml:"apiVersion" json:"apiVersion"`
	Kind       string      `yaml:"kind" json:"kind"`
	Metadata   Metadata    `yaml:"metadata" json:"metadata"`
	Spec       GatewaySpec `yaml:"spec" json:"spec"`
}

// Metadata identifies the gateway instance.
type Metadata struct {
	Name   string            `yaml:"name" json:"name"`
	Labels map[string]string `yaml:"labels,omitempty" json:"labels,omitempty"`
}

// GatewaySpec holds every runtime setting.
type GatewaySpec struct {
	Listener      ListenerConfig      `yaml:"listener" json:"listener"`
	RateLimit     RateLimitConfig     `yaml:"rateLimit" json:"rateLimit"`
	Auth          AuthConfig          `yaml:"auth" json:"auth"`
	CORS          CORSConfig          `yaml:"cors" json:"cors"`
	Security      SecurityConfig      `yaml:"security" json:"security"`
	Limits        LimitsConfig        `yaml:"limits" json:"limits"`
	Policies      []RoutePolicy       `yaml:"policies,omitempty" json:"policies,omitempty"`
	Upstreams     []UpstreamConfig    `yaml:"upstreams,omitempty" json:"upstreams,omitempty"`
	Secrets       secrets.Config      `yaml:"secrets" json:"secrets"`
	Observability ObservabilityConfig `yaml:"observability" json:"observability"`
}

// ListenerConfig configures the HTTP server.
type ListenerConfig struct {
	Bind              string   `yaml:"bind,omitempty" json:"bind,omitempty"`
	Port              int      `yaml:"port" json:"port"`
	ReadTimeout       Duration `yaml:"readTimeout,omitempty" json:"readTimeout,omitempty"`
	ReadHeaderTimeout Duration `yaml:"readHeaderTimeout,omitempty" json:"readHeaderTimeout,omitempty"`
	WriteTimeout      Duration `yaml:"writeTimeout,omitempty" json:"writeTimeout,omitempty"`
	IdleTimeout       Duration `yaml:"idleTimeout,omitempty" json:"idleTimeout,omitempty"`
	ShutdownTimeout   Duration `yaml:"shutdownTimeout,omitempty" json:"shutdownTimeout,omitempty"`
}

// RateLimitConfig is the per-client token bucket policy.
type RateLimitConfig struct {
	Capacity       int      `yaml:"capacity" json:"capacity"`
	RefillTokens   int      `yaml:"refillTokens" json:"refillTokens"`
	RefillInterval Duration `yaml:"refillInterval" json:"refillInterval"`
	Cost           int      `yaml:"cost,omitempty" json:"cost,omitempty"`
}

// AuthConfig configures credential validation.
type AuthConfig struct {
	ValidationTimeout Duration  `yaml:"validationTimeout,omitempty" json:"validationTimeout,omitempty"`
	JWT               JWTConfig `yaml:"jwt" json:"jwt"`
}

// JWTConfig configures the JWT validator. The HMAC secret is never written
// inline; SecretRef points at it in the configured secrets provider.
type JWTConfig struct {
	Algorithms          []string    `yaml:"algorithms,omitempty" json:"algorithms,omitempty"`
	SecretRef           secrets.Ref `yaml:"secretRef,omitempty" json:"secretRef,omitempty"`
	WatchSecret         bool        `yaml:"watchSecret,omitempty" json:"watchSecret,omitempty"`
	JWKSURL             string      `yaml:"jwksUrl,omitempty" json:"jwksUrl,omitempty"`
	JWKSRefreshInterval Duration    `yaml:"jwksRefreshInterval,omitempty" json:"jwksRefreshInterval,omitempty"`
	Issuer              string      `yaml:"issuer,omitempty" json:"issuer,omitempty"`
	Audience            string      `yaml:"audience,omitempty" json:"audience,omitempty"`
	ClockSkew           Duration    `yaml:"clockSkew,omitempty" json:"clockSkew,omitempty"`
	SubjectClaim        string      `yaml:"subjectClaim,omitempty" json:"subjectClaim,omitempty"`
	RoleClaim           string      `yaml:"roleClaim,omitempty" json:"roleClaim,omitempty"`
}

// CORSConfig is the browser cross-origin policy.
type CORSConfig struct {
	AllowOrigins     []string `yaml:"allowOrigins,omitempty" json:"allowOrigins,omitempty"`
	AllowMethods     []string `yaml:"allowMethods,omitempty" json:"allowMethods,omitempty"`
	AllowHeaders     []string `yaml:"allowHeaders,omitempty" json:"allowHeaders,omitempty"`
	ExposeHeaders    []string `yaml:"exposeHeaders,omitempty" json:"exposeHeaders,omitempty"`
	AllowCredentials bool     `yaml:"allowCredentials,omitempty" json:"allowCredentials,omitempty"`
	MaxAge           int      `yaml:"maxAge,omitempty" json:"maxAge,omitempty"`
}

// SecurityConfig sets response hardening headers.
type SecurityConfig struct {
	Enabled        bool     `yaml:"enabled" json:"enabled"`
	FrameOptions   string   `yaml:"frameOptions,omitempty" json:"frameOptions,omitempty"`
	ReferrerPolicy string   `yaml:"referrerPolicy,omitempty" json:"referrerPolicy,omitempty"`
	HSTSMaxAge     int      `yaml:"hstsMaxAge,omitempty" json:"hstsMaxAge,omitempty"`
	RemoveHeaders  []string `yaml:"removeHeaders,omitempty" json:"removeHeaders,omitempty"`
}

// LimitsConfig bounds what a single request and the whole gateway may
// consume. Zero disables a limit.
type LimitsConfig struct {
	MaxBodyBytes  int64    `yaml:"maxBodyBytes" json:"maxBodyBytes"`
	MaxConcurrent int      `yaml:"maxConcurrent" json:"maxConcurrent"`
	QueueSize     int      `yaml:"queueSize,omitempty" json:"queueSize,omitempty"`
	QueueTimeout  Duration `yaml:"queueTimeout,omitempty" json:"queueTimeout,omitempty"`
}

// RoutePolicy is one row of the authentication table. Rows are evaluated
// in order; requests matching none require authentication.
type RoutePolicy struct {
	Method       string `yaml:"method" json:"method"`
	Path         string `yaml:"path" json:"path"`
	Match        string `yaml:"match,omitempty" json:"match,omitempty"`
	RequiresAuth bool   `yaml:"requiresAuth" json:"requiresAuth"`
}

// UpstreamConfig is a downstream service.
type UpstreamConfig struct {
	Name           string                `yaml:"name" json:"name"`
	URL            string                `yaml:"url" json:"url"`
	Prefixes       []string              `yaml:"prefixes" json:"prefixes"`
	Timeout        Duration              `yaml:"timeout,omitempty" json:"timeout,omitempty"`
	CircuitBreaker *CircuitBreakerConfig `yaml:"circuitBreaker,omitempty" json:"circuitBreaker,omitempty"`
}

// CircuitBreakerConfig guards one upstream.
type CircuitBreakerConfig struct {
	Enabled      bool     `yaml:"enabled" json:"enabled"`
	MinRequests  int      `yaml:"minRequests,omitempty" json:"minRequests,omitempty"`
	FailureRatio float64  `yaml:"failureRatio,omitempty" json:"failureRatio,omitempty"`
	OpenTimeout  Duration `yaml:"openTimeout,omitempty" json:"openTimeout,omitempty"`
	Interval     Duration `yaml:"interval,omitempty" json:"interval,omitempty"`
}

// ObservabilityConfig groups logging, metrics and tracing.
type ObservabilityConfig struct {
	Logging LoggingConfig `yaml:"logging" json:"logging"`
	Metrics MetricsConfig `yaml:"metrics" json:"metrics"`
	Tracing TracingConfig `yaml:"tracing" json:"tracing"`
}

// LoggingConfig configures the zap logger.
type LoggingConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
	Output string `yaml:"output,omitempty" json:"output,omitempty"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled" json:"enabled"`
	Path      string `yaml:"path,omitempty" json:"path,omitempty"`
	Namespace string `yaml:"namespace,omitempty" json:"namespace,omitempty"`
}

// TracingConfig configures OTLP trace export.
type TracingConfig struct {
	Enabled      bool    `yaml:"enabled" json:"enabled"`
	Endpoint     string  `yaml:"endpoint,omitempty" json:"endpoint,omitempty"`
	SamplingRate float64 `yaml:"samplingRate,omitempty" json:"samplingRate,omitempty"`
	ServiceName  string  `yaml:"serviceName,omitempty" json:"serviceName,omitempty"`
}

// DefaultConfig returns a configuration that runs the gateway in front of
// the local letsplay services.
func DefaultConfig() *GatewayConfig {
	return &GatewayConfig{
		APIVersion: APIVersion,
		Kind:       Kind,
		Metadata:   Metadata{Name: "letsplay-gateway"},
		Spec: GatewaySpec{
			Listener: ListenerConfig{
				Bind:              "0.0.0.0",
				Port:              DefaultPort,
				ReadTimeout:       Duration(DefaultReadTimeout),
				ReadHeaderTimeout: Duration(DefaultReadHeaderTimeout),
				WriteTimeout:      Duration(DefaultWriteTimeout),
				IdleTimeout:       Duration(DefaultIdleTimeout),
				ShutdownTimeout:   Duration(DefaultShutdownTimeout),
			},
			RateLimit: RateLimitConfig{
				Capacity:       100,
				RefillTokens:   100,
				RefillInterval: Duration(time.Minute),
				Cost:           1,
			},
			Auth: AuthConfig{
				ValidationTimeout: Duration(2 * time.Second),
				JWT: JWTConfig{
					Algorithms: []string{"HS256"},
					SecretRef:  secrets.Ref{Path: DefaultJWTSecretPath},
					ClockSkew:  Duration(30 * time.Second),
				},
			},
			CORS: CORSConfig{
				AllowOrigins:  []string{"*"},
				AllowMethods:  []string{"GET", "POST", "PUT", "DELETE", "OPTIONS", "PATCH", "HEAD"},
				AllowHeaders:  []string{"*"},
				ExposeHeaders: []string{"Authorization", "Content-Type"},
				MaxAge:        3600,
			},
			Security: SecurityConfig{
				Enabled:        true,
				FrameOptions:   "DENY",
				ReferrerPolicy: "no-referrer",
				RemoveHeaders:  []string{"Server", "X-Powered-By"},
			},
			Limits: LimitsConfig{
				MaxBodyBytes:  DefaultMaxBodyBytes,
				MaxConcurrent: DefaultMaxConcurrent,
				QueueSize:     DefaultQueueSize,
				QueueTimeout:  Duration(DefaultQueueTimeout),
			},
			Secrets: secrets.Config{Provider: string(secrets.ProviderTypeEnv)},
			Observability: ObservabilityConfig{
				Logging: LoggingConfig{Level: "info", Format: "json", Output: "stdout"},
				Metrics: MetricsConfig{Enabled: true, Path: "/metrics", Namespace: "gateway"},
				Tracing: TracingConfig{SamplingRate: 1.0, ServiceName: "letsplay-gateway"},
			},
		},
	}
}
