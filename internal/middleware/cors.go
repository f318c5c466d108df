package middleware

import (
	"net/http"
	"strconv"
	"strings"
)

// CORS header names.
const (
	headerAllowOrigin      = "Access-Control-Allow-Origin"
	headerAllowMethods     = "Access-Control-Allow-Methods"
	headerAllowHeaders     = "Access-Control-Allow-Headers"
	headerExposeHeaders    = "Access-Control-Expose-Headers"
	headerAllowCredentials = "Access-Control-Allow-Credentials"
	headerMaxAge           = "Access-Control-Max-Age"
	headerRequestHeaders   = "Access-Control-Request-Headers"
)

// CORSConfig contains CORS configuration.
type CORSConfig struct {
	AllowOrigins     []string
	AllowMethods     []string
	AllowHeaders     []string
	ExposeHeaders    []string
	AllowCredentials bool
	MaxAge           int
}

// DefaultCORSConfig returns the gateway's browser policy: any origin, the
// common methods, any request header, Authorization and Content-Type exposed
// to scripts, no credentials, and a one hour preflight cache.
func DefaultCORSConfig() CORSConfig {
	return CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{
			http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete,
			http.MethodOptions, http.MethodPatch, http.MethodHead,
		},
		AllowHeaders:  []string{"*"},
		ExposeHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:        3600,
	}
}

// corsHeaders holds pre-computed CORS header values.
type corsHeaders struct {
	allowOrigins     map[string]bool
	wildcardPatterns []string // "*.example.com"
	allowAllOrigins  bool
	allowAllHeaders  bool
	allowMethods     string
	allowHeaders     string
	exposeHeaders    string
	maxAge           string
	allowCredentials bool
}

func newCORSHeaders(cfg CORSConfig) *corsHeaders {
	h := &corsHeaders{
		allowOrigins:     make(map[string]bool),
		allowMethods:     strings.Join(cfg.AllowMethods, ", "),
		exposeHeaders:    strings.Join(cfg.ExposeHeaders, ", "),
		allowCredentials: cfg.AllowCredentials,
	}

	for _, origin := range cfg.AllowOrigins {
		switch {
		case origin == "*":
			h.allowAllOrigins = true
		case strings.HasPrefix(origin, "*."):
			h.wildcardPatterns = append(h.wildcardPatterns, origin)
		default:
			h.allowOrigins[origin] = true
		}
	}

	headers := make([]string, 0, len(cfg.AllowHeaders))
	for _, name := range cfg.AllowHeaders {
		if name == "*" {
			h.allowAllHeaders = true
			continue
		}
		headers = append(headers, name)
	}
	h.allowHeaders = strings.Join(headers, ", ")

	if cfg.MaxAge > 0 {
		h.maxAge = strconv.Itoa(cfg.MaxAge)
	}
	return h
}

func (h *corsHeaders) isOriginAllowed(origin string) bool {
	if origin == "" {
		return false
	}
	if h.allowAllOrigins || h.allowOrigins[origin] {
		return true
	}
	for _, pattern := range h.wildcardPatterns {
		if matchWildcardOrigin(origin, pattern) {
			return true
		}
	}
	return false
}

// matchWildcardOrigin reports whether origin's host is a subdomain of the
// "*.example.com" pattern.
func matchWildcardOrigin(origin, pattern string) bool {
	suffix := pattern[1:]

	host := origin
	if idx := strings.Index(host, "://"); idx != -1 {
		host = host[idx+3:]
	}
	if idx := strings.LastIndex(host, ":"); idx != -1 {
		host = host[:idx]
	}

	return len(host) > len(suffix) && strings.HasSuffix(host, suffix)
}

// set writes the full CORS header set for an allowed origin on every
// response, preflight or not. The origin is echoed rather than answered with
// "*" so caches key on it via Vary.
func (h *corsHeaders) set(w http.ResponseWriter, r *http.Request) {
	origin := r.Header.Get(HeaderOrigin)
	if !h.isOriginAllowed(origin) {
		return
	}

	hdr := w.Header()
	hdr.Set(headerAllowOrigin, origin)
	hdr.Add(HeaderVary, HeaderOrigin)

	if h.exposeHeaders != "" {
		hdr.Set(headerExposeHeaders, h.exposeHeaders)
	}
	if h.allowCredentials {
		hdr.Set(headerAllowCredentials, "true")
	}

	if h.allowMethods != "" {
		hdr.Set(headerAllowMethods, h.allowMethods)
	}
	// A literal "*" does not cover Authorization, so the requested headers
	// are echoed instead.
	allowHeaders := h.allowHeaders
	if h.allowAllHeaders {
		if requested := r.Header.Get(headerRequestHeaders); requested != "" {
			allowHeaders = requested
			hdr.Add(HeaderVary, headerRequestHeaders)
		} else if allowHeaders == "" {
			allowHeaders = "*"
		}
	}
	if allowHeaders != "" {
		hdr.Set(headerAllowHeaders, allowHeaders)
	}
	if h.maxAge != "" {
		hdr.Set(headerMaxAge, h.maxAge)
	}
}

// CORS returns a middleware that attaches CORS headers to every response.
// Preflight requests are passed on; the admission pipeline answers them.
func CORS(cfg CORSConfig) Middleware {
	headers := newCORSHeaders(cfg)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			headers.set(w, r)
			next.ServeHTTP(w, r)
		})
	}
}
