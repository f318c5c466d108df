package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestDefaultCORSConfig(t *testing.T) {
	t.Parallel()

	cfg := DefaultCORSConfig()

	assert.Equal(t, []string{"*"}, cfg.AllowOrigins)
	assert.ElementsMatch(t,
		[]string{"GET", "POST", "PUT", "DELETE", "OPTIONS", "PATCH", "HEAD"},
		cfg.AllowMethods)
	assert.Equal(t, []string{"*"}, cfg.AllowHeaders)
	assert.Equal(t, []string{"Authorization", "Content-Type"}, cfg.ExposeHeaders)
	assert.Equal(t, 3600, cfg.MaxAge)
	assert.False(t, cfg.AllowCredentials)
}

func TestCORS_SimpleRequest(t *testing.T) {
	t.Parallel()

	handler := CORS(DefaultCORSConfig())(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/api/products", nil)
	req.Header.Set(HeaderOrigin, "http://localhost:4200")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "http://localhost:4200", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "Authorization, Content-Type", rec.Header().Get("Access-Control-Expose-Headers"))
	assert.Contains(t, rec.Header().Values(HeaderVary), HeaderOrigin)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Credentials"))
	assert.Equal(t, "GET, POST, PUT, DELETE, OPTIONS, PATCH, HEAD", rec.Header().Get("Access-Control-Allow-Methods"))
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Headers"))
	assert.Equal(t, "3600", rec.Header().Get("Access-Control-Max-Age"))
}

func TestCORS_PreflightPassesThrough(t *testing.T) {
	t.Parallel()

	var called bool
	handler := CORS(DefaultCORSConfig())(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodOptions, "/api/users/1", nil)
	req.Header.Set(HeaderOrigin, "https://shop.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPut)
	req.Header.Set("Access-Control-Request-Headers", "authorization, content-type")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.True(t, called)
	assert.Equal(t, "https://shop.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "GET, POST, PUT, DELETE, OPTIONS, PATCH, HEAD", rec.Header().Get("Access-Control-Allow-Methods"))
	assert.Equal(t, "authorization, content-type", rec.Header().Get("Access-Control-Allow-Headers"))
	assert.Equal(t, "3600", rec.Header().Get("Access-Control-Max-Age"))
}

func TestCORS_PreflightWithoutRequestedHeaders(t *testing.T) {
	t.Parallel()

	handler := CORS(DefaultCORSConfig())(okHandler())

	req := httptest.NewRequest(http.MethodOptions, "/api/products", nil)
	req.Header.Set(HeaderOrigin, "http://a.test")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Headers"))
}

func TestCORS_OriginMatching(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		origins []string
		origin  string
		allowed bool
	}{
		{"exact", []string{"http://example.com"}, "http://example.com", true},
		{"mismatch", []string{"http://allowed.com"}, "http://other.com", false},
		{"wildcard subdomain", []string{"*.example.com"}, "https://api.example.com:8443", true},
		{"wildcard apex", []string{"*.example.com"}, "https://example.com", false},
		{"no origin", []string{"*"}, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			handler := CORS(CORSConfig{AllowOrigins: tt.origins, AllowCredentials: true})(okHandler())

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.origin != "" {
				req.Header.Set(HeaderOrigin, tt.origin)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if tt.allowed {
				assert.Equal(t, tt.origin, rec.Header().Get("Access-Control-Allow-Origin"))
				assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
			} else {
				assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
			}
			assert.Equal(t, http.StatusOK, rec.Code)
		})
	}
}
