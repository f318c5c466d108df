package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/letsplay/gateway/internal/auth"
	"github.com/letsplay/gateway/internal/config"
	"github.com/letsplay/gateway/internal/observability"
)

const goodToken = "good-token"

var stubValidator = auth.ValidatorFunc(func(_ context.Context, token string) (*auth.Identity, error) {
	if token != goodToken {
		return nil, auth.ErrInvalidCredential
	}
	return &auth.Identity{SubjectID: "user-7", Role: auth.RoleAdmin}, nil
})

// upstreamEcho reports the identity headers it received.
func upstreamEcho(t *testing.T) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{
			"path":      r.URL.Path,
			"userId":    r.Header.Get(auth.HeaderUserID),
			"userRole":  r.Header.Get(auth.HeaderUserRole),
			"requestId": r.Header.Get("X-Request-ID"),
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(upstreamURL string) *config.GatewayConfig {
	cfg := config.DefaultConfig()
	cfg.Spec.Listener.Bind = "127.0.0.1"
	cfg.Spec.Listener.Port = 0
	cfg.Spec.RateLimit.Capacity = 3
	cfg.Spec.RateLimit.RefillTokens = 1
	cfg.Spec.RateLimit.RefillInterval = config.Duration(time.Hour)
	cfg.Spec.Upstreams = []config.UpstreamConfig{
		{Name: "user-service", URL: upstreamURL, Prefixes: []string{"/api/auth", "/api/users"}},
		{Name: "product-service", URL: upstreamURL, Prefixes: []string{"/api/products"}},
	}
	return cfg
}

func newTestGateway(t *testing.T, opts ...Option) (*Gateway, *observability.Metrics) {
	t.Helper()
	return newConfiguredGateway(t, testConfig(upstreamEcho(t).URL), opts...)
}

func newConfiguredGateway(t *testing.T, cfg *config.GatewayConfig, opts ...Option) (*Gateway, *observability.Metrics) {
	t.Helper()

	metrics := observability.NewMetrics("gateway")
	opts = append([]Option{WithMetrics(metrics)}, opts...)
	g, err := New(cfg, stubValidator, opts...)
	require.NoError(t, err)
	return g, metrics
}

func serve(g *Gateway, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	g.Handler().ServeHTTP(rec, req)
	return rec
}

func body(t *testing.T, rec *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var m map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &m), rec.Body.String())
	return m
}

func TestGateway_PublicRouteForwarded(t *testing.T) {
	t.Parallel()

	g, _ := newTestGateway(t)

	req := httptest.NewRequest(http.MethodGet, "/api/products/3", nil)
	req.Header.Set(auth.HeaderUserID, "spoofed")
	rec := serve(g, req)

	require.Equal(t, http.StatusOK, rec.Code)
	got := body(t, rec)
	assert.Equal(t, "/api/products/3", got["path"])
	assert.Empty(t, got["userId"])
	assert.NotEmpty(t, got["requestId"])
	assert.Equal(t, got["requestId"], rec.Header().Get("X-Request-ID"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
}

func TestGateway_PrivateRoute(t *testing.T) {
	t.Parallel()

	g, _ := newTestGateway(t)

	rec := serve(g, httptest.NewRequest(http.MethodGet, "/api/users/me", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"error":"Missing authorization header","status":401}`, rec.Body.String())

	req := httptest.NewRequest(http.MethodGet, "/api/users/me", nil)
	req.Header.Set("Authorization", "Bearer nope")
	rec = serve(g, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"error":"Invalid or expired token","status":401}`, rec.Body.String())

	req = httptest.NewRequest(http.MethodGet, "/api/users/me", nil)
	req.Header.Set("Authorization", "Bearer "+goodToken)
	req.Header.Set(auth.HeaderUserRole, "ADMIN")
	rec = serve(g, req)
	require.Equal(t, http.StatusOK, rec.Code)
	got := body(t, rec)
	assert.Equal(t, "user-7", got["userId"])
	assert.Equal(t, auth.RoleAdmin.String(), got["userRole"])
}

func TestGateway_PreflightAndCORS(t *testing.T) {
	t.Parallel()

	g, _ := newTestGateway(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/users/me", nil)
	req.Header.Set("Origin", "https://app.letsplay.test")
	req.Header.Set("Access-Control-Request-Headers", "Authorization")
	rec := serve(g, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Body.String())
	assert.Equal(t, "https://app.letsplay.test", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "Authorization", rec.Header().Get("Access-Control-Allow-Headers"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), http.MethodPatch)

	// Rejections carry CORS headers so browsers can read them.
	req = httptest.NewRequest(http.MethodGet, "/api/users/me", nil)
	req.Header.Set("Origin", "https://app.letsplay.test")
	rec = serve(g, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "https://app.letsplay.test", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestGateway_RateLimit(t *testing.T) {
	t.Parallel()

	g, metrics := newTestGateway(t)

	for i := range 3 {
		rec := serve(g, httptest.NewRequest(http.MethodGet, "/api/products", nil))
		require.Equal(t, http.StatusOK, rec.Code, "request %d", i)
	}

	rec := serve(g, httptest.NewRequest(http.MethodGet, "/api/products", nil))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.JSONEq(t, `{"error":"Too many requests. Please try again later.","status":429}`, rec.Body.String())

	rec = httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, rec.Body.String(), "gateway_ratelimit_buckets 1")
	assert.Contains(t, rec.Body.String(), `gateway_admission_decisions_total{outcome="429",stage="ratelimit"} 1`)
}

func TestGateway_UnknownRoute(t *testing.T) {
	t.Parallel()

	g, _ := newTestGateway(t)

	req := httptest.NewRequest(http.MethodGet, "/api/orders", nil)
	req.Header.Set("Authorization", "Bearer "+goodToken)
	rec := serve(g, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error":"Not found","status":404}`, rec.Body.String())
}

func TestGateway_HealthAndMetrics(t *testing.T) {
	t.Parallel()

	cfg := testConfig(upstreamEcho(t).URL)
	cfg.Spec.RateLimit.Capacity = 10
	g, _ := newConfiguredGateway(t, cfg)

	rec := serve(g, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"state":"stopped"`)

	rec = serve(g, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	serve(g, httptest.NewRequest(http.MethodGet, "/api/products", nil))

	rec = serve(g, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `gateway_admission_decisions_total{outcome="forward",stage="classify"} 1`)
	assert.Contains(t, rec.Body.String(), `gateway_upstream_requests_total{status="200",upstream="product-service"} 1`)
}

func TestGateway_OperationalRoutesShareRateLimit(t *testing.T) {
	t.Parallel()

	g, _ := newTestGateway(t)

	for i := range 3 {
		rec := serve(g, httptest.NewRequest(http.MethodGet, "/health", nil))
		require.Equal(t, http.StatusOK, rec.Code, "request %d", i)
	}

	for _, path := range []string{"/health", "/ready", "/metrics", "/api/products"} {
		rec := serve(g, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusTooManyRequests, rec.Code, path)
		assert.JSONEq(t, `{"error":"Too many requests. Please try again later.","status":429}`, rec.Body.String(), path)
	}

	other := httptest.NewRequest(http.MethodGet, "/health", nil)
	other.RemoteAddr = "198.51.100.9:4000"
	assert.Equal(t, http.StatusOK, serve(g, other).Code)
}

func TestGateway_BodyLimit(t *testing.T) {
	t.Parallel()

	cfg := testConfig(upstreamEcho(t).URL)
	cfg.Spec.Limits.MaxBodyBytes = 16
	g, _ := newConfiguredGateway(t, cfg)

	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(strings.Repeat("a", 32)))
	rec := serve(g, req)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.JSONEq(t, `{"error":"Request body too large","status":413}`, rec.Body.String())
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))

	req = httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(`{"a":"b"}`))
	assert.Equal(t, http.StatusOK, serve(g, req).Code)
}

func TestGateway_MaxSessions(t *testing.T) {
	t.Parallel()

	entered := make(chan struct{}, 1)
	release := make(chan struct{})
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		entered <- struct{}{}
		<-release
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(slow.Close)

	cfg := testConfig(slow.URL)
	cfg.Spec.Limits.MaxConcurrent = 1
	cfg.Spec.Limits.QueueSize = 0
	g, metrics := newConfiguredGateway(t, cfg)

	done := make(chan int, 1)
	go func() {
		done <- serve(g, httptest.NewRequest(http.MethodGet, "/api/products", nil)).Code
	}()
	<-entered

	rec := serve(g, httptest.NewRequest(http.MethodGet, "/api/products", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
	assert.JSONEq(t, `{"error":"Server is busy. Please try again later.","status":503}`, rec.Body.String())

	mrec := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(mrec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, mrec.Body.String(), "gateway_sessions_active 1")

	close(release)
	assert.Equal(t, http.StatusOK, <-done)
}

func TestGateway_StartStop(t *testing.T) {
	t.Parallel()

	g, _ := newTestGateway(t, WithShutdownTimeout(5*time.Second))
	assert.Equal(t, StateStopped, g.State())
	assert.ErrorIs(t, g.Stop(context.Background()), ErrNotRunning)

	require.NoError(t, g.Start(context.Background()))
	assert.True(t, g.IsRunning())
	assert.ErrorIs(t, g.Start(context.Background()), ErrNotStopped)

	base := "http://" + g.Address()

	resp, err := http.Get(base + "/ready")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(base + "/api/products")
	require.NoError(t, err)
	payload, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.Contains(string(payload), `"path":"/api/products"`))

	require.NoError(t, g.Stop(context.Background()))
	assert.Equal(t, StateStopped, g.State())

	_, err = http.Get(base + "/health")
	assert.Error(t, err)
}

func TestNew_Errors(t *testing.T) {
	t.Parallel()

	_, err := New(nil, stubValidator)
	assert.Error(t, err)

	_, err = New(config.DefaultConfig(), nil)
	assert.Error(t, err)

	cfg := config.DefaultConfig()
	cfg.Spec.Upstreams = []config.UpstreamConfig{{Name: "bad", URL: "::", Prefixes: []string{"/x"}}}
	_, err = New(cfg, stubValidator)
	assert.ErrorContains(t, err, "upstreams")

	cfg = config.DefaultConfig()
	cfg.Spec.RateLimit.Capacity = 0
	_, err = New(cfg, stubValidator)
	assert.ErrorContains(t, err, "rate limit")
}

func TestState_String(t *testing.T) {
	t.Parallel()

	for s, want := range map[State]string{
		StateStopped:  "stopped",
		StateStarting: "starting",
		StateRunning:  "running",
		StateStopping: "stopping",
		State(42):     "unknown",
	} {
		assert.Equal(t, want, s.String(), fmt.Sprint(int(s)))
	}
}
