package middleware

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/letsplay/gateway/internal/observability"
)

// readAll answers 200 with the body length, or 413 when the read was cut off.
func readAll() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			w.WriteHeader(http.StatusRequestEntityTooLarge)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, strings.Repeat("x", len(body)))
	})
}

func TestBodyLimit(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		body          string
		contentLength int64
		expected      int
		expectedBody  string
	}{
		{name: "no body", expected: http.StatusOK},
		{name: "within limit", body: "12345678", contentLength: 8, expected: http.StatusOK, expectedBody: "xxxxxxxx"},
		{
			name:          "declared too large",
			body:          "123456789",
			contentLength: 9,
			expected:      http.StatusRequestEntityTooLarge,
			expectedBody:  `{"error":"Request body too large","status":413}`,
		},
		{name: "undeclared too large", body: "123456789", contentLength: -1, expected: http.StatusRequestEntityTooLarge},
	}

	handler := BodyLimit(8, observability.NopLogger())(readAll())

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var body io.Reader
			if tt.body != "" {
				body = strings.NewReader(tt.body)
			}
			req := httptest.NewRequest(http.MethodPost, "/api/media", body)
			if tt.body != "" {
				req.ContentLength = tt.contentLength
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.expected, rec.Code)
			if strings.HasPrefix(tt.expectedBody, "{") {
				assert.JSONEq(t, tt.expectedBody, rec.Body.String())
			} else if tt.expectedBody != "" {
				assert.Equal(t, tt.expectedBody, rec.Body.String())
			}
		})
	}
}

func TestBodyLimit_Disabled(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(strings.Repeat("a", 1024)))
	rec := httptest.NewRecorder()
	BodyLimit(0, observability.NopLogger())(readAll()).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, rec.Body.String(), 1024)
}
