package util

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestValidateURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		url     string
		wantErr bool
	}{
		{"http://user-service:8081", false},
		{"https://example.com/base", false},
		{"", true},
		{"ftp://example.com", true},
		{"user-service:8081", true},
		{"http://", true},
	}

	for _, tt := range tests {
		err := ValidateURL(tt.url)
		if tt.wantErr {
			assert.Error(t, err, tt.url)
		} else {
			assert.NoError(t, err, tt.url)
		}
	}
}

func TestValidatePort(t *testing.T) {
	t.Parallel()

	assert.NoError(t, ValidatePort(8080))
	assert.Error(t, ValidatePort(0))
	assert.Error(t, ValidatePort(70000))
}

func TestValidateHTTPMethod(t *testing.T) {
	t.Parallel()

	assert.NoError(t, ValidateHTTPMethod("get"))
	assert.NoError(t, ValidateHTTPMethod("*"))
	assert.Error(t, ValidateHTTPMethod("BREW"))
}

func TestValidatePathPrefix(t *testing.T) {
	t.Parallel()

	assert.NoError(t, ValidatePathPrefix("/api"))
	assert.Error(t, ValidatePathPrefix("api"))
}

func TestContextValues(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	assert.True(t, StartTimeFromContext(ctx).IsZero())
	assert.Zero(t, ElapsedTime(ctx))
	assert.Empty(t, UpstreamFromContext(ctx))

	start := time.Now().Add(-time.Second)
	ctx = ContextWithStartTime(ctx, start)
	ctx = ContextWithUpstream(ctx, "user-service")

	assert.Equal(t, start, StartTimeFromContext(ctx))
	assert.GreaterOrEqual(t, ElapsedTime(ctx), time.Second)
	assert.Equal(t, "user-service", UpstreamFromContext(ctx))
}
