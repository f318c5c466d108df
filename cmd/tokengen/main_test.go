package main

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/letsplay/gateway/internal/auth"
	"github.com/letsplay/gateway/internal/auth/jwt"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func env(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestRun_IssuesValidToken(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	err := run([]string{"-user-id", "42", "-role", "SELLER", "-ttl", "5m"},
		env(map[string]string{defaultSecretEnv: testSecret}), &out)
	require.NoError(t, err)

	v, err := jwt.NewValidator(jwt.DefaultConfig(), jwt.WithSecret([]byte(testSecret)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = v.Close() })

	id, err := v.Validate(context.Background(), strings.TrimSpace(out.String()))
	require.NoError(t, err)
	assert.Equal(t, "42", id.SubjectID)
	assert.Equal(t, auth.RoleSeller, id.Role)
}

func TestRun_Errors(t *testing.T) {
	t.Parallel()

	withSecret := env(map[string]string{defaultSecretEnv: testSecret, "SHORT": "tiny"})

	tests := []struct {
		name   string
		args   []string
		getenv func(string) string
		errMsg string
	}{
		{"missing user", nil, withSecret, "-user-id is required"},
		{"bad role", []string{"-user-id", "1", "-role", "root"}, withSecret, "root"},
		{"empty secret", []string{"-user-id", "1"}, env(nil), defaultSecretEnv},
		{"weak secret", []string{"-user-id", "1", "-secret-env", "SHORT"}, withSecret, "too short"},
		{"bad ttl", []string{"-user-id", "1", "-ttl", "-1m"}, withSecret, "ttl"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var out bytes.Buffer
			err := run(tt.args, tt.getenv, &out)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
			assert.Empty(t, out.String())
		})
	}
}

func TestParseOptions_Defaults(t *testing.T) {
	t.Parallel()

	o, err := parseOptions([]string{"-user-id", "7"})
	require.NoError(t, err)
	assert.Equal(t, string(auth.RoleClient), o.role)
	assert.Equal(t, jwt.DefaultTokenTTL, o.ttl)
	assert.Equal(t, defaultSecretEnv, o.secretEnv)
	assert.Equal(t, 24*time.Hour, o.ttl)
}
