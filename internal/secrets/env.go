package secrets

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/letsplay/gateway/internal/observability"
)

// DefaultEnvPrefix is prepended to secret names to form variable names.
const DefaultEnvPrefix = "GATEWAY_SECRET_"

// EnvProvider reads secrets from environment variables. The path
// "jwt-secret" maps to GATEWAY_SECRET_JWT_SECRET. A JSON object value is
// split into keys; anything else is stored under DefaultKey.
type EnvProvider struct {
	prefix string
	lookup func(string) (string, bool)
	logger observability.Logger
}

// NewEnvProvider creates an EnvProvider. An empty prefix selects DefaultEnvPrefix.
func NewEnvProvider(prefix string, logger observability.Logger) *EnvProvider {
	if prefix == "" {
		prefix = DefaultEnvPrefix
	}
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &EnvProvider{prefix: prefix, lookup: os.LookupEnv, logger: logger}
}

// Type returns ProviderTypeEnv.
func (p *EnvProvider) Type() ProviderType {
	return ProviderTypeEnv
}

func (p *EnvProvider) envName(path string) string {
	name := strings.ToUpper(path)
	name = strings.NewReplacer("-", "_", ".", "_", "/", "_").Replace(name)
	return p.prefix + name
}

// GetSecret reads the variable for path.
func (p *EnvProvider) GetSecret(_ context.Context, path string) (*Secret, error) {
	if strings.TrimSpace(path) == "" {
		return nil, ErrInvalidPath
	}

	envName := p.envName(path)
	value, ok := p.lookup(envName)
	if !ok {
		return nil, fmt.Errorf("%w: environment variable %s not set", ErrSecretNotFound, envName)
	}

	data := make(map[string][]byte)
	var fields map[string]any
	if err := json.Unmarshal([]byte(value), &fields); err == nil {
		for k, v := range fields {
			if s, isString := v.(string); isString {
				data[k] = []byte(s)
				continue
			}
			raw, err := json.Marshal(v)
			if err != nil {
				p.logger.Warn("skipping secret key", observability.String("key", k), observability.Error(err))
				continue
			}
			data[k] = raw
		}
	} else {
		data[DefaultKey] = []byte(value)
	}

	p.logger.Debug("secret read from environment",
		observability.String("path", path),
		observability.String("env_var", envName),
		observability.Int("keys", len(data)),
	)

	return &Secret{Name: path, Data: data}, nil
}

// Close is a no-op.
func (p *EnvProvider) Close() error {
	return nil
}
