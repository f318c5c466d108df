// Package secrets loads gateway key material such as the HMAC signing secret
// from environment variables, local files, or HashiCorp Vault.
package secrets

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ProviderType identifies a secret backend.
type ProviderType string

// Supported provider types.
const (
	ProviderTypeEnv   ProviderType = "env"
	ProviderTypeFile  ProviderType = "file"
	ProviderTypeVault ProviderType = "vault"
)

// DefaultKey is the key a single-valued secret is stored under.
const DefaultKey = "value"

var (
	// ErrSecretNotFound is returned when a secret does not exist.
	ErrSecretNotFound = errors.New("secret not found")

	// ErrKeyNotFound is returned when a secret exists but lacks the requested key.
	ErrKeyNotFound = errors.New("secret key not found")

	// ErrProviderNotConfigured is returned when a provider is missing required settings.
	ErrProviderNotConfigured = errors.New("secrets provider not configured")

	// ErrInvalidPath is returned for empty or malformed secret paths.
	ErrInvalidPath = errors.New("invalid secret path")

	// ErrInvalidProviderType is returned for unknown provider types.
	ErrInvalidProviderType = errors.New("invalid secrets provider type")

	// ErrWatchUnsupported is returned when a provider cannot report changes.
	ErrWatchUnsupported = errors.New("secrets provider does not support watching")
)

// Secret is a named set of key/value pairs.
type Secret struct {
	Name    string
	Data    map[string][]byte
	Version string
}

// Get returns the value stored under key.
func (s *Secret) Get(key string) ([]byte, error) {
	if key == "" {
		key = DefaultKey
	}
	v, ok := s.Data[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", ErrKeyNotFound, s.Name, key)
	}
	return v, nil
}

// Provider reads secrets from a backend.
type Provider interface {
	Type() ProviderType
	GetSecret(ctx context.Context, path string) (*Secret, error)
	Close() error
}

// Watcher is implemented by providers that can push updates.
type Watcher interface {
	// Watch calls onChange with the new secret each time path changes,
	// until ctx is cancelled.
	Watch(ctx context.Context, path string, onChange func(*Secret)) error
}

// Ref points at one key of one secret.
type Ref struct {
	Path string `yaml:"path" json:"path"`
	Key  string `yaml:"key,omitempty" json:"key,omitempty"`
}

// IsZero reports whether the reference is unset.
func (r Ref) IsZero() bool {
	return r.Path == ""
}

// Resolve fetches the value ref points at.
func Resolve(ctx context.Context, p Provider, ref Ref) ([]byte, error) {
	if ref.IsZero() {
		return nil, ErrInvalidPath
	}
	s, err := p.GetSecret(ctx, ref.Path)
	if err != nil {
		return nil, err
	}
	return s.Get(ref.Key)
}

// ParseProviderType converts a configuration string into a ProviderType.
func ParseProviderType(s string) (ProviderType, error) {
	switch t := ProviderType(strings.ToLower(strings.TrimSpace(s))); t {
	case ProviderTypeEnv, ProviderTypeFile, ProviderTypeVault:
		return t, nil
	case "":
		return ProviderTypeEnv, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrInvalidProviderType, s)
	}
}
