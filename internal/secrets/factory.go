package secrets

import (
	"fmt"

	"github.com/letsplay/gateway/internal/observability"
)

// Config selects and configures a provider.
type Config struct {
	Provider  string      `yaml:"provider,omitempty" json:"provider,omitempty"`
	EnvPrefix string      `yaml:"envPrefix,omitempty" json:"envPrefix,omitempty"`
	BaseDir   string      `yaml:"baseDir,omitempty" json:"baseDir,omitempty"`
	Vault     VaultConfig `yaml:"vault,omitempty" json:"vault,omitempty"`
}

// NewProvider creates the provider cfg names.
func NewProvider(cfg Config, logger observability.Logger) (Provider, error) {
	t, err := ParseProviderType(cfg.Provider)
	if err != nil {
		return nil, err
	}

	switch t {
	case ProviderTypeFile:
		return NewFileProvider(cfg.BaseDir, logger)
	case ProviderTypeVault:
		return NewVaultProvider(cfg.Vault, logger)
	case ProviderTypeEnv:
		return NewEnvProvider(cfg.EnvPrefix, logger), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrInvalidProviderType, t)
	}
}
