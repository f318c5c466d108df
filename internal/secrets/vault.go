package secrets

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	vaultapi "github.com/hashicorp/vault/api"

	"github.com/letsplay/gateway/internal/observability"
)

// Vault defaults.
const (
	DefaultVaultMount        = "secret"
	DefaultVaultTimeout      = 10 * time.Second
	DefaultVaultPollInterval = time.Minute
)

// VaultConfig configures the Vault KV v2 provider. Empty Address and Token
// fall back to VAULT_ADDR and VAULT_TOKEN.
type VaultConfig struct {
	Address      string        `yaml:"address,omitempty" json:"address,omitempty"`
	Token        string        `yaml:"token,omitempty" json:"token,omitempty"`
	Namespace    string        `yaml:"namespace,omitempty" json:"namespace,omitempty"`
	Mount        string        `yaml:"mount,omitempty" json:"mount,omitempty"`
	Timeout      time.Duration `yaml:"timeout,omitempty" json:"timeout,omitempty"`
	PollInterval time.Duration `yaml:"pollInterval,omitempty" json:"pollInterval,omitempty"`
	CACert       string        `yaml:"caCert,omitempty" json:"caCert,omitempty"`
	SkipVerify   bool          `yaml:"skipVerify,omitempty" json:"skipVerify,omitempty"`
}

// VaultProvider reads secrets from a Vault KV v2 mount.
type VaultProvider struct {
	client       *vaultapi.Client
	kv           *vaultapi.KVv2
	pollInterval time.Duration
	logger       observability.Logger
}

// NewVaultProvider creates a VaultProvider.
func NewVaultProvider(cfg VaultConfig, logger observability.Logger) (*VaultProvider, error) {
	if logger == nil {
		logger = observability.NopLogger()
	}

	vcfg := vaultapi.DefaultConfig()
	if vcfg.Error != nil {
		return nil, fmt.Errorf("%w: %w", ErrProviderNotConfigured, vcfg.Error)
	}
	if cfg.Address != "" {
		vcfg.Address = cfg.Address
	}
	vcfg.Timeout = DefaultVaultTimeout
	if cfg.Timeout > 0 {
		vcfg.Timeout = cfg.Timeout
	}
	if cfg.CACert != "" || cfg.SkipVerify {
		if err := vcfg.ConfigureTLS(&vaultapi.TLSConfig{
			CACert:   cfg.CACert,
			Insecure: cfg.SkipVerify,
		}); err != nil {
			return nil, fmt.Errorf("%w: configuring TLS: %w", ErrProviderNotConfigured, err)
		}
	}

	client, err := vaultapi.NewClient(vcfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrProviderNotConfigured, err)
	}
	if cfg.Token != "" {
		client.SetToken(cfg.Token)
	}
	if client.Token() == "" {
		return nil, fmt.Errorf("%w: vault token is required", ErrProviderNotConfigured)
	}
	if cfg.Namespace != "" {
		client.SetNamespace(cfg.Namespace)
	}

	mount := cfg.Mount
	if mount == "" {
		mount = DefaultVaultMount
	}
	poll := cfg.PollInterval
	if poll <= 0 {
		poll = DefaultVaultPollInterval
	}

	logger.Info("vault secrets provider configured",
		observability.String("address", client.Address()),
		observability.String("mount", mount),
	)

	return &VaultProvider{
		client:       client,
		kv:           client.KVv2(mount),
		pollInterval: poll,
		logger:       logger,
	}, nil
}

// Type returns ProviderTypeVault.
func (p *VaultProvider) Type() ProviderType {
	return ProviderTypeVault
}

// GetSecret reads the latest version of the secret at path.
func (p *VaultProvider) GetSecret(ctx context.Context, path string) (*Secret, error) {
	path = strings.Trim(path, "/")
	if path == "" {
		return nil, ErrInvalidPath
	}

	kvs, err := p.kv.Get(ctx, path)
	if err != nil {
		if errors.Is(err, vaultapi.ErrSecretNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrSecretNotFound, path)
		}
		return nil, fmt.Errorf("reading vault secret %s: %w", path, err)
	}

	data := make(map[string][]byte, len(kvs.Data))
	for k, v := range kvs.Data {
		if s, ok := v.(string); ok {
			data[k] = []byte(s)
			continue
		}
		data[k] = []byte(fmt.Sprint(v))
	}

	s := &Secret{Name: path, Data: data}
	if kvs.VersionMetadata != nil {
		s.Version = strconv.Itoa(kvs.VersionMetadata.Version)
	}

	p.logger.Debug("secret read from vault",
		observability.String("path", path),
		observability.String("version", s.Version),
	)
	return s, nil
}

// Watch polls path and calls onChange when a new version appears.
func (p *VaultProvider) Watch(ctx context.Context, path string, onChange func(*Secret)) error {
	current, err := p.GetSecret(ctx, path)
	if err != nil {
		return err
	}

	go func() {
		ticker := time.NewTicker(p.pollInterval)
		defer ticker.Stop()
		version := current.Version

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s, err := p.GetSecret(ctx, path)
				if err != nil {
					p.logger.Warn("vault secret poll failed",
						observability.String("path", path),
						observability.Error(err),
					)
					continue
				}
				if s.Version == version {
					continue
				}
				version = s.Version
				p.logger.Info("vault secret changed",
					observability.String("path", path),
					observability.String("version", version),
				)
				onChange(s)
			}
		}
	}()

	return nil
}

// Close clears the client token.
func (p *VaultProvider) Close() error {
	p.client.ClearToken()
	return nil
}
