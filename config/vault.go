package config

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/hashicorp/vault/api"
	"github.com/ruteri/storage-router/interfaces"
)

// DefaultVaultField is the secret field holding the pool list.
const DefaultVaultField = "pools"

// VaultOptions locates a pool document in a Vault KV v2 secret.
type VaultOptions struct {
	Address string
	Token   string
	// Mount is the KV v2 mount path, e.g. "secret".
	Mount string
	// Path is the secret path below the mount, e.g. "storage-router".
	Path string
	// Field defaults to "pools". It may hold a list of pools or a YAML/JSON document string.
	Field string
}

// VaultSource reads pool configuration from Vault.
type VaultSource struct {
	client *api.Client
	mount  string
	path   string
	field  string
	log    *slog.Logger
}

// NewVaultSource creates a Vault-backed source.
func NewVaultSource(opts VaultOptions, log *slog.Logger) (*VaultSource, error) {
	if opts.Mount == "" || opts.Path == "" {
		return nil, fmt.Errorf("%w: vault source needs mount and path", interfaces.ErrConfiguration)
	}
	if log == nil {
		log = slog.Default()
	}
	if opts.Field == "" {
		opts.Field = DefaultVaultField
	}

	config := api.DefaultConfig()
	if opts.Address != "" {
		config.Address = opts.Address
	}
	config.Timeout = 30 * time.Second
	config.HttpClient.Timeout = config.Timeout

	client, err := api.NewClient(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create Vault client: %w", err)
	}
	if opts.Token != "" {
		client.SetToken(opts.Token)
	}

	return &VaultSource{
		client: client,
		mount:  strings.Trim(opts.Mount, "/"),
		path:   strings.Trim(opts.Path, "/"),
		field:  opts.Field,
		log:    log,
	}, nil
}

func (s *VaultSource) Name() string {
	return fmt.Sprintf("vault:%s/%s", s.mount, s.path)
}

// Load reads the secret. A missing secret or field yields no pools.
func (s *VaultSource) Load(ctx context.Context) ([]interfaces.StoragePoolConfig, error) {
	path := fmt.Sprintf("%s/data/%s", s.mount, s.path)

	secret, err := s.client.Logical().ReadWithContext(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read pools from Vault at %s: %w", path, err)
	}
	if secret == nil || secret.Data == nil {
		s.log.Debug("Pool secret not found in Vault", slog.String("path", path))
		return nil, nil
	}

	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("%w: invalid KV v2 response at %s", interfaces.ErrConfiguration, path)
	}

	raw, ok := data[s.field]
	if !ok || raw == nil {
		s.log.Debug("Pool field not present in Vault secret",
			slog.String("path", path),
			slog.String("field", s.field))
		return nil, nil
	}

	if doc, ok := raw.(string); ok {
		return Parse([]byte(doc), FormatYAML)
	}

	var pools []interfaces.StoragePoolConfig
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &pools,
		WeaklyTypedInput: true,
		TagName:          "mapstructure",
	})
	if err != nil {
		return nil, err
	}
	if err := decoder.Decode(raw); err != nil {
		return nil, fmt.Errorf("%w: invalid pools in Vault secret %s: %v", interfaces.ErrConfiguration, path, err)
	}
	return pools, nil
}
