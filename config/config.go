// Package config resolves storage pool configuration from files, the
// environment, Vault or built-in defaults, and validates it before it is
// handed to the pool registry.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/ruteri/storage-router/interfaces"
	"github.com/ruteri/storage-router/storage"
	"gopkg.in/yaml.v3"
)

const (
	// EnvPools holds a YAML or JSON pool document.
	EnvPools = "STORAGE_POOLS"

	// DefaultPoolName is the pool created when no configuration is found.
	DefaultPoolName = "default"
	// DefaultDataDir is the base directory of the default file provider.
	DefaultDataDir = "data/uploads"
)

// Format names a serialization of a pool document.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
	FormatJSON Format = "json"
)

// Document is the serialized shape of a pool configuration.
type Document struct {
	Pools []interfaces.StoragePoolConfig `json:"pools" yaml:"pools" toml:"pools" mapstructure:"pools"`
}

// FormatFromPath picks the format from a file extension.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".toml":
		return FormatTOML, nil
	case ".json":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("%w: unknown config file extension %q", interfaces.ErrConfiguration, filepath.Ext(path))
	}
}

// LoadFile reads a pool document from path.
func LoadFile(path string) ([]interfaces.StoragePoolConfig, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	pools, err := Parse(data, format)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return pools, nil
}

// Parse decodes a pool document. YAML and JSON input may also be a bare list of pools.
func Parse(data []byte, format Format) ([]interfaces.StoragePoolConfig, error) {
	var doc Document
	switch format {
	case FormatYAML:
		if err := yaml.Unmarshal(data, &doc); err != nil {
			var list []interfaces.StoragePoolConfig
			if yaml.Unmarshal(data, &list) != nil {
				return nil, fmt.Errorf("%w: invalid YAML: %v", interfaces.ErrConfiguration, err)
			}
			return list, nil
		}
	case FormatJSON:
		if err := json.Unmarshal(data, &doc); err != nil {
			var list []interfaces.StoragePoolConfig
			if json.Unmarshal(data, &list) != nil {
				return nil, fmt.Errorf("%w: invalid JSON: %v", interfaces.ErrConfiguration, err)
			}
			return list, nil
		}
	case FormatTOML:
		if _, err := toml.Decode(string(data), &doc); err != nil {
			return nil, fmt.Errorf("%w: invalid TOML: %v", interfaces.ErrConfiguration, err)
		}
	default:
		return nil, fmt.Errorf("%w: unsupported format %q", interfaces.ErrConfiguration, format)
	}
	return doc.Pools, nil
}

// FromEnv reads pools from STORAGE_POOLS. It returns no pools when the variable is unset.
func FromEnv(lookup func(string) (string, bool)) ([]interfaces.StoragePoolConfig, error) {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	raw, ok := lookup(EnvPools)
	if !ok || strings.TrimSpace(raw) == "" {
		return nil, nil
	}

	// JSON is valid YAML, so one parser covers both.
	pools, err := Parse([]byte(raw), FormatYAML)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", EnvPools, err)
	}
	return pools, nil
}

// Defaults returns a single public pool backed by the local file system.
func Defaults(dataDir, publicBase string) []interfaces.StoragePoolConfig {
	if dataDir == "" {
		dataDir = DefaultDataDir
	}
	if publicBase == "" {
		publicBase = storage.DefaultFilePublicBase
	}

	return []interfaces.StoragePoolConfig{{
		Name:       DefaultPoolName,
		Visibility: interfaces.VisibilityPublic,
		Strategy:   interfaces.StrategyRoundRobin,
		Providers: []interfaces.StorageProviderConfig{{
			ID:      "local",
			Type:    interfaces.ProviderFile,
			URL:     dataDir,
			Weight:  1,
			Options: map[string]string{"publicBase": publicBase},
		}},
	}}
}

// ApplyDefaults fills in default visibility, strategy and weights. The input is not modified.
func ApplyDefaults(pools []interfaces.StoragePoolConfig) []interfaces.StoragePoolConfig {
	out := make([]interfaces.StoragePoolConfig, len(pools))
	for i, pool := range pools {
		if pool.Visibility == "" {
			pool.Visibility = interfaces.VisibilityPublic
		}
		if pool.Strategy == "" {
			pool.Strategy = interfaces.StrategyRoundRobin
		}

		providers := make([]interfaces.StorageProviderConfig, len(pool.Providers))
		for j, p := range pool.Providers {
			if p.Weight == 0 {
				p.Weight = 1
			}
			providers[j] = p
		}
		pool.Providers = providers
		out[i] = pool
	}
	return out
}

// Marshal encodes pools as a document in the given format.
func Marshal(pools []interfaces.StoragePoolConfig, format Format) ([]byte, error) {
	doc := Document{Pools: pools}
	switch format {
	case FormatYAML:
		return yaml.Marshal(doc)
	case FormatJSON:
		return json.MarshalIndent(doc, "", "  ")
	case FormatTOML:
		var sb strings.Builder
		if err := toml.NewEncoder(&sb).Encode(doc); err != nil {
			return nil, err
		}
		return []byte(sb.String()), nil
	default:
		return nil, errors.New("unsupported format " + string(format))
	}
}
