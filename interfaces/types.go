package interfaces

import (
	"errors"
	"fmt"
	"mime"
	"strings"
)

// ProviderType names a backend driver family.
type ProviderType string

const (
	ProviderFile  ProviderType = "file"
	ProviderREST  ProviderType = "rest"
	ProviderS3    ProviderType = "s3"
	ProviderMinio ProviderType = "minio"
	ProviderIPFS  ProviderType = "ipfs"
)

// Valid reports whether a driver exists for the type.
func (t ProviderType) Valid() bool {
	switch t {
	case ProviderFile, ProviderREST, ProviderS3, ProviderMinio, ProviderIPFS:
		return true
	default:
		return false
	}
}

// Visibility tells callers whether objects of a pool may be served by direct URL.
type Visibility string

const (
	VisibilityPublic  Visibility = "public"
	VisibilityPrivate Visibility = "private"
)

// Strategy selects a provider for each operation.
type Strategy string

const (
	StrategyRoundRobin Strategy = "round-robin"
	StrategyWeighted   Strategy = "weighted"
)

// DefaultErrorThreshold is the number of consecutive failures that demotes a provider.
const DefaultErrorThreshold = 3

// StorageProviderConfig describes one physical backend inside a pool.
type StorageProviderConfig struct {
	// ID is unique within the owning pool.
	ID   string       `json:"id" yaml:"id" toml:"id" mapstructure:"id"`
	Type ProviderType `json:"type" yaml:"type" toml:"type" mapstructure:"type"`
	// URL is the backend address or base directory; its format depends on Type.
	URL string `json:"url" yaml:"url" toml:"url" mapstructure:"url"`
	// Weight is the relative selection frequency for the weighted strategy (default 1).
	Weight  int               `json:"weight,omitempty" yaml:"weight,omitempty" toml:"weight,omitempty" mapstructure:"weight"`
	Headers map[string]string `json:"headers,omitempty" yaml:"headers,omitempty" toml:"headers,omitempty" mapstructure:"headers"`
	// Options holds driver-specific settings.
	Options map[string]string `json:"options,omitempty" yaml:"options,omitempty" toml:"options,omitempty" mapstructure:"options"`
}

// EffectiveWeight returns the configured weight, defaulting to 1.
func (c StorageProviderConfig) EffectiveWeight() int {
	if c.Weight <= 0 {
		return 1
	}
	return c.Weight
}

// Option returns a driver option or def when unset.
func (c StorageProviderConfig) Option(name, def string) string {
	if v, ok := c.Options[name]; ok && v != "" {
		return v
	}
	return def
}

// StoragePoolConfig is a named group of providers sharing a selection strategy.
type StoragePoolConfig struct {
	Name       string     `json:"name" yaml:"name" toml:"name" mapstructure:"name"`
	Visibility Visibility `json:"visibility,omitempty" yaml:"visibility,omitempty" toml:"visibility,omitempty" mapstructure:"visibility"`
	Strategy   Strategy   `json:"strategy,omitempty" yaml:"strategy,omitempty" toml:"strategy,omitempty" mapstructure:"strategy"`

	// MaxSize and AllowedMimeTypes are advisory; callers enforce them via Allows.
	MaxSize          int64    `json:"maxSize,omitempty" yaml:"maxSize,omitempty" toml:"maxSize,omitempty" mapstructure:"maxSize"`
	AllowedMimeTypes []string `json:"allowedMimeTypes,omitempty" yaml:"allowedMimeTypes,omitempty" toml:"allowedMimeTypes,omitempty" mapstructure:"allowedMimeTypes"`

	Providers []StorageProviderConfig `json:"providers" yaml:"providers" toml:"providers" mapstructure:"providers"`
}

var (
	// ErrPayloadTooLarge is returned by Allows when size exceeds MaxSize.
	ErrPayloadTooLarge = errors.New("payload exceeds pool size limit")
	// ErrContentTypeNotAllowed is returned by Allows for a MIME type outside AllowedMimeTypes.
	ErrContentTypeNotAllowed = errors.New("content type not allowed in pool")
)

// Allows checks a payload against the pool's advisory constraints.
func (c StoragePoolConfig) Allows(contentType string, size int64) error {
	if c.MaxSize > 0 && size > c.MaxSize {
		return fmt.Errorf("%w: %d > %d bytes", ErrPayloadTooLarge, size, c.MaxSize)
	}
	if len(c.AllowedMimeTypes) == 0 {
		return nil
	}

	mediaType := strings.ToLower(strings.TrimSpace(contentType))
	if parsed, _, err := mime.ParseMediaType(contentType); err == nil {
		mediaType = parsed
	}
	for _, allowed := range c.AllowedMimeTypes {
		allowed = strings.ToLower(strings.TrimSpace(allowed))
		if allowed == "*/*" || allowed == mediaType {
			return nil
		}
		if prefix, ok := strings.CutSuffix(allowed, "/*"); ok && strings.HasPrefix(mediaType, prefix+"/") {
			return nil
		}
	}
	return fmt.Errorf("%w: %q", ErrContentTypeNotAllowed, contentType)
}

// ProviderInfo is a read-only snapshot of a provider's configuration and health.
type ProviderInfo struct {
	ID         string       `json:"id"`
	Type       ProviderType `json:"type"`
	URL        string       `json:"url"`
	Weight     int          `json:"weight"`
	Healthy    bool         `json:"healthy"`
	ErrorCount int          `json:"errorCount"`
	Message    string       `json:"message,omitempty"`
}

// PoolInfo is a read-only snapshot of a pool for operational tooling.
type PoolInfo struct {
	Name       string         `json:"name"`
	Visibility Visibility     `json:"visibility"`
	Strategy   Strategy       `json:"strategy"`
	Providers  []ProviderInfo `json:"providers"`
}
