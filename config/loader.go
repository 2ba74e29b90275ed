package config

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ruteri/storage-router/interfaces"
)

// Source produces pool configurations. Returning no pools and no error
// means the source has nothing configured.
type Source interface {
	Name() string
	Load(ctx context.Context) ([]interfaces.StoragePoolConfig, error)
}

// FileSource loads a YAML, TOML or JSON file.
type FileSource struct {
	Path string
}

func (s FileSource) Name() string { return "file:" + s.Path }

func (s FileSource) Load(ctx context.Context) ([]interfaces.StoragePoolConfig, error) {
	return LoadFile(s.Path)
}

// EnvSource reads STORAGE_POOLS. A nil Lookup uses the process environment.
type EnvSource struct {
	Lookup func(string) (string, bool)
}

func (s EnvSource) Name() string { return "env:" + EnvPools }

func (s EnvSource) Load(ctx context.Context) ([]interfaces.StoragePoolConfig, error) {
	return FromEnv(s.Lookup)
}

// Loader resolves pool configuration from an ordered list of sources.
// The first source that yields pools wins; Defaults are used when none does.
type Loader struct {
	Sources  []Source
	Defaults []interfaces.StoragePoolConfig
	Log      *slog.Logger
}

// Load returns the normalized and validated pools together with the name of the source they came from.
func (l *Loader) Load(ctx context.Context) ([]interfaces.StoragePoolConfig, string, error) {
	log := l.Log
	if log == nil {
		log = slog.Default()
	}

	pools, origin := l.Defaults, "defaults"
	for _, src := range l.Sources {
		loaded, err := src.Load(ctx)
		if err != nil {
			return nil, src.Name(), fmt.Errorf("config source %s: %w", src.Name(), err)
		}
		if len(loaded) > 0 {
			pools, origin = loaded, src.Name()
			break
		}
		log.Debug("Config source has no pools", slog.String("source", src.Name()))
	}

	if len(pools) == 0 {
		return nil, origin, fmt.Errorf("%w: no storage pools configured", interfaces.ErrConfiguration)
	}

	pools = ApplyDefaults(pools)
	if err := Validate(pools); err != nil {
		return nil, origin, fmt.Errorf("config source %s: %w", origin, err)
	}

	log.Info("Loaded storage configuration",
		slog.String("source", origin),
		slog.Int("pools", len(pools)))
	return pools, origin, nil
}
