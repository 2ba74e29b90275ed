package storage

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/ruteri/storage-router/interfaces"
	"github.com/ruteri/storage-router/metrics"
	"golang.org/x/sync/errgroup"
)

// Registry maps pool names to pools. The table is replaced wholesale by
// RegisterPools and is safe for concurrent lookups.
type Registry struct {
	factory interfaces.DriverFactory
	log     *slog.Logger

	mu    sync.RWMutex
	pools map[string]*Pool
}

// NewRegistry creates an empty registry that builds drivers with factory.
func NewRegistry(factory interfaces.DriverFactory, log *slog.Logger) *Registry {
	if log == nil {
		log = slog.Default()
	}
	return &Registry{
		factory: factory,
		log:     log,
		pools:   make(map[string]*Pool),
	}
}

// RegisterPools replaces the pool table with one pool per config.
// On any configuration error the previous table stays in place.
func (r *Registry) RegisterPools(configs []interfaces.StoragePoolConfig) error {
	pools := make(map[string]*Pool, len(configs))
	for _, cfg := range configs {
		if _, exists := pools[cfg.Name]; exists {
			return fmt.Errorf("%w: %q", interfaces.ErrDuplicatePool, cfg.Name)
		}
		pool, err := NewPool(cfg, r.factory, r.log)
		if err != nil {
			return err
		}
		pools[cfg.Name] = pool
	}

	r.mu.Lock()
	previous := r.pools
	r.pools = pools
	r.mu.Unlock()

	for name := range previous {
		if _, ok := pools[name]; !ok {
			metrics.ForgetPool(name)
		}
	}

	r.log.Info("Registered storage pools",
		slog.Int("pools", len(pools)),
		slog.Any("names", sortedNames(pools)))
	return nil
}

// GetPool returns the named pool or an error wrapping ErrPoolNotFound.
func (r *Registry) GetPool(name string) (*Pool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	pool, ok := r.pools[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", interfaces.ErrPoolNotFound, name)
	}
	return pool, nil
}

// HasPool reports whether name is registered.
func (r *Registry) HasPool(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.pools[name]
	return ok
}

// ListPools returns the registered pool names in sorted order.
func (r *Registry) ListPools() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return sortedNames(r.pools)
}

// Infos returns a snapshot of every pool, sorted by name.
func (r *Registry) Infos() []interfaces.PoolInfo {
	pools := r.snapshot()
	infos := make([]interfaces.PoolInfo, 0, len(pools))
	for _, pool := range pools {
		infos = append(infos, pool.Info())
	}
	return infos
}

// HealthCheck runs the health check of every pool concurrently and returns the refreshed infos.
func (r *Registry) HealthCheck(ctx context.Context) []interfaces.PoolInfo {
	pools := r.snapshot()

	g, ctx := errgroup.WithContext(ctx)
	for _, pool := range pools {
		g.Go(func() error {
			pool.HealthCheck(ctx)
			return nil
		})
	}
	_ = g.Wait()

	infos := make([]interfaces.PoolInfo, 0, len(pools))
	for _, pool := range pools {
		infos = append(infos, pool.Info())
	}
	return infos
}

func (r *Registry) snapshot() []*Pool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	pools := make([]*Pool, 0, len(r.pools))
	for _, name := range sortedNames(r.pools) {
		pools = append(pools, r.pools[name])
	}
	return pools
}

func sortedNames(pools map[string]*Pool) []string {
	names := make([]string, 0, len(pools))
	for name := range pools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
