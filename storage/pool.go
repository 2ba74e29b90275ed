package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/ruteri/storage-router/interfaces"
	"github.com/ruteri/storage-router/metrics"
	"go.uber.org/atomic"
	"golang.org/x/sync/errgroup"
)

// provider is one instantiated backend of a pool together with its health state.
type provider struct {
	cfg    interfaces.StorageProviderConfig
	driver interfaces.Driver

	healthy    atomic.Bool
	errorCount atomic.Int32
	message    atomic.String
}

// Pool routes operations over an ordered set of providers, selecting one per
// operation by strategy and failing over to the others on error.
//
// A provider is demoted to unhealthy after DefaultErrorThreshold consecutive
// failures. A later success only resets its error counter; HealthCheck is the
// only way back to healthy. When no provider is healthy, all of them are
// candidates again.
type Pool struct {
	cfg       interfaces.StoragePoolConfig
	providers []*provider
	cursor    atomic.Uint64
	threshold int32
	log       *slog.Logger
}

// NewPool instantiates the drivers of cfg through factory.
func NewPool(cfg interfaces.StoragePoolConfig, factory interfaces.DriverFactory, log *slog.Logger) (*Pool, error) {
	if log == nil {
		log = slog.Default()
	}
	if cfg.Name == "" {
		return nil, fmt.Errorf("%w: pool without a name", interfaces.ErrConfiguration)
	}
	if len(cfg.Providers) == 0 {
		return nil, fmt.Errorf("pool %q: %w", cfg.Name, interfaces.ErrNoProviders)
	}
	if cfg.Visibility == "" {
		cfg.Visibility = interfaces.VisibilityPublic
	}
	switch cfg.Strategy {
	case "":
		cfg.Strategy = interfaces.StrategyRoundRobin
	case interfaces.StrategyRoundRobin, interfaces.StrategyWeighted:
	default:
		return nil, fmt.Errorf("%w: pool %q has unknown strategy %q", interfaces.ErrConfiguration, cfg.Name, cfg.Strategy)
	}

	p := &Pool{
		cfg:       cfg,
		threshold: interfaces.DefaultErrorThreshold,
		log:       log.With(slog.String("pool", cfg.Name)),
	}

	seen := make(map[string]bool, len(cfg.Providers))
	for _, pc := range cfg.Providers {
		if pc.ID == "" {
			return nil, fmt.Errorf("%w: pool %q has a provider without id", interfaces.ErrConfiguration, cfg.Name)
		}
		if seen[pc.ID] {
			return nil, fmt.Errorf("%w: pool %q has duplicate provider id %q", interfaces.ErrConfiguration, cfg.Name, pc.ID)
		}
		seen[pc.ID] = true

		driver, err := factory.DriverFor(pc)
		if err != nil {
			return nil, fmt.Errorf("pool %q provider %q: %w", cfg.Name, pc.ID, err)
		}

		pr := &provider{cfg: pc, driver: driver}
		pr.healthy.Store(true)
		p.providers = append(p.providers, pr)
		metrics.SetProviderState(cfg.Name, pc.ID, true, 0)
	}

	return p, nil
}

// Name returns the pool name.
func (p *Pool) Name() string {
	return p.cfg.Name
}

// Config returns the normalized pool configuration.
func (p *Pool) Config() interfaces.StoragePoolConfig {
	return p.cfg
}

// pickProvider returns the index of the provider to use next.
func (p *Pool) pickProvider() int {
	candidates := make([]int, 0, len(p.providers))
	for i, pr := range p.providers {
		if pr.healthy.Load() {
			candidates = append(candidates, i)
		}
	}
	if len(candidates) == 0 {
		for i := range p.providers {
			candidates = append(candidates, i)
		}
	}

	if p.cfg.Strategy == interfaces.StrategyWeighted {
		var flat []int
		for _, i := range candidates {
			for w := 0; w < p.providers[i].cfg.EffectiveWeight(); w++ {
				flat = append(flat, i)
			}
		}
		return flat[rand.IntN(len(flat))]
	}

	n := p.cursor.Inc() - 1
	return candidates[n%uint64(len(candidates))]
}

// failover runs attempt on providers picked by strategy until one succeeds.
// Every provider is tried at most once. Providers rejected by capable, and
// attempts failing with ErrUnsupported, are capability misses that do not
// count against provider health.
func (p *Pool) failover(op string, capable func(*provider) bool, attempt func(*provider) error) (*provider, error) {
	start := time.Now()
	tried := make([]bool, len(p.providers))
	var lastErr, lastUnsupported error
	failures := 0

	for range p.providers {
		idx := p.pickProvider()
		if tried[idx] {
			for j := range tried {
				if !tried[j] {
					idx = j
					break
				}
			}
		}
		tried[idx] = true
		pr := p.providers[idx]

		if capable != nil && !capable(pr) {
			continue
		}

		err := attempt(pr)
		if err == nil {
			p.recordSuccess(op, pr)
			if failures > 0 {
				metrics.Failovers.WithLabelValues(p.cfg.Name, op).Inc()
			}
			metrics.OperationDuration.WithLabelValues(p.cfg.Name, op, metrics.ResultSuccess).Observe(time.Since(start).Seconds())
			return pr, nil
		}

		if errors.Is(err, interfaces.ErrUnsupported) {
			metrics.ProviderOperations.WithLabelValues(p.cfg.Name, pr.cfg.ID, op, metrics.ResultUnsupported).Inc()
			p.log.Debug("Provider does not support operation",
				slog.String("provider", pr.cfg.ID),
				slog.String("operation", op),
				"err", err)
			lastUnsupported = err
			continue
		}

		failures++
		lastErr = err
		p.recordFailure(op, pr, err)
	}

	if lastErr == nil {
		metrics.OperationDuration.WithLabelValues(p.cfg.Name, op, metrics.ResultUnsupported).Observe(time.Since(start).Seconds())
		if lastUnsupported != nil {
			return nil, fmt.Errorf("pool %q: %w", p.cfg.Name, lastUnsupported)
		}
		return nil, fmt.Errorf("%w: %s in pool %q", interfaces.ErrUnsupported, op, p.cfg.Name)
	}

	metrics.OperationDuration.WithLabelValues(p.cfg.Name, op, metrics.ResultError).Observe(time.Since(start).Seconds())
	p.log.Error("All providers failed",
		slog.String("operation", op),
		slog.Int("failed_providers", failures),
		slog.Duration("duration", time.Since(start)),
		"err", lastErr)
	return nil, fmt.Errorf("%w: %s in pool %q: %w", interfaces.ErrAllProvidersFailed, op, p.cfg.Name, lastErr)
}

func (p *Pool) recordSuccess(op string, pr *provider) {
	pr.errorCount.Store(0)
	pr.message.Store("")
	metrics.ProviderOperations.WithLabelValues(p.cfg.Name, pr.cfg.ID, op, metrics.ResultSuccess).Inc()
	metrics.SetProviderState(p.cfg.Name, pr.cfg.ID, pr.healthy.Load(), 0)
}

func (p *Pool) recordFailure(op string, pr *provider, err error) {
	count := pr.errorCount.Inc()
	pr.message.Store(err.Error())
	metrics.ProviderOperations.WithLabelValues(p.cfg.Name, pr.cfg.ID, op, metrics.ResultError).Inc()

	p.log.Warn("Provider operation failed",
		slog.String("provider", pr.cfg.ID),
		slog.String("operation", op),
		slog.Int("error_count", int(count)),
		"err", err)

	if count >= p.threshold && pr.healthy.CompareAndSwap(true, false) {
		p.log.Warn("Provider marked unhealthy",
			slog.String("provider", pr.cfg.ID),
			slog.Int("error_count", int(count)))
	}
	metrics.SetProviderState(p.cfg.Name, pr.cfg.ID, pr.healthy.Load(), int(count))
}

// Put stores data on the first provider that accepts it.
func (p *Pool) Put(ctx context.Context, key string, data []byte, contentType string) (*interfaces.PutResult, error) {
	var result *interfaces.PutResult
	pr, err := p.failover("put", nil, func(pr *provider) error {
		res, err := pr.driver.Put(ctx, key, data, contentType)
		if err != nil {
			return err
		}
		result = res
		return nil
	})
	if err != nil {
		return nil, err
	}

	if result == nil {
		result = &interfaces.PutResult{}
	}
	if result.Key == "" {
		result.Key = key
	}
	result.ProviderID = pr.cfg.ID

	p.log.Debug("Stored object",
		slog.String("provider", pr.cfg.ID),
		slog.String("key", result.Key),
		slog.Int("size", len(data)))
	return result, nil
}

// Presign returns direct upload instructions from the first capable provider.
func (p *Pool) Presign(ctx context.Context, key string, opts interfaces.PresignOptions) (*interfaces.PresignResult, error) {
	if opts.ExpiresIn <= 0 {
		opts.ExpiresIn = interfaces.DefaultPresignExpiry
	}

	var result *interfaces.PresignResult
	pr, err := p.failover("presign", func(pr *provider) bool {
		_, ok := pr.driver.(interfaces.Presigner)
		return ok
	}, func(pr *provider) error {
		res, err := pr.driver.(interfaces.Presigner).Presign(ctx, key, opts)
		if err != nil {
			return err
		}
		result = res
		return nil
	})
	if err != nil {
		return nil, err
	}

	if result.Key == "" {
		result.Key = key
	}
	result.ProviderID = pr.cfg.ID
	return result, nil
}

// PublicURL returns the first public URL in provider order. It performs no I/O.
func (p *Pool) PublicURL(key string) (string, bool) {
	for _, pr := range p.providers {
		resolver, ok := pr.driver.(interfaces.PublicURLResolver)
		if !ok {
			continue
		}
		if u, ok := resolver.PublicURL(key); ok && u != "" {
			return u, true
		}
	}
	return "", false
}

// SignedURL returns the first signed URL in provider order, falling back to
// the public URL when no provider can sign.
func (p *Pool) SignedURL(ctx context.Context, key string, expiresIn time.Duration) (string, error) {
	if expiresIn <= 0 {
		expiresIn = interfaces.DefaultPresignExpiry
	}

	var lastErr error
	for _, pr := range p.providers {
		signer, ok := pr.driver.(interfaces.SignedURLResolver)
		if !ok {
			continue
		}
		u, err := signer.SignedURL(ctx, key, expiresIn)
		if err == nil && u != "" {
			return u, nil
		}
		if err != nil {
			lastErr = err
			p.log.Debug("Provider could not sign url",
				slog.String("provider", pr.cfg.ID),
				slog.String("key", key),
				"err", err)
		}
	}

	if u, ok := p.PublicURL(key); ok {
		return u, nil
	}
	if lastErr != nil {
		return "", fmt.Errorf("%w: %q in pool %q: %w", interfaces.ErrNoURL, key, p.cfg.Name, lastErr)
	}
	return "", fmt.Errorf("%w: %q in pool %q", interfaces.ErrNoURL, key, p.cfg.Name)
}

// Delete removes key from every provider, since a write may have landed on
// any of them. It reports whether all providers acknowledged the delete;
// failures are logged, never returned.
func (p *Pool) Delete(ctx context.Context, key string) bool {
	ok := true
	for _, pr := range p.providers {
		if err := pr.driver.Delete(ctx, key); err != nil {
			ok = false
			metrics.ProviderOperations.WithLabelValues(p.cfg.Name, pr.cfg.ID, "delete", metrics.ResultError).Inc()
			p.log.Warn("Failed to delete object",
				slog.String("provider", pr.cfg.ID),
				slog.String("key", key),
				"err", err)
			continue
		}
		metrics.ProviderOperations.WithLabelValues(p.cfg.Name, pr.cfg.ID, "delete", metrics.ResultSuccess).Inc()
	}
	return ok
}

// HealthCheck probes all providers concurrently and updates their health
// flags from the result. A passing probe also resets the error counter.
func (p *Pool) HealthCheck(ctx context.Context) []interfaces.ProviderInfo {
	g, ctx := errgroup.WithContext(ctx)
	for _, pr := range p.providers {
		g.Go(func() error {
			status := probe(ctx, pr.driver)
			if status.OK {
				pr.errorCount.Store(0)
				pr.healthy.Store(true)
			} else {
				pr.healthy.Store(false)
				p.log.Warn("Provider health check failed",
					slog.String("provider", pr.cfg.ID),
					slog.String("message", status.Message))
			}
			pr.message.Store(status.Message)
			metrics.SetProviderState(p.cfg.Name, pr.cfg.ID, pr.healthy.Load(), int(pr.errorCount.Load()))
			return nil
		})
	}
	_ = g.Wait()

	return p.Info().Providers
}

// probe runs a driver health check, converting a panic into a failing status.
func probe(ctx context.Context, d interfaces.Driver) (status interfaces.HealthStatus) {
	defer func() {
		if r := recover(); r != nil {
			status = interfaces.HealthStatus{OK: false, Message: fmt.Sprintf("health probe panicked: %v", r)}
		}
	}()
	return d.Health(ctx)
}

// Info returns a snapshot of the pool for operational tooling.
func (p *Pool) Info() interfaces.PoolInfo {
	info := interfaces.PoolInfo{
		Name:       p.cfg.Name,
		Visibility: p.cfg.Visibility,
		Strategy:   p.cfg.Strategy,
		Providers:  make([]interfaces.ProviderInfo, 0, len(p.providers)),
	}
	for _, pr := range p.providers {
		info.Providers = append(info.Providers, interfaces.ProviderInfo{
			ID:         pr.cfg.ID,
			Type:       pr.cfg.Type,
			URL:        RedactURL(pr.cfg.URL),
			Weight:     pr.cfg.EffectiveWeight(),
			Healthy:    pr.healthy.Load(),
			ErrorCount: int(pr.errorCount.Load()),
			Message:    pr.message.Load(),
		})
	}
	return info
}
