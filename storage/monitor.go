package storage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultHealthSchedule runs a registry health check every 30 seconds.
const DefaultHealthSchedule = "@every 30s"

// HealthMonitor periodically runs the registry health check. It is the
// scheduled path by which demoted providers become healthy again.
type HealthMonitor struct {
	registry *Registry
	cron     *cron.Cron
	timeout  time.Duration
	log      *slog.Logger
}

// NewHealthMonitor schedules health checks of registry. Each run is bounded by timeout (0 = none).
func NewHealthMonitor(registry *Registry, schedule string, timeout time.Duration, log *slog.Logger) (*HealthMonitor, error) {
	if log == nil {
		log = slog.Default()
	}
	if schedule == "" {
		schedule = DefaultHealthSchedule
	}

	parser := cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	m := &HealthMonitor{
		registry: registry,
		cron:     cron.New(cron.WithParser(parser), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		timeout:  timeout,
		log:      log,
	}

	if _, err := m.cron.AddFunc(schedule, func() { m.RunOnce(context.Background()) }); err != nil {
		return nil, fmt.Errorf("invalid health check schedule %q: %w", schedule, err)
	}
	return m, nil
}

// Start begins running scheduled checks in the background.
func (m *HealthMonitor) Start() {
	m.cron.Start()
}

// Stop stops the scheduler and waits for a running check to finish or ctx to expire.
func (m *HealthMonitor) Stop(ctx context.Context) {
	select {
	case <-m.cron.Stop().Done():
	case <-ctx.Done():
	}
}

// RunOnce checks every pool now and logs the providers that are unhealthy.
func (m *HealthMonitor) RunOnce(ctx context.Context) {
	if m.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}

	start := time.Now()
	unhealthy := 0
	for _, pool := range m.registry.HealthCheck(ctx) {
		for _, p := range pool.Providers {
			if !p.Healthy {
				unhealthy++
				m.log.Debug("Provider unhealthy",
					slog.String("pool", pool.Name),
					slog.String("provider", p.ID),
					slog.String("message", p.Message))
			}
		}
	}

	m.log.Debug("Health check finished",
		slog.Int("unhealthy_providers", unhealthy),
		slog.Duration("duration", time.Since(start)))
}
