// Package metrics holds the Prometheus collectors of the storage router and
// the HTTP server that exposes them.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/ruteri/storage-router/common"
)

// Result label values.
const (
	ResultSuccess     = "success"
	ResultError       = "error"
	ResultUnsupported = "unsupported"
)

var (
	// ProviderOperations counts driver calls per provider.
	ProviderOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: common.PackageName,
		Subsystem: "pool",
		Name:      "provider_operations_total",
		Help:      "Driver operations executed by pool providers.",
	}, []string{"pool", "provider", "operation", "result"})

	// OperationDuration observes whole pool operations including failover.
	OperationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: common.PackageName,
		Subsystem: "pool",
		Name:      "operation_duration_seconds",
		Help:      "Duration of pool operations including failover attempts.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"pool", "operation", "result"})

	// ProviderHealthy is 1 while a provider is considered healthy.
	ProviderHealthy = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: common.PackageName,
		Subsystem: "pool",
		Name:      "provider_healthy",
		Help:      "1 if the provider is marked healthy, 0 otherwise.",
	}, []string{"pool", "provider"})

	// ProviderErrors tracks the consecutive error counter of a provider.
	ProviderErrors = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: common.PackageName,
		Subsystem: "pool",
		Name:      "provider_consecutive_errors",
		Help:      "Consecutive failed operations of the provider.",
	}, []string{"pool", "provider"})

	// Failovers counts operations that needed more than one provider.
	Failovers = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: common.PackageName,
		Subsystem: "pool",
		Name:      "failovers_total",
		Help:      "Operations retried on another provider after a failure.",
	}, []string{"pool", "operation"})

	buildInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: common.PackageName,
		Name:      "build_info",
		Help:      "Build information.",
	}, []string{"version"})
)

// SetProviderState publishes the health flag and error counter of a provider.
func SetProviderState(pool, provider string, healthy bool, errorCount int) {
	v := 0.0
	if healthy {
		v = 1
	}
	ProviderHealthy.WithLabelValues(pool, provider).Set(v)
	ProviderErrors.WithLabelValues(pool, provider).Set(float64(errorCount))
}

// ForgetPool drops per-provider series of a pool that is no longer registered.
func ForgetPool(pool string) {
	labels := prometheus.Labels{"pool": pool}
	ProviderHealthy.DeletePartialMatch(labels)
	ProviderErrors.DeletePartialMatch(labels)
	ProviderOperations.DeletePartialMatch(labels)
}

// MetricsServer serves /metrics on its own listener.
type MetricsServer struct {
	srv *http.Server
}

// New creates a metrics server listening on listenAddr.
func New(listenAddr string) (*MetricsServer, error) {
	buildInfo.WithLabelValues(common.Version).Set(1)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	return &MetricsServer{
		srv: &http.Server{
			Addr:              listenAddr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}, nil
}

func (m *MetricsServer) ListenAndServe() error {
	return m.srv.ListenAndServe()
}

func (m *MetricsServer) Shutdown(ctx context.Context) error {
	return m.srv.Shutdown(ctx)
}
