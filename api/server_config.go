package api

import (
	"log/slog"
	"time"
)

// HTTPServerConfig contains all configuration parameters for the HTTP server.
type HTTPServerConfig struct {
	// ListenAddr is the address and port the HTTP server will listen on.
	ListenAddr string

	// MetricsAddr is the address of the Prometheus listener.
	// If empty, metrics server will not be started.
	MetricsAddr string

	// EnablePprof mounts the pprof handlers under /debug.
	EnablePprof bool

	Log *slog.Logger

	// DrainDuration is the time to wait after marking server not ready
	// before shutting down, allowing load balancers to detect the change.
	DrainDuration time.Duration

	// GracefulShutdownDuration bounds in-flight requests during shutdown.
	GracefulShutdownDuration time.Duration

	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// MaxUploadSize caps request bodies of object uploads. Zero means
	// DefaultMaxUploadSize.
	MaxUploadSize int64
}

// DefaultMaxUploadSize applies when neither the server nor the pool sets a limit.
const DefaultMaxUploadSize int64 = 32 << 20

// UploadLimit returns the effective upload cap.
func (c *HTTPServerConfig) UploadLimit() int64 {
	if c == nil || c.MaxUploadSize <= 0 {
		return DefaultMaxUploadSize
	}
	return c.MaxUploadSize
}
