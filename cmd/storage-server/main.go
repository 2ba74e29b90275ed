package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/ruteri/storage-router/api/storagehandler"
	"github.com/ruteri/storage-router/cmd/flags"
	"github.com/ruteri/storage-router/config"
	"github.com/ruteri/storage-router/httpserver"
	"github.com/ruteri/storage-router/storage"
	"github.com/urfave/cli/v2"
)

var flagServeDataDir = &cli.BoolFlag{
	Name:  "serve-data-dir",
	Value: false,
	Usage: "serve --data-dir under --public-base when the fallback file pool is active",
}

func main() {
	app := &cli.App{
		Name:  "storage-server",
		Usage: "Route uploads across storage pools and serve the storage admin API",
		Flags: append(append([]cli.Flag{
			flags.ListenAddrFlag,
			flags.HealthScheduleFlag,
			flags.HealthTimeoutFlag,
			flags.MaxUploadSizeFlag,
			flagServeDataDir,
		}, flags.PoolSourceFlags...), flags.CommonFlags...),
		Action: func(cCtx *cli.Context) error {
			logger := flags.SetupLogger(cCtx)
			ctx := cCtx.Context

			loader, err := flags.ConfigureLoader(cCtx, logger)
			if err != nil {
				logger.Error("Invalid pool source flags", "err", err)
				return err
			}

			pools, origin, err := loader.Load(ctx)
			if err != nil {
				logger.Error("Failed to load storage configuration", "source", origin, "err", err)
				return err
			}

			registry := storage.NewRegistry(storage.NewDriverFactory(logger), logger)
			if err := registry.RegisterPools(pools); err != nil {
				logger.Error("Failed to register storage pools", "err", err)
				return err
			}

			var monitor *storage.HealthMonitor
			if schedule := cCtx.String(flags.HealthScheduleFlag.Name); schedule != "" {
				monitor, err = storage.NewHealthMonitor(registry, schedule, cCtx.Duration(flags.HealthTimeoutFlag.Name), logger)
				if err != nil {
					logger.Error("Invalid health schedule", "err", err)
					return err
				}
				monitor.RunOnce(ctx)
				monitor.Start()
			}

			cfg := flags.ConfigureServer(cCtx, logger, cCtx.String(flags.ListenAddrFlag.Name))
			handlers := []httpserver.RouteRegistrar{
				storagehandler.NewHandler(registry, cfg.MaxUploadSize, logger),
			}
			if cCtx.Bool(flagServeDataDir.Name) && origin == "defaults" {
				handlers = append(handlers, dataDirHandler{
					prefix: strings.TrimSuffix(cCtx.String(flags.PublicBaseFlag.Name), "/"),
					dir:    cCtx.String(flags.DataDirFlag.Name),
				})
			}

			server, err := httpserver.New(cfg, handlers...)
			if err != nil {
				logger.Error("Failed to create server", "err", err)
				return err
			}
			server.RunInBackground()

			signals := make(chan os.Signal, 1)
			signal.Notify(signals, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)

			logger.Info("Server is running, press Ctrl+C to stop", "pools", registry.ListPools())
			for sig := range signals {
				if sig == syscall.SIGHUP {
					reload(ctx, loader, registry, logger)
					continue
				}
				logger.Info("Shutdown signal received", "signal", sig.String())
				break
			}

			if monitor != nil {
				monitor.Stop(context.Background())
			}
			server.Shutdown()
			logger.Info("Server shutdown complete")
			return nil
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

// reload swaps in a freshly loaded pool table. On any error the running table stays active.
func reload(ctx context.Context, loader *config.Loader, registry *storage.Registry, logger *slog.Logger) {
	pools, origin, err := loader.Load(ctx)
	if err != nil {
		logger.Error("Reload failed, keeping current pools", "source", origin, "err", err)
		return
	}
	if err := registry.RegisterPools(pools); err != nil {
		logger.Error("Reload failed, keeping current pools", "source", origin, "err", err)
		return
	}
	logger.Info("Storage pools reloaded", "source", origin, "pools", registry.ListPools())
}

// dataDirHandler serves the fallback file pool's directory at its public base.
type dataDirHandler struct {
	prefix string
	dir    string
}

func (h dataDirHandler) RegisterRoutes(r chi.Router) {
	if !strings.HasPrefix(h.prefix, "/") {
		return
	}
	r.Handle(h.prefix+"/*", http.StripPrefix(h.prefix, http.FileServer(http.Dir(h.dir))))
}
