package flags

import (
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/ruteri/storage-router/api"
	"github.com/ruteri/storage-router/common"
	"github.com/ruteri/storage-router/config"
	"github.com/ruteri/storage-router/storage"
	"github.com/urfave/cli/v2"
)

func SetupLogger(cCtx *cli.Context) (log *slog.Logger) {
	logJSON := cCtx.Bool(LogJsonFlag.Name)
	logDebug := cCtx.Bool(LogDebugFlag.Name)
	logUID := cCtx.Bool(LogUidFlag.Name)
	logService := cCtx.String(LogServiceFlag.Name)

	logger := common.SetupLogger(&common.LoggingOpts{
		Debug:   logDebug,
		JSON:    logJSON,
		Service: logService,
		Version: common.Version,
	})

	if logUID {
		id := uuid.Must(uuid.NewRandom())
		logger = logger.With("uid", id.String())
	}
	return logger
}

func ConfigureServer(cCtx *cli.Context, logger *slog.Logger, listenAddr string) *api.HTTPServerConfig {
	metricsAddr := cCtx.String(MetricsAddrFlag.Name)
	enablePprof := cCtx.Bool(PprofFlag.Name)
	drainDuration := time.Duration(cCtx.Int64(DrainSecondsFlag.Name)) * time.Second

	return &api.HTTPServerConfig{
		ListenAddr:               listenAddr,
		MetricsAddr:              metricsAddr,
		Log:                      logger,
		EnablePprof:              enablePprof,
		DrainDuration:            drainDuration,
		GracefulShutdownDuration: 30 * time.Second,
		ReadTimeout:              60 * time.Second,
		WriteTimeout:             30 * time.Second,
		MaxUploadSize:            cCtx.Int64(MaxUploadSizeFlag.Name),
	}
}

// ConfigureLoader builds the pool configuration loader. Sources are tried in
// order: config file, STORAGE_POOLS, Vault. The local file pool is the fallback.
func ConfigureLoader(cCtx *cli.Context, logger *slog.Logger) (*config.Loader, error) {
	loader := &config.Loader{
		Defaults: config.Defaults(cCtx.String(DataDirFlag.Name), cCtx.String(PublicBaseFlag.Name)),
		Log:      logger,
	}

	if path := cCtx.String(PoolsFileFlag.Name); path != "" {
		loader.Sources = append(loader.Sources, config.FileSource{Path: path})
	}
	loader.Sources = append(loader.Sources, config.EnvSource{})

	if cCtx.String(VaultPathFlag.Name) != "" {
		vault, err := config.NewVaultSource(config.VaultOptions{
			Address: cCtx.String(VaultAddrFlag.Name),
			Token:   cCtx.String(VaultTokenFlag.Name),
			Mount:   cCtx.String(VaultMountFlag.Name),
			Path:    cCtx.String(VaultPathFlag.Name),
			Field:   cCtx.String(VaultFieldFlag.Name),
		}, logger)
		if err != nil {
			return nil, err
		}
		loader.Sources = append(loader.Sources, vault)
	}

	return loader, nil
}

var ListenAddrFlag = &cli.StringFlag{
	Name:    "listen-addr",
	Value:   "127.0.0.1:8080",
	EnvVars: []string{"LISTEN_ADDR"},
	Usage:   "address to listen on for API",
}

var ServerAddrFlag = &cli.StringFlag{
	Name:    "server-addr",
	Value:   "http://127.0.0.1:8080",
	EnvVars: []string{"STORAGE_ROUTER_ADDR"},
	Usage:   "storage router to connect to",
}

var PoolsFileFlag = &cli.StringFlag{
	Name:    "pools-file",
	EnvVars: []string{"STORAGE_POOLS_FILE"},
	Usage:   "YAML, TOML or JSON file with the pool table",
}

var DataDirFlag = &cli.StringFlag{
	Name:  "data-dir",
	Value: config.DefaultDataDir,
	Usage: "directory of the fallback file pool used when no pools are configured",
}

var PublicBaseFlag = &cli.StringFlag{
	Name:  "public-base",
	Value: storage.DefaultFilePublicBase,
	Usage: "URL prefix of the fallback file pool",
}

var HealthScheduleFlag = &cli.StringFlag{
	Name:  "health-schedule",
	Value: storage.DefaultHealthSchedule,
	Usage: "cron schedule of background provider health checks, empty to disable",
}

var HealthTimeoutFlag = &cli.DurationFlag{
	Name:  "health-timeout",
	Value: 10 * time.Second,
	Usage: "timeout of one background health check round",
}

var MaxUploadSizeFlag = &cli.Int64Flag{
	Name:  "max-upload-size",
	Value: api.DefaultMaxUploadSize,
	Usage: "upload limit in bytes for pools without maxSize",
}

var VaultAddrFlag = &cli.StringFlag{
	Name:    "vault-addr",
	EnvVars: []string{"VAULT_ADDR"},
	Usage:   "Vault server holding the pool table",
}

var VaultTokenFlag = &cli.StringFlag{
	Name:    "vault-token",
	EnvVars: []string{"VAULT_TOKEN"},
	Usage:   "Vault token",
}

var VaultMountFlag = &cli.StringFlag{
	Name:  "vault-mount",
	Value: "secret",
	Usage: "KV v2 mount of the pool secret",
}

var VaultPathFlag = &cli.StringFlag{
	Name:  "vault-path",
	Usage: "path of the pool secret inside the mount, empty to disable Vault",
}

var VaultFieldFlag = &cli.StringFlag{
	Name:  "vault-field",
	Value: config.DefaultVaultField,
	Usage: "secret field holding the pools",
}

var LogJsonFlag = &cli.BoolFlag{
	Name:  "log-json",
	Value: false,
	Usage: "log in JSON format",
}
var LogDebugFlag = &cli.BoolFlag{
	Name:  "log-debug",
	Value: false,
	Usage: "log debug messages",
}
var LogUidFlag = &cli.BoolFlag{
	Name:  "log-uid",
	Value: false,
	Usage: "generate a uuid and add to all log messages",
}
var LogServiceFlag = &cli.StringFlag{
	Name:  "log-service",
	Value: "storage-router",
	Usage: "add 'service' tag to logs",
}

var PprofFlag = &cli.BoolFlag{
	Name:  "pprof",
	Value: false,
	Usage: "enable pprof debug endpoint",
}
var DrainSecondsFlag = &cli.Int64Flag{
	Name:  "drain-seconds",
	Value: 45,
	Usage: "seconds to wait in drain HTTP request",
}
var MetricsAddrFlag = &cli.StringFlag{
	Name:  "metrics-addr",
	Value: "127.0.0.1:8090",
	Usage: "address to listen on for Prometheus metrics",
}

var LogFlags = []cli.Flag{
	LogJsonFlag,
	LogDebugFlag,
	LogUidFlag,
	LogServiceFlag,
}

var CommonFlags = append([]cli.Flag{
	PprofFlag,
	DrainSecondsFlag,
	MetricsAddrFlag,
}, LogFlags...)

var PoolSourceFlags = []cli.Flag{
	PoolsFileFlag,
	DataDirFlag,
	PublicBaseFlag,
	VaultAddrFlag,
	VaultTokenFlag,
	VaultMountFlag,
	VaultPathFlag,
	VaultFieldFlag,
}
