package common

// Version is set at build time with -ldflags "-X github.com/ruteri/storage-router/common.Version=..."
var Version = "dev"

// PackageName is used as the metrics namespace and default log service.
const PackageName = "storage_router"
