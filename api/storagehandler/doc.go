// Package storagehandler implements the storage admin HTTP API and its client.
//
// The handler exposes a storage.Registry to operators: it lists pools with
// per-provider health, re-runs health checks, replaces the pool table and
// proxies object operations through a pool so that failover and capability
// fallback behave exactly as they do for in-process callers.
//
// Object keys are taken from the wildcard tail of the path, so keys may
// contain slashes:
//
//	PUT /api/storage/pools/avatars/objects/users/42/photo.png
//
// Server-side usage:
//
//	handler := storagehandler.NewHandler(registry, 0, logger)
//	router := chi.NewRouter()
//	handler.RegisterRoutes(router)
//
// Client-side usage:
//
//	c := storagehandler.NewClient("http://127.0.0.1:8080")
//	res, err := c.Put(ctx, "avatars", "users/42/photo.png", data, "image/png")
package storagehandler
