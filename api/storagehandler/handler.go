package storagehandler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/ruteri/storage-router/api"
	"github.com/ruteri/storage-router/config"
	"github.com/ruteri/storage-router/interfaces"
	"github.com/ruteri/storage-router/storage"
)

// PoolRegistry is the subset of storage.Registry used by the handler.
type PoolRegistry interface {
	GetPool(name string) (*storage.Pool, error)
	ListPools() []string
	Infos() []interfaces.PoolInfo
	HealthCheck(ctx context.Context) []interfaces.PoolInfo
	RegisterPools(configs []interfaces.StoragePoolConfig) error
}

// Handler serves the storage admin API on top of a pool registry.
type Handler struct {
	registry      PoolRegistry
	maxUploadSize int64
	log           *slog.Logger
}

// NewHandler creates a handler. maxUploadSize caps object uploads for pools
// without their own MaxSize; zero selects api.DefaultMaxUploadSize.
func NewHandler(registry PoolRegistry, maxUploadSize int64, log *slog.Logger) *Handler {
	if maxUploadSize <= 0 {
		maxUploadSize = api.DefaultMaxUploadSize
	}
	if log == nil {
		log = slog.Default()
	}
	return &Handler{
		registry:      registry,
		maxUploadSize: maxUploadSize,
		log:           log,
	}
}

// RegisterRoutes mounts the admin API:
//   - GET  /api/storage/pools                        - list pools with provider health
//   - PUT  /api/storage/pools                        - replace the pool table
//   - POST /api/storage/healthcheck                  - probe every pool
//   - GET  /api/storage/pools/{pool}                 - one pool
//   - POST /api/storage/pools/{pool}/healthcheck     - probe one pool
//   - PUT  /api/storage/pools/{pool}/objects/*       - upload the request body
//   - DELETE /api/storage/pools/{pool}/objects/*     - delete from every provider
//   - POST /api/storage/pools/{pool}/presign         - direct upload instructions
//   - GET  /api/storage/pools/{pool}/url/*           - public or signed URL
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/api/storage/pools", h.HandleListPools)
	r.Put("/api/storage/pools", h.HandleRegisterPools)
	r.Post("/api/storage/healthcheck", h.HandleHealthCheck)
	r.Get("/api/storage/pools/{pool}", h.HandleGetPool)
	r.Post("/api/storage/pools/{pool}/healthcheck", h.HandlePoolHealthCheck)
	r.Put("/api/storage/pools/{pool}/objects/*", h.HandlePut)
	r.Delete("/api/storage/pools/{pool}/objects/*", h.HandleDelete)
	r.Post("/api/storage/pools/{pool}/presign", h.HandlePresign)
	r.Get("/api/storage/pools/{pool}/url/*", h.HandleURL)
}

// HandleListPools returns the introspection snapshot of every pool, sorted by name.
func (h *Handler) HandleListPools(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, api.PoolsResponse(h.registry.Infos()))
}

// HandleRegisterPools validates a JSON pool list and swaps it in as the new table.
// On any error the previous table stays active.
func (h *Handler) HandleRegisterPools(w http.ResponseWriter, r *http.Request) {
	var pools []interfaces.StoragePoolConfig
	if err := json.NewDecoder(r.Body).Decode(&pools); err != nil {
		h.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid pool list: %w", err))
		return
	}
	if len(pools) == 0 {
		h.writeError(w, http.StatusBadRequest, fmt.Errorf("%w: empty pool list", interfaces.ErrConfiguration))
		return
	}

	pools = config.ApplyDefaults(pools)
	if err := config.Validate(pools); err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := h.registry.RegisterPools(pools); err != nil {
		h.writeError(w, statusFor(err), err)
		return
	}

	h.log.Info("Pool table replaced via admin API", "pools", len(pools))
	h.writeJSON(w, http.StatusOK, api.RegisterPoolsResponse{Pools: h.registry.ListPools()})
}

// HandleHealthCheck probes every provider of every pool and returns the refreshed snapshot.
func (h *Handler) HandleHealthCheck(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, api.PoolsResponse(h.registry.HealthCheck(r.Context())))
}

func (h *Handler) HandleGetPool(w http.ResponseWriter, r *http.Request) {
	pool, ok := h.pool(w, r)
	if !ok {
		return
	}
	h.writeJSON(w, http.StatusOK, pool.Info())
}

func (h *Handler) HandlePoolHealthCheck(w http.ResponseWriter, r *http.Request) {
	pool, ok := h.pool(w, r)
	if !ok {
		return
	}
	pool.HealthCheck(r.Context())
	h.writeJSON(w, http.StatusOK, pool.Info())
}

// HandlePut stores the raw request body under the wildcard key. The pool's
// size and MIME constraints are enforced before any provider is called.
//
// Response: JSON-encoded interfaces.PutResult
func (h *Handler) HandlePut(w http.ResponseWriter, r *http.Request) {
	pool, ok := h.pool(w, r)
	if !ok {
		return
	}
	key := objectKey(r)
	if key == "" {
		h.writeError(w, http.StatusBadRequest, errors.New("missing object key"))
		return
	}

	cfg := pool.Config()
	contentType := r.Header.Get("Content-Type")

	limit := h.maxUploadSize
	if cfg.MaxSize > 0 {
		limit = cfg.MaxSize
	}
	if r.ContentLength > limit {
		h.writeError(w, http.StatusRequestEntityTooLarge, fmt.Errorf("%w: %d > %d bytes", interfaces.ErrPayloadTooLarge, r.ContentLength, limit))
		return
	}

	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, limit))
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			h.writeError(w, http.StatusRequestEntityTooLarge, fmt.Errorf("%w: more than %d bytes", interfaces.ErrPayloadTooLarge, maxErr.Limit))
			return
		}
		h.writeError(w, http.StatusBadRequest, fmt.Errorf("could not read body: %w", err))
		return
	}

	if err := cfg.Allows(contentType, int64(len(data))); err != nil {
		h.writeError(w, statusFor(err), err)
		return
	}

	res, err := pool.Put(r.Context(), key, data, contentType)
	if err != nil {
		h.log.Error("Upload failed", "pool", pool.Name(), "key", key, "err", err)
		h.writeError(w, statusFor(err), err)
		return
	}
	h.writeJSON(w, http.StatusOK, res)
}

// HandleDelete removes the key from every provider of the pool. It always
// answers 200; Deleted is false when any provider failed.
func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	pool, ok := h.pool(w, r)
	if !ok {
		return
	}
	key := objectKey(r)
	if key == "" {
		h.writeError(w, http.StatusBadRequest, errors.New("missing object key"))
		return
	}

	deleted := pool.Delete(r.Context(), key)
	h.writeJSON(w, http.StatusOK, api.DeleteResponse{Key: key, Deleted: deleted})
}

// HandlePresign returns direct upload instructions from the first provider able to presign.
//
// Request: JSON-encoded api.PresignRequest
// Response: JSON-encoded interfaces.PresignResult
func (h *Handler) HandlePresign(w http.ResponseWriter, r *http.Request) {
	pool, ok := h.pool(w, r)
	if !ok {
		return
	}

	var req api.PresignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid presign request: %w", err))
		return
	}
	if req.Key == "" {
		h.writeError(w, http.StatusBadRequest, errors.New("missing object key"))
		return
	}

	expiresIn, err := parseExpiry(req.ExpiresIn)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := pool.Config().Allows(req.ContentType, req.Size); err != nil {
		h.writeError(w, statusFor(err), err)
		return
	}

	res, err := pool.Presign(r.Context(), req.Key, interfaces.PresignOptions{
		ContentType: req.ContentType,
		Size:        req.Size,
		ExpiresIn:   expiresIn,
	})
	if err != nil {
		h.log.Warn("Presign failed", "pool", pool.Name(), "key", req.Key, "err", err)
		h.writeError(w, statusFor(err), err)
		return
	}
	h.writeJSON(w, http.StatusOK, res)
}

// HandleURL resolves a URL for the wildcard key. Private pools and requests
// with signed=true get a signed URL; expires sets its lifetime.
func (h *Handler) HandleURL(w http.ResponseWriter, r *http.Request) {
	pool, ok := h.pool(w, r)
	if !ok {
		return
	}
	key := objectKey(r)
	if key == "" {
		h.writeError(w, http.StatusBadRequest, errors.New("missing object key"))
		return
	}

	signed := pool.Config().Visibility == interfaces.VisibilityPrivate
	if v := r.URL.Query().Get("signed"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid signed flag %q", v))
			return
		}
		signed = signed || b
	}

	if !signed {
		u, ok := pool.PublicURL(key)
		if !ok {
			h.writeError(w, http.StatusNotFound, fmt.Errorf("%w: %q in pool %q", interfaces.ErrNoURL, key, pool.Name()))
			return
		}
		h.writeJSON(w, http.StatusOK, api.URLResponse{URL: u})
		return
	}

	expiresIn, err := parseExpiry(r.URL.Query().Get("expires"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}
	u, err := pool.SignedURL(r.Context(), key, expiresIn)
	if err != nil {
		h.writeError(w, statusFor(err), err)
		return
	}
	h.writeJSON(w, http.StatusOK, api.URLResponse{URL: u, Signed: true})
}

func (h *Handler) pool(w http.ResponseWriter, r *http.Request) (*storage.Pool, bool) {
	pool, err := h.registry.GetPool(r.PathValue("pool"))
	if err != nil {
		h.writeError(w, statusFor(err), err)
		return nil, false
	}
	return pool, true
}

func objectKey(r *http.Request) string {
	return chi.URLParam(r, "*")
}

func parseExpiry(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return 0, fmt.Errorf("invalid expiry %q", s)
	}
	return d, nil
}

// statusFor maps the storage error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, interfaces.ErrPoolNotFound):
		return http.StatusNotFound
	case errors.Is(err, interfaces.ErrConfiguration):
		return http.StatusBadRequest
	case errors.Is(err, interfaces.ErrPayloadTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, interfaces.ErrContentTypeNotAllowed):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, interfaces.ErrNoURL):
		return http.StatusNotFound
	case errors.Is(err, interfaces.ErrUnsupported):
		return http.StatusNotImplemented
	case errors.Is(err, interfaces.ErrAllProvidersFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Error("Failed to encode response", "err", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, err error) {
	h.writeJSON(w, status, api.ErrorResponse{Error: err.Error()})
}
