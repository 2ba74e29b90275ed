package storagehandler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/ruteri/storage-router/api"
	"github.com/ruteri/storage-router/interfaces"
	"github.com/ruteri/storage-router/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

type testEnv struct {
	dir      string
	registry *storage.Registry
	mux      *chi.Mux
}

// setupTestEnvironment registers three pools:
//   - files: one file provider, 16 byte limit, images only
//   - private: one file provider, private visibility
//   - remote: one REST provider pointing at a server that always fails
func setupTestEnvironment(t *testing.T) *testEnv {
	t.Helper()

	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "backend down", http.StatusInternalServerError)
	}))
	t.Cleanup(failing.Close)

	dir := t.TempDir()
	registry := storage.NewRegistry(storage.NewDriverFactory(testLogger), testLogger)
	require.NoError(t, registry.RegisterPools([]interfaces.StoragePoolConfig{
		{
			Name:             "files",
			MaxSize:          16,
			AllowedMimeTypes: []string{"image/*"},
			Providers: []interfaces.StorageProviderConfig{{
				ID:      "local",
				Type:    interfaces.ProviderFile,
				URL:     filepath.Join(dir, "files"),
				Options: map[string]string{"publicBase": "https://cdn.example.com/files"},
			}},
		},
		{
			Name:       "private",
			Visibility: interfaces.VisibilityPrivate,
			Providers: []interfaces.StorageProviderConfig{{
				ID:   "local",
				Type: interfaces.ProviderFile,
				URL:  filepath.Join(dir, "private"),
			}},
		},
		{
			Name: "remote",
			Providers: []interfaces.StorageProviderConfig{{
				ID:   "api",
				Type: interfaces.ProviderREST,
				URL:  failing.URL,
			}},
		},
	}))

	mux := chi.NewRouter()
	NewHandler(registry, 0, testLogger).RegisterRoutes(mux)

	return &testEnv{dir: dir, registry: registry, mux: mux}
}

func (e *testEnv) do(t *testing.T, method, target string, body []byte, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	w := httptest.NewRecorder()
	e.mux.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestHandleListPools(t *testing.T) {
	env := setupTestEnvironment(t)

	w := env.do(t, http.MethodGet, "/api/storage/pools", nil, "")
	require.Equal(t, http.StatusOK, w.Code)

	infos := decode[[]interfaces.PoolInfo](t, w)
	require.Len(t, infos, 3)
	assert.Equal(t, "files", infos[0].Name)
	assert.Equal(t, "private", infos[1].Name)
	assert.Equal(t, "remote", infos[2].Name)
	assert.Equal(t, interfaces.VisibilityPrivate, infos[1].Visibility)
	assert.True(t, infos[0].Providers[0].Healthy)
}

func TestHandleGetPool(t *testing.T) {
	env := setupTestEnvironment(t)

	w := env.do(t, http.MethodGet, "/api/storage/pools/remote", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	info := decode[interfaces.PoolInfo](t, w)
	assert.Equal(t, "remote", info.Name)
	assert.Equal(t, interfaces.StrategyRoundRobin, info.Strategy)
	assert.Equal(t, "api", info.Providers[0].ID)

	w = env.do(t, http.MethodGet, "/api/storage/pools/MISSING", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, decode[api.ErrorResponse](t, w).Error, "MISSING")
}

func TestHandlePut(t *testing.T) {
	env := setupTestEnvironment(t)

	t.Run("stores the body under the wildcard key", func(t *testing.T) {
		w := env.do(t, http.MethodPut, "/api/storage/pools/files/objects/users/42/a.png", []byte("png"), "image/png")
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		res := decode[interfaces.PutResult](t, w)
		assert.Equal(t, "users/42/a.png", res.Key)
		assert.Equal(t, "local", res.ProviderID)
		assert.Equal(t, "https://cdn.example.com/files/users/42/a.png", res.URL)

		stored, err := os.ReadFile(filepath.Join(env.dir, "files", "users", "42", "a.png"))
		require.NoError(t, err)
		assert.Equal(t, "png", string(stored))
	})

	t.Run("payload over the pool limit", func(t *testing.T) {
		w := env.do(t, http.MethodPut, "/api/storage/pools/files/objects/big.png", bytes.Repeat([]byte("x"), 17), "image/png")
		assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	})

	t.Run("content type outside the pool allow list", func(t *testing.T) {
		w := env.do(t, http.MethodPut, "/api/storage/pools/files/objects/doc.pdf", []byte("%PDF"), "application/pdf")
		assert.Equal(t, http.StatusUnsupportedMediaType, w.Code)
	})

	t.Run("every provider failed", func(t *testing.T) {
		w := env.do(t, http.MethodPut, "/api/storage/pools/remote/objects/a.txt", []byte("x"), "text/plain")
		assert.Equal(t, http.StatusBadGateway, w.Code)
		assert.Contains(t, decode[api.ErrorResponse](t, w).Error, "backend down")

		info, err := env.registry.GetPool("remote")
		require.NoError(t, err)
		assert.Equal(t, 1, info.Info().Providers[0].ErrorCount)
	})

	t.Run("unknown pool", func(t *testing.T) {
		w := env.do(t, http.MethodPut, "/api/storage/pools/nope/objects/a.png", []byte("x"), "image/png")
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestHandleDelete(t *testing.T) {
	env := setupTestEnvironment(t)

	w := env.do(t, http.MethodPut, "/api/storage/pools/files/objects/a/b.png", []byte("png"), "image/png")
	require.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, http.MethodDelete, "/api/storage/pools/files/objects/a/b.png", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, api.DeleteResponse{Key: "a/b.png", Deleted: true}, decode[api.DeleteResponse](t, w))

	_, err := os.Stat(filepath.Join(env.dir, "files", "a", "b.png"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	w = env.do(t, http.MethodDelete, "/api/storage/pools/remote/objects/a.txt", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, decode[api.DeleteResponse](t, w).Deleted)
}

func TestHandlePresign(t *testing.T) {
	env := setupTestEnvironment(t)

	body, _ := json.Marshal(api.PresignRequest{Key: "a.png", ContentType: "image/png", Size: 3, ExpiresIn: "5m"})
	w := env.do(t, http.MethodPost, "/api/storage/pools/files/presign", body, "application/json")
	assert.Equal(t, http.StatusNotImplemented, w.Code)

	body, _ = json.Marshal(api.PresignRequest{Key: "a.png", ContentType: "image/png", Size: 1 << 20})
	w = env.do(t, http.MethodPost, "/api/storage/pools/files/presign", body, "application/json")
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)

	body, _ = json.Marshal(api.PresignRequest{Key: "a.png", ExpiresIn: "soon"})
	w = env.do(t, http.MethodPost, "/api/storage/pools/files/presign", body, "application/json")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodPost, "/api/storage/pools/files/presign", []byte("{"), "application/json")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleURL(t *testing.T) {
	env := setupTestEnvironment(t)

	w := env.do(t, http.MethodGet, "/api/storage/pools/files/url/rooms/a.png", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, api.URLResponse{URL: "https://cdn.example.com/files/rooms/a.png"}, decode[api.URLResponse](t, w))

	w = env.do(t, http.MethodGet, "/api/storage/pools/files/url/rooms/a.png?signed=true&expires=1h", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decode[api.URLResponse](t, w).Signed)

	// Private pools always answer with a signed URL.
	w = env.do(t, http.MethodGet, "/api/storage/pools/private/url/k.txt", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	res := decode[api.URLResponse](t, w)
	assert.True(t, res.Signed)
	assert.Equal(t, storage.DefaultFilePublicBase+"/k.txt", res.URL)

	w = env.do(t, http.MethodGet, "/api/storage/pools/remote/url/k.txt", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(t, http.MethodGet, "/api/storage/pools/remote/url/k.txt?signed=true", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(t, http.MethodGet, "/api/storage/pools/files/url/k.txt?signed=maybe", nil, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleHealthCheck(t *testing.T) {
	env := setupTestEnvironment(t)

	w := env.do(t, http.MethodPost, "/api/storage/healthcheck", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	infos := decode[[]interfaces.PoolInfo](t, w)
	require.Len(t, infos, 3)
	assert.True(t, infos[0].Providers[0].Healthy)

	w = env.do(t, http.MethodPost, "/api/storage/pools/remote/healthcheck", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	info := decode[interfaces.PoolInfo](t, w)
	assert.False(t, info.Providers[0].Healthy)
	assert.NotEmpty(t, info.Providers[0].Message)
}

func TestHandleRegisterPools(t *testing.T) {
	env := setupTestEnvironment(t)

	t.Run("invalid table keeps the previous one", func(t *testing.T) {
		body, _ := json.Marshal([]interfaces.StoragePoolConfig{
			{Name: "a", Providers: []interfaces.StorageProviderConfig{{ID: "x", Type: "ftp", URL: "ftp://host"}}},
			{Name: "a"},
		})
		w := env.do(t, http.MethodPut, "/api/storage/pools", body, "application/json")
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, []string{"files", "private", "remote"}, env.registry.ListPools())
	})

	t.Run("empty table", func(t *testing.T) {
		w := env.do(t, http.MethodPut, "/api/storage/pools", []byte("[]"), "application/json")
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("replaces the table", func(t *testing.T) {
		body, _ := json.Marshal([]interfaces.StoragePoolConfig{{
			Name:      "docs",
			Providers: []interfaces.StorageProviderConfig{{ID: "local", Type: interfaces.ProviderFile, URL: filepath.Join(env.dir, "docs")}},
		}})
		w := env.do(t, http.MethodPut, "/api/storage/pools", body, "application/json")
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.Equal(t, []string{"docs"}, decode[api.RegisterPoolsResponse](t, w).Pools)
		assert.False(t, env.registry.HasPool("files"))
	})
}

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{interfaces.ErrPoolNotFound, http.StatusNotFound},
		{interfaces.ErrNoProviders, http.StatusBadRequest},
		{interfaces.ErrUnsupported, http.StatusNotImplemented},
		{interfaces.ErrNoURL, http.StatusNotFound},
		{interfaces.ErrAllProvidersFailed, http.StatusBadGateway},
		{interfaces.ErrPayloadTooLarge, http.StatusRequestEntityTooLarge},
		{interfaces.ErrContentTypeNotAllowed, http.StatusUnsupportedMediaType},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, c := range cases {
		assert.Equal(t, c.status, statusFor(c.err), c.err.Error())
	}
}

func TestClient(t *testing.T) {
	env := setupTestEnvironment(t)
	srv := httptest.NewServer(env.mux)
	defer srv.Close()

	ctx := context.Background()
	c := NewClient(srv.URL + "/")

	pools, err := c.ListPools(ctx)
	require.NoError(t, err)
	assert.Len(t, pools, 3)

	res, err := c.Put(ctx, "files", "my rooms/a.png", []byte("png"), "image/png")
	require.NoError(t, err)
	assert.Equal(t, "my rooms/a.png", res.Key)
	assert.True(t, strings.HasSuffix(res.URL, "/my%20rooms/a.png"), res.URL)

	u, err := c.URL(ctx, "files", "my rooms/a.png", false, 0)
	require.NoError(t, err)
	assert.Equal(t, res.URL, u.URL)

	deleted, err := c.Delete(ctx, "files", "my rooms/a.png")
	require.NoError(t, err)
	assert.True(t, deleted)

	_, err = c.Presign(ctx, "files", api.PresignRequest{Key: "a.png", ContentType: "image/png"})
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusNotImplemented, statusErr.Code)

	infos, err := c.HealthCheck(ctx, "remote")
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.False(t, infos[0].Providers[0].Healthy)

	_, err = c.GetPool(ctx, "missing")
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusNotFound, statusErr.Code)

	names, err := c.RegisterPools(ctx, []interfaces.StoragePoolConfig{{
		Name:      "docs",
		Providers: []interfaces.StorageProviderConfig{{ID: "local", Type: interfaces.ProviderFile, URL: filepath.Join(env.dir, "docs")}},
	}})
	require.NoError(t, err)
	assert.Equal(t, []string{"docs"}, names)
}
