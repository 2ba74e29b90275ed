package config

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ruteri/storage-router/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeVault(t *testing.T, secrets map[string]string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-token", r.Header.Get("X-Vault-Token"))
		body, ok := secrets[r.URL.Path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestVaultSource_StructuredPools(t *testing.T) {
	srv := fakeVault(t, map[string]string{
		"/v1/secret/data/storage-router": `{
			"request_id": "1",
			"data": {
				"data": {
					"pools": [{
						"name": "docs",
						"visibility": "private",
						"providers": [
							{"id": "s3", "type": "s3", "url": "s3://docs?region=eu-west-1", "weight": 2, "options": {"publicBase": "https://docs.example.com"}},
							{"id": "local", "type": "file", "url": "/srv/docs"}
						]
					}]
				}
			}
		}`,
	})

	src, err := NewVaultSource(VaultOptions{Address: srv.URL, Token: "test-token", Mount: "secret", Path: "/storage-router/"}, testLogger)
	require.NoError(t, err)
	assert.Equal(t, "vault:secret/storage-router", src.Name())

	pools, err := src.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, pools, 1)

	pool := pools[0]
	assert.Equal(t, "docs", pool.Name)
	assert.Equal(t, interfaces.VisibilityPrivate, pool.Visibility)
	require.Len(t, pool.Providers, 2)
	assert.Equal(t, interfaces.ProviderS3, pool.Providers[0].Type)
	assert.Equal(t, 2, pool.Providers[0].Weight)
	assert.Equal(t, "https://docs.example.com", pool.Providers[0].Option("publicBase", ""))
	assert.Equal(t, "/srv/docs", pool.Providers[1].URL)
}

func TestVaultSource_DocumentString(t *testing.T) {
	srv := fakeVault(t, map[string]string{
		"/v1/kv/data/router": `{"data": {"data": {"config": "pools:\n  - name: media\n    providers:\n      - id: a\n        type: file\n        url: /srv/media\n"}}}`,
	})

	src, err := NewVaultSource(VaultOptions{Address: srv.URL, Token: "test-token", Mount: "kv", Path: "router", Field: "config"}, testLogger)
	require.NoError(t, err)

	pools, err := src.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, pools, 1)
	assert.Equal(t, "media", pools[0].Name)
}

func TestVaultSource_Missing(t *testing.T) {
	srv := fakeVault(t, map[string]string{
		"/v1/secret/data/other": `{"data": {"data": {"unrelated": "value"}}}`,
	})

	for _, path := range []string{"absent", "other"} {
		src, err := NewVaultSource(VaultOptions{Address: srv.URL, Token: "test-token", Mount: "secret", Path: path}, testLogger)
		require.NoError(t, err)

		pools, err := src.Load(context.Background())
		require.NoError(t, err, path)
		assert.Empty(t, pools, path)
	}
}

func TestVaultSource_RequiresPath(t *testing.T) {
	_, err := NewVaultSource(VaultOptions{Address: "http://127.0.0.1:8200", Mount: "secret"}, testLogger)
	assert.ErrorIs(t, err, interfaces.ErrConfiguration)
}

func TestLoader_VaultSource(t *testing.T) {
	srv := fakeVault(t, map[string]string{
		"/v1/secret/data/storage-router": `{"data": {"data": {"pools": [{"name": "vaulted", "providers": [{"id": "a", "type": "file", "url": "/srv/v"}]}]}}}`,
	})
	src, err := NewVaultSource(VaultOptions{Address: srv.URL, Token: "test-token", Mount: "secret", Path: "storage-router"}, testLogger)
	require.NoError(t, err)

	l := &Loader{Sources: []Source{src}, Defaults: Defaults("", ""), Log: testLogger}
	pools, origin, err := l.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, src.Name(), origin)
	assert.Equal(t, "vaulted", pools[0].Name)
	assert.Equal(t, interfaces.StrategyRoundRobin, pools[0].Strategy)
}
