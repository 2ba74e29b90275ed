package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ruteri/storage-router/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilePool_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	reg := NewRegistry(NewDriverFactory(testLogger), testLogger)
	require.NoError(t, reg.RegisterPools([]interfaces.StoragePoolConfig{{
		Name: "uploads",
		Providers: []interfaces.StorageProviderConfig{
			{ID: "local", Type: interfaces.ProviderFile, URL: dir},
		},
	}}))

	pool, err := reg.GetPool("uploads")
	require.NoError(t, err)

	data := []byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a}
	res, err := pool.Put(context.Background(), "a/b.png", data, "image/png")
	require.NoError(t, err)

	stored, err := os.ReadFile(filepath.Join(dir, "a", "b.png"))
	require.NoError(t, err)
	assert.Equal(t, data, stored)
	assert.True(t, strings.HasSuffix(res.URL, "/a/b.png"), res.URL)
	assert.Equal(t, "local", res.ProviderID)
	assert.Equal(t, "a/b.png", res.Key)

	u, ok := pool.PublicURL("a/b.png")
	assert.True(t, ok)
	assert.Equal(t, res.URL, u)

	signed, err := pool.SignedURL(context.Background(), "a/b.png", 0)
	require.NoError(t, err)
	assert.Equal(t, res.URL, signed)

	assert.True(t, pool.Delete(context.Background(), "a/b.png"))
	_, err = os.Stat(filepath.Join(dir, "a", "b.png"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestFileDriver(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	d, err := NewFileDriver(filepath.Join(dir, "blobs"), "https://cdn.example.com/files/", testLogger)
	require.NoError(t, err)

	t.Run("public url escapes key segments", func(t *testing.T) {
		u, ok := d.PublicURL("/rooms/my photo.png")
		assert.True(t, ok)
		assert.Equal(t, "https://cdn.example.com/files/rooms/my%20photo.png", u)
	})

	t.Run("rejects keys leaving the base directory", func(t *testing.T) {
		for _, key := range []string{"", "../escape", "a/../../escape"} {
			_, err := d.Put(ctx, key, []byte("x"), "")
			assert.ErrorIs(t, err, ErrInvalidKey, key)
		}
	})

	t.Run("overwrites existing key", func(t *testing.T) {
		_, err := d.Put(ctx, "doc.txt", []byte("first"), "text/plain")
		require.NoError(t, err)
		_, err = d.Put(ctx, "doc.txt", []byte("second"), "text/plain")
		require.NoError(t, err)

		stored, err := os.ReadFile(filepath.Join(d.BaseDir(), "doc.txt"))
		require.NoError(t, err)
		assert.Equal(t, "second", string(stored))
	})

	t.Run("delete of missing key succeeds", func(t *testing.T) {
		assert.NoError(t, d.Delete(ctx, "never/written.bin"))
	})

	t.Run("health", func(t *testing.T) {
		assert.True(t, d.Health(ctx).OK)

		require.NoError(t, os.RemoveAll(d.BaseDir()))
		status := d.Health(ctx)
		assert.False(t, status.OK)
		assert.NotEmpty(t, status.Message)
	})
}

func TestFileDriver_DefaultPublicBase(t *testing.T) {
	d, err := NewFileDriver(t.TempDir(), "", testLogger)
	require.NoError(t, err)

	res, err := d.Put(context.Background(), "x/y.txt", []byte("y"), "text/plain")
	require.NoError(t, err)
	assert.Equal(t, "/storage/x/y.txt", res.URL)
}
