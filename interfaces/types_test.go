package interfaces

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStoragePoolConfig_Allows(t *testing.T) {
	pool := StoragePoolConfig{
		Name:             "avatars",
		MaxSize:          1024,
		AllowedMimeTypes: []string{"image/*", "application/pdf"},
	}

	tests := []struct {
		name        string
		contentType string
		size        int64
		wantErr     error
	}{
		{"wildcard match", "image/png", 10, nil},
		{"exact match with params", "application/pdf; charset=binary", 10, nil},
		{"case insensitive", "IMAGE/JPEG", 10, nil},
		{"at size limit", "image/png", 1024, nil},
		{"too large", "image/png", 1025, ErrPayloadTooLarge},
		{"type not allowed", "text/html", 10, ErrContentTypeNotAllowed},
		{"prefix is not a match", "imagery/png", 10, ErrContentTypeNotAllowed},
		{"empty type", "", 10, ErrContentTypeNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := pool.Allows(tt.contentType, tt.size)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestStoragePoolConfig_AllowsUnconstrained(t *testing.T) {
	pool := StoragePoolConfig{Name: "any"}
	assert.NoError(t, pool.Allows("", 1<<40))
	assert.NoError(t, pool.Allows("application/x-whatever", 0))
}

func TestStorageProviderConfig_Defaults(t *testing.T) {
	cfg := StorageProviderConfig{ID: "a", Options: map[string]string{"region": "eu-west-1", "empty": ""}}
	assert.Equal(t, 1, cfg.EffectiveWeight())
	assert.Equal(t, "eu-west-1", cfg.Option("region", "us-east-1"))
	assert.Equal(t, "fallback", cfg.Option("empty", "fallback"))
	assert.Equal(t, "fallback", cfg.Option("missing", "fallback"))

	cfg.Weight = 5
	assert.Equal(t, 5, cfg.EffectiveWeight())
}

func TestErrorTaxonomy(t *testing.T) {
	for _, err := range []error{ErrPoolNotFound, ErrNoProviders, ErrUnsupportedProviderType, ErrDuplicatePool} {
		assert.ErrorIs(t, err, ErrConfiguration)
	}
	assert.NotErrorIs(t, ErrUnsupported, ErrConfiguration)
	assert.NotErrorIs(t, ErrAllProvidersFailed, ErrConfiguration)
}

func TestProviderType_Valid(t *testing.T) {
	for _, pt := range []ProviderType{ProviderFile, ProviderREST, ProviderS3, ProviderMinio, ProviderIPFS} {
		assert.True(t, pt.Valid(), pt)
	}
	assert.False(t, ProviderType("gcs").Valid())
}
