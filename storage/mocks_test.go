package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/ruteri/storage-router/interfaces"
	"github.com/stretchr/testify/mock"
)

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// MockDriver implements interfaces.Driver without optional capabilities.
type MockDriver struct {
	mock.Mock
}

func (m *MockDriver) Put(ctx context.Context, key string, data []byte, contentType string) (*interfaces.PutResult, error) {
	args := m.Called(ctx, key, data, contentType)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*interfaces.PutResult), args.Error(1)
}

func (m *MockDriver) Delete(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

func (m *MockDriver) Health(ctx context.Context) interfaces.HealthStatus {
	args := m.Called(ctx)
	return args.Get(0).(interfaces.HealthStatus)
}

// MockPresignDriver adds the presign capability.
type MockPresignDriver struct {
	MockDriver
}

func (m *MockPresignDriver) Presign(ctx context.Context, key string, opts interfaces.PresignOptions) (*interfaces.PresignResult, error) {
	args := m.Called(ctx, key, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*interfaces.PresignResult), args.Error(1)
}

// MockPublicDriver resolves public URLs but cannot sign.
type MockPublicDriver struct {
	MockDriver
}

func (m *MockPublicDriver) PublicURL(key string) (string, bool) {
	args := m.Called(key)
	return args.String(0), args.Bool(1)
}

// MockSignerDriver resolves both public and signed URLs.
type MockSignerDriver struct {
	MockPublicDriver
}

func (m *MockSignerDriver) SignedURL(ctx context.Context, key string, expiresIn time.Duration) (string, error) {
	args := m.Called(ctx, key, expiresIn)
	return args.String(0), args.Error(1)
}

// fakeFactory hands out prepared drivers by provider id.
type fakeFactory map[string]interfaces.Driver

func (f fakeFactory) DriverFor(cfg interfaces.StorageProviderConfig) (interfaces.Driver, error) {
	d, ok := f[cfg.ID]
	if !ok {
		return nil, fmt.Errorf("%w: %q", interfaces.ErrUnsupportedProviderType, cfg.Type)
	}
	return d, nil
}

func providerConfigs(ids ...string) []interfaces.StorageProviderConfig {
	out := make([]interfaces.StorageProviderConfig, 0, len(ids))
	for _, id := range ids {
		out = append(out, interfaces.StorageProviderConfig{ID: id, Type: interfaces.ProviderREST, URL: "https://" + id + ".example.com"})
	}
	return out
}
