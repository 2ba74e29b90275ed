package interfaces

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrConfiguration is the parent of every configuration error. Configuration
	// errors are fatal to the calling request and must not be retried.
	ErrConfiguration = errors.New("storage configuration error")

	// ErrPoolNotFound is returned when a pool name is not present in the registry.
	ErrPoolNotFound = fmt.Errorf("%w: pool not found", ErrConfiguration)

	// ErrNoProviders is returned when a pool is configured without providers.
	ErrNoProviders = fmt.Errorf("%w: pool has no providers", ErrConfiguration)

	// ErrUnsupportedProviderType is returned for a provider type with no driver.
	ErrUnsupportedProviderType = fmt.Errorf("%w: unsupported provider type", ErrConfiguration)

	// ErrDuplicatePool is returned when two pool configs share a name.
	ErrDuplicatePool = fmt.Errorf("%w: duplicate pool name", ErrConfiguration)

	// ErrUnsupported is returned when no provider can serve a capability such as
	// presign or signed URLs. Drivers return it (wrapped) when a capability
	// is unavailable in their current configuration.
	ErrUnsupported = errors.New("operation not supported by storage provider")

	// ErrAllProvidersFailed wraps the last provider error once every provider
	// in a pool failed a single logical operation.
	ErrAllProvidersFailed = errors.New("all storage providers failed")

	// ErrNoURL is returned when neither a signed nor a public URL can be produced.
	ErrNoURL = errors.New("no url available for key")
)

// Driver is the capability set every storage backend implements.
//
// Put must be safe to call concurrently for different keys. Concurrent writes
// to the same key are resolved by the backend.
type Driver interface {
	// Put stores data under key. The returned key may be rewritten by the backend.
	Put(ctx context.Context, key string, data []byte, contentType string) (*PutResult, error)

	// Delete removes key. A missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Health is a cheap liveness probe. It reports failures through
	// HealthStatus and never returns an error.
	Health(ctx context.Context) HealthStatus
}

// Presigner is implemented by drivers that can hand out direct upload instructions.
type Presigner interface {
	Presign(ctx context.Context, key string, opts PresignOptions) (*PresignResult, error)
}

// PublicURLResolver is implemented by drivers whose objects are addressable by convention.
// PublicURL performs no I/O.
type PublicURLResolver interface {
	PublicURL(key string) (string, bool)
}

// SignedURLResolver is implemented by drivers that can mint time-limited URLs.
type SignedURLResolver interface {
	SignedURL(ctx context.Context, key string, expiresIn time.Duration) (string, error)
}

// DriverFactory instantiates drivers from provider configuration.
type DriverFactory interface {
	DriverFor(cfg StorageProviderConfig) (Driver, error)
}

// PutResult describes a successful write.
type PutResult struct {
	Key        string `json:"key"`
	URL        string `json:"url,omitempty"`
	ProviderID string `json:"providerId"`
}

// PresignOptions tune a presign request. Zero values mean "unspecified".
type PresignOptions struct {
	ContentType string        `json:"contentType,omitempty"`
	Size        int64         `json:"size,omitempty"`
	ExpiresIn   time.Duration `json:"expiresIn,omitempty"`
}

// DefaultPresignExpiry is used when PresignOptions.ExpiresIn is zero.
const DefaultPresignExpiry = 15 * time.Minute

// PresignResult contains everything a client needs to upload directly to a backend.
type PresignResult struct {
	Key        string            `json:"key"`
	UploadURL  string            `json:"uploadUrl"`
	Method     string            `json:"method"`
	Headers    map[string]string `json:"headers,omitempty"`
	Fields     map[string]string `json:"fields,omitempty"`
	PublicURL  string            `json:"publicUrl,omitempty"`
	ProviderID string            `json:"providerId,omitempty"`
}

// HealthStatus is the result of a driver liveness probe.
type HealthStatus struct {
	OK      bool   `json:"ok"`
	Message string `json:"message,omitempty"`
}

// Healthy is a convenience constructor for a passing probe.
func Healthy() HealthStatus {
	return HealthStatus{OK: true}
}

// Unhealthy builds a failing probe result from an error.
func Unhealthy(err error) HealthStatus {
	if err == nil {
		return HealthStatus{OK: false}
	}
	return HealthStatus{OK: false, Message: err.Error()}
}
