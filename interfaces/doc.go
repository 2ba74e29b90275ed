// Package interfaces defines the storage driver contract, the pool and
// provider configuration model and the error taxonomy shared by the storage
// router packages.
//
// # Drivers
//
// Every backend implements Driver (Put, Delete, Health). Optional
// capabilities are separate interfaces checked with a type assertion:
//
//   - Presigner: direct upload instructions
//   - PublicURLResolver: URL by convention, no I/O
//   - SignedURLResolver: time-limited URLs
//
// A driver that implements a capability interface but cannot serve it in its
// current configuration returns an error wrapping ErrUnsupported.
//
// # Errors
//
// ErrConfiguration is the parent of ErrPoolNotFound, ErrNoProviders,
// ErrUnsupportedProviderType and ErrDuplicatePool. Use errors.Is to classify.
package interfaces
