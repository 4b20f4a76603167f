// Package interfaces defines the storage provider boundary of safesync,
// separating interface definitions from implementations.
//
// # Storage Interfaces
//
// StorageProvider: Persists and retrieves serialized database files by
// FileReference, and exposes sign-in state, sign-out and a fixed set of
// ProviderAttributes describing backend behavior.
//
// StorageProviderFactory: Creates providers from StorageLocation URIs and
// aggregates several locations into one multi-provider.
//
// # Types
//
//   - ContentID: 32-byte SHA-256 hash of a stored blob
//   - FileReference: slash-separated path relative to a provider root
//   - ProviderKind: enum of provider implementations
//   - StorageLocation: parsed provider URI
//
// # Error Types
//
// Providers return the sentinel errors declared here, possibly wrapped:
// ErrContentNotFound, ErrBackendUnavailable, ErrInvalidLocationURI,
// ErrNotSignedIn, ErrReadOnly and ErrInvalidReference.
package interfaces
