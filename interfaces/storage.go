package interfaces

import (
	"bytes"
	"context"
	"crypto/sha256"
	"crypto/tls"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"
)

// ContentID is a 32-byte SHA-256 hash of a stored blob.
type ContentID [32]byte

// NewContentIDFromBytes converts a raw 32-byte hash.
func NewContentIDFromBytes(source []byte) (ContentID, error) {
	if len(source) != 32 {
		return ContentID{}, errors.New("invalid ContentID conversion from bytes: incorrect length")
	}

	var hash [32]byte
	copy(hash[:], source)
	return ContentID(hash), nil
}

// NewContentIDFromHex parses a hex-encoded content ID, with or without 0x prefix.
func NewContentIDFromHex(source string) (ContentID, error) {
	clean := strings.TrimPrefix(source, "0x")
	if len(clean) != 64 {
		return ContentID{}, errors.New("invalid content ID length: hex string must be 64 characters")
	}

	hashBytes, err := hex.DecodeString(clean)
	if err != nil {
		return ContentID{}, fmt.Errorf("invalid hex format: %w", err)
	}

	var hash [32]byte
	copy(hash[:], hashBytes)
	return ContentID(hash), nil
}

// ComputeID calculates content ID from data.
func ComputeID(data []byte) ContentID {
	return ContentID(sha256.Sum256(data))
}

// String returns hex representation.
func (id ContentID) String() string {
	return hex.EncodeToString(id[:])
}

// Bytes returns raw 32-byte hash.
func (id ContentID) Bytes() []byte {
	return id[:]
}

// Equal compares two content IDs.
func (id ContentID) Equal(other ContentID) bool {
	return bytes.Equal(id[:], other[:])
}

// IsZero reports whether the ID is unset.
func (id ContentID) IsZero() bool {
	return id == ContentID{}
}

// FileReference names a database file inside a provider, as a
// slash-separated path relative to the provider root.
type FileReference string

// Validate rejects empty, absolute and parent-escaping references.
func (r FileReference) Validate() error {
	s := string(r)
	if s == "" {
		return fmt.Errorf("%w: empty reference", ErrInvalidReference)
	}
	if strings.HasPrefix(s, "/") || strings.Contains(s, "\\") {
		return fmt.Errorf("%w: %q must be a relative slash-separated path", ErrInvalidReference, s)
	}
	for _, part := range strings.Split(s, "/") {
		if part == ".." {
			return fmt.Errorf("%w: %q escapes the provider root", ErrInvalidReference, s)
		}
	}
	return nil
}

// Clean returns the reference in canonical form.
func (r FileReference) Clean() FileReference {
	return FileReference(path.Clean(string(r)))
}

// Base returns the last element of the reference.
func (r FileReference) Base() string {
	return path.Base(string(r))
}

// String returns the reference as a path.
func (r FileReference) String() string {
	return string(r)
}

// ProviderKind identifies a storage provider implementation.
type ProviderKind int

const (
	LocalKind ProviderKind = iota
	S3Kind
	MinIOKind
	IPFSKind
	VaultKind
	GitHubKind
	MultiKind
)

// String returns kind name.
func (k ProviderKind) String() string {
	switch k {
	case LocalKind:
		return "local"
	case S3Kind:
		return "s3"
	case MinIOKind:
		return "minio"
	case IPFSKind:
		return "ipfs"
	case VaultKind:
		return "vault"
	case GitHubKind:
		return "github"
	case MultiKind:
		return "multi"
	default:
		return "unknown"
	}
}

// ProviderAttributes are fixed per provider kind and describe how callers
// should treat it. They never change after construction.
type ProviderAttributes struct {
	// ProvidesIcons is set when the backend has its own display icon.
	ProvidesIcons bool `json:"provides_icons"`

	// BrowsableNew allows picking a location for a new database file.
	BrowsableNew bool `json:"browsable_new"`

	// BrowsableExisting allows picking an existing database file.
	BrowsableExisting bool `json:"browsable_existing"`

	// RootFolderOnly restricts references to the provider root.
	RootFolderOnly bool `json:"root_folder_only"`

	// ImmediatelyOfferCacheIfOffline serves the cached copy as soon as the
	// backend is unreachable instead of failing the read.
	ImmediatelyOfferCacheIfOffline bool `json:"immediately_offer_cache_if_offline"`

	// SupportsConcurrentRequests is unset for backends that must see at most
	// one request in flight.
	SupportsConcurrentRequests bool `json:"supports_concurrent_requests"`
}

// StorageLocation represents URI for a storage provider.
type StorageLocation struct {
	Raw    string     // Original URI
	Scheme string     // Protocol
	Host   string     // Hostname
	Path   string     // Resource path
	Query  url.Values // Query parameters
	Auth   string     // Authentication info
}

// NewStorageLocation creates a new storage location from a URI string with validation.
func NewStorageLocation(uri string) (StorageLocation, error) {
	parsed, err := url.Parse(uri)
	if err != nil {
		return StorageLocation{}, fmt.Errorf("%w: %w", ErrInvalidLocationURI, err)
	}

	scheme := parsed.Scheme
	switch scheme {
	case "file", "s3", "minio", "ipfs", "github", "vault":
	default:
		return StorageLocation{}, fmt.Errorf("%w: unsupported storage scheme %q", ErrInvalidLocationURI, scheme)
	}

	var auth string
	if parsed.User != nil {
		auth = parsed.User.String()
	}

	return StorageLocation{
		Raw:    uri,
		Scheme: scheme,
		Host:   parsed.Host,
		Path:   parsed.Path,
		Query:  parsed.Query(),
		Auth:   auth,
	}, nil
}

// String returns the original URI string.
func (loc StorageLocation) String() string {
	return loc.Raw
}

// IsFile checks if this is a file system storage location.
func (loc StorageLocation) IsFile() bool {
	return loc.Scheme == "file"
}

// IsS3 checks if this is an S3 storage location.
func (loc StorageLocation) IsS3() bool {
	return loc.Scheme == "s3"
}

// IsMinIO checks if this is a MinIO storage location.
func (loc StorageLocation) IsMinIO() bool {
	return loc.Scheme == "minio"
}

// IsIPFS checks if this is an IPFS storage location.
func (loc StorageLocation) IsIPFS() bool {
	return loc.Scheme == "ipfs"
}

// IsGitHub checks if this is a GitHub storage location.
func (loc StorageLocation) IsGitHub() bool {
	return loc.Scheme == "github"
}

// IsVault checks if this is a Vault storage location.
func (loc StorageLocation) IsVault() bool {
	return loc.Scheme == "vault"
}

// GetParam returns a query parameter value.
func (loc StorageLocation) GetParam(name string) string {
	return loc.Query.Get(name)
}

// GetParamBool returns a boolean query parameter value.
func (loc StorageLocation) GetParamBool(name string) bool {
	value := loc.Query.Get(name)
	return value == "true" || value == "1" || value == "yes"
}

var (
	// ErrContentNotFound is returned when the referenced file does not exist in the provider.
	ErrContentNotFound = errors.New("content not found")

	// ErrBackendUnavailable is returned when a provider is not accessible.
	// This could be due to network issues, authentication failures, or service outages.
	ErrBackendUnavailable = errors.New("storage backend unavailable")

	// ErrInvalidLocationURI is returned when a storage location URI is malformed or unsupported.
	// URIs must follow the format: [scheme]://[auth@]host[:port][/path][?params]
	ErrInvalidLocationURI = errors.New("invalid storage location URI")

	// ErrNotSignedIn is returned by writes to a provider that has been signed out.
	ErrNotSignedIn = errors.New("storage provider not signed in")

	// ErrReadOnly is returned by writes to a provider that cannot store data.
	ErrReadOnly = errors.New("storage provider is read-only")

	// ErrInvalidReference is returned for file references a provider cannot address.
	ErrInvalidReference = errors.New("invalid file reference")
)

// StorageProvider persists and retrieves serialized database files.
type StorageProvider interface {
	// Read returns the file stored under ref.
	Read(ctx context.Context, ref FileReference) ([]byte, error)

	// Write stores data under ref, replacing any previous content, and
	// returns its content ID.
	Write(ctx context.Context, ref FileReference, data []byte) (ContentID, error)

	// Available checks if the backend is accessible.
	Available(ctx context.Context) bool

	// IsSignedIn reports whether the provider holds usable credentials.
	IsSignedIn() bool

	// SignOut discards credentials. A nil error means success.
	SignOut(ctx context.Context) error

	// Attributes describes provider behavior.
	Attributes() ProviderAttributes

	// Kind identifies the implementation.
	Kind() ProviderKind

	// Name returns identifier for logging.
	Name() string

	// LocationURI returns URI identifying this provider.
	LocationURI() string
}

// StorageProviderFactory creates storage providers.
type StorageProviderFactory interface {
	// StorageProviderFor creates a provider from a location.
	// Supports file://, s3://, minio://, ipfs://, github://, vault://
	StorageProviderFor(location StorageLocation) (StorageProvider, error)

	// CreateMultiProvider creates an aggregated provider.
	CreateMultiProvider(locations []StorageLocation) (StorageProvider, error)

	// WithTLSAuth configures TLS client authentication.
	WithTLSAuth(func() (tls.Certificate, error)) StorageProviderFactory
}
