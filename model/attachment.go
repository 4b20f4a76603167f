package model

import (
	"encoding/hex"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"
)

// Fingerprint is the BLAKE2b-256 digest of an attachment's content.
type Fingerprint [blake2b.Size256]byte

// String returns the hex form of the fingerprint.
func (f Fingerprint) String() string {
	return hex.EncodeToString(f[:])
}

// ComputeFingerprint hashes data.
func ComputeFingerprint(data []byte) Fingerprint {
	return Fingerprint(blake2b.Sum256(data))
}

// DatabaseAttachment is a binary blob stored in the database. Its bytes are
// treated as immutable once stored.
type DatabaseAttachment struct {
	Data []byte

	// ProtectedInMemory mirrors the KeePass "Protected" binary flag.
	ProtectedInMemory bool

	digest    Fingerprint
	hasDigest bool
}

// NewDatabaseAttachment wraps data and precomputes its fingerprint.
func NewDatabaseAttachment(data []byte, protectedInMemory bool) *DatabaseAttachment {
	return &DatabaseAttachment{
		Data:              data,
		ProtectedInMemory: protectedInMemory,
		digest:            ComputeFingerprint(data),
		hasDigest:         true,
	}
}

// Fingerprint returns the content digest. Attachments not built through
// NewDatabaseAttachment are hashed on every call so that the value is never
// written to after construction.
func (a *DatabaseAttachment) Fingerprint() Fingerprint {
	if a.hasDigest {
		return a.digest
	}
	return ComputeFingerprint(a.Data)
}

// Len returns the content size in bytes.
func (a *DatabaseAttachment) Len() int {
	return len(a.Data)
}

// Icon is a user-managed custom icon. Icons are identified by ID only;
// two icons with equal bytes are still distinct.
type Icon struct {
	ID   uuid.UUID
	Data []byte
}
