package api

import (
	"github.com/ruteri/safesync/dbfile"
	"github.com/ruteri/safesync/interfaces"
	"github.com/ruteri/safesync/model"
	"github.com/ruteri/safesync/pool"
)

// Response headers set by the safes endpoints.
const (
	// ContentIDHeader carries the hex content ID of the synced blob.
	ContentIDHeader = "X-Safesync-Content-ID"

	// FromCacheHeader is "true" when a pulled database came from the offline cache.
	FromCacheHeader = "X-Safesync-From-Cache"
)

// SafesyncProvider is the client-side view of the safesync HTTP API.
type SafesyncProvider interface {
	// Pools returns the minimal pool summary of a serialized database.
	Pools(document []byte) (*PoolsResponse, error)

	// Pull fetches a database document by name.
	Pull(name string) ([]byte, *SyncResponse, error)

	// Push uploads a database document under name.
	Push(name string, document []byte) (*SyncResponse, error)

	// RunSafe pushes a configured safe from the server's local copy.
	RunSafe(name string) (*SyncResponse, error)

	// ProviderStatus describes the server's storage provider.
	ProviderStatus() (*ProviderStatus, error)

	// SignOut signs the server's storage provider out.
	SignOut() error
}

// PoolsResponse summarizes the minimal pools computed for a database.
type PoolsResponse struct {
	Stats dbfile.PoolStats `json:"stats"`

	// AttachmentFingerprints lists the pooled attachments in pool order.
	AttachmentFingerprints []string `json:"attachment_fingerprints"`

	// IconIDs lists the pooled custom icons sorted by identifier.
	IconIDs []string `json:"icon_ids"`
}

// NewPoolsResponse computes the minimal pools of db.
func NewPoolsResponse(db *model.Database) PoolsResponse {
	atts := pool.BuildAttachmentPool(db.Root, db)
	iconPool := pool.MinimalIconPool(db.Root, db)
	icons := pool.SortedIcons(iconPool)

	resp := PoolsResponse{
		Stats:                  dbfile.Summarize(db, atts, iconPool),
		AttachmentFingerprints: make([]string, 0, atts.Len()),
		IconIDs:                make([]string, 0, len(icons)),
	}
	for _, a := range atts.Attachments() {
		resp.AttachmentFingerprints = append(resp.AttachmentFingerprints, a.Fingerprint().String())
	}
	for _, icon := range icons {
		resp.IconIDs = append(resp.IconIDs, icon.First.String())
	}
	return resp
}

// SyncResponse describes the outcome of a push or pull.
type SyncResponse struct {
	Safe      string            `json:"safe"`
	Ref       string            `json:"ref"`
	ContentID string            `json:"content_id"`
	Skipped   bool              `json:"skipped,omitempty"`
	FromCache bool              `json:"from_cache,omitempty"`
	Stats     *dbfile.PoolStats `json:"stats,omitempty"`
}

// ProviderStatus describes a storage provider.
type ProviderStatus struct {
	Name       string                        `json:"name"`
	Kind       string                        `json:"kind"`
	Location   string                        `json:"location"`
	Available  bool                          `json:"available"`
	SignedIn   bool                          `json:"signed_in"`
	Attributes interfaces.ProviderAttributes `json:"attributes"`
}

// ErrorResponse is the body of non-2xx JSON responses.
type ErrorResponse struct {
	Error string `json:"error"`
}
