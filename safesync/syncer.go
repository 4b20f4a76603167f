package safesync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ruteri/safesync/cache"
	"github.com/ruteri/safesync/dbfile"
	"github.com/ruteri/safesync/interfaces"
	"github.com/ruteri/safesync/metrics"
	"github.com/ruteri/safesync/model"
)

// PushResult describes a completed push.
type PushResult struct {
	// Skipped is set when the encoded database matched the last synced copy
	// and no write was issued.
	Skipped   bool
	ContentID interfaces.ContentID
	Stats     dbfile.PoolStats
}

// PullResult describes a completed pull.
type PullResult struct {
	// FromCache is set when the provider could not be reached and the
	// database was served from the offline cache.
	FromCache bool
	ContentID interfaces.ContentID
	StoredAt  time.Time
}

// Syncer pushes and pulls databases through a single storage provider.
type Syncer struct {
	provider interfaces.StorageProvider
	cache    *cache.Cache
	metrics  *metrics.Metrics
	log      *slog.Logger

	// serial guards provider calls when the provider handles one request at a time.
	serial sync.Mutex
}

// NewSyncer creates a Syncer. c and m may be nil.
func NewSyncer(provider interfaces.StorageProvider, c *cache.Cache, m *metrics.Metrics, log *slog.Logger) *Syncer {
	return &Syncer{
		provider: provider,
		cache:    c,
		metrics:  m,
		log:      log.With("provider", provider.Name()),
	}
}

// Provider returns the provider the Syncer is bound to.
func (s *Syncer) Provider() interfaces.StorageProvider {
	return s.provider
}

// cacheKey scopes cache entries to the provider's location. Names are not
// unique across locations.
func (s *Syncer) cacheKey() string {
	return s.provider.LocationURI()
}

func (s *Syncer) lock() func() {
	if s.provider.Attributes().SupportsConcurrentRequests {
		return func() {}
	}
	s.serial.Lock()
	return s.serial.Unlock
}

// Push serializes a snapshot of db and writes it to ref. The write is skipped
// when the result is identical to the copy last synced to the provider.
func (s *Syncer) Push(ctx context.Context, ref interfaces.FileReference, db *model.Database) (PushResult, error) {
	start := time.Now()

	if err := ref.Validate(); err != nil {
		return PushResult{}, err
	}
	if db == nil {
		return PushResult{}, dbfile.ErrNilDatabase
	}

	data, stats, err := dbfile.EncodeWithStats(db.Clone())
	if err != nil {
		s.metrics.ObserveSync(metrics.OpPush, s.provider.Name(), metrics.ResultError, time.Since(start))
		return PushResult{}, fmt.Errorf("encode %s: %w", ref, err)
	}
	s.metrics.ObservePools(stats.Attachments, stats.Icons, stats.DroppedAttachments, stats.DroppedIcons)

	result := PushResult{
		ContentID: interfaces.ComputeID(data),
		Stats:     stats,
	}

	if s.cache != nil {
		head, err := s.cache.Head(s.cacheKey(), ref)
		if err == nil && head.Equal(result.ContentID) {
			s.log.Debug("database unchanged, skipping write", "ref", ref, "contentID", result.ContentID)
			result.Skipped = true
			s.metrics.ObserveSync(metrics.OpPush, s.provider.Name(), metrics.ResultSkipped, time.Since(start))
			return result, nil
		}
	}

	unlock := s.lock()
	_, err = s.provider.Write(ctx, ref, data)
	unlock()
	if err != nil {
		s.log.Error("push failed", "ref", ref, "err", err)
		s.metrics.ObserveSync(metrics.OpPush, s.provider.Name(), metrics.ResultError, time.Since(start))
		return result, fmt.Errorf("push %s: %w", ref, err)
	}

	if s.cache != nil {
		if _, err := s.cache.Put(s.cacheKey(), ref, data); err != nil {
			s.log.Warn("failed to cache pushed database", "ref", ref, "err", err)
		}
	}

	s.log.Info("database pushed",
		"ref", ref,
		"contentID", result.ContentID,
		"attachments", stats.Attachments,
		"icons", stats.Icons,
		"droppedAttachments", stats.DroppedAttachments,
		"droppedIcons", stats.DroppedIcons)
	s.metrics.ObserveSync(metrics.OpPush, s.provider.Name(), metrics.ResultOK, time.Since(start))
	return result, nil
}

// Pull reads and decodes the database at ref. When the provider is offline
// the cached copy is served instead.
func (s *Syncer) Pull(ctx context.Context, ref interfaces.FileReference) (*model.Database, PullResult, error) {
	start := time.Now()

	if err := ref.Validate(); err != nil {
		return nil, PullResult{}, err
	}

	if !s.provider.Available(ctx) {
		return s.pullFromCache(ref, start, interfaces.ErrBackendUnavailable)
	}

	unlock := s.lock()
	data, err := s.provider.Read(ctx, ref)
	unlock()
	if err != nil {
		if errors.Is(err, interfaces.ErrBackendUnavailable) && s.provider.Attributes().ImmediatelyOfferCacheIfOffline {
			return s.pullFromCache(ref, start, err)
		}
		s.metrics.ObserveSync(metrics.OpPull, s.provider.Name(), metrics.ResultError, time.Since(start))
		return nil, PullResult{}, fmt.Errorf("pull %s: %w", ref, err)
	}

	db, err := dbfile.Decode(data)
	if err != nil {
		s.metrics.ObserveSync(metrics.OpPull, s.provider.Name(), metrics.ResultError, time.Since(start))
		return nil, PullResult{}, fmt.Errorf("decode %s: %w", ref, err)
	}

	result := PullResult{ContentID: interfaces.ComputeID(data), StoredAt: time.Now().UTC()}
	if s.cache != nil {
		if _, err := s.cache.Put(s.cacheKey(), ref, data); err != nil {
			s.log.Warn("failed to cache pulled database", "ref", ref, "err", err)
		}
	}

	s.metrics.ObserveSync(metrics.OpPull, s.provider.Name(), metrics.ResultOK, time.Since(start))
	return db, result, nil
}

func (s *Syncer) pullFromCache(ref interfaces.FileReference, start time.Time, cause error) (*model.Database, PullResult, error) {
	fail := func(err error) (*model.Database, PullResult, error) {
		s.metrics.ObserveSync(metrics.OpPull, s.provider.Name(), metrics.ResultError, time.Since(start))
		return nil, PullResult{}, err
	}

	if s.cache == nil {
		return fail(fmt.Errorf("pull %s: %w", ref, cause))
	}

	entry, err := s.cache.Get(s.cacheKey(), ref)
	if err != nil {
		return fail(fmt.Errorf("pull %s: %w", ref, errors.Join(cause, err)))
	}

	db, err := dbfile.Decode(entry.Data)
	if err != nil {
		return fail(fmt.Errorf("decode cached %s: %w", ref, err))
	}

	s.log.Warn("provider offline, serving cached copy", "ref", ref, "storedAt", entry.StoredAt, "cause", cause)
	s.metrics.ObserveSync(metrics.OpPull, s.provider.Name(), metrics.ResultFromCache, time.Since(start))
	return db, PullResult{FromCache: true, ContentID: entry.ContentID, StoredAt: entry.StoredAt}, nil
}

// SignOut signs the provider out. A failed sign-out is returned unchanged
// and leaves the provider signed in.
func (s *Syncer) SignOut(ctx context.Context) error {
	start := time.Now()

	unlock := s.lock()
	err := s.provider.SignOut(ctx)
	unlock()
	if err != nil {
		s.log.Error("sign out failed", "err", err)
		s.metrics.ObserveSync(metrics.OpSignOut, s.provider.Name(), metrics.ResultError, time.Since(start))
		return err
	}

	s.log.Info("signed out")
	s.metrics.ObserveSync(metrics.OpSignOut, s.provider.Name(), metrics.ResultOK, time.Since(start))
	return nil
}
