// Package cache keeps the last synchronized copy of every database file in a
// local bbolt store, so that a database stays readable while its storage
// provider is offline.
//
// Entries are keyed by provider location URI and file reference. Besides the full
// copy the store keeps the content ID of the last synced bytes, which lets
// callers detect an unchanged database without reading the blob back.
package cache

import (
	"bytes"
	"encoding/gob"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ruteri/safesync/interfaces"
	"go.etcd.io/bbolt"
)

var (
	bucketEntries = []byte("entries")
	bucketHeads   = []byte("heads")
)

// ErrNotCached is returned when no copy exists for a provider and reference.
var ErrNotCached = errors.New("cache: entry not cached")

// Entry is a cached database file.
type Entry struct {
	ContentID interfaces.ContentID
	Data      []byte
	StoredAt  time.Time
}

// Cache wraps a bbolt database holding cached database files.
type Cache struct {
	db *bbolt.DB
}

// Open opens or creates the cache at path. The parent directory is created
// if it does not exist.
func Open(path string) (*Cache, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("cache: create directory: %w", err)
	}
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("cache: open bolt db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{bucketEntries, bucketHeads} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("create bucket %q: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("cache: create buckets: %w", err)
	}

	return &Cache{db: db}, nil
}

// Close closes the underlying database.
func (c *Cache) Close() error { return c.db.Close() }

// Put stores data as the latest copy of ref on provider and returns its content ID.
func (c *Cache) Put(provider string, ref interfaces.FileReference, data []byte) (interfaces.ContentID, error) {
	entry := Entry{
		ContentID: interfaces.ComputeID(data),
		Data:      data,
		StoredAt:  time.Now().UTC(),
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(entry); err != nil {
		return entry.ContentID, fmt.Errorf("cache: encode entry: %w", err)
	}

	err := c.db.Update(func(tx *bbolt.Tx) error {
		entries, err := tx.Bucket(bucketEntries).CreateBucketIfNotExists([]byte(provider))
		if err != nil {
			return err
		}
		heads, err := tx.Bucket(bucketHeads).CreateBucketIfNotExists([]byte(provider))
		if err != nil {
			return err
		}
		if err := entries.Put([]byte(ref), buf.Bytes()); err != nil {
			return err
		}
		return heads.Put([]byte(ref), entry.ContentID.Bytes())
	})
	if err != nil {
		return entry.ContentID, fmt.Errorf("cache: put %s/%s: %w", provider, ref, err)
	}
	return entry.ContentID, nil
}

// Get returns the cached copy of ref on provider.
func (c *Cache) Get(provider string, ref interfaces.FileReference) (Entry, error) {
	var entry Entry
	err := c.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketEntries).Bucket([]byte(provider))
		if b == nil {
			return ErrNotCached
		}
		raw := b.Get([]byte(ref))
		if raw == nil {
			return ErrNotCached
		}
		// raw is only valid inside the transaction; gob copies what it decodes.
		return gob.NewDecoder(bytes.NewReader(raw)).Decode(&entry)
	})
	if errors.Is(err, ErrNotCached) {
		return Entry{}, err
	}
	if err != nil {
		return Entry{}, fmt.Errorf("cache: get %s/%s: %w", provider, ref, err)
	}
	return entry, nil
}

// Head returns the content ID of the cached copy without loading it.
func (c *Cache) Head(provider string, ref interfaces.FileReference) (interfaces.ContentID, error) {
	var id interfaces.ContentID
	err := c.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketHeads).Bucket([]byte(provider))
		if b == nil {
			return ErrNotCached
		}
		raw := b.Get([]byte(ref))
		if raw == nil {
			return ErrNotCached
		}
		var err error
		id, err = interfaces.NewContentIDFromBytes(raw)
		return err
	})
	return id, err
}

// Delete removes the cached copy of ref on provider. Deleting a missing
// entry is not an error.
func (c *Cache) Delete(provider string, ref interfaces.FileReference) error {
	return c.db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{bucketEntries, bucketHeads} {
			b := tx.Bucket(name).Bucket([]byte(provider))
			if b == nil {
				continue
			}
			if err := b.Delete([]byte(ref)); err != nil {
				return fmt.Errorf("cache: delete %s/%s: %w", provider, ref, err)
			}
		}
		return nil
	})
}

// List returns the references cached for provider in key order.
func (c *Cache) List(provider string) ([]interfaces.FileReference, error) {
	refs := []interfaces.FileReference{}
	err := c.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketHeads).Bucket([]byte(provider))
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, _ []byte) error {
			refs = append(refs, interfaces.FileReference(k))
			return nil
		})
	})
	return refs, err
}
