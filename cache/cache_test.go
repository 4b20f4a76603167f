package cache

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/ruteri/safesync/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestCache(t *testing.T) *Cache {
	t.Helper()
	c, err := Open(filepath.Join(t.TempDir(), "nested", "cache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestCache_PutGet(t *testing.T) {
	c := openTestCache(t)
	before := time.Now().Add(-time.Second)

	id, err := c.Put("s3-bucket", "personal.db", []byte("v1"))
	require.NoError(t, err)
	assert.Equal(t, interfaces.ComputeID([]byte("v1")), id)

	entry, err := c.Get("s3-bucket", "personal.db")
	require.NoError(t, err)
	assert.Equal(t, []byte("v1"), entry.Data)
	assert.Equal(t, id, entry.ContentID)
	assert.True(t, entry.StoredAt.After(before))

	head, err := c.Head("s3-bucket", "personal.db")
	require.NoError(t, err)
	assert.Equal(t, id, head)

	// Overwrite replaces both the copy and the head.
	id2, err := c.Put("s3-bucket", "personal.db", []byte("v2"))
	require.NoError(t, err)
	head, err = c.Head("s3-bucket", "personal.db")
	require.NoError(t, err)
	assert.Equal(t, id2, head)
}

func TestCache_NotCached(t *testing.T) {
	c := openTestCache(t)

	_, err := c.Get("unknown", "personal.db")
	assert.ErrorIs(t, err, ErrNotCached)
	_, err = c.Head("unknown", "personal.db")
	assert.ErrorIs(t, err, ErrNotCached)

	_, err = c.Put("known", "a.db", []byte("a"))
	require.NoError(t, err)
	_, err = c.Get("known", "b.db")
	assert.ErrorIs(t, err, ErrNotCached)
}

func TestCache_ProvidersAreIsolated(t *testing.T) {
	c := openTestCache(t)

	_, err := c.Put("file-a", "personal.db", []byte("a"))
	require.NoError(t, err)
	_, err = c.Put("file-b", "personal.db", []byte("b"))
	require.NoError(t, err)

	a, err := c.Get("file-a", "personal.db")
	require.NoError(t, err)
	b, err := c.Get("file-b", "personal.db")
	require.NoError(t, err)
	assert.Equal(t, []byte("a"), a.Data)
	assert.Equal(t, []byte("b"), b.Data)
}

func TestCache_DeleteAndList(t *testing.T) {
	c := openTestCache(t)

	for _, ref := range []interfaces.FileReference{"work.db", "personal.db", "team/shared.db"} {
		_, err := c.Put("vault", ref, []byte(ref))
		require.NoError(t, err)
	}

	refs, err := c.List("vault")
	require.NoError(t, err)
	assert.Equal(t, []interfaces.FileReference{"personal.db", "team/shared.db", "work.db"}, refs)

	require.NoError(t, c.Delete("vault", "work.db"))
	require.NoError(t, c.Delete("vault", "work.db"))
	require.NoError(t, c.Delete("nobody", "work.db"))

	_, err = c.Get("vault", "work.db")
	assert.ErrorIs(t, err, ErrNotCached)

	refs, err = c.List("vault")
	require.NoError(t, err)
	assert.Len(t, refs, 2)

	empty, err := c.List("nobody")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestCache_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")

	c, err := Open(path)
	require.NoError(t, err)
	_, err = c.Put("file", "personal.db", []byte("persisted"))
	require.NoError(t, err)
	require.NoError(t, c.Close())

	c, err = Open(path)
	require.NoError(t, err)
	defer c.Close()

	entry, err := c.Get("file", "personal.db")
	require.NoError(t, err)
	assert.Equal(t, []byte("persisted"), entry.Data)
}
