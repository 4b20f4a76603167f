package safesync

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ruteri/safesync/cache"
	"github.com/ruteri/safesync/dbfile"
	"github.com/ruteri/safesync/interfaces"
	"github.com/ruteri/safesync/metrics"
	"github.com/ruteri/safesync/model"
	"github.com/ruteri/safesync/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const testRef = interfaces.FileReference("personal.db")

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func openCache(t *testing.T) *cache.Cache {
	t.Helper()
	c, err := cache.Open(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func newProvider(attrs interfaces.ProviderAttributes) *storage.MockStorageProvider {
	return &storage.MockStorageProvider{ProviderName: "mock", Attrs: attrs}
}

func concurrent() interfaces.ProviderAttributes {
	return interfaces.ProviderAttributes{SupportsConcurrentRequests: true}
}

// testDatabase has one referenced attachment, one orphaned attachment and a custom icon.
func testDatabase() *model.Database {
	db := model.NewDatabase("Root")
	used := db.AddAttachment([]byte("scan of passport"), false)
	db.AddAttachment([]byte("orphan"), false)
	icon := db.AddIcon([]byte("png"))

	entry := db.Root.AddChild(model.NewEntry("Passport"))
	entry.AddAttachment("passport.pdf", used)
	entry.SetCustomIcon(icon)
	return db
}

func TestSyncer_PushSkipsUnchanged(t *testing.T) {
	p := newProvider(concurrent())
	p.On("Write", mock.Anything, testRef, mock.Anything).Return(interfaces.ContentID{}, nil)

	m := metrics.NewMetrics("safesync")
	s := NewSyncer(p, openCache(t), m, testLogger())
	db := testDatabase()

	first, err := s.Push(context.Background(), testRef, db)
	require.NoError(t, err)
	assert.False(t, first.Skipped)
	assert.Equal(t, 1, first.Stats.Attachments)
	assert.Equal(t, 1, first.Stats.DroppedAttachments)
	assert.Equal(t, 1, first.Stats.Icons)

	second, err := s.Push(context.Background(), testRef, db)
	require.NoError(t, err)
	assert.True(t, second.Skipped)
	assert.Equal(t, first.ContentID, second.ContentID)
	p.AssertNumberOfCalls(t, "Write", 1)

	db.Root.AddChild(model.NewEntry("Bank"))
	third, err := s.Push(context.Background(), testRef, db)
	require.NoError(t, err)
	assert.False(t, third.Skipped)
	assert.NotEqual(t, first.ContentID, third.ContentID)
	p.AssertNumberOfCalls(t, "Write", 2)
}

func TestSyncer_PushWritesEncodedDocument(t *testing.T) {
	p := newProvider(concurrent())
	var written []byte
	p.On("Write", mock.Anything, testRef, mock.Anything).
		Run(func(args mock.Arguments) { written = args.Get(2).([]byte) }).
		Return(interfaces.ContentID{}, nil)

	s := NewSyncer(p, nil, nil, testLogger())
	db := testDatabase()

	result, err := s.Push(context.Background(), testRef, db)
	require.NoError(t, err)

	expected, err := dbfile.Encode(db)
	require.NoError(t, err)
	assert.Equal(t, expected, written)
	assert.Equal(t, interfaces.ComputeID(expected), result.ContentID)

	// Without a cache every push is written.
	_, err = s.Push(context.Background(), testRef, db)
	require.NoError(t, err)
	p.AssertNumberOfCalls(t, "Write", 2)
}

func TestSyncer_PushSharedCacheAcrossLocations(t *testing.T) {
	dir := t.TempDir()
	newFile := func(sub string) *storage.FileProvider {
		p, err := storage.NewFileProvider(filepath.Join(dir, sub, "safes"), testLogger())
		require.NoError(t, err)
		return p
	}
	a, b, extra := newFile("a"), newFile("b"), newFile("extra")
	require.Equal(t, a.Name(), b.Name())

	c := openCache(t)
	db := testDatabase()
	ctx := context.Background()

	first, err := NewSyncer(a, c, nil, testLogger()).Push(ctx, testRef, db)
	require.NoError(t, err)
	assert.False(t, first.Skipped)

	second, err := NewSyncer(b, c, nil, testLogger()).Push(ctx, testRef, db)
	require.NoError(t, err)
	assert.False(t, second.Skipped)
	assert.FileExists(t, filepath.Join(dir, "b", "safes", testRef.String()))

	multi := storage.NewMultiProvider([]interfaces.StorageProvider{a}, testLogger())
	_, err = NewSyncer(multi, c, nil, testLogger()).Push(ctx, testRef, db)
	require.NoError(t, err)

	grown := storage.NewMultiProvider([]interfaces.StorageProvider{a, extra}, testLogger())
	result, err := NewSyncer(grown, c, nil, testLogger()).Push(ctx, testRef, db)
	require.NoError(t, err)
	assert.False(t, result.Skipped)
	written, err := os.ReadFile(filepath.Join(dir, "extra", "safes", testRef.String()))
	require.NoError(t, err)
	assert.Equal(t, result.ContentID, interfaces.ComputeID(written))

	again, err := NewSyncer(grown, c, nil, testLogger()).Push(ctx, testRef, db)
	require.NoError(t, err)
	assert.True(t, again.Skipped)
}

func TestSyncer_PushFailure(t *testing.T) {
	p := newProvider(concurrent())
	p.On("Write", mock.Anything, testRef, mock.Anything).Return(interfaces.ContentID{}, interfaces.ErrNotSignedIn)

	c := openCache(t)
	s := NewSyncer(p, c, nil, testLogger())

	_, err := s.Push(context.Background(), testRef, testDatabase())
	assert.ErrorIs(t, err, interfaces.ErrNotSignedIn)

	_, err = c.Head(p.LocationURI(), testRef)
	assert.ErrorIs(t, err, cache.ErrNotCached)
}

func TestSyncer_PushRejectsBadInput(t *testing.T) {
	p := newProvider(concurrent())
	s := NewSyncer(p, nil, nil, testLogger())

	_, err := s.Push(context.Background(), "../personal.db", testDatabase())
	assert.ErrorIs(t, err, interfaces.ErrInvalidReference)

	_, err = s.Push(context.Background(), testRef, nil)
	assert.ErrorIs(t, err, dbfile.ErrNilDatabase)

	p.AssertNotCalled(t, "Write", mock.Anything, mock.Anything, mock.Anything)
}

func TestSyncer_Pull(t *testing.T) {
	data, err := dbfile.Encode(testDatabase())
	require.NoError(t, err)

	p := newProvider(concurrent())
	p.On("Available", mock.Anything).Return(true)
	p.On("Read", mock.Anything, testRef).Return(data, nil)

	c := openCache(t)
	s := NewSyncer(p, c, nil, testLogger())

	db, result, err := s.Pull(context.Background(), testRef)
	require.NoError(t, err)
	assert.False(t, result.FromCache)
	assert.Equal(t, interfaces.ComputeID(data), result.ContentID)
	require.NotNil(t, db.Root)
	require.Len(t, db.Root.Children, 1)
	assert.Equal(t, "Passport", db.Root.Children[0].Title)

	head, err := c.Head(p.LocationURI(), testRef)
	require.NoError(t, err)
	assert.Equal(t, result.ContentID, head)
}

func TestSyncer_PullOffline(t *testing.T) {
	data, err := dbfile.Encode(testDatabase())
	require.NoError(t, err)

	tests := []struct {
		name       string
		available  bool
		readErr    error
		attrs      interfaces.ProviderAttributes
		cached     bool
		wantCached bool
		wantErr    []error
	}{
		{
			name:       "provider unavailable serves cache",
			available:  false,
			cached:     true,
			wantCached: true,
		},
		{
			name:       "backend unavailable with offer cache attribute",
			available:  true,
			readErr:    interfaces.ErrBackendUnavailable,
			attrs:      interfaces.ProviderAttributes{ImmediatelyOfferCacheIfOffline: true},
			cached:     true,
			wantCached: true,
		},
		{
			name:      "backend unavailable without offer cache attribute",
			available: true,
			readErr:   interfaces.ErrBackendUnavailable,
			cached:    true,
			wantErr:   []error{interfaces.ErrBackendUnavailable},
		},
		{
			name:      "not found never falls back",
			available: true,
			readErr:   interfaces.ErrContentNotFound,
			attrs:     interfaces.ProviderAttributes{ImmediatelyOfferCacheIfOffline: true},
			cached:    true,
			wantErr:   []error{interfaces.ErrContentNotFound},
		},
		{
			name:      "unavailable with empty cache",
			available: false,
			wantErr:   []error{interfaces.ErrBackendUnavailable, cache.ErrNotCached},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newProvider(tt.attrs)
			p.On("Available", mock.Anything).Return(tt.available)
			p.On("Read", mock.Anything, testRef).Return(nil, tt.readErr)

			c := openCache(t)
			if tt.cached {
				_, err := c.Put(p.LocationURI(), testRef, data)
				require.NoError(t, err)
			}

			s := NewSyncer(p, c, nil, testLogger())
			db, result, err := s.Pull(context.Background(), testRef)

			if len(tt.wantErr) > 0 {
				for _, want := range tt.wantErr {
					assert.ErrorIs(t, err, want)
				}
				assert.Nil(t, db)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantCached, result.FromCache)
			assert.Equal(t, interfaces.ComputeID(data), result.ContentID)
			require.NotNil(t, db)
			assert.Len(t, db.Root.Children, 1)
		})
	}
}

func TestSyncer_PullUnavailableWithoutCache(t *testing.T) {
	p := newProvider(concurrent())
	p.On("Available", mock.Anything).Return(false)

	s := NewSyncer(p, nil, nil, testLogger())
	_, _, err := s.Pull(context.Background(), testRef)
	assert.ErrorIs(t, err, interfaces.ErrBackendUnavailable)
	p.AssertNotCalled(t, "Read", mock.Anything, mock.Anything)
}

func TestSyncer_SignOut(t *testing.T) {
	denied := errors.New("token revocation denied")

	p := newProvider(concurrent())
	p.On("SignOut", mock.Anything).Return(denied).Once()
	p.On("SignOut", mock.Anything).Return(nil).Once()

	m := metrics.NewMetrics("safesync")
	s := NewSyncer(p, nil, m, testLogger())

	assert.ErrorIs(t, s.SignOut(context.Background()), denied)
	assert.NoError(t, s.SignOut(context.Background()))
	p.AssertExpectations(t)
}

func TestSyncer_SerializesNonConcurrentProviders(t *testing.T) {
	tests := []struct {
		name       string
		concurrent bool
		wantMax    int32
	}{
		{name: "serialized", concurrent: false, wantMax: 1},
		{name: "concurrent", concurrent: true, wantMax: 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newProvider(interfaces.ProviderAttributes{SupportsConcurrentRequests: tt.concurrent})

			var inFlight, maxInFlight int32
			var gate sync.WaitGroup
			gate.Add(4)
			p.On("Write", mock.Anything, mock.Anything, mock.Anything).
				Run(func(mock.Arguments) {
					n := atomic.AddInt32(&inFlight, 1)
					for {
						old := atomic.LoadInt32(&maxInFlight)
						if n <= old || atomic.CompareAndSwapInt32(&maxInFlight, old, n) {
							break
						}
					}
					if tt.concurrent {
						// Hold every writer until all four are inside Write.
						gate.Done()
						gate.Wait()
					} else {
						time.Sleep(5 * time.Millisecond)
					}
					atomic.AddInt32(&inFlight, -1)
				}).
				Return(interfaces.ContentID{}, nil)

			s := NewSyncer(p, nil, nil, testLogger())

			var wg sync.WaitGroup
			for i := 0; i < 4; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					ref := interfaces.FileReference([]string{"a.db", "b.db", "c.db", "d.db"}[i])
					_, err := s.Push(context.Background(), ref, testDatabase())
					assert.NoError(t, err)
				}(i)
			}
			wg.Wait()

			assert.Equal(t, tt.wantMax, atomic.LoadInt32(&maxInFlight))
		})
	}
}
