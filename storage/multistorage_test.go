package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/ruteri/safesync/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

const testRef = interfaces.FileReference("personal.db")

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestMultiProvider_Available(t *testing.T) {
	tests := []struct {
		name      string
		providers []bool
		expected  bool
	}{
		{
			name:      "all providers available",
			providers: []bool{true, true, true},
			expected:  true,
		},
		{
			name:      "some providers available",
			providers: []bool{false, true, false},
			expected:  true,
		},
		{
			name:      "no providers available",
			providers: []bool{false, false, false},
			expected:  false,
		},
		{
			name:      "no providers",
			providers: []bool{},
			expected:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var providers []interfaces.StorageProvider
			for i, available := range tt.providers {
				mockProvider := &MockStorageProvider{ProviderName: fmt.Sprintf("mock-A%x", i)}
				mockProvider.On("Available", mock.Anything).Return(available).Maybe()
				providers = append(providers, mockProvider)
			}

			multi := NewMultiProvider(providers, testLogger())
			assert.Equal(t, tt.expected, multi.Available(context.Background()))

			for _, p := range providers {
				p.(*MockStorageProvider).AssertExpectations(t)
			}
		})
	}
}

func TestMultiProvider_Read(t *testing.T) {
	testData := []byte("test data")
	testErr := errors.New("test error")

	tests := []struct {
		name         string
		setupMocks   func() []interfaces.StorageProvider
		expectedData []byte
		expectedErr  error
	}{
		{
			name: "first provider successful",
			setupMocks: func() []interfaces.StorageProvider {
				mock1 := &MockStorageProvider{ProviderName: "mock-A"}
				mock1.On("Available", mock.Anything).Return(true)
				mock1.On("Read", mock.Anything, testRef).Return(testData, nil)

				// Not consulted once the first read succeeds.
				mock2 := &MockStorageProvider{ProviderName: "mock-B"}

				return []interfaces.StorageProvider{mock1, mock2}
			},
			expectedData: testData,
		},
		{
			name: "first provider fails, second succeeds",
			setupMocks: func() []interfaces.StorageProvider {
				mock1 := &MockStorageProvider{ProviderName: "mock-A"}
				mock1.On("Available", mock.Anything).Return(true)
				mock1.On("Read", mock.Anything, testRef).Return(nil, testErr)

				mock2 := &MockStorageProvider{ProviderName: "mock-B"}
				mock2.On("Available", mock.Anything).Return(true)
				mock2.On("Read", mock.Anything, testRef).Return(testData, nil)

				return []interfaces.StorageProvider{mock1, mock2}
			},
			expectedData: testData,
		},
		{
			name: "all providers fail",
			setupMocks: func() []interfaces.StorageProvider {
				mock1 := &MockStorageProvider{ProviderName: "mock-A"}
				mock1.On("Available", mock.Anything).Return(true)
				mock1.On("Read", mock.Anything, testRef).Return(nil, testErr)

				mock2 := &MockStorageProvider{ProviderName: "mock-B"}
				mock2.On("Available", mock.Anything).Return(true)
				mock2.On("Read", mock.Anything, testRef).Return(nil, testErr)

				return []interfaces.StorageProvider{mock1, mock2}
			},
			expectedErr: testErr,
		},
		{
			name: "missing everywhere",
			setupMocks: func() []interfaces.StorageProvider {
				mock1 := &MockStorageProvider{ProviderName: "mock-A"}
				mock1.On("Available", mock.Anything).Return(true)
				mock1.On("Read", mock.Anything, testRef).Return(nil, interfaces.ErrContentNotFound)

				return []interfaces.StorageProvider{mock1}
			},
			expectedErr: interfaces.ErrContentNotFound,
		},
		{
			name: "unavailable providers are skipped",
			setupMocks: func() []interfaces.StorageProvider {
				mock1 := &MockStorageProvider{ProviderName: "mock-A"}
				mock1.On("Available", mock.Anything).Return(false)

				mock2 := &MockStorageProvider{ProviderName: "mock-B"}
				mock2.On("Available", mock.Anything).Return(true)
				mock2.On("Read", mock.Anything, testRef).Return(testData, nil)

				return []interfaces.StorageProvider{mock1, mock2}
			},
			expectedData: testData,
		},
		{
			name: "nothing reachable",
			setupMocks: func() []interfaces.StorageProvider {
				mock1 := &MockStorageProvider{ProviderName: "mock-A"}
				mock1.On("Available", mock.Anything).Return(false)

				return []interfaces.StorageProvider{mock1}
			},
			expectedErr: interfaces.ErrBackendUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			providers := tt.setupMocks()
			multi := NewMultiProvider(providers, testLogger())

			data, err := multi.Read(context.Background(), testRef)

			if tt.expectedErr != nil {
				assert.ErrorIs(t, err, tt.expectedErr)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.expectedData, data)

			for _, p := range providers {
				p.(*MockStorageProvider).AssertExpectations(t)
			}
		})
	}
}

func TestMultiProvider_Write(t *testing.T) {
	testData := []byte("test data")
	testID := interfaces.ComputeID(testData)
	testErr := errors.New("test error")

	tests := []struct {
		name        string
		setupMocks  func() []interfaces.StorageProvider
		expectedErr error
	}{
		{
			name: "all providers successful",
			setupMocks: func() []interfaces.StorageProvider {
				mock1 := &MockStorageProvider{ProviderName: "mock-A"}
				mock1.On("IsSignedIn").Return(true)
				mock1.On("Available", mock.Anything).Return(true)
				mock1.On("Write", mock.Anything, testRef, testData).Return(testID, nil)

				mock2 := &MockStorageProvider{ProviderName: "mock-B"}
				mock2.On("IsSignedIn").Return(true)
				mock2.On("Available", mock.Anything).Return(true)
				mock2.On("Write", mock.Anything, testRef, testData).Return(testID, nil)

				return []interfaces.StorageProvider{mock1, mock2}
			},
		},
		{
			name: "some providers fail",
			setupMocks: func() []interfaces.StorageProvider {
				mock1 := &MockStorageProvider{ProviderName: "mock-A"}
				mock1.On("IsSignedIn").Return(true)
				mock1.On("Available", mock.Anything).Return(true)
				mock1.On("Write", mock.Anything, testRef, testData).Return(testID, nil)

				mock2 := &MockStorageProvider{ProviderName: "mock-B"}
				mock2.On("IsSignedIn").Return(true)
				mock2.On("Available", mock.Anything).Return(true)
				mock2.On("Write", mock.Anything, testRef, testData).Return(interfaces.ContentID{}, testErr)

				return []interfaces.StorageProvider{mock1, mock2}
			},
		},
		{
			name: "all providers fail",
			setupMocks: func() []interfaces.StorageProvider {
				mock1 := &MockStorageProvider{ProviderName: "mock-A"}
				mock1.On("IsSignedIn").Return(true)
				mock1.On("Available", mock.Anything).Return(true)
				mock1.On("Write", mock.Anything, testRef, testData).Return(interfaces.ContentID{}, testErr)

				return []interfaces.StorageProvider{mock1}
			},
			expectedErr: testErr,
		},
		{
			name: "signed out and read-only providers are skipped",
			setupMocks: func() []interfaces.StorageProvider {
				mock1 := &MockStorageProvider{ProviderName: "mock-A"}
				mock1.On("IsSignedIn").Return(false)

				mock2 := &MockStorageProvider{ProviderName: "mock-B"}
				mock2.On("IsSignedIn").Return(true)
				mock2.On("Available", mock.Anything).Return(true)
				mock2.On("Write", mock.Anything, testRef, testData).Return(testID, interfaces.ErrReadOnly)

				mock3 := &MockStorageProvider{ProviderName: "mock-C"}
				mock3.On("IsSignedIn").Return(true)
				mock3.On("Available", mock.Anything).Return(true)
				mock3.On("Write", mock.Anything, testRef, testData).Return(testID, nil)

				return []interfaces.StorageProvider{mock1, mock2, mock3}
			},
		},
		{
			name: "nobody signed in",
			setupMocks: func() []interfaces.StorageProvider {
				mock1 := &MockStorageProvider{ProviderName: "mock-A"}
				mock1.On("IsSignedIn").Return(false)

				return []interfaces.StorageProvider{mock1}
			},
			expectedErr: interfaces.ErrNotSignedIn,
		},
		{
			name: "unavailable providers are skipped",
			setupMocks: func() []interfaces.StorageProvider {
				mock1 := &MockStorageProvider{ProviderName: "mock-A"}
				mock1.On("IsSignedIn").Return(true)
				mock1.On("Available", mock.Anything).Return(false)

				mock2 := &MockStorageProvider{ProviderName: "mock-B"}
				mock2.On("IsSignedIn").Return(true)
				mock2.On("Available", mock.Anything).Return(true)
				mock2.On("Write", mock.Anything, testRef, testData).Return(testID, nil)

				return []interfaces.StorageProvider{mock1, mock2}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			providers := tt.setupMocks()
			multi := NewMultiProvider(providers, testLogger())

			id, err := multi.Write(context.Background(), testRef, testData)

			if tt.expectedErr != nil {
				assert.ErrorIs(t, err, tt.expectedErr)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, testID, id)

			for _, p := range providers {
				p.(*MockStorageProvider).AssertExpectations(t)
			}
		})
	}
}

func TestMultiProvider_SignOut(t *testing.T) {
	revokeErr := errors.New("revoke failed")

	mock1 := &MockStorageProvider{ProviderName: "mock-A"}
	mock1.On("SignOut", mock.Anything).Return(nil)
	mock2 := &MockStorageProvider{ProviderName: "mock-B"}
	mock2.On("SignOut", mock.Anything).Return(revokeErr)
	mock3 := &MockStorageProvider{ProviderName: "mock-C"}
	mock3.On("SignOut", mock.Anything).Return(nil)

	multi := NewMultiProvider([]interfaces.StorageProvider{mock1, mock2, mock3}, testLogger())
	err := multi.SignOut(context.Background())

	assert.ErrorIs(t, err, revokeErr)
	assert.Contains(t, err.Error(), "mock-B")
	mock1.AssertExpectations(t)
	mock2.AssertExpectations(t)
	mock3.AssertExpectations(t)
}

func TestMultiProvider_Attributes(t *testing.T) {
	multi := NewMultiProvider([]interfaces.StorageProvider{
		&MockStorageProvider{ProviderName: "files", Attrs: fileAttributes},
		&MockStorageProvider{ProviderName: "vault", Attrs: vaultAttributes},
		&MockStorageProvider{ProviderName: "ipfs", Attrs: ipfsAttributes},
	}, testLogger())

	attrs := multi.Attributes()
	assert.False(t, attrs.SupportsConcurrentRequests)
	assert.True(t, attrs.RootFolderOnly)
	assert.False(t, attrs.BrowsableNew)
	assert.False(t, attrs.BrowsableExisting)
	assert.True(t, attrs.ImmediatelyOfferCacheIfOffline)
	assert.True(t, attrs.ProvidesIcons)
	assert.Equal(t, interfaces.MultiKind, multi.Kind())
	assert.Equal(t, "multi:[mock:files,mock:vault,mock:ipfs]", multi.LocationURI())
}

func TestMultiProvider_AttributesFromMembers(t *testing.T) {
	tests := []struct {
		name           string
		members        []interfaces.ProviderAttributes
		wantCache      bool
		wantIcons      bool
		wantConcurrent bool
	}{
		{
			name:           "no member offers cache",
			members:        []interfaces.ProviderAttributes{fileAttributes, s3Attributes},
			wantCache:      false,
			wantIcons:      true,
			wantConcurrent: fileAttributes.SupportsConcurrentRequests && s3Attributes.SupportsConcurrentRequests,
		},
		{
			name:           "one member offers cache",
			members:        []interfaces.ProviderAttributes{s3Attributes, vaultAttributes},
			wantCache:      true,
			wantIcons:      true,
			wantConcurrent: false,
		},
		{
			name:           "no member provides icons",
			members:        []interfaces.ProviderAttributes{{SupportsConcurrentRequests: true}, vaultAttributes},
			wantCache:      true,
			wantIcons:      false,
			wantConcurrent: false,
		},
		{
			name:           "no members",
			wantCache:      false,
			wantIcons:      false,
			wantConcurrent: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var providers []interfaces.StorageProvider
			for i, attrs := range tt.members {
				providers = append(providers, &MockStorageProvider{ProviderName: fmt.Sprintf("member-%d", i), Attrs: attrs})
			}
			attrs := NewMultiProvider(providers, testLogger()).Attributes()
			assert.Equal(t, tt.wantCache, attrs.ImmediatelyOfferCacheIfOffline)
			assert.Equal(t, tt.wantIcons, attrs.ProvidesIcons)
			assert.Equal(t, tt.wantConcurrent, attrs.SupportsConcurrentRequests)
		})
	}
}
