package storage

import (
	"context"

	"github.com/ruteri/safesync/interfaces"
	"github.com/stretchr/testify/mock"
)

// MockStorageProvider mocks the StorageProvider interface. Read, Write,
// Available, IsSignedIn and SignOut are recorded calls; the descriptive
// methods return the struct fields.
type MockStorageProvider struct {
	mock.Mock
	ProviderName string
	Attrs        interfaces.ProviderAttributes
}

// Read mocks the Read method
func (m *MockStorageProvider) Read(ctx context.Context, ref interfaces.FileReference) ([]byte, error) {
	args := m.Called(ctx, ref)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

// Write mocks the Write method
func (m *MockStorageProvider) Write(ctx context.Context, ref interfaces.FileReference, data []byte) (interfaces.ContentID, error) {
	args := m.Called(ctx, ref, data)
	return args.Get(0).(interfaces.ContentID), args.Error(1)
}

// Available mocks the Available method
func (m *MockStorageProvider) Available(ctx context.Context) bool {
	args := m.Called(ctx)
	return args.Bool(0)
}

// IsSignedIn mocks the IsSignedIn method
func (m *MockStorageProvider) IsSignedIn() bool {
	args := m.Called()
	return args.Bool(0)
}

// SignOut mocks the SignOut method
func (m *MockStorageProvider) SignOut(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockStorageProvider) Attributes() interfaces.ProviderAttributes {
	return m.Attrs
}

func (m *MockStorageProvider) Kind() interfaces.ProviderKind {
	return interfaces.LocalKind
}

func (m *MockStorageProvider) Name() string {
	return m.ProviderName
}

func (m *MockStorageProvider) LocationURI() string {
	return "mock:" + m.ProviderName
}
