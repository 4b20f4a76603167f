package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/ruteri/safesync/interfaces"
)

var fileAttributes = interfaces.ProviderAttributes{
	BrowsableNew:               true,
	BrowsableExisting:          true,
	SupportsConcurrentRequests: true,
}

// FileProvider implements a storage provider using a local directory.
// References map to files below the base directory.
type FileProvider struct {
	baseDir     string
	log         *slog.Logger
	locationURI string
}

// NewFileProvider creates a new file storage provider rooted at baseDir,
// creating the directory if it doesn't exist.
func NewFileProvider(baseDir string, log *slog.Logger) (*FileProvider, error) {
	if err := os.MkdirAll(baseDir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}

	return &FileProvider{
		baseDir:     baseDir,
		log:         log,
		locationURI: fmt.Sprintf("file://%s", baseDir),
	}, nil
}

// Read returns the file stored under ref.
// Returns ErrContentNotFound if the file doesn't exist.
func (p *FileProvider) Read(ctx context.Context, ref interfaces.FileReference) ([]byte, error) {
	filePath, err := p.filePath(ref)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(filePath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, interfaces.ErrContentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	p.log.Debug("Read database file",
		slog.String("path", filePath),
		slog.Int("size", len(data)))

	return data, nil
}

// Write replaces the file under ref. The new content is written to a
// temporary file first and renamed into place, so readers never observe a
// partial write.
func (p *FileProvider) Write(ctx context.Context, ref interfaces.FileReference, data []byte) (interfaces.ContentID, error) {
	id := interfaces.ComputeID(data)

	filePath, err := p.filePath(ref)
	if err != nil {
		return id, err
	}

	dir := filepath.Dir(filePath)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return id, fmt.Errorf("failed to create directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".safesync-*")
	if err != nil {
		return id, fmt.Errorf("failed to create temporary file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return id, fmt.Errorf("failed to write file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return id, fmt.Errorf("failed to write file: %w", err)
	}
	if err := os.Rename(tmp.Name(), filePath); err != nil {
		return id, fmt.Errorf("failed to replace file: %w", err)
	}

	p.log.Debug("Wrote database file",
		slog.String("path", filePath),
		slog.String("contentID", id.String()))

	return id, nil
}

// Available checks if the base directory exists.
func (p *FileProvider) Available(ctx context.Context) bool {
	_, err := os.Stat(p.baseDir)
	if err != nil {
		p.log.Debug("File provider unavailable", "err", err)
		return false
	}
	return true
}

// IsSignedIn always reports true; local files need no credentials.
func (p *FileProvider) IsSignedIn() bool {
	return true
}

// SignOut is a no-op.
func (p *FileProvider) SignOut(ctx context.Context) error {
	return nil
}

func (p *FileProvider) Attributes() interfaces.ProviderAttributes {
	return fileAttributes
}

func (p *FileProvider) Kind() interfaces.ProviderKind {
	return interfaces.LocalKind
}

// Name returns a unique identifier for this storage provider.
func (p *FileProvider) Name() string {
	return fmt.Sprintf("file-%s", filepath.Base(p.baseDir))
}

// LocationURI returns the URI that identifies this storage provider.
func (p *FileProvider) LocationURI() string {
	return p.locationURI
}

func (p *FileProvider) filePath(ref interfaces.FileReference) (string, error) {
	if err := ref.Validate(); err != nil {
		return "", err
	}
	return filepath.Join(p.baseDir, filepath.FromSlash(ref.Clean().String())), nil
}
