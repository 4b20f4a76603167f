package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"
	"time"

	shell "github.com/ipfs/go-ipfs-api"
	"github.com/ruteri/safesync/interfaces"
)

var ipfsAttributes = interfaces.ProviderAttributes{
	ProvidesIcons:              true,
	BrowsableNew:               true,
	RootFolderOnly:             true,
	SupportsConcurrentRequests: true,
}

// IPFSProvider implements a storage provider on the mutable file system
// (MFS) of an IPFS node. Database files live in a single MFS directory.
type IPFSProvider struct {
	shell       *shell.Shell
	host        string
	port        string
	root        string
	log         *slog.Logger
	locationURI string
}

// NewIPFSProvider creates a new IPFS storage provider connected to the
// node API at host:port, storing files under the MFS directory root.
func NewIPFSProvider(host, port, root string, timeout time.Duration, log *slog.Logger) (*IPFSProvider, error) {
	apiURL := fmt.Sprintf("%s:%s", host, port)

	root = "/" + strings.Trim(root, "/")

	sh := shell.NewShell(apiURL)
	sh.SetTimeout(timeout)

	return &IPFSProvider{
		shell:       sh,
		host:        host,
		port:        port,
		root:        root,
		log:         log,
		locationURI: fmt.Sprintf("ipfs://%s%s?timeout=%s", apiURL, root, timeout),
	}, nil
}

// Read returns the MFS file under ref.
// Returns ErrContentNotFound if the file doesn't exist or ErrBackendUnavailable
// if the IPFS node is not accessible.
func (p *IPFSProvider) Read(ctx context.Context, ref interfaces.FileReference) ([]byte, error) {
	start := time.Now()
	mfsPath, err := p.mfsPath(ref)
	if err != nil {
		return nil, err
	}

	if !p.shell.IsUp() {
		p.log.Warn("IPFS node unavailable",
			slog.String("host", p.host),
			slog.String("port", p.port))
		return nil, interfaces.ErrBackendUnavailable
	}

	reader, err := p.shell.FilesRead(ctx, mfsPath)
	if err != nil {
		if strings.Contains(err.Error(), "does not exist") {
			p.log.Debug("Database file not found in IPFS",
				slog.String("path", mfsPath),
				slog.Duration("duration", time.Since(start)))
			return nil, interfaces.ErrContentNotFound
		}

		p.log.Error("Failed to read file from IPFS",
			slog.String("path", mfsPath),
			"err", err,
			slog.Duration("duration", time.Since(start)))
		return nil, fmt.Errorf("failed to read file from IPFS: %w", err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read data from IPFS: %w", err)
	}

	p.log.Debug("Read database file from IPFS",
		slog.String("path", mfsPath),
		slog.Int("size", len(data)),
		slog.Duration("duration", time.Since(start)))

	return data, nil
}

// Write replaces the MFS file under ref.
func (p *IPFSProvider) Write(ctx context.Context, ref interfaces.FileReference, data []byte) (interfaces.ContentID, error) {
	id := interfaces.ComputeID(data)

	mfsPath, err := p.mfsPath(ref)
	if err != nil {
		return id, err
	}

	if !p.shell.IsUp() {
		return id, interfaces.ErrBackendUnavailable
	}

	err = p.shell.FilesWrite(ctx, mfsPath, bytes.NewReader(data),
		shell.FilesWrite.Create(true),
		shell.FilesWrite.Parents(true),
		shell.FilesWrite.Truncate(true))
	if err != nil {
		return id, fmt.Errorf("failed to write file to IPFS: %w", err)
	}

	attrs := []any{
		slog.String("path", mfsPath),
		slog.String("contentID", id.String()),
	}
	if stat, err := p.shell.FilesStat(ctx, mfsPath); err == nil {
		attrs = append(attrs, slog.String("ipfsCID", stat.Hash))
	}
	p.log.Debug("Wrote database file to IPFS", attrs...)

	return id, nil
}

// Available checks if the IPFS node is accessible.
func (p *IPFSProvider) Available(ctx context.Context) bool {
	return p.shell.IsUp()
}

// IsSignedIn always reports true; the node API is unauthenticated.
func (p *IPFSProvider) IsSignedIn() bool {
	return true
}

// SignOut is a no-op.
func (p *IPFSProvider) SignOut(ctx context.Context) error {
	return nil
}

func (p *IPFSProvider) Attributes() interfaces.ProviderAttributes {
	return ipfsAttributes
}

func (p *IPFSProvider) Kind() interfaces.ProviderKind {
	return interfaces.IPFSKind
}

// Name returns a unique identifier for this storage provider.
func (p *IPFSProvider) Name() string {
	return fmt.Sprintf("ipfs-%s-%s", p.host, p.port)
}

// LocationURI returns the URI that identifies this storage provider.
func (p *IPFSProvider) LocationURI() string {
	return p.locationURI
}

// mfsPath maps ref into the provider directory. Only files directly in the
// directory are addressable.
func (p *IPFSProvider) mfsPath(ref interfaces.FileReference) (string, error) {
	if err := ref.Validate(); err != nil {
		return "", err
	}
	clean := ref.Clean().String()
	if strings.Contains(clean, "/") {
		return "", fmt.Errorf("%w: %q is not in the root folder", interfaces.ErrInvalidReference, clean)
	}
	return path.Join(p.root, clean), nil
}
