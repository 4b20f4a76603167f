package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path"
	"strings"
	"sync"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/ruteri/safesync/interfaces"
)

var minioAttributes = interfaces.ProviderAttributes{
	ProvidesIcons:              true,
	BrowsableNew:               true,
	BrowsableExisting:          true,
	SupportsConcurrentRequests: true,
}

// MinIOConfig holds MinIO connection settings.
type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Bucket    string
	Prefix    string
}

// MinIOProvider implements a storage provider on a MinIO bucket.
type MinIOProvider struct {
	cfg         MinIOConfig
	anon        *minio.Client
	log         *slog.Logger
	locationURI string

	mu           sync.RWMutex
	mc           *minio.Client
	bucketExists bool
}

// NewMinIOProvider creates a MinIO provider. With credentials it starts signed in.
func NewMinIOProvider(cfg MinIOConfig, log *slog.Logger) (*MinIOProvider, error) {
	anon, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4("", "", ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client: %w", err)
	}

	p := &MinIOProvider{
		cfg:         cfg,
		anon:        anon,
		log:         log,
		locationURI: fmt.Sprintf("minio://%s/%s/%s", cfg.Endpoint, cfg.Bucket, strings.Trim(cfg.Prefix, "/")),
	}
	p.cfg.Prefix = strings.Trim(cfg.Prefix, "/")

	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		mc, err := minio.New(cfg.Endpoint, &minio.Options{
			Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
			Secure: cfg.UseSSL,
		})
		if err != nil {
			return nil, fmt.Errorf("minio client: %w", err)
		}
		p.mc = mc
	}

	return p, nil
}

// Read downloads the object under ref.
func (p *MinIOProvider) Read(ctx context.Context, ref interfaces.FileReference) ([]byte, error) {
	name, err := p.objectName(ref)
	if err != nil {
		return nil, err
	}

	mc := p.client()
	if mc == nil {
		mc = p.anon
	}

	obj, err := mc.GetObject(ctx, p.cfg.Bucket, name, minio.GetObjectOptions{})
	if err != nil {
		return nil, p.classify(err, name)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, p.classify(err, name)
	}

	p.log.Debug("Read database file from MinIO",
		slog.String("bucket", p.cfg.Bucket),
		slog.String("name", name),
		slog.Int("size", len(data)))

	return data, nil
}

// Write uploads data under ref, creating the bucket on first use.
func (p *MinIOProvider) Write(ctx context.Context, ref interfaces.FileReference, data []byte) (interfaces.ContentID, error) {
	id := interfaces.ComputeID(data)

	name, err := p.objectName(ref)
	if err != nil {
		return id, err
	}

	mc := p.client()
	if mc == nil {
		return id, interfaces.ErrNotSignedIn
	}

	if err := p.ensureBucket(ctx, mc); err != nil {
		return id, err
	}

	_, err = mc.PutObject(ctx, p.cfg.Bucket, name, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: "application/octet-stream",
	})
	if err != nil {
		return id, fmt.Errorf("upload %s/%s: %w", p.cfg.Bucket, name, err)
	}

	p.log.Debug("Wrote database file to MinIO",
		slog.String("bucket", p.cfg.Bucket),
		slog.String("name", name),
		slog.String("contentID", id.String()))

	return id, nil
}

func (p *MinIOProvider) ensureBucket(ctx context.Context, mc *minio.Client) error {
	p.mu.RLock()
	known := p.bucketExists
	p.mu.RUnlock()
	if known {
		return nil
	}

	exists, err := mc.BucketExists(ctx, p.cfg.Bucket)
	if err != nil {
		return fmt.Errorf("%w: check bucket %s: %w", interfaces.ErrBackendUnavailable, p.cfg.Bucket, err)
	}
	if !exists {
		if err := mc.MakeBucket(ctx, p.cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("create bucket %s: %w", p.cfg.Bucket, err)
		}
		p.log.Info("bucket created", slog.String("bucket", p.cfg.Bucket))
	}

	p.mu.Lock()
	p.bucketExists = true
	p.mu.Unlock()
	return nil
}

// Available checks if MinIO is reachable.
func (p *MinIOProvider) Available(ctx context.Context) bool {
	mc := p.client()
	if mc == nil {
		mc = p.anon
	}
	_, err := mc.BucketExists(ctx, p.cfg.Bucket)
	if err != nil {
		p.log.Debug("MinIO provider unavailable", "err", err)
		return false
	}
	return true
}

func (p *MinIOProvider) IsSignedIn() bool {
	return p.client() != nil
}

// SignOut clears the credentialed client.
func (p *MinIOProvider) SignOut(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.mc = nil
	return nil
}

func (p *MinIOProvider) Attributes() interfaces.ProviderAttributes {
	return minioAttributes
}

func (p *MinIOProvider) Kind() interfaces.ProviderKind {
	return interfaces.MinIOKind
}

// Name returns a unique identifier for this storage provider.
func (p *MinIOProvider) Name() string {
	return fmt.Sprintf("minio-%s", p.cfg.Bucket)
}

// LocationURI returns the URI that identifies this storage provider.
func (p *MinIOProvider) LocationURI() string {
	return p.locationURI
}

func (p *MinIOProvider) client() *minio.Client {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.mc
}

func (p *MinIOProvider) objectName(ref interfaces.FileReference) (string, error) {
	if err := ref.Validate(); err != nil {
		return "", err
	}
	if p.cfg.Prefix == "" {
		return ref.Clean().String(), nil
	}
	return path.Join(p.cfg.Prefix, ref.Clean().String()), nil
}

func (p *MinIOProvider) classify(err error, name string) error {
	resp := minio.ToErrorResponse(err)
	switch {
	case resp.Code == "NoSuchKey" || resp.StatusCode == http.StatusNotFound:
		return interfaces.ErrContentNotFound
	case resp.Code == "":
		return fmt.Errorf("%w: get %s/%s: %w", interfaces.ErrBackendUnavailable, p.cfg.Bucket, name, err)
	default:
		return fmt.Errorf("get %s/%s: %w", p.cfg.Bucket, name, err)
	}
}
