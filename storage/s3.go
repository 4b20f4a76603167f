package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/ruteri/safesync/interfaces"
)

var s3Attributes = interfaces.ProviderAttributes{
	ProvidesIcons:              true,
	BrowsableNew:               true,
	BrowsableExisting:          true,
	SupportsConcurrentRequests: true,
}

// S3Provider implements a storage provider using Amazon S3 or compatible services.
// Reads go through an anonymous client; writes need credentials.
type S3Provider struct {
	client      *s3.S3
	bucketName  string
	prefix      string
	log         *slog.Logger
	locationURI string

	mu          sync.RWMutex
	writeClient *s3.S3
}

// NewS3Provider creates a new S3 storage provider.
// If accessKey and secretKey are provided, the provider starts signed in.
// Otherwise, it can only read publicly accessible objects.
func NewS3Provider(bucketName, prefix, region, endpoint, accessKey, secretKey string, log *slog.Logger) (*S3Provider, error) {
	uri := fmt.Sprintf("s3://%s/%s?region=%s", bucketName, prefix, region)
	if accessKey != "" {
		uri = fmt.Sprintf("s3://%s:***@%s/%s?region=%s", accessKey, bucketName, prefix, region)
	}
	if endpoint != "" {
		uri += fmt.Sprintf("&endpoint=%s", endpoint)
	}

	baseCfg := aws.Config{
		Region: aws.String(region),
	}
	if endpoint != "" {
		baseCfg.Endpoint = aws.String(endpoint)
		baseCfg.S3ForcePathStyle = aws.Bool(true)
	}

	baseSess, err := session.NewSession(baseCfg.Copy().WithCredentials(credentials.AnonymousCredentials))
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}

	p := &S3Provider{
		client:      s3.New(baseSess),
		bucketName:  bucketName,
		prefix:      strings.Trim(prefix, "/"),
		log:         log,
		locationURI: uri,
	}

	if accessKey != "" && secretKey != "" {
		writeCfg := baseCfg.Copy()
		writeCfg.Credentials = credentials.NewStaticCredentials(accessKey, secretKey, "")

		writeSess, err := session.NewSession(writeCfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create AWS write session: %w", err)
		}
		p.writeClient = s3.New(writeSess)
	} else {
		log.Warn("No S3 credentials provided, provider is read-only until configured with credentials")
	}

	return p, nil
}

// Read retrieves the object under ref.
// Returns ErrContentNotFound if the object doesn't exist.
func (p *S3Provider) Read(ctx context.Context, ref interfaces.FileReference) ([]byte, error) {
	start := time.Now()
	key, err := p.objectKey(ref)
	if err != nil {
		return nil, err
	}

	// Authenticated reads work on private buckets too.
	client := p.currentWriteClient()
	if client == nil {
		client = p.client
	}

	result, err := client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(p.bucketName),
		Key:    aws.String(key),
	})
	if err != nil {
		if isS3NotFound(err) {
			p.log.Debug("Database file not found in S3",
				slog.String("bucket", p.bucketName),
				slog.String("key", key),
				slog.Duration("duration", time.Since(start)))
			return nil, interfaces.ErrContentNotFound
		}

		p.log.Error("Failed to get object from S3",
			slog.String("bucket", p.bucketName),
			slog.String("key", key),
			"err", err,
			slog.Duration("duration", time.Since(start)))
		return nil, fmt.Errorf("%w: failed to get object from S3: %w", interfaces.ErrBackendUnavailable, err)
	}
	defer result.Body.Close()

	data, err := io.ReadAll(result.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read object body: %w", err)
	}

	p.log.Debug("Read database file from S3",
		slog.String("bucket", p.bucketName),
		slog.String("key", key),
		slog.Int("size", len(data)),
		slog.Duration("duration", time.Since(start)))

	return data, nil
}

// Write uploads data under ref with the credentialed client.
// Returns ErrNotSignedIn if there are no credentials.
func (p *S3Provider) Write(ctx context.Context, ref interfaces.FileReference, data []byte) (interfaces.ContentID, error) {
	id := interfaces.ComputeID(data)

	key, err := p.objectKey(ref)
	if err != nil {
		return id, err
	}

	client := p.currentWriteClient()
	if client == nil {
		return id, interfaces.ErrNotSignedIn
	}

	_, err = client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket: aws.String(p.bucketName),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return id, fmt.Errorf("failed to upload object to S3: %w", err)
	}

	p.log.Debug("Wrote database file to S3",
		slog.String("bucket", p.bucketName),
		slog.String("key", key),
		slog.String("contentID", id.String()))

	return id, nil
}

// Available checks if the S3 bucket is accessible by heading it.
func (p *S3Provider) Available(ctx context.Context) bool {
	start := time.Now()

	client := p.currentWriteClient()
	if client == nil {
		client = p.client
	}

	_, err := client.HeadBucketWithContext(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(p.bucketName),
	})
	if err != nil {
		p.log.Warn("S3 provider unavailable",
			slog.String("bucket", p.bucketName),
			"err", err,
			slog.Duration("duration", time.Since(start)))
		return false
	}

	return true
}

func (p *S3Provider) IsSignedIn() bool {
	return p.currentWriteClient() != nil
}

// SignOut drops the credentialed client. Reads fall back to anonymous access.
func (p *S3Provider) SignOut(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.writeClient = nil
	p.log.Info("Signed out of S3 provider", slog.String("bucket", p.bucketName))
	return nil
}

func (p *S3Provider) Attributes() interfaces.ProviderAttributes {
	return s3Attributes
}

func (p *S3Provider) Kind() interfaces.ProviderKind {
	return interfaces.S3Kind
}

// Name returns a unique identifier for this storage provider.
func (p *S3Provider) Name() string {
	return fmt.Sprintf("s3-%s", p.bucketName)
}

// LocationURI returns the URI that identifies this storage provider.
func (p *S3Provider) LocationURI() string {
	return p.locationURI
}

func (p *S3Provider) currentWriteClient() *s3.S3 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.writeClient
}

func (p *S3Provider) objectKey(ref interfaces.FileReference) (string, error) {
	if err := ref.Validate(); err != nil {
		return "", err
	}
	if p.prefix == "" {
		return ref.Clean().String(), nil
	}
	return path.Join(p.prefix, ref.Clean().String()), nil
}

func isS3NotFound(err error) bool {
	var reqErr awserr.RequestFailure
	if errors.As(err, &reqErr) && reqErr.StatusCode() == http.StatusNotFound {
		return true
	}
	var aerr awserr.Error
	if errors.As(err, &aerr) {
		return aerr.Code() == s3.ErrCodeNoSuchKey || aerr.Code() == "NotFound"
	}
	return false
}
