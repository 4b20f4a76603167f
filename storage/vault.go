package storage

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/vault/api"
	"github.com/ruteri/safesync/interfaces"
)

var vaultAttributes = interfaces.ProviderAttributes{
	BrowsableExisting:              true,
	ImmediatelyOfferCacheIfOffline: true,
}

// VaultProvider implements a storage provider on a HashiCorp Vault KV v2
// mount. It authenticates with a token, a TLS client certificate, or both.
type VaultProvider struct {
	client      *api.Client
	kv          *api.KVv2
	mountPath   string
	dataPath    string
	log         *slog.Logger
	locationURI string

	mu       sync.Mutex
	signedIn bool
}

// NewVaultProvider creates a new Vault storage provider.
//
// Parameters:
//   - address: Vault server address (e.g. https://vault.example.com:8200)
//   - mountPath: KV v2 mount path (e.g. "secret")
//   - dataPath: Path within the mount (e.g. "safes")
//   - token: Vault token, may be empty when clientCert is set
//   - clientCert: optional TLS client certificate
//   - log: Structured logger for operational insights
func NewVaultProvider(address, mountPath, dataPath, token string, clientCert *tls.Certificate, log *slog.Logger) (*VaultProvider, error) {
	config := api.DefaultConfig()
	config.Address = address

	if clientCert != nil {
		config.HttpClient = &http.Client{
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{
					Certificates: []tls.Certificate{*clientCert},
				},
			},
			Timeout: 30 * time.Second,
		}
	}

	client, err := api.NewClient(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create Vault client: %w", err)
	}
	if token != "" {
		client.SetToken(token)
	}

	mountPath = strings.Trim(mountPath, "/")
	dataPath = strings.Trim(dataPath, "/")

	return &VaultProvider{
		client:      client,
		kv:          client.KVv2(mountPath),
		mountPath:   mountPath,
		dataPath:    dataPath,
		log:         log,
		locationURI: fmt.Sprintf("vault://%s/%s/%s", strings.TrimPrefix(strings.TrimPrefix(address, "https://"), "http://"), mountPath, dataPath),
		signedIn:    client.Token() != "" || clientCert != nil,
	}, nil
}

// Read retrieves the file under ref from the KV v2 mount.
func (p *VaultProvider) Read(ctx context.Context, ref interfaces.FileReference) ([]byte, error) {
	start := time.Now()
	secretPath, err := p.secretPath(ref)
	if err != nil {
		return nil, err
	}
	if !p.IsSignedIn() {
		return nil, interfaces.ErrNotSignedIn
	}

	secret, err := p.kv.Get(ctx, secretPath)
	if errors.Is(err, api.ErrSecretNotFound) {
		return nil, interfaces.ErrContentNotFound
	}
	if err != nil {
		p.log.Error("Failed to read from Vault",
			slog.String("path", secretPath),
			"err", err)
		return nil, fmt.Errorf("%w: %w", interfaces.ErrBackendUnavailable, err)
	}
	if secret == nil || secret.Data == nil {
		// Latest version deleted.
		return nil, interfaces.ErrContentNotFound
	}

	content, ok := secret.Data["content"].(string)
	if !ok {
		return nil, fmt.Errorf("content key not found in Vault data")
	}

	data, err := base64.StdEncoding.DecodeString(content)
	if err != nil {
		return nil, fmt.Errorf("invalid content encoding in Vault data: %w", err)
	}

	p.log.Info("Successfully read database file from Vault",
		slog.String("path", secretPath),
		slog.Duration("duration", time.Since(start)))

	return data, nil
}

// Write stores data under ref as a new KV version.
func (p *VaultProvider) Write(ctx context.Context, ref interfaces.FileReference, data []byte) (interfaces.ContentID, error) {
	start := time.Now()
	id := interfaces.ComputeID(data)

	secretPath, err := p.secretPath(ref)
	if err != nil {
		return id, err
	}
	if !p.IsSignedIn() {
		return id, interfaces.ErrNotSignedIn
	}

	_, err = p.kv.Put(ctx, secretPath, map[string]interface{}{
		"content":    base64.StdEncoding.EncodeToString(data),
		"content_id": id.String(),
	})
	if err != nil {
		p.log.Error("Failed to write to Vault",
			slog.String("path", secretPath),
			"err", err)
		return id, fmt.Errorf("%w: %w", interfaces.ErrBackendUnavailable, err)
	}

	p.log.Info("Successfully stored database file in Vault",
		slog.String("path", secretPath),
		slog.String("content_id", id.String()),
		slog.Duration("duration", time.Since(start)))

	return id, nil
}

// Available checks that Vault is initialized and unsealed.
func (p *VaultProvider) Available(ctx context.Context) bool {
	healthCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	health, err := p.client.Sys().HealthWithContext(healthCtx)
	if err != nil {
		p.log.Debug("Vault health check failed", "err", err)
		return false
	}

	if !health.Initialized || health.Sealed {
		p.log.Debug("Vault is not available",
			slog.Bool("initialized", health.Initialized),
			slog.Bool("sealed", health.Sealed))
		return false
	}

	return true
}

func (p *VaultProvider) IsSignedIn() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.signedIn
}

// SignOut revokes the client token and forgets it. If revocation fails the
// provider stays signed in and the error is returned.
func (p *VaultProvider) SignOut(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.client.Token() != "" {
		if err := p.client.Auth().Token().RevokeSelfWithContext(ctx, ""); err != nil {
			p.log.Error("Failed to revoke Vault token", "err", err)
			return fmt.Errorf("failed to revoke Vault token: %w", err)
		}
		p.client.ClearToken()
	}

	p.signedIn = false
	p.log.Info("Signed out of Vault provider", slog.String("mount", p.mountPath))
	return nil
}

func (p *VaultProvider) Attributes() interfaces.ProviderAttributes {
	return vaultAttributes
}

func (p *VaultProvider) Kind() interfaces.ProviderKind {
	return interfaces.VaultKind
}

// Name returns a unique identifier for this storage provider.
func (p *VaultProvider) Name() string {
	return fmt.Sprintf("vault-%s-%s", p.mountPath, p.dataPath)
}

// LocationURI returns the URI that identifies this storage provider.
func (p *VaultProvider) LocationURI() string {
	return p.locationURI
}

func (p *VaultProvider) secretPath(ref interfaces.FileReference) (string, error) {
	if err := ref.Validate(); err != nil {
		return "", err
	}
	if p.dataPath == "" {
		return ref.Clean().String(), nil
	}
	return p.dataPath + "/" + ref.Clean().String(), nil
}
