package storage

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/ruteri/safesync/interfaces"
)

const defaultGitHubAPI = "https://api.github.com"

var githubAttributes = interfaces.ProviderAttributes{
	ProvidesIcons:                  true,
	BrowsableExisting:              true,
	ImmediatelyOfferCacheIfOffline: true,
	SupportsConcurrentRequests:     true,
}

// GitHubProvider implements a read-only storage provider using GitHub's
// repository contents API.
type GitHubProvider struct {
	owner       string
	repo        string
	branch      string
	apiURL      string
	client      *http.Client
	log         *slog.Logger
	locationURI string

	mu    sync.RWMutex
	token string
}

// GitHubContent represents a file object from GitHub's contents API.
type GitHubContent struct {
	Type     string `json:"type"`
	Content  string `json:"content"`
	Encoding string `json:"encoding"`
	SHA      string `json:"sha"`
	Size     int    `json:"size"`
}

// NewGitHubProvider creates a new GitHub provider for reading database files
// from a repository. An empty branch reads the default branch; an empty
// token reads public repositories only.
func NewGitHubProvider(owner, repo, branch, token string, log *slog.Logger) *GitHubProvider {
	uri := fmt.Sprintf("github://%s/%s", owner, repo)
	if branch != "" {
		uri += "?ref=" + url.QueryEscape(branch)
	}
	return &GitHubProvider{
		owner:       owner,
		repo:        repo,
		branch:      branch,
		apiURL:      defaultGitHubAPI,
		client:      &http.Client{Timeout: 30 * time.Second},
		log:         log,
		locationURI: uri,
		token:       token,
	}
}

// WithAPIURL points the provider at a different API endpoint, such as a
// GitHub Enterprise server.
func (p *GitHubProvider) WithAPIURL(apiURL string) *GitHubProvider {
	p.apiURL = strings.TrimSuffix(apiURL, "/")
	return p
}

// Read retrieves the file under ref from the repository.
func (p *GitHubProvider) Read(ctx context.Context, ref interfaces.FileReference) ([]byte, error) {
	if err := ref.Validate(); err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("%s/repos/%s/%s/contents/%s", p.apiURL, p.owner, p.repo, ref.Clean())
	if p.branch != "" {
		endpoint += "?ref=" + url.QueryEscape(p.branch)
	}

	resp, err := p.get(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", interfaces.ErrBackendUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, interfaces.ErrContentNotFound
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("GitHub API error: %s, %s", resp.Status, string(body))
	}

	var content GitHubContent
	if err := json.NewDecoder(resp.Body).Decode(&content); err != nil {
		return nil, fmt.Errorf("failed to decode content: %w", err)
	}
	if content.Type != "" && content.Type != "file" {
		return nil, fmt.Errorf("%w: %s is a %s", interfaces.ErrInvalidReference, ref, content.Type)
	}
	if content.Encoding != "base64" {
		return nil, fmt.Errorf("unexpected content encoding: %s", content.Encoding)
	}

	data, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(content.Content, "\n", ""))
	if err != nil {
		return nil, fmt.Errorf("failed to decode file content: %w", err)
	}

	p.log.Debug("Read database file from GitHub",
		slog.String("path", ref.String()),
		slog.String("blobSHA", content.SHA),
		slog.Int("size", len(data)))

	return data, nil
}

// Write is not supported by this read-only provider.
func (p *GitHubProvider) Write(ctx context.Context, ref interfaces.FileReference, data []byte) (interfaces.ContentID, error) {
	return interfaces.ComputeID(data), interfaces.ErrReadOnly
}

// Available checks if the repository is accessible.
func (p *GitHubProvider) Available(ctx context.Context) bool {
	resp, err := p.get(ctx, fmt.Sprintf("%s/repos/%s/%s", p.apiURL, p.owner, p.repo))
	if err != nil {
		p.log.Debug("GitHub provider unavailable", "err", err)
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		p.log.Debug("GitHub provider unavailable",
			slog.String("status", resp.Status))
		return false
	}

	return true
}

// IsSignedIn reports whether a token is configured.
func (p *GitHubProvider) IsSignedIn() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.token != ""
}

// SignOut forgets the token. Public repositories remain readable.
func (p *GitHubProvider) SignOut(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.token = ""
	return nil
}

func (p *GitHubProvider) Attributes() interfaces.ProviderAttributes {
	return githubAttributes
}

func (p *GitHubProvider) Kind() interfaces.ProviderKind {
	return interfaces.GitHubKind
}

// Name returns a unique identifier for this storage provider.
func (p *GitHubProvider) Name() string {
	return fmt.Sprintf("github-%s-%s", p.owner, p.repo)
}

// LocationURI returns the URI that identifies this storage provider.
func (p *GitHubProvider) LocationURI() string {
	return p.locationURI
}

func (p *GitHubProvider) get(ctx context.Context, endpoint string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/vnd.github.v3+json")
	p.mu.RLock()
	if p.token != "" {
		req.Header.Set("Authorization", "Bearer "+p.token)
	}
	p.mu.RUnlock()

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	return resp, nil
}
