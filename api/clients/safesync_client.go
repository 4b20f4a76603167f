package clients

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/ruteri/safesync/api"
	"github.com/stretchr/testify/mock"
)

// SafesyncClient implements api.SafesyncProvider over HTTP.
type SafesyncClient struct {
	// ServerAddr is the base URL of the safesync server
	ServerAddr string

	client *http.Client
}

// NewSafesyncClient creates a client for the server at serverAddr.
func NewSafesyncClient(serverAddr string, timeout time.Duration) *SafesyncClient {
	return &SafesyncClient{
		ServerAddr: serverAddr,
		client:     &http.Client{Timeout: timeout},
	}
}

// Pools posts a database document and returns its minimal pool summary.
func (c *SafesyncClient) Pools(document []byte) (*api.PoolsResponse, error) {
	resp, err := c.do(http.MethodPost, "/api/pools", document)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var parsed api.PoolsResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("could not parse pools response: %w", err)
	}
	return &parsed, nil
}

// Pull fetches the database document stored under name.
func (c *SafesyncClient) Pull(name string) ([]byte, *api.SyncResponse, error) {
	resp, err := c.do(http.MethodGet, "/api/safes/"+url.PathEscape(name), nil)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	document, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("could not read pulled document: %w", err)
	}

	return document, &api.SyncResponse{
		Safe:      name,
		Ref:       name,
		ContentID: resp.Header.Get(api.ContentIDHeader),
		FromCache: resp.Header.Get(api.FromCacheHeader) == "true",
	}, nil
}

// Push uploads document under name.
func (c *SafesyncClient) Push(name string, document []byte) (*api.SyncResponse, error) {
	resp, err := c.do(http.MethodPut, "/api/safes/"+url.PathEscape(name), document)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var parsed api.SyncResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("could not parse push response: %w", err)
	}
	return &parsed, nil
}

// RunSafe asks the server to push the configured safe name immediately.
func (c *SafesyncClient) RunSafe(name string) (*api.SyncResponse, error) {
	resp, err := c.do(http.MethodPost, "/api/safes/"+url.PathEscape(name)+"/run", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var parsed api.SyncResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("could not parse run response: %w", err)
	}
	return &parsed, nil
}

// ProviderStatus returns the status of the server's storage provider.
func (c *SafesyncClient) ProviderStatus() (*api.ProviderStatus, error) {
	resp, err := c.do(http.MethodGet, "/api/provider", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var parsed api.ProviderStatus
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("could not parse provider status: %w", err)
	}
	return &parsed, nil
}

// SignOut signs the server's storage provider out.
func (c *SafesyncClient) SignOut() error {
	resp, err := c.do(http.MethodPost, "/api/provider/signout", nil)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

// do sends a request and returns the response if the status is 2xx.
func (c *SafesyncClient) do(method, path string, body []byte) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequest(method, c.ServerAddr+path, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("could not request %s %s: %w", method, path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		var errResp api.ErrorResponse
		bodyBytes, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return nil, fmt.Errorf("%s %s returned non-2xx response: %d", method, path, resp.StatusCode)
		}
		if json.Unmarshal(bodyBytes, &errResp) == nil && errResp.Error != "" {
			return nil, &StatusError{StatusCode: resp.StatusCode, Message: errResp.Error}
		}
		return nil, &StatusError{StatusCode: resp.StatusCode, Message: string(bytes.TrimSpace(bodyBytes))}
	}
	return resp, nil
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("server returned error %d: %s", e.StatusCode, e.Message)
}

// MockSafesyncProvider implements a mock api.SafesyncProvider for testing.
type MockSafesyncProvider struct {
	mock.Mock
}

func (m *MockSafesyncProvider) Pools(document []byte) (*api.PoolsResponse, error) {
	args := m.Called(document)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*api.PoolsResponse), args.Error(1)
}

func (m *MockSafesyncProvider) Pull(name string) ([]byte, *api.SyncResponse, error) {
	args := m.Called(name)
	if args.Get(0) == nil {
		return nil, nil, args.Error(2)
	}
	return args.Get(0).([]byte), args.Get(1).(*api.SyncResponse), args.Error(2)
}

func (m *MockSafesyncProvider) Push(name string, document []byte) (*api.SyncResponse, error) {
	args := m.Called(name, document)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*api.SyncResponse), args.Error(1)
}

func (m *MockSafesyncProvider) RunSafe(name string) (*api.SyncResponse, error) {
	args := m.Called(name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*api.SyncResponse), args.Error(1)
}

func (m *MockSafesyncProvider) ProviderStatus() (*api.ProviderStatus, error) {
	args := m.Called()
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*api.ProviderStatus), args.Error(1)
}

func (m *MockSafesyncProvider) SignOut() error {
	args := m.Called()
	return args.Error(0)
}

var (
	_ api.SafesyncProvider = (*SafesyncClient)(nil)
	_ api.SafesyncProvider = (*MockSafesyncProvider)(nil)
)
