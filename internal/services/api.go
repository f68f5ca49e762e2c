// Shared HTTP plumbing for every external metadata API
package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/desertthunder/placements/internal/shared"
)

// UserAgent is sent on every request; the credits site rejects requests without a browser-like agent.
const UserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// APIClient performs GET requests against one JSON HTTP API.
type APIClient struct {
	name       string
	baseURL    string
	httpClient *http.Client
	headers    http.Header
}

// NewAPIClient creates a client for the named service rooted at baseURL.
//
// headers are added to every request.
func NewAPIClient(name, baseURL string, client *http.Client, headers map[string]string) *APIClient {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}

	h := make(http.Header, len(headers)+1)
	h.Set("User-Agent", UserAgent)
	for k, v := range headers {
		h.Set(k, v)
	}

	return &APIClient{
		name:       name,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: client,
		headers:    h,
	}
}

// APIResponse represents a raw API response with status and body.
type APIResponse struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
}

// Get performs a GET request. path is joined to the base URL unless it is already absolute.
//
// Non-2xx statuses are returned as errors wrapping [shared.ErrNotFound], [shared.ErrServiceUnavailable], or [shared.ErrAPIRequest].
func (a *APIClient) Get(ctx context.Context, path string, query url.Values) (*APIResponse, error) {
	fullURL := path
	if !strings.HasPrefix(path, "http://") && !strings.HasPrefix(path, "https://") {
		fullURL = a.baseURL + path
	}
	if len(query) > 0 {
		sep := "?"
		if strings.Contains(fullURL, "?") {
			sep = "&"
		}
		fullURL += sep + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for k, v := range a.headers {
		req.Header[k] = v
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %s request failed: %v", shared.ErrAPIRequest, a.name, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read %s response: %v", shared.ErrAPIRequest, a.name, err)
	}

	if err := a.statusError(resp.StatusCode); err != nil {
		return nil, err
	}

	return &APIResponse{StatusCode: resp.StatusCode, Headers: resp.Header, Body: body}, nil
}

// GetJSON performs a GET request and decodes the body into result.
func (a *APIClient) GetJSON(ctx context.Context, path string, query url.Values, result any) error {
	resp, err := a.Get(ctx, path, query)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(resp.Body, result); err != nil {
		return fmt.Errorf("%w: %s: %v", shared.ErrMalformedResponse, a.name, err)
	}
	return nil
}

func (a *APIClient) statusError(code int) error {
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusNotFound:
		return fmt.Errorf("%w: %s status %d", shared.ErrNotFound, a.name, code)
	case code == http.StatusTooManyRequests || code >= 500:
		return fmt.Errorf("%w: %s status %d", shared.ErrServiceUnavailable, a.name, code)
	default:
		return fmt.Errorf("%w: %s status %d", shared.ErrAPIRequest, a.name, code)
	}
}
