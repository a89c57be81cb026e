// Package imagesearch resolves slide image queries to photo URLs.
package imagesearch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// ErrNoResults is returned when a search finds no photo.
var ErrNoResults = errors.New("no image found")

const defaultBaseURL = "https://api.unsplash.com"

// Resolver turns a free-text query into an image URL.
type Resolver interface {
	Resolve(ctx context.Context, query string) (string, error)
}

// Client searches the Unsplash photo API and caches results per query.
type Client struct {
	baseURL    string
	accessKey  string
	httpClient *http.Client

	mu    sync.Mutex
	cache map[string]string
}

func NewClient(baseURL, accessKey string) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		accessKey: accessKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		cache: make(map[string]string),
	}
}

type searchResponse struct {
	Results []struct {
		ID   string `json:"id"`
		URLs struct {
			Regular string `json:"regular"`
			Small   string `json:"small"`
		} `json:"urls"`
	} `json:"results"`
}

// Resolve returns the first landscape photo for query.
func (c *Client) Resolve(ctx context.Context, query string) (string, error) {
	key := strings.ToLower(strings.TrimSpace(query))
	if key == "" {
		return "", ErrNoResults
	}
	c.mu.Lock()
	if u, ok := c.cache[key]; ok {
		c.mu.Unlock()
		return u, nil
	}
	c.mu.Unlock()

	params := url.Values{}
	params.Set("query", query)
	params.Set("per_page", "1")
	params.Set("orientation", "landscape")
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/search/photos?"+params.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Client-ID "+c.accessKey)
	httpReq.Header.Set("Accept-Version", "v1")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("image search: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("image search %q: status %d: %s", query, resp.StatusCode, string(respBody))
	}

	var sr searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return "", fmt.Errorf("decode search: %w", err)
	}
	if len(sr.Results) == 0 {
		return "", ErrNoResults
	}
	u := sr.Results[0].URLs.Regular
	if u == "" {
		u = sr.Results[0].URLs.Small
	}
	if u == "" {
		return "", ErrNoResults
	}

	c.mu.Lock()
	c.cache[key] = u
	c.mu.Unlock()
	return u, nil
}

// CacheSize returns the number of cached queries.
func (c *Client) CacheSize() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.cache)
}

// Close releases resources.
func (c *Client) Close() {
	c.httpClient.CloseIdleConnections()
}
