// Package blob fetches source audio objects over HTTP(S).
package blob

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Config holds object store access settings.
type Config struct {
	BaseURL string        `yaml:"base_url"` // prefix for relative locators
	Timeout time.Duration `yaml:"timeout"`
}

// Client downloads audio payloads by locator.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new blob client.
func NewClient(cfg Config) *Client {
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

// Fetch downloads the object named by locator. Absolute http(s) locators
// are fetched as-is; anything else is resolved against the configured
// base URL.
func (c *Client) Fetch(ctx context.Context, locator string) ([]byte, error) {
	target, err := c.resolve(locator)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", locator, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("object %s not found", locator)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: http %d", locator, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read object %s: %w", locator, err)
	}
	return body, nil
}

func (c *Client) resolve(locator string) (string, error) {
	if locator == "" {
		return "", fmt.Errorf("empty locator")
	}
	if strings.HasPrefix(locator, "http://") || strings.HasPrefix(locator, "https://") {
		return locator, nil
	}
	if c.baseURL == "" {
		return "", fmt.Errorf("relative locator %s requires blob.base_url", locator)
	}
	return c.baseURL + "/" + strings.TrimLeft(locator, "/"), nil
}
