// Package breach looks up which data breaches an email address appears in.
// Lookups are keyed by the SHA-1 hash of the address so the plaintext email
// never reaches the breach-data service.
package breach

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const maxResponseBytes = 4 << 20

// Breach describes a single data breach an account appeared in.
type Breach struct {
	Name        string    `json:"Name"`
	Title       string    `json:"Title"`
	Domain      string    `json:"Domain"`
	BreachDate  time.Time `json:"BreachDate"`
	AddedDate   time.Time `json:"AddedDate"`
	PwnCount    int64     `json:"PwnCount"`
	DataClasses []string  `json:"DataClasses"`
	IsVerified  bool      `json:"IsVerified"`
	IsSensitive bool      `json:"IsSensitive"`
}

// Client answers breach-exposure lookups for a hashed email.
type Client interface {
	BreachesForEmail(ctx context.Context, emailHash string) ([]Breach, error)
}

// Func adapts a function to the Client interface.
type Func func(ctx context.Context, emailHash string) ([]Breach, error)

// BreachesForEmail implements Client.
func (f Func) BreachesForEmail(ctx context.Context, emailHash string) ([]Breach, error) {
	return f(ctx, emailHash)
}

// HTTPClient queries a breach-data service over HTTP.
type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewHTTPClient creates a client against the given base URL. The lookup
// endpoint is GET {baseURL}/breachedaccounts/{hash}.
func NewHTTPClient(baseURL string, httpClient *http.Client) (*HTTPClient, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &HTTPClient{baseURL: baseURL, httpClient: httpClient}, nil
}

// BreachesForEmail implements Client. An unknown hash yields an empty slice,
// not an error.
func (c *HTTPClient) BreachesForEmail(ctx context.Context, emailHash string) ([]Breach, error) {
	endpoint := c.baseURL + "/breachedaccounts/" + url.PathEscape(emailHash)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create breach request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("breach request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("breach request returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read breach response: %w", err)
	}

	var breaches []Breach
	if err := json.Unmarshal(body, &breaches); err != nil {
		return nil, fmt.Errorf("decode breach response: %w", err)
	}
	return breaches, nil
}
