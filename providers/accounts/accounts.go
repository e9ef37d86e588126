package accounts

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/oauth2"
)

// maxProfileBytes caps the profile response body. Profile payloads are small
// JSON documents; anything larger indicates a misbehaving endpoint.
const maxProfileBytes = 1 << 20

// Provider implements the providers.Provider interface against an accounts
// server with distinct authorization, token, and profile endpoints.
type Provider struct {
	config     *oauth2.Config
	profileURL string
	httpClient *http.Client
}

// Config holds accounts provider configuration.
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string

	// AuthURL and TokenURL are the provider's OAuth 2.0 endpoints.
	AuthURL  string
	TokenURL string

	// ProfileURL is the endpoint returning the profile JSON for a bearer
	// access token.
	ProfileURL string

	Scopes []string

	// HTTPClient optionally overrides the client used for profile fetches
	// and, via oauth2.HTTPClient, token exchanges.
	HTTPClient *http.Client
}

// NewProvider creates a new accounts provider.
func NewProvider(cfg *Config) (*Provider, error) {
	if cfg.ClientID == "" {
		return nil, fmt.Errorf("client ID is required")
	}
	if cfg.ClientSecret == "" {
		return nil, fmt.Errorf("client secret is required")
	}
	if cfg.AuthURL == "" || cfg.TokenURL == "" {
		return nil, fmt.Errorf("auth URL and token URL are required")
	}
	if cfg.ProfileURL == "" {
		return nil, fmt.Errorf("profile URL is required")
	}

	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = []string{"profile:email"}
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout: 30 * time.Second,
		}
	}

	return &Provider{
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:  cfg.AuthURL,
				TokenURL: cfg.TokenURL,
			},
		},
		profileURL: cfg.ProfileURL,
		httpClient: httpClient,
	}, nil
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return "accounts"
}

// AuthorizationURL builds the authorization URL for the given state and
// appends every extra parameter verbatim, repeated keys included.
func (p *Provider) AuthorizationURL(state string, extra url.Values) (string, error) {
	u, err := url.Parse(p.config.AuthCodeURL(state))
	if err != nil {
		return "", fmt.Errorf("failed to parse authorization URL: %w", err)
	}

	q := u.Query()
	for key, values := range extra {
		for _, value := range values {
			q.Add(key, value)
		}
	}
	u.RawQuery = q.Encode()

	return u.String(), nil
}

// ExchangeCode exchanges an authorization code for tokens.
func (p *Provider) ExchangeCode(ctx context.Context, code string) (*oauth2.Token, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)

	token, err := p.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange code: %w", err)
	}
	return token, nil
}

// Profile fetches the raw profile JSON for an access token.
func (p *Provider) Profile(ctx context.Context, accessToken string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.profileURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create profile request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("profile request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("profile request returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxProfileBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read profile response: %w", err)
	}
	return body, nil
}
