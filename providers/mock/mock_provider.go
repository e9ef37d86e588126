// Package mock provides a mock implementation of the Provider interface for testing.
package mock

import (
	"context"
	"fmt"
	"net/url"
	"sync"

	"golang.org/x/oauth2"
)

// Provider is a mock identity provider for tests. Behavior is overridden per
// test through the function fields; CallCount records invocations.
type Provider struct {
	// NameFunc is called when Name() is invoked.
	NameFunc func() string

	// AuthorizationURLFunc is called when AuthorizationURL() is invoked.
	AuthorizationURLFunc func(state string, extra url.Values) (string, error)

	// ExchangeCodeFunc is called when ExchangeCode() is invoked.
	ExchangeCodeFunc func(ctx context.Context, code string) (*oauth2.Token, error)

	// ProfileFunc is called when Profile() is invoked.
	ProfileFunc func(ctx context.Context, accessToken string) ([]byte, error)

	mu         sync.Mutex
	callCounts map[string]int
}

// NewProvider creates a mock provider with working defaults: every exchange
// succeeds and the profile belongs to mock@example.com.
func NewProvider() *Provider {
	return &Provider{
		callCounts: make(map[string]int),
		NameFunc: func() string {
			return "mock"
		},
		AuthorizationURLFunc: func(state string, extra url.Values) (string, error) {
			u := url.URL{Scheme: "https", Host: "mock.example.com", Path: "/authorize"}
			q := url.Values{"state": {state}}
			for key, values := range extra {
				for _, value := range values {
					q.Add(key, value)
				}
			}
			u.RawQuery = q.Encode()
			return u.String(), nil
		},
		ExchangeCodeFunc: func(ctx context.Context, code string) (*oauth2.Token, error) {
			return &oauth2.Token{
				AccessToken:  "mock-access-token",
				TokenType:    "Bearer",
				RefreshToken: "mock-refresh-token",
			}, nil
		},
		ProfileFunc: func(ctx context.Context, accessToken string) ([]byte, error) {
			return []byte(`{"email":"mock@example.com","locale":"en-US"}`), nil
		},
	}
}

// Name implements providers.Provider.
func (p *Provider) Name() string {
	p.record("Name")
	return p.NameFunc()
}

// AuthorizationURL implements providers.Provider.
func (p *Provider) AuthorizationURL(state string, extra url.Values) (string, error) {
	p.record("AuthorizationURL")
	return p.AuthorizationURLFunc(state, extra)
}

// ExchangeCode implements providers.Provider.
func (p *Provider) ExchangeCode(ctx context.Context, code string) (*oauth2.Token, error) {
	p.record("ExchangeCode")
	return p.ExchangeCodeFunc(ctx, code)
}

// Profile implements providers.Provider.
func (p *Provider) Profile(ctx context.Context, accessToken string) ([]byte, error) {
	p.record("Profile")
	return p.ProfileFunc(ctx, accessToken)
}

// CallCount returns how many times the named method was called.
func (p *Provider) CallCount(method string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.callCounts[method]
}

func (p *Provider) record(method string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.callCounts == nil {
		p.callCounts = make(map[string]int)
	}
	p.callCounts[method]++
}

// FailExchange configures the provider so every code exchange fails.
func (p *Provider) FailExchange() {
	p.ExchangeCodeFunc = func(ctx context.Context, code string) (*oauth2.Token, error) {
		return nil, fmt.Errorf("exchange rejected")
	}
}

// SetProfile configures the provider to return the given raw profile payload.
func (p *Provider) SetProfile(payload string) {
	p.ProfileFunc = func(ctx context.Context, accessToken string) ([]byte, error) {
		return []byte(payload), nil
	}
}
