package providers

import (
	"context"
	"net/url"

	"golang.org/x/oauth2"
)

// Provider is the narrow contract the confirmation flow has with the identity
// provider: build an authorization URL, exchange a code for tokens, and fetch
// the profile for an access token. Failures propagate to the caller as fatal;
// the flow never retries provider calls.
type Provider interface {
	// Name returns the provider name (e.g., "accounts", "mock").
	Name() string

	// AuthorizationURL builds the URL to redirect users to for
	// authentication. extra parameters are appended to the query verbatim,
	// repeated keys included.
	AuthorizationURL(state string, extra url.Values) (string, error)

	// ExchangeCode exchanges an authorization code for tokens.
	ExchangeCode(ctx context.Context, code string) (*oauth2.Token, error)

	// Profile fetches the raw profile payload for an access token. The
	// payload is JSON carrying at least an "email" field; the flow parses
	// and validates it, so the raw bytes are returned unmodified.
	Profile(ctx context.Context, accessToken string) ([]byte, error)
}
