package security

import (
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// Keys holds the secrets derived from the service master secret. Each key is
// bound to a distinct purpose via the HKDF info string, so compromise of one
// derived key does not expose the others.
type Keys struct {
	// TokenEncryption is the 32-byte AES-256 key used to encrypt subscriber
	// OAuth tokens at rest.
	TokenEncryption []byte

	// CookieAuth is the 32-byte HMAC key used to authenticate session cookies.
	CookieAuth []byte
}

// DeriveKeys derives the service key set from a single master secret using
// HKDF-SHA256. The master secret must carry at least 32 bytes of entropy.
func DeriveKeys(masterSecret []byte) (*Keys, error) {
	if len(masterSecret) < 32 {
		return nil, fmt.Errorf("master secret must be at least 32 bytes, got %d", len(masterSecret))
	}

	keys := &Keys{}
	for _, purpose := range []struct {
		info string
		dst  *[]byte
	}{
		{"breachmonitor/token-encryption/v1", &keys.TokenEncryption},
		{"breachmonitor/cookie-auth/v1", &keys.CookieAuth},
	} {
		key := make([]byte, 32)
		r := hkdf.New(sha256.New, masterSecret, nil, []byte(purpose.info))
		if _, err := io.ReadFull(r, key); err != nil {
			return nil, fmt.Errorf("derive %s key: %w", purpose.info, err)
		}
		*purpose.dst = key
	}
	return keys, nil
}

// MasterSecretFromBase64 decodes a base64-encoded master secret.
func MasterSecretFromBase64(s string) ([]byte, error) {
	secret, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("failed to decode base64 master secret: %w", err)
	}
	if len(secret) < 32 {
		return nil, fmt.Errorf("master secret must be at least 32 bytes, got %d", len(secret))
	}
	return secret, nil
}
