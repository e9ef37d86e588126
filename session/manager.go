package session

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
)

// DefaultCookieName is the session cookie name.
const DefaultCookieName = "breachmonitor_session"

// Manager attaches sessions to HTTP requests through an authenticated cookie.
// The cookie value is "<id>.<hmac>" where the MAC is HMAC-SHA256 over the ID
// with the cookie-auth key, so a forged or truncated cookie is treated as no
// session rather than a lookup key.
type Manager struct {
	store      Store
	authKey    []byte
	cookieName string
	secure     bool
}

// NewManager creates a session manager. The auth key must be non-empty; use
// security.DeriveKeys to obtain one from the service's master secret.
func NewManager(store Store, authKey []byte, secure bool) (*Manager, error) {
	if store == nil {
		return nil, fmt.Errorf("session store is required")
	}
	if len(authKey) == 0 {
		return nil, fmt.Errorf("cookie auth key is required")
	}
	return &Manager{
		store:      store,
		authKey:    authKey,
		cookieName: DefaultCookieName,
		secure:     secure,
	}, nil
}

// Ensure returns the request's session, creating a fresh one and setting the
// cookie when the request carries none (or carries an invalid cookie).
func (m *Manager) Ensure(w http.ResponseWriter, r *http.Request) (*Session, string, error) {
	if id, ok := m.requestSessionID(r); ok {
		sess, err := m.store.Get(r.Context(), id)
		if err == nil {
			return sess, id, nil
		}
		if err != ErrNotFound {
			return nil, "", fmt.Errorf("load session: %w", err)
		}
	}

	id, err := newSessionID()
	if err != nil {
		return nil, "", err
	}
	sess := &Session{}
	if err := m.store.Put(r.Context(), id, sess); err != nil {
		return nil, "", fmt.Errorf("create session: %w", err)
	}
	m.setCookie(w, id)
	return sess, id, nil
}

// Lookup returns the request's session without creating one.
func (m *Manager) Lookup(r *http.Request) (*Session, string, error) {
	id, ok := m.requestSessionID(r)
	if !ok {
		return nil, "", ErrNotFound
	}
	sess, err := m.store.Get(r.Context(), id)
	if err != nil {
		return nil, "", err
	}
	return sess, id, nil
}

// Save persists the session under its ID.
func (m *Manager) Save(r *http.Request, id string, sess *Session) error {
	return m.store.Put(r.Context(), id, sess)
}

func (m *Manager) requestSessionID(r *http.Request) (string, bool) {
	cookie, err := r.Cookie(m.cookieName)
	if err != nil {
		return "", false
	}
	id, mac, ok := strings.Cut(cookie.Value, ".")
	if !ok {
		return "", false
	}
	want, err := base64.RawURLEncoding.DecodeString(mac)
	if err != nil {
		return "", false
	}
	if !hmac.Equal(want, m.sign(id)) {
		return "", false
	}
	return id, true
}

func (m *Manager) setCookie(w http.ResponseWriter, id string) {
	value := id + "." + base64.RawURLEncoding.EncodeToString(m.sign(id))
	http.SetCookie(w, &http.Cookie{
		Name:     m.cookieName,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (m *Manager) sign(id string) []byte {
	mac := hmac.New(sha256.New, m.authKey)
	mac.Write([]byte(id))
	return mac.Sum(nil)
}

func newSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate session ID: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
