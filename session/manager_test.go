package session

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func setupManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager(NewMemoryStore(time.Minute), []byte("cookie-auth-key"), false)
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	return m
}

func TestNewManager_Validation(t *testing.T) {
	store := NewMemoryStore(time.Minute)

	if _, err := NewManager(nil, []byte("key"), false); err == nil {
		t.Error("NewManager() should reject a nil store")
	}
	if _, err := NewManager(store, nil, false); err == nil {
		t.Error("NewManager() should reject an empty auth key")
	}
}

func TestManager_EnsureCreatesSession(t *testing.T) {
	m := setupManager(t)

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/oauth/init", nil)

	sess, id, err := m.Ensure(w, r)
	if err != nil {
		t.Fatalf("Ensure() error = %v", err)
	}
	if sess == nil || id == "" {
		t.Fatal("Ensure() returned empty session or ID")
	}

	cookies := w.Result().Cookies()
	if len(cookies) != 1 {
		t.Fatalf("got %d cookies, want 1", len(cookies))
	}
	c := cookies[0]
	if c.Name != DefaultCookieName {
		t.Errorf("cookie name = %q", c.Name)
	}
	if !c.HttpOnly {
		t.Error("cookie should be HttpOnly")
	}
	if c.SameSite != http.SameSiteLaxMode {
		t.Errorf("SameSite = %v, want Lax", c.SameSite)
	}
	if !strings.HasPrefix(c.Value, id+".") {
		t.Errorf("cookie value %q does not carry the session ID", c.Value)
	}
}

func TestManager_RoundTrip(t *testing.T) {
	m := setupManager(t)

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/oauth/init", nil)
	sess, id, err := m.Ensure(w, r)
	if err != nil {
		t.Fatalf("Ensure() error = %v", err)
	}

	sess.State = "state-token"
	if err := m.Save(r, id, sess); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	r2 := httptest.NewRequest(http.MethodGet, "/oauth/confirmed", nil)
	r2.AddCookie(w.Result().Cookies()[0])

	got, gotID, err := m.Lookup(r2)
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	if gotID != id {
		t.Errorf("Lookup() ID = %q, want %q", gotID, id)
	}
	if got.State != "state-token" {
		t.Errorf("State = %q, want %q", got.State, "state-token")
	}
}

func TestManager_RejectsTamperedCookie(t *testing.T) {
	m := setupManager(t)

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/oauth/init", nil)
	if _, _, err := m.Ensure(w, r); err != nil {
		t.Fatalf("Ensure() error = %v", err)
	}
	cookie := w.Result().Cookies()[0]

	tests := []struct {
		name  string
		value string
	}{
		{name: "flipped ID", value: "x" + cookie.Value[1:]},
		{name: "no MAC", value: strings.SplitN(cookie.Value, ".", 2)[0]},
		{name: "garbage", value: "not-a-session-cookie"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r2 := httptest.NewRequest(http.MethodGet, "/oauth/confirmed", nil)
			r2.AddCookie(&http.Cookie{Name: DefaultCookieName, Value: tt.value})
			if _, _, err := m.Lookup(r2); !errors.Is(err, ErrNotFound) {
				t.Errorf("Lookup() = %v, want ErrNotFound", err)
			}
		})
	}
}

func TestManager_EnsureReplacesInvalidCookie(t *testing.T) {
	m := setupManager(t)

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/oauth/init", nil)
	r.AddCookie(&http.Cookie{Name: DefaultCookieName, Value: "forged.cookie"})

	_, id, err := m.Ensure(w, r)
	if err != nil {
		t.Fatalf("Ensure() error = %v", err)
	}
	if id == "" {
		t.Fatal("Ensure() should mint a fresh session for an invalid cookie")
	}
	if len(w.Result().Cookies()) != 1 {
		t.Error("Ensure() should set a replacement cookie")
	}
}
