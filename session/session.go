// Package session holds the server-side session state for the sign-in flow
// and a cookie-backed manager for attaching sessions to requests.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/breachmonitor/breachmonitor/storage"
)

// ErrNotFound is returned when no session exists for an ID.
var ErrNotFound = errors.New("session not found")

// Session is the per-browser state of the sign-in flow.
//
// Field ownership is deliberately narrow. The init step may set State and
// reset UTMContents. The confirmation step may read and clear State, set
// User, UserEmail, and NewUser, and read and clear PostAuthRedirect. Nothing
// else mutates these fields.
type Session struct {
	// State is the single-use anti-replay token minted at init and consumed
	// at confirmation.
	State string

	// UserEmail and User cache the signed-in subscriber after confirmation.
	UserEmail string
	User      *storage.Subscriber

	// NewUser marks the session as belonging to a just-provisioned
	// subscriber so the destination page can adjust its copy.
	NewUser bool

	// PostAuthRedirect is an optional relative path to send the user to
	// after sign-in. It is consumed at most once, and only when the user is
	// eligible for the monitored-removal pilot.
	PostAuthRedirect string

	// UTMContents holds campaign parameters captured at init.
	UTMContents map[string]string
}

// Clone returns a deep copy of the session.
func (s *Session) Clone() *Session {
	out := *s
	if s.User != nil {
		user := *s.User
		user.ProfileData = append([]byte(nil), s.User.ProfileData...)
		out.User = &user
	}
	if s.UTMContents != nil {
		out.UTMContents = make(map[string]string, len(s.UTMContents))
		for k, v := range s.UTMContents {
			out.UTMContents[k] = v
		}
	}
	return &out
}

// Store persists sessions keyed by an opaque ID.
type Store interface {
	Get(ctx context.Context, id string) (*Session, error)
	Put(ctx context.Context, id string, sess *Session) error
	Delete(ctx context.Context, id string) error
}

type memoryEntry struct {
	sess      *Session
	expiresAt time.Time
}

// MemoryStore is an in-memory session store with TTL expiry.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]memoryEntry
	ttl      time.Duration
}

// NewMemoryStore creates a memory session store. A non-positive TTL defaults
// to one hour.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &MemoryStore{
		sessions: make(map[string]memoryEntry),
		ttl:      ttl,
	}
}

// Get retrieves a session by ID. Expired sessions count as missing.
func (s *MemoryStore) Get(ctx context.Context, id string) (*Session, error) {
	s.mu.RLock()
	entry, ok := s.sessions[id]
	s.mu.RUnlock()

	if !ok || time.Now().After(entry.expiresAt) {
		return nil, ErrNotFound
	}
	return entry.sess.Clone(), nil
}

// Put stores a session under the given ID, resetting its TTL.
func (s *MemoryStore) Put(ctx context.Context, id string, sess *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[id] = memoryEntry{
		sess:      sess.Clone(),
		expiresAt: time.Now().Add(s.ttl),
	}
	return nil
}

// Delete removes a session.
func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
	return nil
}

// Len returns the number of live sessions. Test helper.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
