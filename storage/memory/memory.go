// Package memory provides an in-memory implementation of the subscriber
// store. It is suitable for development, testing, and single-instance
// deployments.
package memory

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/breachmonitor/breachmonitor/instrumentation"
	"github.com/breachmonitor/breachmonitor/security"
	"github.com/breachmonitor/breachmonitor/storage"
)

// Store is an in-memory implementation of storage.SubscriberStore. The mutex
// serializes all writes, which is what enforces the one-record-per-email
// guarantee under concurrent confirmations.
type Store struct {
	mu          sync.RWMutex
	subscribers map[string]*storage.Subscriber // keyed by normalized email
	nextID      int64

	encryptor *security.Encryptor
	metrics   *instrumentation.Metrics
	logger    *slog.Logger
}

// New creates an empty in-memory subscriber store.
func New() *Store {
	return &Store{
		subscribers: make(map[string]*storage.Subscriber),
		logger:      slog.Default(),
	}
}

// SetEncryptor enables token encryption at rest.
func (s *Store) SetEncryptor(enc *security.Encryptor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.encryptor = enc
}

// SetMetrics wires storage operation metrics.
func (s *Store) SetMetrics(m *instrumentation.Metrics) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics = m
}

// SetLogger replaces the store's logger.
func (s *Store) SetLogger(logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logger = logger
}

// GetByEmail retrieves a subscriber by primary email.
func (s *Store) GetByEmail(ctx context.Context, email string) (*storage.Subscriber, error) {
	start := time.Now()

	s.mu.RLock()
	sub, ok := s.subscribers[normalizeEmail(email)]
	var out *storage.Subscriber
	if ok {
		out = cloneSubscriber(sub)
	}
	enc := s.encryptor
	s.mu.RUnlock()

	var err error
	if !ok {
		err = storage.ErrNotFound
	} else {
		err = decryptTokens(enc, out)
	}

	s.recordOp(ctx, "get_by_email", err, start)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Insert creates the subscriber record for an email, or completes an
// interrupted signup by replacing tokens, profile, and signup language on an
// existing record.
func (s *Store) Insert(ctx context.Context, email, signupLanguage, accessToken, refreshToken string, profile []byte) (*storage.Subscriber, error) {
	start := time.Now()
	key := normalizeEmail(email)
	now := time.Now()

	s.mu.Lock()
	encAccess, err := encryptToken(s.encryptor, accessToken)
	if err == nil {
		var encRefresh string
		encRefresh, err = encryptToken(s.encryptor, refreshToken)
		if err == nil {
			sub, ok := s.subscribers[key]
			if !ok {
				s.nextID++
				sub = &storage.Subscriber{
					ID:               s.nextID,
					PrimaryEmail:     key,
					PilotFlag:        storage.PilotUnknown,
					UnsubscribeToken: newUnsubscribeToken(),
					CreatedAt:        now,
				}
				s.subscribers[key] = sub
			}
			sub.AccessToken = encAccess
			sub.RefreshToken = encRefresh
			sub.ProfileData = append([]byte(nil), profile...)
			sub.SignupLanguage = signupLanguage
			sub.UpdatedAt = now
		}
	}
	var out *storage.Subscriber
	if err == nil {
		out = cloneSubscriber(s.subscribers[key])
		out.AccessToken = accessToken
		out.RefreshToken = refreshToken
	}
	s.mu.Unlock()

	s.recordOp(ctx, "insert", err, start)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// UpdateTokens replaces the stored OAuth tokens and profile payload.
func (s *Store) UpdateTokens(ctx context.Context, email, accessToken, refreshToken string, profile []byte) error {
	start := time.Now()
	key := normalizeEmail(email)

	s.mu.Lock()
	sub, ok := s.subscribers[key]
	var err error
	if !ok {
		err = storage.ErrNotFound
	} else {
		var encAccess, encRefresh string
		encAccess, err = encryptToken(s.encryptor, accessToken)
		if err == nil {
			encRefresh, err = encryptToken(s.encryptor, refreshToken)
		}
		if err == nil {
			sub.AccessToken = encAccess
			sub.RefreshToken = encRefresh
			sub.ProfileData = append([]byte(nil), profile...)
			sub.UpdatedAt = time.Now()
		}
	}
	s.mu.Unlock()

	s.recordOp(ctx, "update_tokens", err, start)
	return err
}

// SetPilotFlag persists a resolved pilot-list membership.
func (s *Store) SetPilotFlag(ctx context.Context, email string, member bool) error {
	start := time.Now()
	key := normalizeEmail(email)

	s.mu.Lock()
	sub, ok := s.subscribers[key]
	var err error
	if !ok {
		err = storage.ErrNotFound
	} else {
		if member {
			sub.PilotFlag = storage.PilotMember
		} else {
			sub.PilotFlag = storage.PilotNonMember
		}
		sub.UpdatedAt = time.Now()
	}
	s.mu.Unlock()

	s.recordOp(ctx, "set_pilot_flag", err, start)
	return err
}

// SetPilotOptOut persists the subscriber's pilot opt-out preference.
func (s *Store) SetPilotOptOut(ctx context.Context, email string, optOut bool) error {
	start := time.Now()
	key := normalizeEmail(email)

	s.mu.Lock()
	sub, ok := s.subscribers[key]
	var err error
	if !ok {
		err = storage.ErrNotFound
	} else {
		sub.PilotOptOut = optOut
		sub.UpdatedAt = time.Now()
	}
	s.mu.Unlock()

	s.recordOp(ctx, "set_pilot_opt_out", err, start)
	return err
}

// Close is a no-op for the in-memory store.
func (s *Store) Close() error {
	return nil
}

// Len returns the number of stored subscribers. Test helper.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subscribers)
}

func (s *Store) recordOp(ctx context.Context, op string, err error, start time.Time) {
	if err != nil && err != storage.ErrNotFound {
		s.logger.Warn("Storage operation failed", "backend", "memory", "operation", op, "error", err)
	}
	s.metrics.RecordStorageOperation(ctx, "memory", op, err, float64(time.Since(start).Microseconds())/1000.0)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func cloneSubscriber(sub *storage.Subscriber) *storage.Subscriber {
	out := *sub
	out.ProfileData = append([]byte(nil), sub.ProfileData...)
	return &out
}

func encryptToken(enc *security.Encryptor, token string) (string, error) {
	if enc == nil {
		return token, nil
	}
	out, err := enc.Encrypt(token)
	if err != nil {
		return "", fmt.Errorf("encrypt token: %w", err)
	}
	return out, nil
}

func decryptTokens(enc *security.Encryptor, sub *storage.Subscriber) error {
	if enc == nil {
		return nil
	}
	access, err := enc.Decrypt(sub.AccessToken)
	if err != nil {
		return fmt.Errorf("decrypt access token: %w", err)
	}
	refresh, err := enc.Decrypt(sub.RefreshToken)
	if err != nil {
		return fmt.Errorf("decrypt refresh token: %w", err)
	}
	sub.AccessToken = access
	sub.RefreshToken = refresh
	return nil
}

func newUnsubscribeToken() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		panic(fmt.Sprintf("crypto/rand.Read failed: %v", err))
	}
	return base64.RawURLEncoding.EncodeToString(b)
}
