// Package sqlite provides a durable subscriber store backed by SQLite.
package sqlite

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/breachmonitor/breachmonitor/instrumentation"
	"github.com/breachmonitor/breachmonitor/security"
	"github.com/breachmonitor/breachmonitor/storage"
)

const schema = `
CREATE TABLE IF NOT EXISTS subscribers (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	primary_email TEXT NOT NULL UNIQUE,
	access_token TEXT NOT NULL DEFAULT '',
	refresh_token TEXT NOT NULL DEFAULT '',
	profile_data BLOB,
	signup_language TEXT NOT NULL DEFAULT '',
	pilot_flag INTEGER NOT NULL DEFAULT 0,
	pilot_opt_out INTEGER NOT NULL DEFAULT 0,
	unsubscribe_token TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);
`

const subscriberColumns = `id, primary_email, access_token, refresh_token, profile_data,
	signup_language, pilot_flag, pilot_opt_out, unsubscribe_token, created_at, updated_at`

// Store implements storage.SubscriberStore over a SQLite file. The UNIQUE
// constraint on primary_email is what prevents duplicate records when two
// confirmations for the same new email race; Insert resolves the conflict as
// an upsert.
type Store struct {
	db *sql.DB

	encryptor *security.Encryptor
	metrics   *instrumentation.Metrics
}

// Open opens the subscriber store at path and applies the schema. The DSN
// enables WAL mode and a busy timeout so concurrent request handlers do not
// fail on transient locks.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Store{db: db}, nil
}

// SetEncryptor enables token encryption at rest.
func (s *Store) SetEncryptor(enc *security.Encryptor) {
	s.encryptor = enc
}

// SetMetrics wires storage operation metrics.
func (s *Store) SetMetrics(m *instrumentation.Metrics) {
	s.metrics = m
}

// Close releases the underlying database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// GetByEmail retrieves a subscriber by primary email.
func (s *Store) GetByEmail(ctx context.Context, email string) (*storage.Subscriber, error) {
	start := time.Now()
	sub, err := s.getByEmail(ctx, normalizeEmail(email))
	s.recordOp(ctx, "get_by_email", err, start)
	return sub, err
}

func (s *Store) getByEmail(ctx context.Context, key string) (*storage.Subscriber, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+subscriberColumns+` FROM subscribers WHERE primary_email = ?`, key)
	sub, err := s.scanSubscriber(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query subscriber: %w", err)
	}
	return sub, nil
}

// Insert creates the subscriber record for an email, or completes an
// interrupted signup by replacing tokens, profile, and signup language on the
// existing row. The ON CONFLICT clause makes concurrent inserts for the same
// email converge on a single row.
func (s *Store) Insert(ctx context.Context, email, signupLanguage, accessToken, refreshToken string, profile []byte) (*storage.Subscriber, error) {
	start := time.Now()
	key := normalizeEmail(email)

	sub, err := s.insert(ctx, key, signupLanguage, accessToken, refreshToken, profile)
	s.recordOp(ctx, "insert", err, start)
	return sub, err
}

func (s *Store) insert(ctx context.Context, key, signupLanguage, accessToken, refreshToken string, profile []byte) (*storage.Subscriber, error) {
	encAccess, encRefresh, err := s.encryptTokens(accessToken, refreshToken)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC().UnixMilli()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO subscribers
			(primary_email, access_token, refresh_token, profile_data,
			 signup_language, unsubscribe_token, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (primary_email) DO UPDATE SET
			access_token = excluded.access_token,
			refresh_token = excluded.refresh_token,
			profile_data = excluded.profile_data,
			signup_language = excluded.signup_language,
			updated_at = excluded.updated_at`,
		key, encAccess, encRefresh, profile, signupLanguage, newUnsubscribeToken(), now, now)
	if err != nil {
		return nil, fmt.Errorf("insert subscriber: %w", err)
	}

	return s.getByEmail(ctx, key)
}

// UpdateTokens replaces the stored OAuth tokens and profile payload.
func (s *Store) UpdateTokens(ctx context.Context, email, accessToken, refreshToken string, profile []byte) error {
	start := time.Now()
	err := s.updateTokens(ctx, normalizeEmail(email), accessToken, refreshToken, profile)
	s.recordOp(ctx, "update_tokens", err, start)
	return err
}

func (s *Store) updateTokens(ctx context.Context, key, accessToken, refreshToken string, profile []byte) error {
	encAccess, encRefresh, err := s.encryptTokens(accessToken, refreshToken)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE subscribers
		SET access_token = ?, refresh_token = ?, profile_data = ?, updated_at = ?
		WHERE primary_email = ?`,
		encAccess, encRefresh, profile, time.Now().UTC().UnixMilli(), key)
	if err != nil {
		return fmt.Errorf("update tokens: %w", err)
	}
	return requireRow(res)
}

// SetPilotFlag persists a resolved pilot-list membership.
func (s *Store) SetPilotFlag(ctx context.Context, email string, member bool) error {
	start := time.Now()

	flag := storage.PilotNonMember
	if member {
		flag = storage.PilotMember
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE subscribers SET pilot_flag = ?, updated_at = ? WHERE primary_email = ?`,
		int(flag), time.Now().UTC().UnixMilli(), normalizeEmail(email))
	if err != nil {
		err = fmt.Errorf("set pilot flag: %w", err)
	} else {
		err = requireRow(res)
	}

	s.recordOp(ctx, "set_pilot_flag", err, start)
	return err
}

// SetPilotOptOut persists the subscriber's pilot opt-out preference.
func (s *Store) SetPilotOptOut(ctx context.Context, email string, optOut bool) error {
	start := time.Now()

	res, err := s.db.ExecContext(ctx, `
		UPDATE subscribers SET pilot_opt_out = ?, updated_at = ? WHERE primary_email = ?`,
		boolToInt(optOut), time.Now().UTC().UnixMilli(), normalizeEmail(email))
	if err != nil {
		err = fmt.Errorf("set pilot opt-out: %w", err)
	} else {
		err = requireRow(res)
	}

	s.recordOp(ctx, "set_pilot_opt_out", err, start)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *Store) scanSubscriber(row rowScanner) (*storage.Subscriber, error) {
	var sub storage.Subscriber
	var pilotFlag, pilotOptOut int
	var createdAt, updatedAt int64

	err := row.Scan(&sub.ID, &sub.PrimaryEmail, &sub.AccessToken, &sub.RefreshToken,
		&sub.ProfileData, &sub.SignupLanguage, &pilotFlag, &pilotOptOut,
		&sub.UnsubscribeToken, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	sub.PilotFlag = storage.PilotFlag(pilotFlag)
	sub.PilotOptOut = pilotOptOut != 0
	sub.CreatedAt = time.UnixMilli(createdAt).UTC()
	sub.UpdatedAt = time.UnixMilli(updatedAt).UTC()

	if s.encryptor != nil {
		if sub.AccessToken, err = s.encryptor.Decrypt(sub.AccessToken); err != nil {
			return nil, fmt.Errorf("decrypt access token: %w", err)
		}
		if sub.RefreshToken, err = s.encryptor.Decrypt(sub.RefreshToken); err != nil {
			return nil, fmt.Errorf("decrypt refresh token: %w", err)
		}
	}
	return &sub, nil
}

func (s *Store) encryptTokens(accessToken, refreshToken string) (string, string, error) {
	if s.encryptor == nil {
		return accessToken, refreshToken, nil
	}
	encAccess, err := s.encryptor.Encrypt(accessToken)
	if err != nil {
		return "", "", fmt.Errorf("encrypt access token: %w", err)
	}
	encRefresh, err := s.encryptor.Encrypt(refreshToken)
	if err != nil {
		return "", "", fmt.Errorf("encrypt refresh token: %w", err)
	}
	return encAccess, encRefresh, nil
}

func (s *Store) recordOp(ctx context.Context, op string, err error, start time.Time) {
	s.metrics.RecordStorageOperation(ctx, "sqlite", op, err, float64(time.Since(start).Microseconds())/1000.0)
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}

func newUnsubscribeToken() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		panic(fmt.Sprintf("crypto/rand.Read failed: %v", err))
	}
	return base64.RawURLEncoding.EncodeToString(b)
}
