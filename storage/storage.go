// Package storage defines the interface for persisting subscriber records.
// It supports in-memory (development, tests) and SQLite (durable) backends.
package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when no subscriber exists for an email.
var ErrNotFound = errors.New("subscriber not found")

// PilotFlag is the tri-state pilot-list membership of a subscriber. The
// explicit Unknown state is what makes lazy resolution idempotent: once a
// record is Member or NonMember, the external hash check is never consulted
// again for it.
type PilotFlag int

const (
	// PilotUnknown means membership has not been checked yet.
	PilotUnknown PilotFlag = iota

	// PilotMember means the subscriber was confirmed to be on the pilot list.
	PilotMember

	// PilotNonMember means the subscriber was confirmed not to be on the list.
	PilotNonMember
)

// String returns a human-readable name for the flag.
func (f PilotFlag) String() string {
	switch f {
	case PilotUnknown:
		return "unknown"
	case PilotMember:
		return "member"
	case PilotNonMember:
		return "non_member"
	default:
		return "invalid"
	}
}

// Resolved reports whether the flag has been resolved to a boolean.
func (f PilotFlag) Resolved() bool {
	return f == PilotMember || f == PilotNonMember
}

// Subscriber is the durable record keyed by primary email. OAuth tokens are
// encrypted at rest when the backing store is configured with an encryptor;
// values on this struct are always plaintext.
type Subscriber struct {
	ID               int64
	PrimaryEmail     string
	AccessToken      string
	RefreshToken     string
	ProfileData      []byte // raw profile JSON as returned by the provider
	SignupLanguage   string // Accept-Language header captured at signup
	PilotFlag        PilotFlag
	PilotOptOut      bool
	UnsubscribeToken string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// SubscriberStore is the durable subscriber record store. All methods accept
// context.Context for cancellation and tracing.
//
// Implementations must guarantee at most one effective record per email:
// concurrent Insert calls for the same new email must serialize on the
// email's uniqueness constraint rather than create duplicates, since the
// provisioning path sends a welcome email per inserted record.
type SubscriberStore interface {
	// GetByEmail retrieves a subscriber by primary email.
	// Returns ErrNotFound when absent.
	GetByEmail(ctx context.Context, email string) (*Subscriber, error)

	// Insert creates the subscriber record for an email, or completes an
	// interrupted signup: if a record already exists (e.g. a previous
	// confirmation stored no refresh token), its tokens, profile payload,
	// and signup language are replaced instead. Returns the stored record.
	Insert(ctx context.Context, email, signupLanguage, accessToken, refreshToken string, profile []byte) (*Subscriber, error)

	// UpdateTokens replaces the stored OAuth tokens and profile payload for
	// an existing subscriber. Returns ErrNotFound when absent.
	UpdateTokens(ctx context.Context, email, accessToken, refreshToken string, profile []byte) error

	// SetPilotFlag persists a resolved pilot-list membership.
	// Returns ErrNotFound when absent.
	SetPilotFlag(ctx context.Context, email string, member bool) error

	// SetPilotOptOut persists the subscriber's pilot opt-out preference.
	// Returns ErrNotFound when absent.
	SetPilotOptOut(ctx context.Context, email string, optOut bool) error

	// Close releases the store's resources.
	Close() error
}
