package security

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"time"
)

// Auditor handles security event logging with PII protection. Email addresses
// never reach the log in the clear; they are replaced by a truncated SHA-256
// digest that still allows correlating events for one subscriber.
type Auditor struct {
	logger  *slog.Logger
	enabled bool
}

// NewAuditor creates a new security auditor.
func NewAuditor(logger *slog.Logger, enabled bool) *Auditor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Auditor{
		logger:  logger,
		enabled: enabled,
	}
}

// Event represents a security audit event.
type Event struct {
	Type      string
	Email     string // hashed before logging
	IPAddress string
	Details   map[string]any
	Timestamp time.Time
}

// LogEvent logs a security event with hashed PII.
func (a *Auditor) LogEvent(event Event) {
	if a == nil || !a.enabled {
		return
	}

	event.Timestamp = time.Now()

	a.logger.Info("security_audit",
		"event_type", event.Type,
		"email_hash", HashIdentifier(event.Email),
		"ip_address", event.IPAddress,
		"details", event.Details,
		"timestamp", event.Timestamp,
	)
}

// LogLoginStarted logs the issuance of an authorization redirect.
func (a *Auditor) LogLoginStarted(ipAddress string) {
	a.LogEvent(Event{
		Type:      EventLoginStarted,
		IPAddress: ipAddress,
	})
}

// LogInvalidSession logs a failed state-token validation.
func (a *Auditor) LogInvalidSession(ipAddress, reason string) {
	a.LogEvent(Event{
		Type:      EventInvalidSession,
		IPAddress: ipAddress,
		Details: map[string]any{
			"reason": reason,
		},
	})
}

// LogCodeExchangeFailed logs a failed authorization-code exchange.
func (a *Auditor) LogCodeExchangeFailed(ipAddress, provider string) {
	a.LogEvent(Event{
		Type:      EventCodeExchangeFailed,
		IPAddress: ipAddress,
		Details: map[string]any{
			"provider": provider,
		},
	})
}

// LogProfileDataInvalid logs an unusable profile payload from the provider.
func (a *Auditor) LogProfileDataInvalid(ipAddress, reason string) {
	a.LogEvent(Event{
		Type:      EventProfileDataInvalid,
		IPAddress: ipAddress,
		Details: map[string]any{
			"reason": reason,
		},
	})
}

// LogSubscriberProvisioned logs first-time provisioning of a subscriber.
func (a *Auditor) LogSubscriberProvisioned(email, ipAddress string, breachCount int) {
	a.LogEvent(Event{
		Type:      EventSubscriberProvisioned,
		Email:     email,
		IPAddress: ipAddress,
		Details: map[string]any{
			"breach_count": breachCount,
		},
	})
}

// LogTokensRefreshed logs a credential refresh for a returning subscriber.
func (a *Auditor) LogTokensRefreshed(email, ipAddress string) {
	a.LogEvent(Event{
		Type:      EventTokensRefreshed,
		Email:     email,
		IPAddress: ipAddress,
	})
}

// LogPilotResolved logs the one-time resolution of the pilot tri-state.
func (a *Auditor) LogPilotResolved(email string, member bool) {
	a.LogEvent(Event{
		Type:  EventPilotResolved,
		Email: email,
		Details: map[string]any{
			"member": member,
		},
	})
}

// LogReportEmailSent logs the outbound report email.
func (a *Auditor) LogReportEmailSent(email string, breachCount int) {
	a.LogEvent(Event{
		Type:  EventReportEmailSent,
		Email: email,
		Details: map[string]any{
			"breach_count": breachCount,
		},
	})
}

// LogRateLimitExceeded logs a rate limit violation.
func (a *Auditor) LogRateLimitExceeded(ipAddress, endpoint string) {
	a.LogEvent(Event{
		Type:      EventRateLimitExceeded,
		IPAddress: ipAddress,
		Details: map[string]any{
			"endpoint": endpoint,
		},
	})
}

// HashIdentifier creates a truncated SHA-256 hash of sensitive data for
// logging. Returns "<empty>" for the empty string so absent identifiers stay
// distinguishable from hashed ones.
func HashIdentifier(sensitive string) string {
	if sensitive == "" {
		return "<empty>"
	}
	hash := sha256.Sum256([]byte(sensitive))
	return hex.EncodeToString(hash[:])[:16]
}
