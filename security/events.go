package security

// Event type constants for security audit logging. Using constants keeps
// event names consistent across the flow, the handlers, and the dashboards
// that consume the audit stream.
const (
	// Sign-in flow events

	// EventLoginStarted is logged when an authorization redirect is issued.
	EventLoginStarted = "login_started"

	// EventInvalidSession is logged when a callback arrives without a session
	// state token or with a token that does not match.
	EventInvalidSession = "invalid_session"

	// EventCodeExchangeFailed is logged when exchanging the authorization code
	// with the identity provider fails.
	EventCodeExchangeFailed = "code_exchange_failed"

	// EventProfileDataInvalid is logged when the provider profile payload is
	// unparsable or carries no email.
	EventProfileDataInvalid = "profile_data_invalid"

	// Subscriber lifecycle events

	// EventSubscriberProvisioned is logged when a first-time subscriber record
	// is created (or an incomplete signup is completed).
	EventSubscriberProvisioned = "subscriber_provisioned"

	// EventTokensRefreshed is logged when a returning subscriber's stored
	// OAuth credentials are updated.
	EventTokensRefreshed = "tokens_refreshed"

	// EventPilotResolved is logged when the pilot-list tri-state is resolved
	// from unknown to a persisted boolean.
	EventPilotResolved = "pilot_resolved"

	// EventReportEmailSent is logged when the one-time report email goes out.
	EventReportEmailSent = "report_email_sent"

	// Violation events

	// EventRateLimitExceeded is logged when a rate limit is exceeded.
	EventRateLimitExceeded = "rate_limit_exceeded"
)
