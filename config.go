// Package monitor implements the OAuth sign-in and provisioning flow for the
// breach monitoring service: state-token validation, code exchange, profile
// reconciliation against the subscriber store, pilot-list resolution, and the
// single post-confirmation redirect.
package monitor

import (
	"fmt"
	"log/slog"
	"net/url"

	"go.opentelemetry.io/otel/trace"

	"github.com/breachmonitor/breachmonitor/breach"
	"github.com/breachmonitor/breachmonitor/instrumentation"
	"github.com/breachmonitor/breachmonitor/mail"
	"github.com/breachmonitor/breachmonitor/pilot"
	"github.com/breachmonitor/breachmonitor/providers"
	"github.com/breachmonitor/breachmonitor/security"
	"github.com/breachmonitor/breachmonitor/session"
	"github.com/breachmonitor/breachmonitor/storage"
)

const (
	// DefaultDashboardPath is where confirmed users land by default.
	DefaultDashboardPath = "/user/dashboard"

	// DefaultPilotPath is where pilot-eligible users land when no redirect
	// hint is pending.
	DefaultPilotPath = "/user/removal-pilot"
)

// Config assembles the collaborators and settings of the sign-in flow.
type Config struct {
	// ServerURL is this service's externally visible base URL. Required,
	// absolute. Redirect hints are re-anchored against it.
	ServerURL string

	// DashboardPath and PilotPath are the local destinations of the
	// post-confirmation redirect. Defaults applied when empty.
	DashboardPath string
	PilotPath     string

	// Provider is the identity provider. Required.
	Provider providers.Provider

	// Store is the subscriber store. Required.
	Store storage.SubscriberStore

	// Sessions attaches browser sessions to requests. Required.
	Sessions *session.Manager

	// PilotChecker answers pilot-list membership. Required.
	PilotChecker pilot.Checker

	// Breaches answers breach-exposure lookups for the report email.
	// Optional; when nil new subscribers get a report with no findings.
	Breaches breach.Client

	// Reporter sends the one-time report email. Optional.
	Reporter *mail.Reporter

	// RateLimiter throttles both flow endpoints per client IP. Optional.
	RateLimiter *security.RateLimiter

	// TrustProxyHeaders controls whether X-Forwarded-For is honored when
	// extracting the client IP for rate limiting and auditing.
	TrustProxyHeaders bool

	Logger  *slog.Logger
	Auditor *security.Auditor
	Metrics *instrumentation.Metrics

	// Tracer records confirmation-flow spans. Optional.
	Tracer trace.Tracer
}

func (c *Config) validate() (*url.URL, error) {
	if c.Provider == nil {
		return nil, fmt.Errorf("provider is required")
	}
	if c.Store == nil {
		return nil, fmt.Errorf("subscriber store is required")
	}
	if c.Sessions == nil {
		return nil, fmt.Errorf("session manager is required")
	}
	if c.PilotChecker == nil {
		return nil, fmt.Errorf("pilot checker is required")
	}
	serverURL, err := url.Parse(c.ServerURL)
	if err != nil || serverURL.Scheme == "" || serverURL.Host == "" {
		return nil, fmt.Errorf("server URL %q is not absolute", c.ServerURL)
	}
	return serverURL, nil
}

func (c *Config) applyDefaults() {
	if c.DashboardPath == "" {
		c.DashboardPath = DefaultDashboardPath
	}
	if c.PilotPath == "" {
		c.PilotPath = DefaultPilotPath
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}
