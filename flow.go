package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/breachmonitor/breachmonitor/breach"
	"github.com/breachmonitor/breachmonitor/instrumentation"
	"github.com/breachmonitor/breachmonitor/pilot"
	"github.com/breachmonitor/breachmonitor/security"
	"github.com/breachmonitor/breachmonitor/session"
	"github.com/breachmonitor/breachmonitor/storage"
)

// FlowState identifies where the confirmation flow is, or where it stopped.
type FlowState string

const (
	StateNoSessionState  FlowState = "NO_SESSION_STATE"
	StateMismatch        FlowState = "STATE_MISMATCH"
	StateTokenExchange   FlowState = "TOKEN_EXCHANGE"
	StateProfileFetch    FlowState = "PROFILE_FETCH"
	StateLookup          FlowState = "LOOKUP"
	StatePilotResolution FlowState = "PILOT_RESOLUTION"
	StateClassified      FlowState = "CLASSIFIED"
)

// Classification is the terminal result of the confirmation state machine.
type Classification struct {
	Email         string
	ExistingUser  bool
	PilotEligible bool
	Subscriber    *storage.Subscriber
	AccessToken   string
	RefreshToken  string
	Profile       []byte
}

func (c *Classification) pilotFlag() storage.PilotFlag {
	if c.Subscriber == nil {
		return storage.PilotUnknown
	}
	return c.Subscriber.PilotFlag
}

// Outcome is what the HTTP handler needs after a confirmed sign-in.
type Outcome struct {
	// Location is the path-and-query destination of the 302.
	Location string

	// NewUser reports whether this confirmation provisioned the subscriber.
	NewUser bool
}

// Flow runs the post-redirect confirmation: state-token validation, code
// exchange, profile reconciliation, pilot resolution, provisioning, and
// redirect selection. One Flow serves all requests; per-request state lives
// in the session.
type Flow struct {
	cfg       Config
	serverURL *url.URL
}

// NewFlow validates the configuration and creates the flow engine.
func NewFlow(cfg Config) (*Flow, error) {
	serverURL, err := cfg.validate()
	if err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return &Flow{cfg: cfg, serverURL: serverURL}, nil
}

// ServerURL returns the configured external base URL.
func (f *Flow) ServerURL() *url.URL {
	return f.serverURL
}

// Begin mints the anti-replay state token and the provider authorization URL
// for a sign-in. The session's previous state and campaign parameters are
// discarded; inbound query parameters are forwarded to the provider verbatim,
// alongside access_type=offline (to obtain a refresh token) and action=email.
func (f *Flow) Begin(ctx context.Context, sess *session.Session, query url.Values) (string, error) {
	state := security.GenerateStateToken()
	sess.State = state
	sess.UTMContents = captureUTM(query)

	extra := url.Values{}
	extra.Set("access_type", "offline")
	extra.Set("action", "email")
	for key, values := range query {
		for _, value := range values {
			extra.Add(key, value)
		}
	}

	authURL, err := f.cfg.Provider.AuthorizationURL(state, extra)
	if err != nil {
		return "", ErrUpstreamAuth("failed to build authorization URL", err)
	}

	f.cfg.Metrics.RecordLoginStarted(ctx)
	return authURL, nil
}

// Confirm runs the confirmation state machine for a provider callback. The
// session is mutated in place; the caller persists it afterwards regardless
// of the result, because the state token is consumed even on failure.
func (f *Flow) Confirm(ctx context.Context, sess *session.Session, code, state, clientIP, acceptLanguage string) (*Outcome, error) {
	ctx, span := f.startSpan(ctx, "flow.confirm")
	defer endSpan(span)

	cls, flowState, err := f.classify(ctx, sess, code, state, clientIP, acceptLanguage)
	instrumentation.AddFlowAttributes(span, string(flowState), "")
	if err != nil {
		flowErr := &FlowError{}
		if errors.As(err, &flowErr) {
			instrumentation.SetSpanAttributes(span,
				attribute.String(instrumentation.AttrErrorCode, flowErr.Code))
		}
		instrumentation.RecordError(span, err)
		return nil, err
	}

	instrumentation.AddFlowAttributes(span, "", security.HashIdentifier(cls.Email))
	instrumentation.SetSpanAttributes(span,
		attribute.Bool(instrumentation.AttrNewUser, !cls.ExistingUser),
		attribute.String(instrumentation.AttrPilotFlag, cls.pilotFlag().String()))
	instrumentation.SetSpanSuccess(span)

	hint := sess.PostAuthRedirect
	decision := ResolveRedirect(f.serverURL, f.cfg.DashboardPath, f.cfg.PilotPath, hint, cls.PilotEligible)
	if decision.ConsumedHint {
		sess.PostAuthRedirect = ""
	}

	return &Outcome{
		Location: decision.Location(),
		NewUser:  !cls.ExistingUser,
	}, nil
}

func (f *Flow) classify(ctx context.Context, sess *session.Session, code, state, clientIP, acceptLanguage string) (*Classification, FlowState, error) {
	if sess.State == "" {
		f.cfg.Metrics.RecordInvalidSession(ctx)
		f.cfg.Auditor.LogInvalidSession(clientIP, "no session state")
		return nil, StateNoSessionState, ErrInvalidSession("no state token in session")
	}

	// The token is single-use: it is cleared on every path that reaches the
	// comparison, including mismatches.
	expected := sess.State
	sess.State = ""
	if state == "" || state != expected {
		f.cfg.Metrics.RecordInvalidSession(ctx)
		f.cfg.Auditor.LogInvalidSession(clientIP, "state mismatch")
		return nil, StateMismatch, ErrInvalidSession("state token mismatch")
	}

	start := time.Now()
	token, err := f.cfg.Provider.ExchangeCode(ctx, code)
	f.cfg.Metrics.RecordProviderCall(ctx, f.cfg.Provider.Name(), "exchange_code", err, float64(time.Since(start).Microseconds())/1000.0)
	if err != nil {
		f.cfg.Auditor.LogCodeExchangeFailed(clientIP, f.cfg.Provider.Name())
		return nil, StateTokenExchange, ErrUpstreamAuth("code exchange failed", err)
	}

	start = time.Now()
	profile, err := f.cfg.Provider.Profile(ctx, token.AccessToken)
	f.cfg.Metrics.RecordProviderCall(ctx, f.cfg.Provider.Name(), "profile", err, float64(time.Since(start).Microseconds())/1000.0)
	if err != nil {
		f.cfg.Auditor.LogCodeExchangeFailed(clientIP, f.cfg.Provider.Name())
		return nil, StateProfileFetch, ErrUpstreamAuth("profile fetch failed", err)
	}

	email, err := emailFromProfile(profile)
	if err != nil {
		f.cfg.Logger.Warn("Unusable profile payload",
			"payload", string(profile),
			"error", err)
		f.cfg.Auditor.LogProfileDataInvalid(clientIP, err.Error())
		return nil, StateProfileFetch, ErrProfileData("profile payload has no usable email", err)
	}

	subscriber, err := f.cfg.Store.GetByEmail(ctx, email)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, StateLookup, ErrStore("subscriber lookup failed", err)
	}

	cls := &Classification{
		Email:        email,
		Subscriber:   subscriber,
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		Profile:      profile,
	}

	// Pilot eligibility is resolved for any subscriber on record, including
	// one whose earlier sign-up stopped before a refresh token was stored.
	// It decides the redirect even when provisioning still has to run.
	if subscriber != nil {
		eligible, err := f.resolvePilot(ctx, subscriber)
		if err != nil {
			return nil, StatePilotResolution, err
		}
		cls.PilotEligible = eligible
	}

	if subscriber == nil || subscriber.RefreshToken == "" {
		if stopped, err := f.provision(ctx, sess, cls, clientIP, acceptLanguage); err != nil {
			return nil, stopped, err
		}
		return cls, StateClassified, nil
	}

	cls.ExistingUser = true
	if stopped, err := f.refresh(ctx, sess, cls, clientIP); err != nil {
		return nil, stopped, err
	}
	return cls, StateClassified, nil
}

// provision creates (or completes) the subscriber record and sends the
// one-time report email.
func (f *Flow) provision(ctx context.Context, sess *session.Session, cls *Classification, clientIP, acceptLanguage string) (FlowState, error) {
	sess.NewUser = true

	sub, err := f.cfg.Store.Insert(ctx, cls.Email, acceptLanguage, cls.AccessToken, cls.RefreshToken, cls.Profile)
	if err != nil {
		return StateLookup, ErrStore("subscriber insert failed", err)
	}

	breaches := f.lookupBreaches(ctx, cls.Email)
	if f.cfg.Reporter != nil {
		if err := f.cfg.Reporter.SendReport(ctx, sub, breaches); err != nil {
			f.cfg.Logger.Error("Report email failed, continuing sign-in",
				"email_hash", security.HashIdentifier(cls.Email),
				"error", err)
		} else {
			f.cfg.Auditor.LogReportEmailSent(cls.Email, len(breaches))
		}
	}

	if err := f.enrollRemovalPilot(ctx, cls.Email); err != nil {
		return StatePilotResolution, err
	}

	f.cfg.Metrics.RecordSubscriberProvisioned(ctx)
	f.cfg.Auditor.LogSubscriberProvisioned(cls.Email, clientIP, len(breaches))

	if final, err := f.cfg.Store.GetByEmail(ctx, cls.Email); err == nil {
		sub = final
	} else {
		f.cfg.Logger.Warn("Subscriber reload failed, keeping the insert snapshot",
			"email_hash", security.HashIdentifier(cls.Email),
			"error", err)
	}
	cls.Subscriber = sub
	sess.User = sub
	sess.UserEmail = sub.PrimaryEmail
	return StateClassified, nil
}

// enrollRemovalPilot checks the pilot list for a just-provisioned subscriber
// and records membership.
//
// TODO: non-members should be stored as non-members; both branches currently
// mark the subscriber as a member, so the list check has no effect here.
func (f *Flow) enrollRemovalPilot(ctx context.Context, email string) error {
	member, err := f.checkPilotList(ctx, email)
	if err != nil {
		return nil
	}

	if member {
		err = f.cfg.Store.SetPilotFlag(ctx, email, true)
	} else {
		err = f.cfg.Store.SetPilotFlag(ctx, email, true)
	}
	if err != nil {
		return ErrStore("pilot flag update failed", err)
	}
	return nil
}

// refresh updates a fully provisioned subscriber's stored credentials.
func (f *Flow) refresh(ctx context.Context, sess *session.Session, cls *Classification, clientIP string) (FlowState, error) {
	if err := f.cfg.Store.UpdateTokens(ctx, cls.Email, cls.AccessToken, cls.RefreshToken, cls.Profile); err != nil {
		return StateLookup, ErrStore("token update failed", err)
	}
	f.cfg.Metrics.RecordTokensRefreshed(ctx)
	f.cfg.Auditor.LogTokensRefreshed(cls.Email, clientIP)

	sub, err := f.cfg.Store.GetByEmail(ctx, cls.Email)
	if err != nil {
		return StateLookup, ErrStore("subscriber reload failed", err)
	}
	cls.Subscriber = sub
	sess.User = sub
	sess.UserEmail = sub.PrimaryEmail
	sess.NewUser = false
	return StateClassified, nil
}

// resolvePilot turns the stored tri-state into this request's eligibility.
//
// A resolved flag is final: members are eligible unless they opted out, and
// non-members are never rechecked. An unresolved flag triggers exactly one
// list check, whose boolean is persisted. A member found by that first check
// is eligible immediately; the opt-out preference is only consulted on the
// pre-resolved path.
func (f *Flow) resolvePilot(ctx context.Context, sub *storage.Subscriber) (bool, error) {
	switch sub.PilotFlag {
	case storage.PilotMember:
		return !sub.PilotOptOut, nil
	case storage.PilotNonMember:
		return false, nil
	}

	member, err := f.checkPilotList(ctx, sub.PrimaryEmail)
	if err != nil {
		return false, nil
	}
	if err := f.cfg.Store.SetPilotFlag(ctx, sub.PrimaryEmail, member); err != nil {
		return false, ErrStore("pilot flag update failed", err)
	}
	f.cfg.Auditor.LogPilotResolved(sub.PrimaryEmail, member)
	return member, nil
}

// checkPilotList performs the external hash-membership check. Failures are
// logged and reported as non-membership without persisting, so the next
// sign-in retries.
func (f *Flow) checkPilotList(ctx context.Context, email string) (bool, error) {
	f.cfg.Metrics.RecordPilotCheck(ctx)
	member, err := f.cfg.PilotChecker.IsEmailOnPilotList(ctx, email)
	if err != nil {
		f.cfg.Logger.Warn("Pilot list check failed",
			"email_hash", security.HashIdentifier(email),
			"error", err)
		return false, err
	}
	return member, nil
}

func (f *Flow) lookupBreaches(ctx context.Context, email string) []breach.Breach {
	if f.cfg.Breaches == nil {
		return nil
	}
	breaches, err := f.cfg.Breaches.BreachesForEmail(ctx, pilot.HashEmail(email))
	if err != nil {
		f.cfg.Logger.Warn("Breach lookup failed, sending report without findings",
			"email_hash", security.HashIdentifier(email),
			"error", err)
		return nil
	}
	return breaches
}

// startSpan opens a tracing span when a tracer is configured. The returned
// span may be nil; the instrumentation helpers and endSpan tolerate that.
func (f *Flow) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	if f.cfg.Tracer == nil {
		return ctx, nil
	}
	return f.cfg.Tracer.Start(ctx, name)
}

func endSpan(span trace.Span) {
	if span != nil {
		span.End()
	}
}

func emailFromProfile(payload []byte) (string, error) {
	var profile struct {
		Email string `json:"email"`
	}
	if err := json.Unmarshal(payload, &profile); err != nil {
		return "", err
	}
	email := strings.TrimSpace(profile.Email)
	if email == "" {
		return "", errors.New("profile has no email")
	}
	return email, nil
}

func captureUTM(query url.Values) map[string]string {
	utm := make(map[string]string)
	for key, values := range query {
		if strings.HasPrefix(key, "utm_") && len(values) > 0 {
			utm[key] = values[0]
		}
	}
	return utm
}
