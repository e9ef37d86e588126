package monitor

import (
	"errors"
	"html/template"
	"net/http"
	"time"

	"github.com/breachmonitor/breachmonitor/security"
	"github.com/breachmonitor/breachmonitor/session"
)

const (
	// InitPath starts a sign-in.
	InitPath = "/oauth/init"

	// ConfirmedPath receives the provider callback.
	ConfirmedPath = "/oauth/confirmed"
)

var errorPageTemplate = template.Must(template.New("error").Parse(`<!DOCTYPE html>
<html>
<head><title>Sign-in failed</title></head>
<body>
<h1>Sign-in failed</h1>
<p>{{.Description}}</p>
<p>Error code: <code>{{.Code}}</code></p>
<p><a href="{{.RetryPath}}">Try signing in again</a></p>
</body>
</html>
`))

// Handler exposes the sign-in flow over HTTP.
type Handler struct {
	flow *Flow
}

// NewHandler creates the HTTP handler for a flow.
func NewHandler(flow *Flow) *Handler {
	return &Handler{flow: flow}
}

// Routes returns the flow's endpoints behind request-ID middleware.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(InitPath, h.ServeInit)
	mux.HandleFunc(ConfirmedPath, h.ServeConfirmed)
	return security.RequestIDMiddleware(mux)
}

// ServeInit handles GET /oauth/init: mint the state token, stash it in the
// session, and redirect to the provider's authorization endpoint.
func (h *Handler) ServeInit(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	cfg := &h.flow.cfg

	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		h.recordRequest(r, http.StatusMethodNotAllowed, start)
		return
	}

	clientIP := security.GetClientIP(r, cfg.TrustProxyHeaders, 1)
	if !h.allow(clientIP) {
		h.rejectRateLimited(w, r, clientIP, InitPath, start)
		return
	}

	sess, id, err := cfg.Sessions.Ensure(w, r)
	if err != nil {
		cfg.Logger.Error("Session setup failed", "error", err)
		h.writeError(w, r, ErrStore("session setup failed", err), start)
		return
	}

	authURL, err := h.flow.Begin(r.Context(), sess, r.URL.Query())
	if err != nil {
		h.writeError(w, r, err, start)
		return
	}

	if err := cfg.Sessions.Save(r, id, sess); err != nil {
		cfg.Logger.Error("Session save failed", "error", err)
		h.writeError(w, r, ErrStore("session save failed", err), start)
		return
	}

	cfg.Auditor.LogLoginStarted(clientIP)
	http.Redirect(w, r, authURL, http.StatusFound)
	h.recordRequest(r, http.StatusFound, start)
}

// ServeConfirmed handles GET /oauth/confirmed: validate the state token, run
// the confirmation flow, and redirect to the resolved local destination.
func (h *Handler) ServeConfirmed(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	cfg := &h.flow.cfg

	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		h.recordRequest(r, http.StatusMethodNotAllowed, start)
		return
	}

	clientIP := security.GetClientIP(r, cfg.TrustProxyHeaders, 1)
	if !h.allow(clientIP) {
		h.rejectRateLimited(w, r, clientIP, ConfirmedPath, start)
		return
	}

	sess, id, err := cfg.Sessions.Lookup(r)
	if err != nil {
		if !errors.Is(err, session.ErrNotFound) {
			cfg.Logger.Error("Session lookup failed", "error", err)
			h.writeError(w, r, ErrStore("session lookup failed", err), start)
			return
		}
		cfg.Metrics.RecordInvalidSession(r.Context())
		cfg.Auditor.LogInvalidSession(clientIP, "no session")
		h.writeError(w, r, ErrInvalidSession("no session for this browser"), start)
		return
	}

	query := r.URL.Query()
	outcome, flowErr := h.flow.Confirm(r.Context(), sess,
		query.Get("code"), query.Get("state"), clientIP, r.Header.Get("Accept-Language"))

	// The session is saved even on failure: the state token was consumed
	// the moment the comparison ran, and a replayed callback must not find
	// it again.
	if err := cfg.Sessions.Save(r, id, sess); err != nil {
		cfg.Logger.Error("Session save failed", "error", err)
		h.writeError(w, r, ErrStore("session save failed", err), start)
		return
	}

	if flowErr != nil {
		cfg.Metrics.RecordCallback(r.Context(), callbackOutcome(flowErr))
		h.writeError(w, r, flowErr, start)
		return
	}

	if outcome.NewUser {
		cfg.Metrics.RecordCallback(r.Context(), "provisioned")
	} else {
		cfg.Metrics.RecordCallback(r.Context(), "refreshed")
	}
	http.Redirect(w, r, outcome.Location, http.StatusFound)
	h.recordRequest(r, http.StatusFound, start)
}

func (h *Handler) allow(clientIP string) bool {
	limiter := h.flow.cfg.RateLimiter
	if limiter == nil {
		return true
	}
	return limiter.Allow(clientIP)
}

func (h *Handler) rejectRateLimited(w http.ResponseWriter, r *http.Request, clientIP, endpoint string, start time.Time) {
	cfg := &h.flow.cfg
	cfg.Metrics.RecordRateLimitExceeded(r.Context())
	cfg.Auditor.LogRateLimitExceeded(clientIP, endpoint)
	h.writeError(w, r, ErrRateLimitExceeded("too many requests"), start)
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error, start time.Time) {
	cfg := &h.flow.cfg

	flowErr := &FlowError{}
	if !errors.As(err, &flowErr) {
		flowErr = ErrStore("internal error", err)
	}

	cfg.Logger.Warn("Sign-in flow failed",
		"code", flowErr.Code,
		"status", flowErr.Status,
		"request_id", security.GetRequestID(r.Context()),
		"error", err)

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(flowErr.Status)
	renderErr := errorPageTemplate.Execute(w, map[string]string{
		"Code":        flowErr.Code,
		"Description": flowErr.Description,
		"RetryPath":   InitPath,
	})
	if renderErr != nil {
		cfg.Logger.Error("Error page render failed", "error", renderErr)
	}
	h.recordRequest(r, flowErr.Status, start)
}

func (h *Handler) recordRequest(r *http.Request, status int, start time.Time) {
	h.flow.cfg.Metrics.RecordHTTPRequest(r.Context(), r.URL.Path, r.Method, status,
		float64(time.Since(start).Microseconds())/1000.0)
}

func callbackOutcome(err error) string {
	flowErr := &FlowError{}
	if errors.As(err, &flowErr) {
		return flowErr.Code
	}
	return ErrorCodeStore
}
