package monitor

import (
	"net/url"
	"strings"
)

// RedirectDecision is the outcome of resolving the post-confirmation
// destination. Target is absolute; handlers must send only its path and query
// in the 302 so the browser stays on this origin.
type RedirectDecision struct {
	Target *url.URL

	// ConsumedHint reports whether the session's pending redirect hint was
	// used and must be cleared by the caller.
	ConsumedHint bool
}

// Location returns the path-and-query form used in the Location header.
func (d RedirectDecision) Location() string {
	loc := d.Target.EscapedPath()
	if loc == "" {
		loc = "/"
	}
	if d.Target.RawQuery != "" {
		loc += "?" + d.Target.RawQuery
	}
	return loc
}

// ResolveRedirect picks the destination after a confirmed sign-in.
//
// Everyone lands on the dashboard unless they are eligible for the
// monitored-removal pilot. Eligible users go to the pending redirect hint
// when one exists, otherwise to the pilot page. The hint is consumed only on
// the eligible path; for everyone else it stays in the session untouched.
//
// The hint is never trusted as a full URL: whatever it contains is re-anchored
// onto serverURL, so a hint of "https://evil.example/x" still resolves to a
// path on this origin.
func ResolveRedirect(serverURL *url.URL, dashboardPath, pilotPath, hint string, pilotEligible bool) RedirectDecision {
	if !pilotEligible {
		return RedirectDecision{Target: anchored(serverURL, dashboardPath)}
	}

	if strings.TrimSpace(hint) != "" {
		return RedirectDecision{Target: anchorHint(serverURL, hint), ConsumedHint: true}
	}
	return RedirectDecision{Target: anchored(serverURL, pilotPath)}
}

func anchored(serverURL *url.URL, path string) *url.URL {
	u := *serverURL
	u.Path = path
	u.RawQuery = ""
	u.Fragment = ""
	return &u
}

func anchorHint(serverURL *url.URL, hint string) *url.URL {
	parsed, err := url.Parse(hint)
	if err != nil {
		return anchored(serverURL, "/")
	}

	u := *serverURL
	u.Path = parsed.Path
	if !strings.HasPrefix(u.Path, "/") {
		u.Path = "/" + u.Path
	}
	u.RawQuery = parsed.RawQuery
	u.Fragment = ""
	return &u
}
