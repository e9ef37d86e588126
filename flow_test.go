package monitor

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"testing"
	"time"

	"golang.org/x/oauth2"

	"github.com/breachmonitor/breachmonitor/breach"
	"github.com/breachmonitor/breachmonitor/instrumentation"
	"github.com/breachmonitor/breachmonitor/mail"
	"github.com/breachmonitor/breachmonitor/pilot"
	"github.com/breachmonitor/breachmonitor/providers/mock"
	"github.com/breachmonitor/breachmonitor/session"
	"github.com/breachmonitor/breachmonitor/storage"
	"github.com/breachmonitor/breachmonitor/storage/memory"
)

type flowFixture struct {
	flow     *Flow
	provider *mock.Provider
	store    *memory.Store
	checker  *pilot.Static
	mailer   *mail.Recorder
	breaches []breach.Breach
}

func setupFlow(t *testing.T) *flowFixture {
	t.Helper()

	f := &flowFixture{
		provider: mock.NewProvider(),
		store:    memory.New(),
		checker:  &pilot.Static{},
		mailer:   &mail.Recorder{},
	}

	reporter, err := mail.NewReporter(f.mailer, mail.ReporterConfig{ServerURL: "https://monitor.example.com"})
	if err != nil {
		t.Fatalf("NewReporter() error = %v", err)
	}

	sessions, err := session.NewManager(session.NewMemoryStore(time.Minute), []byte("test-auth-key"), false)
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}

	f.flow, err = NewFlow(Config{
		ServerURL:    "https://monitor.example.com",
		Provider:     f.provider,
		Store:        f.store,
		Sessions:     sessions,
		PilotChecker: f.checker,
		Breaches: breach.Func(func(ctx context.Context, emailHash string) ([]breach.Breach, error) {
			return f.breaches, nil
		}),
		Reporter: reporter,
	})
	if err != nil {
		t.Fatalf("NewFlow() error = %v", err)
	}
	return f
}

// seedSubscriber stores a fully provisioned subscriber and applies mutations.
func (f *flowFixture) seedSubscriber(t *testing.T, email string, mutate func(t *testing.T)) *storage.Subscriber {
	t.Helper()
	sub, err := f.store.Insert(context.Background(), email, "en", "old-access", "old-refresh", []byte(`{}`))
	if err != nil {
		t.Fatalf("seed Insert() error = %v", err)
	}
	if mutate != nil {
		mutate(t)
	}
	return sub
}

func confirmedSession(state string) *session.Session {
	return &session.Session{State: state}
}

func wantFlowCode(t *testing.T, err error, code string) {
	t.Helper()
	flowErr := &FlowError{}
	if !errors.As(err, &flowErr) {
		t.Fatalf("error = %v, want a FlowError", err)
	}
	if flowErr.Code != code {
		t.Errorf("error code = %q, want %q", flowErr.Code, code)
	}
}

func TestNewFlow_Validation(t *testing.T) {
	sessions, _ := session.NewManager(session.NewMemoryStore(time.Minute), []byte("k"), false)
	valid := Config{
		ServerURL:    "https://monitor.example.com",
		Provider:     mock.NewProvider(),
		Store:        memory.New(),
		Sessions:     sessions,
		PilotChecker: &pilot.Static{},
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "missing provider", mutate: func(c *Config) { c.Provider = nil }},
		{name: "missing store", mutate: func(c *Config) { c.Store = nil }},
		{name: "missing sessions", mutate: func(c *Config) { c.Sessions = nil }},
		{name: "missing checker", mutate: func(c *Config) { c.PilotChecker = nil }},
		{name: "relative server URL", mutate: func(c *Config) { c.ServerURL = "/nope" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			if _, err := NewFlow(cfg); err == nil {
				t.Error("NewFlow() should have failed")
			}
		})
	}
}

func TestFlow_Begin(t *testing.T) {
	f := setupFlow(t)
	sess := &session.Session{
		State:       "stale-state",
		UTMContents: map[string]string{"utm_source": "old"},
	}

	query := url.Values{}
	query.Set("utm_source", "newsletter")
	query.Set("entrypoint", "homepage")

	authURL, err := f.flow.Begin(context.Background(), sess, query)
	if err != nil {
		t.Fatalf("Begin() error = %v", err)
	}

	if len(sess.State) != 80 {
		t.Errorf("state length = %d, want 80 hex chars", len(sess.State))
	}
	if sess.State == "stale-state" {
		t.Error("Begin() should mint a fresh state token")
	}
	if sess.UTMContents["utm_source"] != "newsletter" {
		t.Errorf("UTMContents = %v, want captured inbound params", sess.UTMContents)
	}
	if _, ok := sess.UTMContents["old"]; ok {
		t.Error("UTMContents should be reset, not merged")
	}

	u, err := url.Parse(authURL)
	if err != nil {
		t.Fatalf("authorization URL unparsable: %v", err)
	}
	q := u.Query()
	if q.Get("state") != sess.State {
		t.Errorf("state param = %q, want session state", q.Get("state"))
	}
	if q.Get("access_type") != "offline" || q.Get("action") != "email" {
		t.Errorf("missing fixed params: %v", q)
	}
	if q.Get("entrypoint") != "homepage" || q.Get("utm_source") != "newsletter" {
		t.Errorf("inbound params not forwarded: %v", q)
	}
}

func TestFlow_Confirm_NewUser(t *testing.T) {
	f := setupFlow(t)
	f.breaches = []breach.Breach{{Name: "Adobe", Title: "Adobe", PwnCount: 100}}
	sess := confirmedSession("state-1")

	outcome, err := f.flow.Confirm(context.Background(), sess, "code", "state-1", "203.0.113.9", "en-US,en;q=0.5")
	if err != nil {
		t.Fatalf("Confirm() error = %v", err)
	}

	if outcome.Location != "/user/dashboard" {
		t.Errorf("Location = %q, want /user/dashboard", outcome.Location)
	}
	if !outcome.NewUser || !sess.NewUser {
		t.Error("a first-time confirmation should mark the user as new")
	}
	if f.store.Len() != 1 {
		t.Errorf("store has %d records, want exactly 1", f.store.Len())
	}
	if got := len(f.mailer.Messages()); got != 1 {
		t.Errorf("sent %d emails, want exactly 1", got)
	}

	sub, err := f.store.GetByEmail(context.Background(), "mock@example.com")
	if err != nil {
		t.Fatalf("GetByEmail() error = %v", err)
	}
	if sub.AccessToken != "mock-access-token" || sub.RefreshToken != "mock-refresh-token" {
		t.Errorf("tokens = %q/%q", sub.AccessToken, sub.RefreshToken)
	}
	if sub.SignupLanguage != "en-US,en;q=0.5" {
		t.Errorf("SignupLanguage = %q", sub.SignupLanguage)
	}
	if sess.User == nil || sess.UserEmail != "mock@example.com" {
		t.Errorf("session user not set: %v / %q", sess.User, sess.UserEmail)
	}
	if sess.State != "" {
		t.Error("state token should be consumed")
	}
}

func TestFlow_Confirm_ProvisioningFlagsBothBranchesAsMembers(t *testing.T) {
	tests := []struct {
		name   string
		member bool
	}{
		{name: "on the list", member: true},
		{name: "not on the list", member: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setupFlow(t)
			f.checker.Member = tt.member
			sess := confirmedSession("s")

			if _, err := f.flow.Confirm(context.Background(), sess, "code", "s", "ip", "en"); err != nil {
				t.Fatalf("Confirm() error = %v", err)
			}

			if f.checker.Calls != 1 {
				t.Errorf("checker calls = %d, want 1", f.checker.Calls)
			}
			sub, err := f.store.GetByEmail(context.Background(), "mock@example.com")
			if err != nil {
				t.Fatalf("GetByEmail() error = %v", err)
			}
			if sub.PilotFlag != storage.PilotMember {
				t.Errorf("PilotFlag = %v, want PilotMember regardless of the list answer", sub.PilotFlag)
			}
		})
	}
}

func TestFlow_Confirm_ReturningMemberConsumesHint(t *testing.T) {
	f := setupFlow(t)
	f.seedSubscriber(t, "mock@example.com", func(t *testing.T) {
		if err := f.store.SetPilotFlag(context.Background(), "mock@example.com", true); err != nil {
			t.Fatal(err)
		}
	})
	sess := confirmedSession("s")
	sess.PostAuthRedirect = "/custom/path?tab=2"

	outcome, err := f.flow.Confirm(context.Background(), sess, "code", "s", "ip", "en")
	if err != nil {
		t.Fatalf("Confirm() error = %v", err)
	}

	if outcome.Location != "/custom/path?tab=2" {
		t.Errorf("Location = %q, want the hint", outcome.Location)
	}
	if sess.PostAuthRedirect != "" {
		t.Error("hint should be cleared once consumed")
	}
	if outcome.NewUser || sess.NewUser {
		t.Error("a returning subscriber is not a new user")
	}
	if got := len(f.mailer.Messages()); got != 0 {
		t.Errorf("sent %d emails, want 0 for returning users", got)
	}

	sub, _ := f.store.GetByEmail(context.Background(), "mock@example.com")
	if sub.AccessToken != "mock-access-token" || sub.RefreshToken != "mock-refresh-token" {
		t.Errorf("tokens not refreshed: %q/%q", sub.AccessToken, sub.RefreshToken)
	}
}

func TestFlow_Confirm_ReturningNonEligibleKeepsHint(t *testing.T) {
	tests := []struct {
		name  string
		setup func(t *testing.T, f *flowFixture)
	}{
		{
			name: "opted-out member",
			setup: func(t *testing.T, f *flowFixture) {
				ctx := context.Background()
				if err := f.store.SetPilotFlag(ctx, "mock@example.com", true); err != nil {
					t.Fatal(err)
				}
				if err := f.store.SetPilotOptOut(ctx, "mock@example.com", true); err != nil {
					t.Fatal(err)
				}
			},
		},
		{
			name: "non-member",
			setup: func(t *testing.T, f *flowFixture) {
				if err := f.store.SetPilotFlag(context.Background(), "mock@example.com", false); err != nil {
					t.Fatal(err)
				}
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setupFlow(t)
			f.seedSubscriber(t, "mock@example.com", func(t *testing.T) { tt.setup(t, f) })
			sess := confirmedSession("s")
			sess.PostAuthRedirect = "/custom/path"

			outcome, err := f.flow.Confirm(context.Background(), sess, "code", "s", "ip", "en")
			if err != nil {
				t.Fatalf("Confirm() error = %v", err)
			}

			if outcome.Location != "/user/dashboard" {
				t.Errorf("Location = %q, want /user/dashboard", outcome.Location)
			}
			if sess.PostAuthRedirect != "/custom/path" {
				t.Errorf("hint = %q, should stay untouched for non-eligible users", sess.PostAuthRedirect)
			}
			if f.checker.Calls != 0 {
				t.Errorf("checker calls = %d, resolved flags must not be rechecked", f.checker.Calls)
			}
		})
	}
}

func TestFlow_Confirm_UnresolvedFlagCheckedOnce(t *testing.T) {
	tests := []struct {
		name         string
		member       bool
		optOut       bool
		wantLocation string
		wantFlag     storage.PilotFlag
	}{
		{
			name:         "member becomes eligible",
			member:       true,
			wantLocation: "/user/removal-pilot",
			wantFlag:     storage.PilotMember,
		},
		{
			// The opt-out preference is only consulted for already-resolved
			// members; the first resolution ignores it.
			name:         "opted-out member still eligible on first resolution",
			member:       true,
			optOut:       true,
			wantLocation: "/user/removal-pilot",
			wantFlag:     storage.PilotMember,
		},
		{
			name:         "non-member goes to dashboard",
			member:       false,
			wantLocation: "/user/dashboard",
			wantFlag:     storage.PilotNonMember,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setupFlow(t)
			f.checker.Member = tt.member
			f.seedSubscriber(t, "mock@example.com", func(t *testing.T) {
				if tt.optOut {
					if err := f.store.SetPilotOptOut(context.Background(), "mock@example.com", true); err != nil {
						t.Fatal(err)
					}
				}
			})
			sess := confirmedSession("s")

			outcome, err := f.flow.Confirm(context.Background(), sess, "code", "s", "ip", "en")
			if err != nil {
				t.Fatalf("Confirm() error = %v", err)
			}

			if outcome.Location != tt.wantLocation {
				t.Errorf("Location = %q, want %q", outcome.Location, tt.wantLocation)
			}
			if f.checker.Calls != 1 {
				t.Errorf("checker calls = %d, want exactly 1", f.checker.Calls)
			}
			sub, _ := f.store.GetByEmail(context.Background(), "mock@example.com")
			if sub.PilotFlag != tt.wantFlag {
				t.Errorf("PilotFlag = %v, want %v", sub.PilotFlag, tt.wantFlag)
			}

			// A second sign-in must not consult the list again.
			sess2 := confirmedSession("s2")
			if _, err := f.flow.Confirm(context.Background(), sess2, "code", "s2", "ip", "en"); err != nil {
				t.Fatalf("second Confirm() error = %v", err)
			}
			if f.checker.Calls != 1 {
				t.Errorf("checker calls after second sign-in = %d, want still 1", f.checker.Calls)
			}
		})
	}
}

func TestFlow_Confirm_InvalidSession(t *testing.T) {
	t.Run("no session state", func(t *testing.T) {
		f := setupFlow(t)
		sess := &session.Session{}

		_, err := f.flow.Confirm(context.Background(), sess, "code", "state", "ip", "en")
		wantFlowCode(t, err, ErrorCodeInvalidSession)
		if f.provider.CallCount("ExchangeCode") != 0 {
			t.Error("provider must not be called without a session state")
		}
	})

	t.Run("state mismatch consumes the token", func(t *testing.T) {
		f := setupFlow(t)
		sess := confirmedSession("expected")

		_, err := f.flow.Confirm(context.Background(), sess, "code", "attacker", "ip", "en")
		wantFlowCode(t, err, ErrorCodeInvalidSession)
		if sess.State != "" {
			t.Error("state token must be cleared even on mismatch")
		}
		if f.provider.CallCount("ExchangeCode") != 0 {
			t.Error("provider must not be called on mismatch")
		}
	})

	t.Run("replayed callback is rejected", func(t *testing.T) {
		f := setupFlow(t)
		sess := confirmedSession("s")

		if _, err := f.flow.Confirm(context.Background(), sess, "code", "s", "ip", "en"); err != nil {
			t.Fatalf("first Confirm() error = %v", err)
		}
		_, err := f.flow.Confirm(context.Background(), sess, "code", "s", "ip", "en")
		wantFlowCode(t, err, ErrorCodeInvalidSession)
	})
}

func TestFlow_Confirm_UpstreamFailure(t *testing.T) {
	f := setupFlow(t)
	f.provider.FailExchange()
	sess := confirmedSession("s")

	_, err := f.flow.Confirm(context.Background(), sess, "bad-code", "s", "ip", "en")
	wantFlowCode(t, err, ErrorCodeUpstreamAuth)
	if f.store.Len() != 0 {
		t.Error("nothing may be stored when the exchange fails")
	}
	if sess.State != "" {
		t.Error("state token is consumed before the exchange")
	}
}

func TestFlow_Confirm_ProfileDataInvalid(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{name: "not JSON", payload: "<html>oops</html>"},
		{name: "missing email", payload: `{"locale":"en-US"}`},
		{name: "empty email", payload: `{"email":"  "}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setupFlow(t)
			f.provider.SetProfile(tt.payload)
			sess := confirmedSession("s")

			_, err := f.flow.Confirm(context.Background(), sess, "code", "s", "ip", "en")
			wantFlowCode(t, err, ErrorCodeProfileData)
			if f.store.Len() != 0 {
				t.Error("nothing may be stored for an unusable profile")
			}
		})
	}
}

func TestFlow_Confirm_InterruptedSignupIsReprovisioned(t *testing.T) {
	f := setupFlow(t)
	// A previous confirmation stored no refresh token.
	if _, err := f.store.Insert(context.Background(), "mock@example.com", "en", "partial-access", "", []byte(`{}`)); err != nil {
		t.Fatal(err)
	}
	sess := confirmedSession("s")

	outcome, err := f.flow.Confirm(context.Background(), sess, "code", "s", "ip", "en")
	if err != nil {
		t.Fatalf("Confirm() error = %v", err)
	}

	if !outcome.NewUser {
		t.Error("an interrupted signup completes through the provisioning path")
	}
	if f.store.Len() != 1 {
		t.Errorf("store has %d records, want 1", f.store.Len())
	}
	sub, _ := f.store.GetByEmail(context.Background(), "mock@example.com")
	if sub.RefreshToken != "mock-refresh-token" {
		t.Errorf("RefreshToken = %q, want the fresh token", sub.RefreshToken)
	}
	if got := len(f.mailer.Messages()); got != 1 {
		t.Errorf("sent %d emails, want 1", got)
	}
}

func TestFlow_Confirm_InterruptedSignupPilotMemberConsumesHint(t *testing.T) {
	f := setupFlow(t)
	// An interrupted sign-up left a record with no refresh token but an
	// already resolved pilot membership.
	if _, err := f.store.Insert(context.Background(), "mock@example.com", "en", "partial-access", "", []byte(`{}`)); err != nil {
		t.Fatal(err)
	}
	if err := f.store.SetPilotFlag(context.Background(), "mock@example.com", true); err != nil {
		t.Fatal(err)
	}
	sess := confirmedSession("s")
	sess.PostAuthRedirect = "/custom/path"

	outcome, err := f.flow.Confirm(context.Background(), sess, "code", "s", "ip", "en")
	if err != nil {
		t.Fatalf("Confirm() error = %v", err)
	}

	// The member lands on the pending hint even though provisioning re-ran.
	if outcome.Location != "/custom/path" {
		t.Errorf("Location = %q, want /custom/path", outcome.Location)
	}
	if sess.PostAuthRedirect != "" {
		t.Error("the consumed hint must be cleared")
	}
	if !outcome.NewUser {
		t.Error("completion still runs the provisioning path")
	}
	if got := len(f.mailer.Messages()); got != 1 {
		t.Errorf("sent %d emails, want 1", got)
	}
}

func TestFlow_Confirm_InterruptedSignupUnknownFlagResolvesRedirect(t *testing.T) {
	f := setupFlow(t)
	f.checker.Member = true
	if _, err := f.store.Insert(context.Background(), "mock@example.com", "en", "partial-access", "", []byte(`{}`)); err != nil {
		t.Fatal(err)
	}
	sess := confirmedSession("s")

	outcome, err := f.flow.Confirm(context.Background(), sess, "code", "s", "ip", "en")
	if err != nil {
		t.Fatalf("Confirm() error = %v", err)
	}
	if outcome.Location != DefaultPilotPath {
		t.Errorf("Location = %q, want %q", outcome.Location, DefaultPilotPath)
	}
}

func TestFlow_Confirm_PilotCheckerFailureIsNotFatal(t *testing.T) {
	f := setupFlow(t)
	f.checker.Err = errors.New("pilot service down")
	f.seedSubscriber(t, "mock@example.com", nil)
	sess := confirmedSession("s")

	outcome, err := f.flow.Confirm(context.Background(), sess, "code", "s", "ip", "en")
	if err != nil {
		t.Fatalf("Confirm() error = %v", err)
	}
	if outcome.Location != "/user/dashboard" {
		t.Errorf("Location = %q, want /user/dashboard", outcome.Location)
	}

	// The flag stays unresolved so the next sign-in retries the check.
	sub, _ := f.store.GetByEmail(context.Background(), "mock@example.com")
	if sub.PilotFlag != storage.PilotUnknown {
		t.Errorf("PilotFlag = %v, want PilotUnknown after a failed check", sub.PilotFlag)
	}
}

func TestFlow_Confirm_MailFailureIsNotFatal(t *testing.T) {
	f := setupFlow(t)
	f.mailer.Err = fmt.Errorf("smtp down")
	sess := confirmedSession("s")

	outcome, err := f.flow.Confirm(context.Background(), sess, "code", "s", "ip", "en")
	if err != nil {
		t.Fatalf("Confirm() error = %v", err)
	}
	if outcome.Location != "/user/dashboard" {
		t.Errorf("Location = %q", outcome.Location)
	}
	if f.store.Len() != 1 {
		t.Error("the subscriber must still be provisioned")
	}
}

func TestFlow_Confirm_OpenRedirectHintIsReanchored(t *testing.T) {
	f := setupFlow(t)
	f.seedSubscriber(t, "mock@example.com", func(t *testing.T) {
		if err := f.store.SetPilotFlag(context.Background(), "mock@example.com", true); err != nil {
			t.Fatal(err)
		}
	})
	sess := confirmedSession("s")
	sess.PostAuthRedirect = "https://evil.example.com/phish?next=1"

	outcome, err := f.flow.Confirm(context.Background(), sess, "code", "s", "ip", "en")
	if err != nil {
		t.Fatalf("Confirm() error = %v", err)
	}
	if outcome.Location != "/phish?next=1" {
		t.Errorf("Location = %q, must stay on this origin", outcome.Location)
	}
	if strings.Contains(outcome.Location, "evil.example.com") {
		t.Errorf("Location %q leaks a foreign host", outcome.Location)
	}
}

func TestFlow_Confirm_StoreFailureAborts(t *testing.T) {
	f := setupFlow(t)
	f.provider.ExchangeCodeFunc = func(ctx context.Context, code string) (*oauth2.Token, error) {
		return &oauth2.Token{AccessToken: "a", RefreshToken: "r"}, nil
	}
	f.flow.cfg.Store = failingStore{}
	sess := confirmedSession("s")

	_, err := f.flow.Confirm(context.Background(), sess, "code", "s", "ip", "en")
	wantFlowCode(t, err, ErrorCodeStore)
}

// failingStore fails every operation.
type failingStore struct{}

func (failingStore) GetByEmail(ctx context.Context, email string) (*storage.Subscriber, error) {
	return nil, errors.New("db down")
}

func (failingStore) Insert(ctx context.Context, email, signupLanguage, accessToken, refreshToken string, profile []byte) (*storage.Subscriber, error) {
	return nil, errors.New("db down")
}

func (failingStore) UpdateTokens(ctx context.Context, email, accessToken, refreshToken string, profile []byte) error {
	return errors.New("db down")
}

func (failingStore) SetPilotFlag(ctx context.Context, email string, member bool) error {
	return errors.New("db down")
}

func (failingStore) SetPilotOptOut(ctx context.Context, email string, optOut bool) error {
	return errors.New("db down")
}

func (failingStore) Close() error { return nil }

func TestFlow_Confirm_WithTracer(t *testing.T) {
	f := setupFlow(t)
	inst, err := instrumentation.New(instrumentation.Config{ServiceName: "test"})
	if err != nil {
		t.Fatalf("instrumentation.New() error = %v", err)
	}
	f.flow.cfg.Tracer = inst.Tracer("flow")

	sess := confirmedSession("s")
	outcome, err := f.flow.Confirm(context.Background(), sess, "code", "s", "ip", "en")
	if err != nil {
		t.Fatalf("Confirm() error = %v", err)
	}
	if outcome.Location != "/user/dashboard" {
		t.Errorf("Location = %q, want /user/dashboard", outcome.Location)
	}

	// The failure path must also close its span cleanly.
	if _, err := f.flow.Confirm(context.Background(), sess, "code", "s", "ip", "en"); err == nil {
		t.Error("replay should fail")
	}
}

// reloadFailingStore serves the initial lookup and fails every one after it.
type reloadFailingStore struct {
	*memory.Store
	lookups int
}

func (s *reloadFailingStore) GetByEmail(ctx context.Context, email string) (*storage.Subscriber, error) {
	s.lookups++
	if s.lookups > 1 {
		return nil, errors.New("db down")
	}
	return s.Store.GetByEmail(ctx, email)
}

func TestFlow_Confirm_ProvisionReloadFailureIsNotFatal(t *testing.T) {
	f := setupFlow(t)
	f.flow.cfg.Store = &reloadFailingStore{Store: f.store}
	sess := confirmedSession("s")

	outcome, err := f.flow.Confirm(context.Background(), sess, "code", "s", "ip", "en")
	if err != nil {
		t.Fatalf("Confirm() error = %v", err)
	}
	if outcome.Location != "/user/dashboard" {
		t.Errorf("Location = %q, want /user/dashboard", outcome.Location)
	}

	// The session keeps the insert snapshot when the reload fails.
	if sess.User == nil || sess.User.PrimaryEmail != "mock@example.com" {
		t.Errorf("sess.User = %+v, want the inserted subscriber", sess.User)
	}
}
