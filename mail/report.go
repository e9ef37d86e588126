package mail

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/breachmonitor/breachmonitor/breach"
	"github.com/breachmonitor/breachmonitor/instrumentation"
	"github.com/breachmonitor/breachmonitor/security"
	"github.com/breachmonitor/breachmonitor/storage"
)

const (
	defaultDashboardPath   = "/user/dashboard"
	defaultUnsubscribePath = "/user/unsubscribe"
)

// ReporterConfig configures report email composition.
type ReporterConfig struct {
	// ServerURL is the externally visible base URL used for the report and
	// unsubscribe links.
	ServerURL string

	// DashboardPath is the path of the breach report page.
	// Defaults to /user/dashboard.
	DashboardPath string

	// UnsubscribePath is the path of the unsubscribe page.
	// Defaults to /user/unsubscribe.
	UnsubscribePath string

	Logger  *slog.Logger
	Metrics *instrumentation.Metrics
}

// Reporter composes and sends the one-time report email for a newly
// provisioned subscriber. The subject depends on how many breaches the
// address appeared in, and the body language follows the Accept-Language
// header captured at signup.
type Reporter struct {
	mailer          Mailer
	serverURL       *url.URL
	dashboardPath   string
	unsubscribePath string
	matcher         language.Matcher
	logger          *slog.Logger
	metrics         *instrumentation.Metrics
}

// NewReporter creates a reporter sending through the given mailer.
func NewReporter(mailer Mailer, cfg ReporterConfig) (*Reporter, error) {
	if mailer == nil {
		return nil, fmt.Errorf("mailer is required")
	}
	serverURL, err := url.Parse(cfg.ServerURL)
	if err != nil || serverURL.Scheme == "" || serverURL.Host == "" {
		return nil, fmt.Errorf("server URL %q is not absolute", cfg.ServerURL)
	}

	dashboardPath := cfg.DashboardPath
	if dashboardPath == "" {
		dashboardPath = defaultDashboardPath
	}
	unsubscribePath := cfg.UnsubscribePath
	if unsubscribePath == "" {
		unsubscribePath = defaultUnsubscribePath
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Reporter{
		mailer:          mailer,
		serverURL:       serverURL,
		dashboardPath:   dashboardPath,
		unsubscribePath: unsubscribePath,
		matcher:         language.NewMatcher(supportedLocales),
		logger:          logger,
		metrics:         cfg.Metrics,
	}, nil
}

// SendReport sends the report email for a subscriber's breach exposure.
func (r *Reporter) SendReport(ctx context.Context, sub *storage.Subscriber, breaches []breach.Breach) error {
	msg := r.compose(sub, breaches)

	err := r.mailer.Send(ctx, msg)
	r.metrics.RecordMailSend(ctx, err)
	if err != nil {
		r.logger.Error("Failed to send report email",
			"email_hash", security.HashIdentifier(sub.PrimaryEmail),
			"breach_count", len(breaches),
			"error", err)
		return fmt.Errorf("send report email: %w", err)
	}

	r.logger.Info("Report email sent",
		"email_hash", security.HashIdentifier(sub.PrimaryEmail),
		"breach_count", len(breaches),
		"language", sub.SignupLanguage)
	return nil
}

func (r *Reporter) compose(sub *storage.Subscriber, breaches []breach.Breach) Message {
	tag, _ := language.MatchStrings(r.matcher, sub.SignupLanguage)
	p := message.NewPrinter(tag)

	var subject string
	if len(breaches) == 0 {
		subject = p.Sprintf(msgSubjectWelcome)
	} else {
		subject = p.Sprintf(msgSubjectBreaches, len(breaches))
	}

	campaign := "report"
	if len(breaches) == 0 {
		campaign = "welcome"
	}

	var b strings.Builder
	b.WriteString(p.Sprintf(msgMonitoring, sub.PrimaryEmail))
	b.WriteString("\n\n")
	if len(breaches) == 0 {
		b.WriteString(p.Sprintf(msgNoBreaches))
		b.WriteString("\n")
	} else {
		b.WriteString(p.Sprintf(msgBreachesIntro))
		b.WriteString("\n")
		for _, br := range breaches {
			title := br.Title
			if title == "" {
				title = br.Name
			}
			b.WriteString("  - ")
			b.WriteString(p.Sprintf(msgBreachLine, title, br.PwnCount))
			b.WriteString("\n")
		}
	}
	b.WriteString("\n")
	b.WriteString(p.Sprintf(msgReportDate, time.Now().UTC().Format("2006-01-02")))
	b.WriteString("\n\n")
	b.WriteString(p.Sprintf(msgCTA, r.ctaURL(campaign)))
	b.WriteString("\n")
	b.WriteString(p.Sprintf(msgUnsubscribe, r.unsubscribeURL(sub.UnsubscribeToken)))
	b.WriteString("\n")

	return Message{
		To:      sub.PrimaryEmail,
		Subject: subject,
		Body:    b.String(),
	}
}

func (r *Reporter) ctaURL(campaign string) string {
	u := *r.serverURL
	u.Path = r.dashboardPath
	u.RawQuery = url.Values{
		"utm_source":   {"report-email"},
		"utm_medium":   {"email"},
		"utm_campaign": {campaign},
	}.Encode()
	return u.String()
}

func (r *Reporter) unsubscribeURL(token string) string {
	u := *r.serverURL
	u.Path = r.unsubscribePath
	u.RawQuery = url.Values{"token": {token}}.Encode()
	return u.String()
}
