// Command breachmonitor runs the OAuth sign-in and provisioning service.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"

	monitor "github.com/breachmonitor/breachmonitor"
	"github.com/breachmonitor/breachmonitor/breach"
	"github.com/breachmonitor/breachmonitor/instrumentation"
	"github.com/breachmonitor/breachmonitor/mail"
	"github.com/breachmonitor/breachmonitor/pilot"
	"github.com/breachmonitor/breachmonitor/providers/accounts"
	"github.com/breachmonitor/breachmonitor/security"
	"github.com/breachmonitor/breachmonitor/session"
	"github.com/breachmonitor/breachmonitor/storage"
	"github.com/breachmonitor/breachmonitor/storage/memory"
	"github.com/breachmonitor/breachmonitor/storage/sqlite"
)

type config struct {
	ListenAddr string `env:"LISTEN_ADDR" envDefault:":8080"`
	ServerURL  string `env:"SERVER_URL" envDefault:"http://localhost:8080"`

	// MasterSecret seeds the token-encryption and cookie-auth keys.
	// Base64, at least 32 bytes decoded.
	MasterSecret string `env:"MASTER_SECRET,required"`

	OAuthClientID     string   `env:"OAUTH_CLIENT_ID,required"`
	OAuthClientSecret string   `env:"OAUTH_CLIENT_SECRET,required"`
	OAuthAuthURL      string   `env:"OAUTH_AUTH_URL,required"`
	OAuthTokenURL     string   `env:"OAUTH_TOKEN_URL,required"`
	OAuthProfileURL   string   `env:"OAUTH_PROFILE_URL,required"`
	OAuthScopes       []string `env:"OAUTH_SCOPES" envSeparator:","`

	// DatabasePath selects the SQLite store; empty keeps everything in
	// memory (development only).
	DatabasePath string `env:"DATABASE_PATH"`

	// PilotListPath is a file of SHA-1 email hashes, one per line.
	PilotListPath string `env:"PILOT_LIST_PATH"`

	// BreachAPIURL is the breach-data service base URL; empty disables
	// lookups and the report email carries no findings.
	BreachAPIURL string `env:"BREACH_API_URL"`

	SMTPHost    string `env:"SMTP_HOST"`
	SMTPPort    string `env:"SMTP_PORT" envDefault:"587"`
	SMTPUser    string `env:"SMTP_USERNAME"`
	SMTPPass    string `env:"SMTP_PASSWORD"`
	FromAddress string `env:"MAIL_FROM" envDefault:"reports@breachmonitor.example"`

	RateLimitPerSecond int  `env:"RATE_LIMIT_PER_SECOND" envDefault:"5"`
	RateLimitBurst     int  `env:"RATE_LIMIT_BURST" envDefault:"10"`
	TrustProxyHeaders  bool `env:"TRUST_PROXY_HEADERS" envDefault:"false"`

	SessionTTL time.Duration `env:"SESSION_TTL" envDefault:"1h"`

	AuditEnabled          bool          `env:"AUDIT_ENABLED" envDefault:"true"`
	TelemetryEnabled      bool          `env:"TELEMETRY_ENABLED" envDefault:"false"`
	LogLevel              string        `env:"LOG_LEVEL" envDefault:"info"`
	SecureSessionCookies  bool          `env:"SECURE_SESSION_COOKIES" envDefault:"true"`
	ShutdownGraceDuration time.Duration `env:"SHUTDOWN_GRACE" envDefault:"10s"`
}

func main() {
	if err := run(); err != nil {
		slog.Error("Service failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := env.ParseAs[config]()
	if err != nil {
		return fmt.Errorf("parse environment: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	masterSecret, err := security.MasterSecretFromBase64(cfg.MasterSecret)
	if err != nil {
		return fmt.Errorf("master secret: %w", err)
	}
	keys, err := security.DeriveKeys(masterSecret)
	if err != nil {
		return fmt.Errorf("derive keys: %w", err)
	}
	encryptor, err := security.NewEncryptor(keys.TokenEncryption)
	if err != nil {
		return fmt.Errorf("create encryptor: %w", err)
	}

	inst, err := instrumentation.New(instrumentation.Config{
		ServiceName: "breachmonitor",
		Enabled:     cfg.TelemetryEnabled,
	})
	if err != nil {
		return fmt.Errorf("init instrumentation: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := inst.Shutdown(ctx); err != nil {
			logger.Warn("Instrumentation shutdown failed", "error", err)
		}
	}()
	metrics := inst.Metrics()

	store, err := newStore(cfg, encryptor, metrics, logger)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	provider, err := accounts.NewProvider(&accounts.Config{
		ClientID:     cfg.OAuthClientID,
		ClientSecret: cfg.OAuthClientSecret,
		RedirectURL:  cfg.ServerURL + monitor.ConfirmedPath,
		AuthURL:      cfg.OAuthAuthURL,
		TokenURL:     cfg.OAuthTokenURL,
		ProfileURL:   cfg.OAuthProfileURL,
		Scopes:       cfg.OAuthScopes,
	})
	if err != nil {
		return fmt.Errorf("create provider: %w", err)
	}

	checker, err := newPilotChecker(cfg, logger)
	if err != nil {
		return err
	}

	reporter, err := mail.NewReporter(newMailer(cfg, logger), mail.ReporterConfig{
		ServerURL: cfg.ServerURL,
		Logger:    logger,
		Metrics:   metrics,
	})
	if err != nil {
		return fmt.Errorf("create reporter: %w", err)
	}

	sessions, err := session.NewManager(
		session.NewMemoryStore(cfg.SessionTTL), keys.CookieAuth, cfg.SecureSessionCookies)
	if err != nil {
		return fmt.Errorf("create session manager: %w", err)
	}

	limiter := security.NewRateLimiter(cfg.RateLimitPerSecond, cfg.RateLimitBurst, logger)
	defer limiter.Stop()

	flow, err := monitor.NewFlow(monitor.Config{
		ServerURL:         cfg.ServerURL,
		Provider:          provider,
		Store:             store,
		Sessions:          sessions,
		PilotChecker:      checker,
		Breaches:          newBreachClient(cfg, logger),
		Reporter:          reporter,
		RateLimiter:       limiter,
		TrustProxyHeaders: cfg.TrustProxyHeaders,
		Logger:            logger,
		Auditor:           security.NewAuditor(logger, cfg.AuditEnabled),
		Metrics:           metrics,
		Tracer:            inst.Tracer("flow"),
	})
	if err != nil {
		return fmt.Errorf("create flow: %w", err)
	}

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           monitor.NewHandler(flow).Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Listening", "addr", cfg.ListenAddr, "server_url", cfg.ServerURL)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("serve: %w", err)
	case sig := <-stop:
		logger.Info("Shutting down", "signal", sig.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGraceDuration)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}

func newStore(cfg config, encryptor *security.Encryptor, metrics *instrumentation.Metrics, logger *slog.Logger) (storage.SubscriberStore, error) {
	if cfg.DatabasePath == "" {
		logger.Warn("No DATABASE_PATH set, using the in-memory store")
		store := memory.New()
		store.SetEncryptor(encryptor)
		store.SetMetrics(metrics)
		store.SetLogger(logger)
		return store, nil
	}

	store, err := sqlite.Open(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite store: %w", err)
	}
	store.SetEncryptor(encryptor)
	store.SetMetrics(metrics)
	return store, nil
}

func newPilotChecker(cfg config, logger *slog.Logger) (pilot.Checker, error) {
	if cfg.PilotListPath == "" {
		logger.Warn("No PILOT_LIST_PATH set, every subscriber resolves as a non-member")
		return pilot.NewHashSetChecker(nil), nil
	}
	checker, err := pilot.LoadHashFile(cfg.PilotListPath)
	if err != nil {
		return nil, fmt.Errorf("load pilot list: %w", err)
	}
	logger.Info("Pilot list loaded", "entries", checker.Len())
	return checker, nil
}

func newBreachClient(cfg config, logger *slog.Logger) breach.Client {
	if cfg.BreachAPIURL == "" {
		logger.Warn("No BREACH_API_URL set, report emails will carry no findings")
		return nil
	}
	client, err := breach.NewHTTPClient(cfg.BreachAPIURL, nil)
	if err != nil {
		logger.Error("Breach client misconfigured, lookups disabled", "error", err)
		return nil
	}
	return client
}

func newMailer(cfg config, logger *slog.Logger) mail.Mailer {
	if cfg.SMTPHost == "" {
		logger.Warn("No SMTP_HOST set, report emails are discarded")
		return mail.NopMailer{}
	}
	mailer, err := mail.NewSMTPMailer(mail.SMTPConfig{
		Host:        cfg.SMTPHost,
		Port:        cfg.SMTPPort,
		Username:    cfg.SMTPUser,
		Password:    cfg.SMTPPass,
		FromAddress: cfg.FromAddress,
	})
	if err != nil {
		logger.Error("SMTP misconfigured, report emails are discarded", "error", err)
		return mail.NopMailer{}
	}
	return mailer
}
