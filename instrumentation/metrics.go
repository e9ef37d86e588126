package instrumentation

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds all metric instruments for the sign-in flow.
type Metrics struct {
	// HTTP layer
	HTTPRequestsTotal   metric.Int64Counter
	HTTPRequestDuration metric.Float64Histogram

	// Confirmation flow
	LoginStarted          metric.Int64Counter
	CallbackProcessed     metric.Int64Counter
	InvalidSessions       metric.Int64Counter
	SubscriberProvisioned metric.Int64Counter
	TokensRefreshed       metric.Int64Counter
	PilotChecks           metric.Int64Counter

	// Security
	RateLimitExceeded metric.Int64Counter

	// Storage
	StorageOperationTotal    metric.Int64Counter
	StorageOperationDuration metric.Float64Histogram

	// Provider
	ProviderAPICallsTotal metric.Int64Counter
	ProviderAPIDuration   metric.Float64Histogram
	ProviderAPIErrors     metric.Int64Counter

	// Mail
	EmailsSentTotal metric.Int64Counter
	EmailSendErrors metric.Int64Counter
}

// newMetrics creates and registers all metric instruments.
func newMetrics(inst *Instrumentation) (*Metrics, error) {
	httpMeter := inst.Meter("http")
	flowMeter := inst.Meter("flow")
	storageMeter := inst.Meter("storage")
	providerMeter := inst.Meter("provider")
	mailMeter := inst.Meter("mail")

	m := &Metrics{}
	var err error

	m.HTTPRequestsTotal, err = httpMeter.Int64Counter(
		"monitor.http.requests.total",
		metric.WithDescription("Total number of HTTP requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http.requests.total counter: %w", err)
	}

	m.HTTPRequestDuration, err = httpMeter.Float64Histogram(
		"monitor.http.request.duration",
		metric.WithDescription("HTTP request duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http.request.duration histogram: %w", err)
	}

	m.LoginStarted, err = flowMeter.Int64Counter(
		"monitor.flow.login.started",
		metric.WithDescription("Number of authorization redirects issued"),
		metric.WithUnit("{flow}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create flow.login.started counter: %w", err)
	}

	m.CallbackProcessed, err = flowMeter.Int64Counter(
		"monitor.flow.callback.processed",
		metric.WithDescription("Number of provider callbacks processed"),
		metric.WithUnit("{callback}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create flow.callback.processed counter: %w", err)
	}

	m.InvalidSessions, err = flowMeter.Int64Counter(
		"monitor.flow.invalid_sessions",
		metric.WithDescription("Number of callbacks rejected for a missing or mismatched state token"),
		metric.WithUnit("{callback}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create flow.invalid_sessions counter: %w", err)
	}

	m.SubscriberProvisioned, err = flowMeter.Int64Counter(
		"monitor.flow.subscriber.provisioned",
		metric.WithDescription("Number of first-time subscribers provisioned"),
		metric.WithUnit("{subscriber}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create flow.subscriber.provisioned counter: %w", err)
	}

	m.TokensRefreshed, err = flowMeter.Int64Counter(
		"monitor.flow.tokens.refreshed",
		metric.WithDescription("Number of credential refreshes for returning subscribers"),
		metric.WithUnit("{refresh}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create flow.tokens.refreshed counter: %w", err)
	}

	m.PilotChecks, err = flowMeter.Int64Counter(
		"monitor.flow.pilot.checks",
		metric.WithDescription("Number of hash-membership checks performed"),
		metric.WithUnit("{check}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create flow.pilot.checks counter: %w", err)
	}

	m.RateLimitExceeded, err = httpMeter.Int64Counter(
		"monitor.security.rate_limit.exceeded",
		metric.WithDescription("Number of rate-limited requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create security.rate_limit.exceeded counter: %w", err)
	}

	m.StorageOperationTotal, err = storageMeter.Int64Counter(
		"monitor.storage.operation.total",
		metric.WithDescription("Total number of storage operations"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage.operation.total counter: %w", err)
	}

	m.StorageOperationDuration, err = storageMeter.Float64Histogram(
		"monitor.storage.operation.duration",
		metric.WithDescription("Storage operation duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage.operation.duration histogram: %w", err)
	}

	m.ProviderAPICallsTotal, err = providerMeter.Int64Counter(
		"monitor.provider.api.calls.total",
		metric.WithDescription("Total number of identity provider API calls"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create provider.api.calls.total counter: %w", err)
	}

	m.ProviderAPIDuration, err = providerMeter.Float64Histogram(
		"monitor.provider.api.duration",
		metric.WithDescription("Identity provider API call duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create provider.api.duration histogram: %w", err)
	}

	m.ProviderAPIErrors, err = providerMeter.Int64Counter(
		"monitor.provider.api.errors",
		metric.WithDescription("Number of failed identity provider API calls"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create provider.api.errors counter: %w", err)
	}

	m.EmailsSentTotal, err = mailMeter.Int64Counter(
		"monitor.mail.sent.total",
		metric.WithDescription("Number of report emails sent"),
		metric.WithUnit("{email}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create mail.sent.total counter: %w", err)
	}

	m.EmailSendErrors, err = mailMeter.Int64Counter(
		"monitor.mail.send.errors",
		metric.WithDescription("Number of failed email sends"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create mail.send.errors counter: %w", err)
	}

	return m, nil
}

// RecordHTTPRequest records an HTTP request with its duration.
func (m *Metrics) RecordHTTPRequest(ctx context.Context, endpoint, method string, statusCode int, durationMs float64) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String(AttrHTTPEndpoint, endpoint),
		attribute.String(AttrHTTPMethod, method),
		attribute.Int(AttrHTTPStatusCode, statusCode),
	)
	m.HTTPRequestsTotal.Add(ctx, 1, attrs)
	m.HTTPRequestDuration.Record(ctx, durationMs, attrs)
}

// RecordLoginStarted records an issued authorization redirect.
func (m *Metrics) RecordLoginStarted(ctx context.Context) {
	if m == nil {
		return
	}
	m.LoginStarted.Add(ctx, 1)
}

// RecordInvalidSession records a callback rejected at state validation.
func (m *Metrics) RecordInvalidSession(ctx context.Context) {
	if m == nil {
		return
	}
	m.InvalidSessions.Add(ctx, 1)
}

// RecordSubscriberProvisioned records a first-time provisioning.
func (m *Metrics) RecordSubscriberProvisioned(ctx context.Context) {
	if m == nil {
		return
	}
	m.SubscriberProvisioned.Add(ctx, 1)
}

// RecordTokensRefreshed records a returning-subscriber credential refresh.
func (m *Metrics) RecordTokensRefreshed(ctx context.Context) {
	if m == nil {
		return
	}
	m.TokensRefreshed.Add(ctx, 1)
}

// RecordPilotCheck records one hash-membership check.
func (m *Metrics) RecordPilotCheck(ctx context.Context) {
	if m == nil {
		return
	}
	m.PilotChecks.Add(ctx, 1)
}

// RecordRateLimitExceeded records a throttled request.
func (m *Metrics) RecordRateLimitExceeded(ctx context.Context) {
	if m == nil {
		return
	}
	m.RateLimitExceeded.Add(ctx, 1)
}

// RecordCallback records a processed callback and its outcome.
func (m *Metrics) RecordCallback(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.CallbackProcessed.Add(ctx, 1, metric.WithAttributes(
		attribute.String(AttrFlowOutcome, outcome),
	))
}

// RecordStorageOperation records one storage operation.
func (m *Metrics) RecordStorageOperation(ctx context.Context, backend, operation string, err error, durationMs float64) {
	if m == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "error"
	}
	attrs := metric.WithAttributes(
		attribute.String(AttrStorageType, backend),
		attribute.String(AttrStorageOperation, operation),
		attribute.String(AttrStorageResult, result),
	)
	m.StorageOperationTotal.Add(ctx, 1, attrs)
	m.StorageOperationDuration.Record(ctx, durationMs, attrs)
}

// RecordMailSend records one outbound email attempt.
func (m *Metrics) RecordMailSend(ctx context.Context, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.EmailSendErrors.Add(ctx, 1)
		return
	}
	m.EmailsSentTotal.Add(ctx, 1)
}

// RecordProviderCall records one identity provider API call.
func (m *Metrics) RecordProviderCall(ctx context.Context, provider, operation string, err error, durationMs float64) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String(AttrProviderName, provider),
		attribute.String(AttrProviderOperation, operation),
	)
	m.ProviderAPICallsTotal.Add(ctx, 1, attrs)
	m.ProviderAPIDuration.Record(ctx, durationMs, attrs)
	if err != nil {
		m.ProviderAPIErrors.Add(ctx, 1, attrs)
	}
}
