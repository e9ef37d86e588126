package instrumentation

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Span and metric attribute keys.
//
// Never put actual credential values (access tokens, refresh tokens,
// authorization codes) or raw email addresses into traces or metrics. Traces
// are persisted, replicated, and visible to wider audiences than production
// systems; only metadata belongs here.
const (
	// Flow attributes
	AttrFlowState    = "flow.state"    // state machine state name
	AttrFlowOutcome  = "flow.outcome"  // terminal outcome (provisioned, refreshed, error code)
	AttrNewUser      = "flow.new_user" // whether the flow provisioned a new subscriber
	AttrPilotFlag    = "flow.pilot_flag"
	AttrPilotChecked = "flow.pilot_checked" // whether the hash check ran
	AttrEmailHash    = "flow.email_hash"    // truncated SHA-256, never the raw address
	AttrErrorCode    = "flow.error_code"

	// Storage attributes
	AttrStorageOperation = "storage.operation"
	AttrStorageResult    = "storage.result"
	AttrStorageType      = "storage.type"

	// Provider attributes
	AttrProviderName      = "provider.name"
	AttrProviderOperation = "provider.operation"

	// HTTP attributes (in addition to standard semantic conventions)
	AttrHTTPEndpoint   = "http.endpoint"
	AttrHTTPMethod     = "http.method"
	AttrHTTPStatusCode = "http.status_code"
)

// RecordError records an error on a span with proper status codes (nil-safe).
func RecordError(span trace.Span, err error) {
	if span != nil && err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// SetSpanSuccess marks a span as successful (nil-safe).
func SetSpanSuccess(span trace.Span) {
	if span != nil {
		span.SetStatus(codes.Ok, "")
	}
}

// SetSpanError sets an error status on a span (nil-safe).
func SetSpanError(span trace.Span, message string) {
	if span != nil {
		span.SetStatus(codes.Error, message)
	}
}

// SetSpanAttributes sets attributes on a span (nil-safe).
func SetSpanAttributes(span trace.Span, attrs ...attribute.KeyValue) {
	if span != nil {
		span.SetAttributes(attrs...)
	}
}

// AddFlowAttributes adds common confirmation-flow attributes to a span
// (nil-safe). emailHash must already be hashed by the caller.
func AddFlowAttributes(span trace.Span, state, emailHash string) {
	if state != "" {
		SetSpanAttributes(span, attribute.String(AttrFlowState, state))
	}
	if emailHash != "" {
		SetSpanAttributes(span, attribute.String(AttrEmailHash, emailHash))
	}
}

// AddStorageAttributes adds storage operation attributes to a span (nil-safe).
func AddStorageAttributes(span trace.Span, operation, storageType string) {
	SetSpanAttributes(span,
		attribute.String(AttrStorageOperation, operation),
		attribute.String(AttrStorageType, storageType),
	)
}

// AddProviderAttributes adds provider attributes to a span (nil-safe).
func AddProviderAttributes(span trace.Span, providerName, operation string) {
	SetSpanAttributes(span,
		attribute.String(AttrProviderName, providerName),
		attribute.String(AttrProviderOperation, operation),
	)
}

// AddHTTPAttributes adds HTTP request attributes to a span (nil-safe).
func AddHTTPAttributes(span trace.Span, method, endpoint string, statusCode int) {
	SetSpanAttributes(span,
		attribute.String(AttrHTTPMethod, method),
		attribute.String(AttrHTTPEndpoint, endpoint),
		attribute.Int(AttrHTTPStatusCode, statusCode),
	)
}
