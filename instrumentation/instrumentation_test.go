package instrumentation

import (
	"context"
	"testing"
)

func TestNew_Defaults(t *testing.T) {
	inst, err := New(Config{})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer func() {
		if err := inst.Shutdown(context.Background()); err != nil {
			t.Errorf("Shutdown() error = %v", err)
		}
	}()

	if inst.config.ServiceName != "breachmonitor" {
		t.Errorf("ServiceName = %q, want %q", inst.config.ServiceName, "breachmonitor")
	}
	if inst.config.ServiceVersion != DefaultServiceVersion {
		t.Errorf("ServiceVersion = %q, want %q", inst.config.ServiceVersion, DefaultServiceVersion)
	}
	if inst.Metrics() == nil {
		t.Error("Metrics() should not be nil")
	}
}

func TestNew_Disabled_RecordingIsSafe(t *testing.T) {
	inst, err := New(Config{Enabled: false})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer inst.Shutdown(context.Background())

	ctx := context.Background()
	m := inst.Metrics()

	// All recording paths must be safe no-ops with no-op providers.
	m.RecordHTTPRequest(ctx, "init", "GET", 302, 1.5)
	m.RecordCallback(ctx, "provisioned")
	m.RecordStorageOperation(ctx, "memory", "get_by_email", nil, 0.1)
	m.RecordProviderCall(ctx, "mock", "exchange_code", nil, 12.0)
	m.LoginStarted.Add(ctx, 1)
}

func TestMetrics_NilReceiver(t *testing.T) {
	var m *Metrics
	ctx := context.Background()

	// Nil metrics must not panic; handlers call these unconditionally.
	m.RecordHTTPRequest(ctx, "init", "GET", 302, 1.0)
	m.RecordCallback(ctx, "error")
	m.RecordStorageOperation(ctx, "sqlite", "upsert", nil, 2.0)
	m.RecordProviderCall(ctx, "accounts", "profile", nil, 3.0)
}

func TestShutdown_Idempotent(t *testing.T) {
	inst, err := New(Config{})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if err := inst.Shutdown(context.Background()); err != nil {
		t.Errorf("first Shutdown() error = %v", err)
	}
	if err := inst.Shutdown(context.Background()); err != nil {
		t.Errorf("second Shutdown() error = %v", err)
	}
}
