// Package instrumentation provides OpenTelemetry instrumentation for the
// sign-in and provisioning flow.
//
// It exposes pre-registered metric instruments for the HTTP layer, the
// confirmation flow, subscriber storage, the identity provider client, and
// outbound mail, plus nil-safe span helpers for optional tracing. When
// disabled, no-op providers are used and the overhead is zero.
//
// Usage:
//
//	inst, err := instrumentation.New(instrumentation.Config{
//		ServiceName:    "breachmonitor",
//		ServiceVersion: "1.0.0",
//		Enabled:        true,
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer inst.Shutdown(context.Background())
package instrumentation
