// Package telemetry provides observability instrumentation for the Atrium
// control plane.
//
// The package integrates structured logging (zerolog), distributed tracing
// (OpenTelemetry) and metrics (Prometheus) into a single unit that is
// initialized once at startup and propagated via context.
//
// # Usage
//
// Initialize telemetry at application startup:
//
//	cfg := telemetry.DefaultConfig()
//	cfg.ServiceVersion = "1.0.0"
//
//	tel, err := telemetry.NewTelemetry(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer tel.Shutdown(context.Background())
//
// # Structured Logging
//
// The logger provides component-specific logging with domain fields:
//
//	logger := tel.Logger.NewComponentLogger("engine")
//	logger = logger.WithOperationID("op-123").WithResourceID("ws-456")
//	logger.Info("dispatching step")
//	logger.WithError(err).Error("step dispatch failed")
//
// # Distributed Tracing
//
// Supported exporters: OTLP/gRPC (production), stdout (development), none
// (testing). Spans follow operations and airlock transitions:
//
//	ctx, span := tel.Tracer.StartOperationSpan(ctx, operationID, resourceID, action)
//	defer span.End()
//
// # Metrics
//
// Key metrics exposed at /metrics (default :9090):
//
//   - atrium_operations_created_total{action}
//   - atrium_steps_dispatched_total{action}
//   - atrium_step_failures_total{action}
//   - atrium_patch_conflicts_total
//   - atrium_airlock_requests_total{type}
//   - atrium_airlock_transitions_total{status}
//   - atrium_scan_verdicts_total{outcome}
//   - atrium_errors_by_class_total{class}
//
// The Metrics type implements engine.MetricsRecorder so the dispatcher can
// record without importing this package's configuration surface.
package telemetry
