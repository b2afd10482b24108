package telemetry

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics provides Prometheus metrics collection for the control plane.
// All record methods are safe to call when metrics are disabled.
type Metrics struct {
	config   MetricsConfig
	registry *prometheus.Registry

	// Engine metrics
	operationsCreated *prometheus.CounterVec
	stepsDispatched   *prometheus.CounterVec
	stepFailures      *prometheus.CounterVec
	patchConflicts    prometheus.Counter
	stepDuration      *prometheus.HistogramVec

	// Airlock metrics
	airlockRequests    *prometheus.CounterVec
	airlockTransitions *prometheus.CounterVec
	scanVerdicts       *prometheus.CounterVec

	// Error metrics
	errorsByClass *prometheus.CounterVec
}

// NewMetrics creates a new metrics collector with the given configuration.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		return &Metrics{config: cfg}, nil
	}

	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		operationsCreated: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "operations_created_total",
				Help:      "Total number of operations created, by action",
			},
			[]string{"action"},
		),

		stepsDispatched: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "steps_dispatched_total",
				Help:      "Total number of operation steps dispatched to the deployment queue",
			},
			[]string{"action"},
		),

		stepFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "step_failures_total",
				Help:      "Total number of operation steps that reported a failure status",
			},
			[]string{"action"},
		),

		patchConflicts: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "patch_conflicts_total",
				Help:      "Total number of optimistic concurrency conflicts during resource patches",
			},
		),

		stepDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Name:      "step_duration_seconds",
				Help:      "Duration from step dispatch to step result in seconds",
				Buckets:   cfg.DefaultHistogramBuckets,
			},
			[]string{"action", "status"},
		),

		airlockRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "airlock_requests_total",
				Help:      "Total number of airlock requests created, by type",
			},
			[]string{"type"},
		),

		airlockTransitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "airlock_transitions_total",
				Help:      "Total number of airlock status transitions, by new status",
			},
			[]string{"status"},
		),

		scanVerdicts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "scan_verdicts_total",
				Help:      "Total number of malware scan verdicts processed, by outcome",
			},
			[]string{"outcome"},
		),

		errorsByClass: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "errors_by_class_total",
				Help:      "Total number of classified errors, by error class",
			},
			[]string{"class"},
		),
	}

	// Register all metrics
	registry.MustRegister(
		m.operationsCreated,
		m.stepsDispatched,
		m.stepFailures,
		m.patchConflicts,
		m.stepDuration,
		m.airlockRequests,
		m.airlockTransitions,
		m.scanVerdicts,
		m.errorsByClass,
	)

	return m, nil
}

// RecordOperationCreated records a created operation.
func (m *Metrics) RecordOperationCreated(action string) {
	if m.operationsCreated == nil {
		return
	}
	m.operationsCreated.WithLabelValues(action).Inc()
}

// RecordStepDispatched records a step sent to the deployment queue.
func (m *Metrics) RecordStepDispatched(action string) {
	if m.stepsDispatched == nil {
		return
	}
	m.stepsDispatched.WithLabelValues(action).Inc()
}

// RecordStepFailed records a step that reported a failure status.
func (m *Metrics) RecordStepFailed(action string) {
	if m.stepFailures == nil {
		return
	}
	m.stepFailures.WithLabelValues(action).Inc()
}

// RecordPatchConflict records an optimistic concurrency conflict.
func (m *Metrics) RecordPatchConflict() {
	if m.patchConflicts == nil {
		return
	}
	m.patchConflicts.Inc()
}

// RecordStepDuration records the dispatch-to-result duration of a step.
func (m *Metrics) RecordStepDuration(action, status string, duration time.Duration) {
	if m.stepDuration == nil {
		return
	}
	m.stepDuration.WithLabelValues(action, status).Observe(duration.Seconds())
}

// RecordAirlockRequest records a created airlock request.
func (m *Metrics) RecordAirlockRequest(requestType string) {
	if m.airlockRequests == nil {
		return
	}
	m.airlockRequests.WithLabelValues(requestType).Inc()
}

// RecordAirlockTransition records an airlock status transition.
func (m *Metrics) RecordAirlockTransition(newStatus string) {
	if m.airlockTransitions == nil {
		return
	}
	m.airlockTransitions.WithLabelValues(newStatus).Inc()
}

// RecordScanVerdict records a processed malware scan verdict.
func (m *Metrics) RecordScanVerdict(outcome string) {
	if m.scanVerdicts == nil {
		return
	}
	m.scanVerdicts.WithLabelValues(outcome).Inc()
}

// RecordError records a classified error.
func (m *Metrics) RecordError(class string) {
	if m.errorsByClass == nil {
		return
	}
	m.errorsByClass.WithLabelValues(class).Inc()
}

// Timer measures a duration and records it on stop.
type Timer struct {
	start  time.Time
	record func(duration time.Duration)
}

// NewStepTimer starts a timer that records into the step duration histogram.
func (m *Metrics) NewStepTimer(action, status string) *Timer {
	return &Timer{
		start: time.Now(),
		record: func(d time.Duration) {
			m.RecordStepDuration(action, status, d)
		},
	}
}

// Stop stops the timer and records the elapsed duration.
func (t *Timer) Stop() {
	t.record(time.Since(t.start))
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// StartMetricsServer starts the metrics HTTP server.
// It blocks until the context is cancelled or the server fails.
func (m *Metrics) StartMetricsServer(ctx context.Context) error {
	if !m.config.Enabled {
		<-ctx.Done()
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle(m.config.Path, m.Handler())

	server := &http.Server{
		Addr:              m.config.ListenAddress,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("metrics server shutdown: %w", err)
		}
		return nil
	case err := <-errCh:
		return fmt.Errorf("metrics server: %w", err)
	}
}
