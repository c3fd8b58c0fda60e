package telemetry

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics provides Prometheus metrics for the tabulark engine. A nil
// receiver or a disabled config yields a no-op collector, so callers
// never guard their recording calls.
type Metrics struct {
	config MetricsConfig

	// Validation metrics
	validations *prometheus.CounterVec
	violations  *prometheus.CounterVec

	// Execution metrics
	executions        *prometheus.CounterVec
	executionDuration *prometheus.HistogramVec
	truncations       prometheus.Counter

	// Batch metrics
	batches       *prometheus.CounterVec
	batchDuration *prometheus.HistogramVec
	activeBatches prometheus.Gauge

	// History sink metrics
	historyWrites *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewMetrics creates a new metrics collector with the given configuration.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		// Return a no-op metrics instance
		return &Metrics{config: cfg}, nil
	}

	namespace := cfg.Namespace
	buckets := cfg.DefaultHistogramBuckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		validations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "validations_total",
				Help:      "Total number of candidate snippets validated",
			},
			[]string{"verdict"},
		),
		violations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "violations_total",
				Help:      "Total number of validation violations by category",
			},
			[]string{"category"},
		),

		executions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "executions_total",
				Help:      "Total number of execution attempts by outcome class",
			},
			[]string{"class"},
		),
		executionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "execution_duration_seconds",
				Help:      "Duration of execution attempts in seconds",
				Buckets:   buckets,
			},
			[]string{"class"},
		),
		truncations: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "truncations_total",
				Help:      "Total number of tabular results cut at the row cap",
			},
		),

		batches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "batches_total",
				Help:      "Total number of batches by terminal status",
			},
			[]string{"status"},
		),
		batchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "batch_duration_seconds",
				Help:      "Duration of batch runs in seconds",
				Buckets:   buckets,
			},
			[]string{"status"},
		),
		activeBatches: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_batches",
				Help:      "Current number of batches in flight",
			},
		),

		historyWrites: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "history_writes_total",
				Help:      "Total number of history sink writes",
			},
			[]string{"status"},
		),
	}

	registry.MustRegister(
		m.validations,
		m.violations,
		m.executions,
		m.executionDuration,
		m.truncations,
		m.batches,
		m.batchDuration,
		m.activeBatches,
		m.historyWrites,
	)

	return m, nil
}

// RecordValidation counts one validation verdict.
func (m *Metrics) RecordValidation(accepted bool) {
	if m == nil || m.validations == nil {
		return
	}
	verdict := "accepted"
	if !accepted {
		verdict = "rejected"
	}
	m.validations.WithLabelValues(verdict).Inc()
}

// RecordViolation counts one violation by category.
func (m *Metrics) RecordViolation(category string) {
	if m == nil || m.violations == nil {
		return
	}
	m.violations.WithLabelValues(category).Inc()
}

// RecordExecution counts one execution attempt with its outcome class
// and duration.
func (m *Metrics) RecordExecution(class string, duration time.Duration) {
	if m == nil || m.executions == nil {
		return
	}
	m.executions.WithLabelValues(class).Inc()
	m.executionDuration.WithLabelValues(class).Observe(duration.Seconds())
}

// RecordTruncation counts one row-cap truncation.
func (m *Metrics) RecordTruncation() {
	if m == nil || m.truncations == nil {
		return
	}
	m.truncations.Inc()
}

// RecordBatch counts one finished batch with its status and duration.
func (m *Metrics) RecordBatch(status string, duration time.Duration) {
	if m == nil || m.batches == nil {
		return
	}
	m.batches.WithLabelValues(status).Inc()
	m.batchDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// BatchStarted increments the in-flight batch gauge.
func (m *Metrics) BatchStarted() {
	if m == nil || m.activeBatches == nil {
		return
	}
	m.activeBatches.Inc()
}

// BatchFinished decrements the in-flight batch gauge.
func (m *Metrics) BatchFinished() {
	if m == nil || m.activeBatches == nil {
		return
	}
	m.activeBatches.Dec()
}

// RecordHistoryWrite counts one history sink write.
func (m *Metrics) RecordHistoryWrite(ok bool) {
	if m == nil || m.historyWrites == nil {
		return
	}
	status := "ok"
	if !ok {
		status = "error"
	}
	m.historyWrites.WithLabelValues(status).Inc()
}

// Timer provides a convenient way to time operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Duration returns the elapsed time since the timer was created.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// ObserveDuration is a helper to time an operation and record it.
func (t *Timer) ObserveDuration(observer prometheus.Observer) {
	observer.Observe(t.Duration().Seconds())
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil || m.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// StartMetricsServer starts an HTTP server to expose metrics.
func (m *Metrics) StartMetricsServer() error {
	if m == nil || !m.config.Enabled {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle(m.config.Path, m.Handler())

	server := &http.Server{
		Addr:              m.config.ListenAddress,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Printf("metrics server error: %v\n", err)
		}
	}()

	return nil
}
