package telemetry

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/bindforge/bindforge/pkg/engine"
)

// Generation statuses used as metric labels.
const (
	StatusSucceeded = "succeeded"
	StatusRejected  = "rejected"
	StatusFailed    = "failed"
)

// Metrics provides Prometheus metrics for generation runs. It implements
// engine.Observer and is safe for concurrent use.
type Metrics struct {
	config MetricsConfig

	// Generation metrics
	generations        *prometheus.CounterVec
	generationDuration *prometheus.HistogramVec

	// Pipeline stage metrics
	stageDuration *prometheus.HistogramVec
	stageFailures *prometheus.CounterVec

	// Diagnostic metrics
	diagnostics      *prometheus.CounterVec
	policyViolations *prometheus.CounterVec

	// Model size metrics
	modelResources prometheus.Gauge
	modelMethods   prometheus.Gauge
	modelViews     prometheus.Gauge
	modelAdapters  prometheus.Gauge

	// History metrics
	historyRecords *prometheus.CounterVec

	registry *prometheus.Registry
}

var _ engine.Observer = (*Metrics)(nil)

// NewMetrics creates a new metrics collector with the given configuration.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		// No-op metrics
		return &Metrics{config: cfg}, nil
	}

	namespace := cfg.Namespace
	buckets := cfg.StageBuckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		generations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "generations_total",
				Help:      "Total number of generation runs by outcome",
			},
			[]string{"status"},
		),
		generationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "generation_duration_seconds",
				Help:      "Duration of a generation run in seconds",
				Buckets:   buckets,
			},
			[]string{"status"},
		),

		stageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "stage_duration_seconds",
				Help:      "Duration of a pipeline stage in seconds",
				Buckets:   buckets,
			},
			[]string{"stage"},
		),
		stageFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "stage_failures_total",
				Help:      "Total number of failed pipeline stages",
			},
			[]string{"stage"},
		),

		diagnostics: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "diagnostics_total",
				Help:      "Total number of diagnostics reported",
			},
			[]string{"kind", "severity"},
		),
		policyViolations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "policy_violations_total",
				Help:      "Total number of policy violations",
			},
			[]string{"policy", "severity"},
		),

		modelResources: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "model_resources",
			Help:      "Resources in the last generated model",
		}),
		modelMethods: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "model_methods",
			Help:      "Methods in the last generated model",
		}),
		modelViews: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "model_views",
			Help:      "Views in the last generated model",
		}),
		modelAdapters: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "model_callback_adapters",
			Help:      "Callback adapters in the last generated model",
		}),

		historyRecords: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "history_records_total",
				Help:      "Total number of generation runs written to history",
			},
			[]string{"status"},
		),
	}

	registry.MustRegister(
		m.generations,
		m.generationDuration,
		m.stageDuration,
		m.stageFailures,
		m.diagnostics,
		m.policyViolations,
		m.modelResources,
		m.modelMethods,
		m.modelViews,
		m.modelAdapters,
		m.historyRecords,
	)

	return m, nil
}

// Enabled reports whether metrics are collected.
func (m *Metrics) Enabled() bool {
	return m.registry != nil
}

// Registry returns the underlying registry, nil when metrics are disabled.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// StageCompleted records a pipeline stage.
func (m *Metrics) StageCompleted(stage string, d time.Duration, failed bool) {
	if m.stageDuration == nil {
		return
	}
	m.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
	if failed {
		m.stageFailures.WithLabelValues(stage).Inc()
	}
}

// DiagnosticReported counts a diagnostic by kind and severity.
func (m *Metrics) DiagnosticReported(kind, severity string) {
	if m.diagnostics == nil {
		return
	}
	m.diagnostics.WithLabelValues(kind, severity).Inc()
}

// RecordGeneration records a finished generation run.
func (m *Metrics) RecordGeneration(status string, duration time.Duration) {
	if m.generations == nil {
		return
	}
	m.generations.WithLabelValues(status).Inc()
	m.generationDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// RecordModel sets the model size gauges.
func (m *Metrics) RecordModel(model *engine.BindingModel) {
	if m.modelResources == nil || model == nil {
		return
	}
	var methods, views int
	for _, r := range model.Resources {
		methods += len(r.Methods)
		views += len(r.Views)
	}
	m.modelResources.Set(float64(len(model.Resources)))
	m.modelMethods.Set(float64(methods))
	m.modelViews.Set(float64(views))
	m.modelAdapters.Set(float64(len(model.Callbacks)))
}

// RecordPolicyViolation counts a policy violation.
func (m *Metrics) RecordPolicyViolation(policy, severity string) {
	if m.policyViolations == nil {
		return
	}
	m.policyViolations.WithLabelValues(policy, severity).Inc()
}

// RecordHistory counts a run written to the history store.
func (m *Metrics) RecordHistory(status string) {
	if m.historyRecords == nil {
		return
	}
	m.historyRecords.WithLabelValues(status).Inc()
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

// WriteTextfile writes the registry to the configured textfile path. It is a no-op
// when metrics are disabled or no path is set.
func (m *Metrics) WriteTextfile() error {
	if m.registry == nil || m.config.TextfilePath == "" {
		return nil
	}
	return prometheus.WriteToTextfile(m.config.TextfilePath, m.registry)
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

// StartMetricsServer serves metrics until ctx is done. It returns nil without
// listening when metrics are disabled.
func (m *Metrics) StartMetricsServer(ctx context.Context) error {
	if m.registry == nil || m.config.ListenAddress == "" {
		return nil
	}

	path := m.config.Path
	if path == "" {
		path = "/metrics"
	}
	mux := http.NewServeMux()
	mux.Handle(path, m.Handler())

	server := &http.Server{
		Addr:              m.config.ListenAddress,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Str("addr", m.config.ListenAddress).Msg("metrics server stopped")
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	return nil
}
