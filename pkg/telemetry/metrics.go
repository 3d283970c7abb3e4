package telemetry

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/millrun/millrun/pkg/engine"
)

// Metrics provides Prometheus metrics for millrun. It implements
// engine.MetricsRecorder.
type Metrics struct {
	config MetricsConfig

	// Scheduling pass metrics
	passesTotal    prometheus.Counter
	passDuration   prometheus.Histogram
	stagesPlaced   prometheus.Counter
	stagesAtRisk   prometheus.Counter
	stagesDeferred *prometheus.CounterVec

	// Progress metrics
	stageTransitions *prometheus.CounterVec
	qualityResults   *prometheus.CounterVec

	// Floor state gauges
	stagesByStatus     *prometheus.GaugeVec
	equipmentByStatus  *prometheus.GaugeVec
	materialAvailable  *prometheus.GaugeVec
	ordersByStatus     *prometheus.GaugeVec

	// Error metrics
	errorsByClass *prometheus.CounterVec
	errorsByCode  *prometheus.CounterVec

	// Event delivery metrics
	eventsDropped prometheus.Counter

	registry *prometheus.Registry
}

var _ engine.MetricsRecorder = (*Metrics)(nil)

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

	// Create a new registry
	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		passesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "scheduling_passes_total",
				Help:      "Total number of scheduling passes",
			},
		),
		passDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "scheduling_pass_duration_seconds",
				Help:      "Duration of scheduling passes in seconds",
				Buckets:   buckets,
			},
		),
		stagesPlaced: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "stages_scheduled_total",
				Help:      "Total number of stages placed on equipment",
			},
		),
		stagesAtRisk: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "stages_at_risk_total",
				Help:      "Total number of stages scheduled too late for their due date",
			},
		),
		stagesDeferred: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "stages_blocked_total",
				Help:      "Total number of stage deferrals by reason",
			},
			[]string{"reason"},
		),

		stageTransitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "stage_transitions_total",
				Help:      "Total number of stage status transitions by target status",
			},
			[]string{"status"},
		),
		qualityResults: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "quality_results_total",
				Help:      "Total number of inspections by result",
			},
			[]string{"result"},
		),

		stagesByStatus: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "stages",
				Help:      "Current number of stages by status",
			},
			[]string{"status"},
		),
		equipmentByStatus: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "equipment",
				Help:      "Current number of equipment units by type and status",
			},
			[]string{"type", "status"},
		),
		materialAvailable: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "material_available",
				Help:      "Current unreserved quantity of each material",
			},
			[]string{"material_id"},
		),
		ordersByStatus: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "orders",
				Help:      "Current number of orders by status",
			},
			[]string{"status"},
		),

		errorsByClass: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_by_class_total",
				Help:      "Total number of failed operations by error class",
			},
			[]string{"operation", "class"},
		),
		errorsByCode: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_by_code_total",
				Help:      "Total number of failed operations by error code",
			},
			[]string{"code"},
		),

		eventsDropped: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_dropped_total",
				Help:      "Total number of events dropped because the buffer was full",
			},
		),
	}

	// Register all metrics
	registry.MustRegister(
		m.passesTotal,
		m.passDuration,
		m.stagesPlaced,
		m.stagesAtRisk,
		m.stagesDeferred,
		m.stageTransitions,
		m.qualityResults,
		m.stagesByStatus,
		m.equipmentByStatus,
		m.materialAvailable,
		m.ordersByStatus,
		m.errorsByClass,
		m.errorsByCode,
		m.eventsDropped,
	)

	return m, nil
}

// Scheduling Metrics

// RecordPass records one scheduling pass.
func (m *Metrics) RecordPass(duration time.Duration, scheduled, blocked, atRisk int) {
	if m.passesTotal == nil {
		return
	}
	m.passesTotal.Inc()
	m.passDuration.Observe(duration.Seconds())
	m.stagesPlaced.Add(float64(scheduled))
	m.stagesAtRisk.Add(float64(atRisk))
}

// RecordBlocked records a stage deferral by reason.
func (m *Metrics) RecordBlocked(reason string) {
	if m.stagesDeferred == nil {
		return
	}
	m.stagesDeferred.WithLabelValues(reason).Inc()
}

// Progress Metrics

// RecordStageTransition records a stage entering a status.
func (m *Metrics) RecordStageTransition(status string) {
	if m.stageTransitions == nil {
		return
	}
	m.stageTransitions.WithLabelValues(status).Inc()
}

// RecordQualityResult records an inspection outcome.
func (m *Metrics) RecordQualityResult(result string) {
	if m.qualityResults == nil {
		return
	}
	m.qualityResults.WithLabelValues(result).Inc()
}

// Error Metrics

// RecordError records a failed operation by class and optionally by code.
func (m *Metrics) RecordError(operation, errorClass, errorCode string) {
	if m.errorsByClass == nil {
		return
	}
	m.errorsByClass.WithLabelValues(operation, errorClass).Inc()
	if errorCode != "" {
		m.errorsByCode.WithLabelValues(errorCode).Inc()
	}
}

// RecordEventDropped counts an event that could not be buffered.
func (m *Metrics) RecordEventDropped() {
	if m.eventsDropped == nil {
		return
	}
	m.eventsDropped.Inc()
}

// Floor State

// ObserveSnapshot refreshes the state gauges from a snapshot.
func (m *Metrics) ObserveSnapshot(snap *engine.Snapshot) {
	if m.stagesByStatus == nil || snap == nil {
		return
	}

	m.stagesByStatus.Reset()
	for _, p := range snap.Plans {
		for _, st := range p.Stages {
			m.stagesByStatus.WithLabelValues(string(st.Status)).Inc()
		}
	}

	m.ordersByStatus.Reset()
	for _, o := range snap.Orders {
		m.ordersByStatus.WithLabelValues(string(o.Status)).Inc()
	}

	m.equipmentByStatus.Reset()
	for _, eq := range snap.Equipment {
		m.equipmentByStatus.WithLabelValues(eq.Type, string(eq.Status)).Inc()
	}

	m.materialAvailable.Reset()
	for id, mat := range snap.Materials {
		m.materialAvailable.WithLabelValues(id).Set(mat.Available().InexactFloat64())
	}
}

// Registry returns the underlying registry, or nil when metrics are disabled.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
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

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// Serve exposes the metrics endpoint until ctx is cancelled.
func (m *Metrics) Serve(ctx context.Context) error {
	if !m.config.Enabled {
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

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	}
}
