package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects Prometheus metrics for the launch engine. The zero
// value of a disabled config yields a collector whose methods are no-ops.
type Metrics struct {
	config MetricsConfig

	launchesStarted   *prometheus.CounterVec
	launchesCompleted *prometheus.CounterVec
	launchDuration    *prometheus.HistogramVec

	resolutions        *prometheus.CounterVec
	resolutionDuration prometheus.Histogram

	transactions       *prometheus.CounterVec
	operationsExecuted *prometheus.CounterVec
	rollbacks          *prometheus.CounterVec

	driftChecks   *prometheus.CounterVec
	policyDenials prometheus.Counter

	activeLaunches prometheus.Gauge

	registry *prometheus.Registry
}

// NewMetrics creates a metrics collector. When cfg.Enabled is false the
// returned collector records nothing.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		return &Metrics{config: cfg}, nil
	}

	namespace := cfg.Namespace
	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		launchesStarted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "launches_started_total",
				Help:      "Total number of launches started",
			},
			[]string{"root"},
		),
		launchesCompleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "launches_completed_total",
				Help:      "Total number of launches completed",
			},
			[]string{"status"},
		),
		launchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "launch_duration_seconds",
				Help:      "Wall time from launch request to program exit",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"status"},
		),
		resolutions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "resolutions_total",
				Help:      "Total number of environment resolutions",
			},
			[]string{"status"},
		),
		resolutionDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "resolution_duration_seconds",
				Help:      "Duration of environment resolution",
				Buckets:   prometheus.DefBuckets,
			},
		),
		transactions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "transactions_total",
				Help:      "Total number of launch transactions by outcome",
			},
			[]string{"outcome"},
		),
		operationsExecuted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "operations_executed_total",
				Help:      "Total number of operations executed",
			},
			[]string{"type", "status"},
		),
		rollbacks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rollbacks_total",
				Help:      "Total number of rollbacks by reason",
			},
			[]string{"reason"},
		),
		driftChecks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "drift_checks_total",
				Help:      "Total number of re-entry drift checks by result",
			},
			[]string{"result"},
		),
		policyDenials: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "policy_denials_total",
				Help:      "Total number of launches refused by policy",
			},
		),
		activeLaunches: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_launches",
				Help:      "Number of launches currently running",
			},
		),
	}

	registry.MustRegister(
		m.launchesStarted,
		m.launchesCompleted,
		m.launchDuration,
		m.resolutions,
		m.resolutionDuration,
		m.transactions,
		m.operationsExecuted,
		m.rollbacks,
		m.driftChecks,
		m.policyDenials,
		m.activeLaunches,
	)

	return m, nil
}

// Enabled reports whether metrics are being collected.
func (m *Metrics) Enabled() bool {
	return m.registry != nil
}

// Handler returns the HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if !m.Enabled() {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// LaunchStarted records a launch beginning for root.
func (m *Metrics) LaunchStarted(root string) {
	if !m.Enabled() {
		return
	}
	m.launchesStarted.WithLabelValues(root).Inc()
	m.activeLaunches.Inc()
}

// LaunchCompleted records a finished launch with its status and duration.
func (m *Metrics) LaunchCompleted(status string, duration time.Duration) {
	if !m.Enabled() {
		return
	}
	m.launchesCompleted.WithLabelValues(status).Inc()
	m.launchDuration.WithLabelValues(status).Observe(duration.Seconds())
	m.activeLaunches.Dec()
}

// ResolutionCompleted records one environment resolution.
func (m *Metrics) ResolutionCompleted(status string, duration time.Duration) {
	if !m.Enabled() {
		return
	}
	m.resolutions.WithLabelValues(status).Inc()
	m.resolutionDuration.Observe(duration.Seconds())
}

// TransactionFinished records a transaction outcome (applied, failed,
// aborted).
func (m *Metrics) TransactionFinished(outcome string) {
	if !m.Enabled() {
		return
	}
	m.transactions.WithLabelValues(outcome).Inc()
}

// OperationExecuted records one operation apply or rollback.
func (m *Metrics) OperationExecuted(opType, status string) {
	if !m.Enabled() {
		return
	}
	m.operationsExecuted.WithLabelValues(opType, status).Inc()
}

// RollbackPerformed records a rollback with its reason (failure, abort,
// explicit).
func (m *Metrics) RollbackPerformed(reason string) {
	if !m.Enabled() {
		return
	}
	m.rollbacks.WithLabelValues(reason).Inc()
}

// DriftChecked records one re-entry drift check result (compatible,
// incompatible).
func (m *Metrics) DriftChecked(result string) {
	if !m.Enabled() {
		return
	}
	m.driftChecks.WithLabelValues(result).Inc()
}

// PolicyDenied records a launch refused by policy.
func (m *Metrics) PolicyDenied() {
	if !m.Enabled() {
		return
	}
	m.policyDenials.Inc()
}
