package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics provides Prometheus metrics for range lifecycle operations.
type Metrics struct {
	config MetricsConfig

	// Deployment metrics
	deploysTotal   *prometheus.CounterVec
	destroysTotal  *prometheus.CounterVec
	deployDuration *prometheus.HistogramVec

	// Job metrics
	jobsQueued  prometheus.Gauge
	jobsRunning prometheus.Gauge

	// Consistency metrics
	danglingResources prometheus.Counter
	criticalAlerts    prometheus.Counter

	registry *prometheus.Registry
}

// NewMetrics creates a metrics collector. A disabled configuration returns
// a no-op instance whose methods are safe to call.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		return &Metrics{config: cfg}, nil
	}

	namespace := cfg.Namespace
	if namespace == "" {
		namespace = "rangeforge"
	}

	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		deploysTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "deploys_total",
				Help:      "Total number of range deploy operations",
			},
			[]string{"provider", "result"},
		),
		destroysTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "destroys_total",
				Help:      "Total number of range destroy operations",
			},
			[]string{"provider", "result"},
		),
		deployDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "deploy_duration_seconds",
				Help:      "Duration of range deploy operations in seconds",
				Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
			},
			[]string{"provider"},
		),
		jobsQueued: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "jobs_queued",
				Help:      "Number of deployment jobs waiting in the queue",
			},
		),
		jobsRunning: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "jobs_running",
				Help:      "Number of deployment jobs currently executing",
			},
		),
		danglingResources: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "dangling_resources_total",
				Help:      "Times a teardown failed and cloud resources may be orphaned",
			},
		),
		criticalAlerts: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "critical_alerts_total",
				Help:      "Total messages emitted on the critical log channel",
			},
		),
	}

	registry.MustRegister(
		m.deploysTotal,
		m.destroysTotal,
		m.deployDuration,
		m.jobsQueued,
		m.jobsRunning,
		m.danglingResources,
		m.criticalAlerts,
	)

	return m, nil
}

// ObserveDeploy records a completed deploy attempt.
func (m *Metrics) ObserveDeploy(provider, result string, duration time.Duration) {
	if m.deploysTotal == nil {
		return
	}
	m.deploysTotal.WithLabelValues(provider, result).Inc()
	m.deployDuration.WithLabelValues(provider).Observe(duration.Seconds())
}

// ObserveDestroy records a completed destroy attempt.
func (m *Metrics) ObserveDestroy(provider, result string) {
	if m.destroysTotal == nil {
		return
	}
	m.destroysTotal.WithLabelValues(provider, result).Inc()
}

// JobQueued adjusts the queued-jobs gauge.
func (m *Metrics) JobQueued(delta float64) {
	if m.jobsQueued == nil {
		return
	}
	m.jobsQueued.Add(delta)
}

// JobRunning adjusts the running-jobs gauge.
func (m *Metrics) JobRunning(delta float64) {
	if m.jobsRunning == nil {
		return
	}
	m.jobsRunning.Add(delta)
}

// IncDanglingResources records a failed teardown that may have orphaned
// cloud resources.
func (m *Metrics) IncDanglingResources() {
	if m.danglingResources == nil {
		return
	}
	m.danglingResources.Inc()
}

// IncCriticalAlerts records a message on the critical log channel.
func (m *Metrics) IncCriticalAlerts() {
	if m.criticalAlerts == nil {
		return
	}
	m.criticalAlerts.Inc()
}

// Handler returns the Prometheus scrape handler, or a 404 handler when
// metrics are disabled.
func (m *Metrics) Handler() http.Handler {
	if m.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
