package sweep

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// MetricsFile is the Prometheus textfile written at the sweep root.
const MetricsFile = "sweep_metrics.prom"

// Metrics counts sweep outcomes on a private registry.
type Metrics struct {
	registry      *prometheus.Registry
	attempts      *prometheus.CounterVec
	duration      *prometheus.HistogramVec
	artifacts     *prometheus.CounterVec
	cleanupErrors prometheus.Counter
	lastRun       prometheus.Gauge
}

// NewMetrics registers the sweep collectors.
func NewMetrics() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}
	m.attempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "meshforge",
			Subsystem: "sweep",
			Name:      "attempts_total",
			Help:      "Pipeline runs issued by the sweep, by experiment and outcome",
		},
		[]string{"experiment", "outcome"},
	)
	m.duration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "meshforge",
			Subsystem: "sweep",
			Name:      "attempt_duration_seconds",
			Help:      "Wall time of one pipeline run",
			Buckets:   []float64{5, 15, 30, 60, 120, 300, 600, 1200},
		},
		[]string{"experiment"},
	)
	m.artifacts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "meshforge",
			Subsystem: "sweep",
			Name:      "artifacts_total",
			Help:      "Artifacts relocated into the sweep tree, by kind",
		},
		[]string{"experiment", "kind"},
	)
	m.cleanupErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "meshforge",
		Subsystem: "sweep",
		Name:      "cleanup_errors_total",
		Help:      "Temporary directories that could not be removed",
	})
	m.lastRun = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "meshforge",
		Subsystem: "sweep",
		Name:      "last_completed_timestamp_seconds",
		Help:      "Unix time the sweep finished",
	})
	m.registry.MustRegister(m.attempts, m.duration, m.artifacts, m.cleanupErrors, m.lastRun)
	return m
}

// Registry exposes the collectors for tests and exporters.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) observeAttempt(experiment, outcome string, d time.Duration) {
	m.attempts.WithLabelValues(experiment, outcome).Inc()
	m.duration.WithLabelValues(experiment).Observe(d.Seconds())
}

func (m *Metrics) observeArtifact(experiment, kind string) {
	m.artifacts.WithLabelValues(experiment, kind).Inc()
}

func (m *Metrics) observeCleanup(errors int, finished time.Time) {
	m.cleanupErrors.Add(float64(errors))
	m.lastRun.Set(float64(finished.Unix()))
}

// WriteTextfile stores the current values for a node_exporter textfile collector.
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}
