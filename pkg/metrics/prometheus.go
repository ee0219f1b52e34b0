package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const DefaultNamespace = "rmqlauncher"

// PrometheusCollector implements Collector on a private Prometheus registry
type PrometheusCollector struct {
	starts              prometheus.Counter
	startFailures       *prometheus.CounterVec
	exits               *prometheus.CounterVec
	terminationDuration *prometheus.HistogramVec
	running             prometheus.Gauge

	registry *prometheus.Registry
}

// NewPrometheusCollector creates a collector whose metrics live under namespace
func NewPrometheusCollector(namespace string) *PrometheusCollector {
	if namespace == "" {
		namespace = DefaultNamespace
	}

	pc := &PrometheusCollector{
		registry: prometheus.NewRegistry(),
	}

	pc.starts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "instance_starts_total",
			Help:      "Total number of broker instances started",
		},
	)

	pc.startFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "instance_start_failures_total",
			Help:      "Total number of failed broker instance starts",
		},
		[]string{"error_type"},
	)

	pc.exits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "instance_exits_total",
			Help:      "Total number of broker instances that ended",
		},
		[]string{"outcome"},
	)

	pc.terminationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "instance_termination_duration_seconds",
			Help:      "Duration of broker instance termination",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 20},
		},
		[]string{"mode"},
	)

	pc.running = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "instances_running",
			Help:      "Number of broker instances currently running",
		},
	)

	pc.registry.MustRegister(
		pc.starts,
		pc.startFailures,
		pc.exits,
		pc.terminationDuration,
		pc.running,
	)

	return pc
}

func (pc *PrometheusCollector) InstanceStarted() {
	pc.starts.Inc()
	pc.running.Inc()
}

func (pc *PrometheusCollector) StartFailed(errorType string) {
	pc.startFailures.WithLabelValues(errorType).Inc()
}

func (pc *PrometheusCollector) InstanceExited(outcome string) {
	pc.exits.WithLabelValues(outcome).Inc()
	pc.running.Dec()
}

func (pc *PrometheusCollector) TerminationDuration(mode string, duration time.Duration) {
	pc.terminationDuration.WithLabelValues(mode).Observe(duration.Seconds())
}

// Registry returns the private registry for exposition
func (pc *PrometheusCollector) Registry() *prometheus.Registry {
	return pc.registry
}

// Handler serves the registry in the Prometheus text format
func (pc *PrometheusCollector) Handler() http.Handler {
	return promhttp.HandlerFor(pc.registry, promhttp.HandlerOpts{Registry: pc.registry})
}
