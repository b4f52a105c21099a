// Package metrics exposes gateway and cache activity as Prometheus collectors.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/e7canasta/signbridge/internal/gateway"
)

const namespace = "signbridge"

// Cache lookup results
const (
	CacheHit   = "hit"
	CacheMiss  = "miss"
	CacheError = "error"
)

// Metrics holds every collector on its own registry. It implements
// gateway.Observer.
type Metrics struct {
	registry *prometheus.Registry

	invocations  *prometheus.CounterVec
	duration     *prometheus.HistogramVec
	inflight     *prometheus.GaugeVec
	cacheLookups *prometheus.CounterVec
	eventErrors  prometheus.Counter
}

var _ gateway.Observer = (*Metrics)(nil)

// New creates and registers the collectors
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		invocations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "invocations_total",
			Help:      "External classifier invocations by mode and outcome.",
		}, []string{"mode", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "invocation_seconds",
			Help:      "Wall time from spawn to resolution.",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"mode"}),
		inflight: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "inflight",
			Help:      "Invocations started but not yet resolved.",
		}, []string{"mode"}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "lookups_total",
			Help:      "Translation cache lookups by result.",
		}, []string{"result"}),
		eventErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "publish_errors_total",
			Help:      "Translation events that could not be published.",
		}),
	}

	m.registry.MustRegister(
		m.invocations,
		m.duration,
		m.inflight,
		m.cacheLookups,
		m.eventErrors,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// Started implements gateway.Observer
func (m *Metrics) Started(mode string) {
	m.inflight.WithLabelValues(mode).Inc()
}

// Resolved implements gateway.Observer. The gateway pairs every Started with
// exactly one Resolved.
func (m *Metrics) Resolved(mode string, o gateway.Outcome, elapsed time.Duration) {
	m.inflight.WithLabelValues(mode).Dec()
	m.invocations.WithLabelValues(mode, o.Label()).Inc()
	m.duration.WithLabelValues(mode).Observe(elapsed.Seconds())
}

// CacheLookup records one cache lookup
func (m *Metrics) CacheLookup(result string) {
	m.cacheLookups.WithLabelValues(result).Inc()
}

// EventPublishFailed records an event that was dropped
func (m *Metrics) EventPublishFailed() {
	m.eventErrors.Inc()
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry returns the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
