// Package metrics exposes Prometheus collectors for synthesis runs.
//
// A nil [*Collector] is valid and records nothing, so callers never need to guard their calls.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "curate"

// Collector groups the run, phase and suggestion metrics.
type Collector struct {
	registry    *prometheus.Registry
	runs        *prometheus.CounterVec
	suggestions *prometheus.CounterVec
	phases      *prometheus.HistogramVec
	inFlight    prometheus.Gauge
	refreshes   prometheus.CounterFunc
}

// New registers the collectors on a fresh registry along with the Go and process collectors.
// refreshes, when non-nil, is sampled on every scrape for the session refresh total.
func New(refreshes func() int64) *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Synthesis runs by final status.",
		}, []string{"status"}),
		suggestions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "suggestions_total",
			Help:      "Suggestions processed by outcome.",
		}, []string{"outcome"}),
		phases: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "phase_duration_seconds",
			Help:      "Wall time spent in each pipeline phase.",
			Buckets:   []float64{.05, .25, 1, 5, 15, 30, 60, 120, 300},
		}, []string{"phase"}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "runs_in_flight",
			Help:      "Synthesis runs currently executing.",
		}),
	}

	c.registry.MustRegister(
		c.runs, c.suggestions, c.phases, c.inFlight,
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)

	if refreshes != nil {
		c.refreshes = prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_refreshes_total",
			Help:      "Session token exchanges performed by the guard.",
		}, func() float64 { return float64(refreshes()) })
		c.registry.MustRegister(c.refreshes)
	}
	return c
}

// RunStarted increments the in-flight gauge. Call the returned func when the run ends.
func (c *Collector) RunStarted() func() {
	if c == nil {
		return func() {}
	}
	c.inFlight.Inc()
	return c.inFlight.Dec
}

// RunFinished counts a run under status.
func (c *Collector) RunFinished(status string) {
	if c == nil {
		return
	}
	c.runs.WithLabelValues(status).Inc()
}

// Suggestions adds n suggestions to the outcome label.
func (c *Collector) Suggestions(outcome string, n int) {
	if c == nil || n <= 0 {
		return
	}
	c.suggestions.WithLabelValues(outcome).Add(float64(n))
}

// ObservePhase records how long a phase took.
func (c *Collector) ObservePhase(phase string, d time.Duration) {
	if c == nil {
		return
	}
	c.phases.WithLabelValues(phase).Observe(d.Seconds())
}

// Registry returns the underlying registry, mostly for tests.
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
