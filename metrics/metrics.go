// Package metrics exposes Prometheus collectors for the describe pipeline.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/c360studio/visionvoice/caption"
)

const namespace = "visionvoice"

// Metrics holds the pipeline collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	captionAttempts *prometheus.CounterVec
	captionResults  *prometheus.CounterVec
	captionBackoff  prometheus.Counter
	hazardVerdicts  *prometheus.CounterVec
	describeLatency *prometheus.HistogramVec
}

// New creates the collectors and registers them, together with the Go and
// process collectors, on a new registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		captionAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "caption_attempts_total",
			Help:      "Captioning backend attempts by outcome.",
		}, []string{"outcome"}),
		captionResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "caption_results_total",
			Help:      "Caption calls by final error kind (ok for success).",
		}, []string{"kind"}),
		captionBackoff: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "caption_backoff_seconds_total",
			Help:      "Total time requested for backoff waits.",
		}),
		hazardVerdicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "hazard_verdicts_total",
			Help:      "Hazard verdicts by priority (none when no hazard).",
		}, []string{"priority"}),
		describeLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "describe_duration_seconds",
			Help:      "End-to-end describe latency.",
			Buckets:   []float64{0.25, 0.5, 1, 2.5, 5, 10, 20, 40, 60, 90, 120},
		}, []string{"result"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.captionAttempts,
		m.captionResults,
		m.captionBackoff,
		m.hazardVerdicts,
		m.describeLatency,
	)
	return m
}

// Registry returns the registry backing Handler.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveAttempt implements caption.Observer.
func (m *Metrics) ObserveAttempt(outcome string) {
	m.captionAttempts.WithLabelValues(outcome).Inc()
}

// ObserveBackoff implements caption.Observer.
func (m *Metrics) ObserveBackoff(d time.Duration) {
	m.captionBackoff.Add(d.Seconds())
}

// ObserveResult implements caption.Observer.
func (m *Metrics) ObserveResult(kind caption.Kind) {
	label := string(kind)
	if kind == caption.KindNone {
		label = "ok"
	}
	m.captionResults.WithLabelValues(label).Inc()
}

// ObserveHazard counts a verdict priority.
func (m *Metrics) ObserveHazard(detected bool, priority int) {
	label := "none"
	if detected {
		label = strconv.Itoa(priority)
	}
	m.hazardVerdicts.WithLabelValues(label).Inc()
}

// ObserveDescribe records one pipeline run. result is "ok" or an error kind.
func (m *Metrics) ObserveDescribe(result string, d time.Duration) {
	m.describeLatency.WithLabelValues(result).Observe(d.Seconds())
}

var _ caption.Observer = (*Metrics)(nil)
