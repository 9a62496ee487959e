// Package metrics exposes crawl counters as Prometheus collectors.
//
// Each Metrics value owns its registry so that several crawler instances
// (and parallel tests) never collide on registration. All methods are safe
// on a nil *Metrics, which disables recording.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "publiccrawler"

// Metrics holds the crawler collectors.
type Metrics struct {
	registry *prometheus.Registry

	PagesFetched  prometheus.Counter
	FetchFailures *prometheus.CounterVec
	Rejections    *prometheus.CounterVec
	SinkErrors    prometheus.Counter
	RobotsFetches *prometheus.CounterVec
	FetchDuration prometheus.Histogram
	RunsStarted   prometheus.Counter
}

// New creates the collectors on a fresh registry. Go runtime and process
// collectors are registered as well.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		PagesFetched: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pages_fetched_total",
			Help:      "Pages fetched, parsed and handed to the sink.",
		}),
		FetchFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_failures_total",
			Help:      "Fetches that produced no page, by reason.",
		}, []string{"reason"}),
		Rejections: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frontier_rejections_total",
			Help:      "URLs refused by the frontier, by reason.",
		}, []string{"reason"}),
		SinkErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sink_errors_total",
			Help:      "Pages the sink failed to persist.",
		}),
		RobotsFetches: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "robots_fetches_total",
			Help:      "robots.txt requests, by result.",
		}, []string{"result"}),
		FetchDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fetch_duration_seconds",
			Help:      "Duration of successful page fetches, excluding politeness waits.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 15},
		}),
		RunsStarted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_started_total",
			Help:      "Crawl runs started.",
		}),
	}
}

// Registry returns the registry holding the collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// PageFetched records one successful page and its fetch duration.
func (m *Metrics) PageFetched(d time.Duration) {
	if m == nil {
		return
	}
	m.PagesFetched.Inc()
	m.FetchDuration.Observe(d.Seconds())
}

// FetchFailed records a failed fetch.
func (m *Metrics) FetchFailed(reason string) {
	if m == nil {
		return
	}
	m.FetchFailures.WithLabelValues(reason).Inc()
}

// Rejected records a frontier refusal.
func (m *Metrics) Rejected(reason string) {
	if m == nil {
		return
	}
	m.Rejections.WithLabelValues(reason).Inc()
}

// SinkFailed records a persistence failure.
func (m *Metrics) SinkFailed() {
	if m == nil {
		return
	}
	m.SinkErrors.Inc()
}

// RobotsFetched records the result of a robots.txt request.
func (m *Metrics) RobotsFetched(result string) {
	if m == nil {
		return
	}
	m.RobotsFetches.WithLabelValues(result).Inc()
}

// RunStarted records the start of a crawl run.
func (m *Metrics) RunStarted() {
	if m == nil {
		return
	}
	m.RunsStarted.Inc()
}
