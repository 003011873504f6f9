package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"tonscraper/pkg/retry"
)

// Metrics holds the harvester's Prometheus collectors on a private registry
type Metrics struct {
	registry *prometheus.Registry

	RequestsTotal     *prometheus.CounterVec
	RequestLatency    *prometheus.HistogramVec
	RetriesTotal      *prometheus.CounterVec
	OutcomesTotal     *prometheus.CounterVec
	FilterSkipped     *prometheus.CounterVec
	PagesProcessed    prometheus.Counter
	IterationDuration prometheus.Histogram
	IterationErrors   prometheus.Counter
	LastIteration     prometheus.Gauge
	InFlight          prometheus.Gauge
}

// New registers all collectors on a fresh registry, including Go and process collectors
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tonscraper_upstream_requests_total",
				Help: "Total number of upstream HTTP attempts",
			},
			[]string{"operation", "status"},
		),
		RequestLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tonscraper_upstream_latency_seconds",
				Help:    "Upstream attempt latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		RetriesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tonscraper_upstream_retries_total",
				Help: "Total number of retried upstream attempts",
			},
			[]string{"operation", "class"},
		),
		OutcomesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tonscraper_identifier_outcomes_total",
				Help: "Terminal outcomes per identifier",
			},
			[]string{"outcome"},
		),
		FilterSkipped: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tonscraper_filter_skipped_total",
				Help: "Identifiers skipped by the pre-filter",
			},
			[]string{"reason"},
		),
		PagesProcessed: factory.NewCounter(prometheus.CounterOpts{
			Name: "tonscraper_pages_processed_total",
			Help: "Pages fully processed with the cursor persisted",
		}),
		IterationDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "tonscraper_iteration_duration_seconds",
			Help:    "Duration of one harvest iteration",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
		}),
		IterationErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "tonscraper_iteration_errors_total",
			Help: "Iterations aborted by a page fetch or cursor failure",
		}),
		LastIteration: factory.NewGauge(prometheus.GaugeOpts{
			Name: "tonscraper_last_iteration_timestamp_seconds",
			Help: "Unix time of the last completed iteration",
		}),
		InFlight: factory.NewGauge(prometheus.GaugeOpts{
			Name: "tonscraper_detail_fetches_in_flight",
			Help: "Detail fetches currently running",
		}),
	}
}

// Registry exposes the underlying registry
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveRequest records one upstream attempt. Status 0 means the request never got a response.
func (m *Metrics) ObserveRequest(op string, status int, d time.Duration) {
	label := "error"
	if status > 0 {
		label = strconv.Itoa(status)
	}
	m.RequestsTotal.WithLabelValues(op, label).Inc()
	m.RequestLatency.WithLabelValues(op).Observe(d.Seconds())
}

// ObserveRetry records a retry decision
func (m *Metrics) ObserveRetry(op string, class retry.Classification) {
	m.RetriesTotal.WithLabelValues(op, class.Kind.String()).Inc()
}

// ObserveOutcome records a terminal identifier outcome
func (m *Metrics) ObserveOutcome(outcome string) {
	m.OutcomesTotal.WithLabelValues(outcome).Inc()
}

// ObserveFilterSkip records a filter skip
func (m *Metrics) ObserveFilterSkip(reason string) {
	m.FilterSkipped.WithLabelValues(reason).Inc()
}

// ObserveIteration records a finished iteration
func (m *Metrics) ObserveIteration(d time.Duration, err error, cursorAdvanced bool) {
	m.IterationDuration.Observe(d.Seconds())
	if err != nil {
		m.IterationErrors.Inc()
		return
	}
	if cursorAdvanced {
		m.PagesProcessed.Inc()
	}
	m.LastIteration.SetToCurrentTime()
}

// DetailStarted marks one detail fetch as in flight
func (m *Metrics) DetailStarted() { m.InFlight.Inc() }

// DetailFinished marks one detail fetch as done
func (m *Metrics) DetailFinished() { m.InFlight.Dec() }
