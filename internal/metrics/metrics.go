// Package metrics exposes Prometheus collectors for scoring and the HTTP API.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "esg"

// Metrics holds the service collectors.
type Metrics struct {
	aggregations        *prometheus.CounterVec
	aggregationDuration prometheus.Histogram
	contributions       *prometheus.CounterVec
	failures            *prometheus.CounterVec
	historyWrites       *prometheus.CounterVec
	httpRequests        *prometheus.CounterVec
	httpDuration        *prometheus.HistogramVec
}

// New registers the collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	auto := promauto.With(reg)
	return &Metrics{
		aggregations: auto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scoring",
			Name:      "aggregations_total",
			Help:      "Composite score aggregations by outcome.",
		}, []string{"outcome"}),
		aggregationDuration: auto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "scoring",
			Name:      "aggregation_duration_seconds",
			Help:      "Wall time of one aggregation including graph and warehouse calls.",
			Buckets:   prometheus.DefBuckets,
		}),
		contributions: auto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scoring",
			Name:      "metric_contributions_total",
			Help:      "Selected metrics by scheme and whether they were counted.",
		}, []string{"scheme", "result"}),
		failures: auto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scoring",
			Name:      "recovered_failures_total",
			Help:      "Per-metric failures recovered during aggregation.",
		}, []string{"kind", "scheme"}),
		historyWrites: auto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "history",
			Name:      "writes_total",
			Help:      "report_history inserts by outcome.",
		}, []string{"outcome"}),
		httpRequests: auto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route, method and status.",
		}, []string{"route", "method", "status"}),
		httpDuration: auto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
	}
}

// ObserveAggregation records one aggregation and its duration.
func (m *Metrics) ObserveAggregation(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.aggregations.WithLabelValues(outcome).Inc()
	m.aggregationDuration.Observe(d.Seconds())
}

// Contribution records whether a selected metric was counted.
func (m *Metrics) Contribution(scheme string, counted bool) {
	if m == nil {
		return
	}
	result := "skipped"
	if counted {
		result = "counted"
	}
	m.contributions.WithLabelValues(scheme, result).Inc()
}

// Failure records one recovered per-metric failure.
func (m *Metrics) Failure(kind, scheme string) {
	if m == nil {
		return
	}
	m.failures.WithLabelValues(kind, scheme).Inc()
}

// HistoryWrite records a report_history insert.
func (m *Metrics) HistoryWrite(ok bool) {
	if m == nil {
		return
	}
	outcome := "error"
	if ok {
		outcome = "ok"
	}
	m.historyWrites.WithLabelValues(outcome).Inc()
}

// ObserveHTTP records one served request.
func (m *Metrics) ObserveHTTP(route, method string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(route).Observe(d.Seconds())
}
