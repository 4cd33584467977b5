// Package metrics provides Prometheus metrics for bustime.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	Registry *prometheus.Registry

	// Dialogue turns by intent and outcome ("ok", "invalid",
	// "unrecognized" or "error").
	TurnsTotal *prometheus.CounterVec

	// Calls to the transit data provider, by operation
	UpstreamRequestsTotal   *prometheus.CounterVec
	UpstreamErrorsTotal     *prometheus.CounterVec
	UpstreamRequestDuration *prometheus.HistogramVec

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

func New() *Metrics {
	registry := prometheus.NewRegistry()

	turnsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bustime_turns_total",
			Help: "Total number of dialogue turns handled",
		},
		[]string{"intent", "outcome"},
	)

	upstreamRequestsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bustime_upstream_requests_total",
			Help: "Total number of transit data provider calls",
		},
		[]string{"operation"},
	)

	upstreamErrorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bustime_upstream_errors_total",
			Help: "Total number of failed transit data provider calls",
		},
		[]string{"operation"},
	)

	upstreamRequestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bustime_upstream_request_duration_seconds",
			Help:    "Transit data provider latency distribution",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	httpRequestsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bustime_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bustime_http_request_duration_seconds",
			Help:    "HTTP request latency distribution",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	registry.MustRegister(
		turnsTotal,
		upstreamRequestsTotal,
		upstreamErrorsTotal,
		upstreamRequestDuration,
		httpRequestsTotal,
		httpRequestDuration,
	)

	return &Metrics{
		Registry:                registry,
		TurnsTotal:              turnsTotal,
		UpstreamRequestsTotal:   upstreamRequestsTotal,
		UpstreamErrorsTotal:     upstreamErrorsTotal,
		UpstreamRequestDuration: upstreamRequestDuration,
		HTTPRequestsTotal:       httpRequestsTotal,
		HTTPRequestDuration:     httpRequestDuration,
	}
}

// Records the outcome of a single upstream call. Safe on a nil
// receiver.
func (m *Metrics) ObserveUpstream(operation string, start time.Time, err error) {
	if m == nil {
		return
	}
	m.UpstreamRequestsTotal.WithLabelValues(operation).Inc()
	m.UpstreamRequestDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	if err != nil {
		m.UpstreamErrorsTotal.WithLabelValues(operation).Inc()
	}
}

// Safe on a nil receiver.
func (m *Metrics) ObserveTurn(intent string, outcome string) {
	if m == nil {
		return
	}
	m.TurnsTotal.WithLabelValues(intent, outcome).Inc()
}
