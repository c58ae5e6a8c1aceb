package metric

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "metaquery"

// Metrics contains the gateway-level metrics.
type Metrics struct {
	// Query metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Store metrics
	StoreQueries       *prometheus.CounterVec
	StoreQueryDuration *prometheus.HistogramVec
	BreakerState       *prometheus.GaugeVec
	StoreConnected     prometheus.Gauge
}

// NewMetrics creates a new Metrics instance
func NewMetrics() *Metrics {
	return &Metrics{
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "requests",
				Name:      "total",
				Help:      "Total number of query requests by outcome (success, partial, failed)",
			},
			[]string{"outcome"},
		),

		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "requests",
				Name:      "duration_seconds",
				Help:      "Query request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"outcome"},
		),

		StoreQueries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "store",
				Name:      "queries_total",
				Help:      "Total number of document store queries",
			},
			[]string{"index", "outcome"},
		),

		StoreQueryDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "store",
				Name:      "query_duration_seconds",
				Help:      "Document store query duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"index"},
		),

		BreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "store",
				Name:      "circuit_breaker",
				Help:      "Store circuit breaker status (0=closed, 1=half-open, 2=open)",
			},
			[]string{"breaker"},
		),

		StoreConnected: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "store",
				Name:      "connected",
				Help:      "Store connection status (0=disconnected, 1=connected)",
			},
		),
	}
}

// RecordRequest counts a finished request and its duration
func (c *Metrics) RecordRequest(outcome string, duration time.Duration) {
	c.RequestsTotal.WithLabelValues(outcome).Inc()
	c.RequestDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

// RecordStoreQuery counts a store query. The signature matches
// metadata.QueryObserver.
func (c *Metrics) RecordStoreQuery(index, outcome string, duration time.Duration) {
	c.StoreQueries.WithLabelValues(index, outcome).Inc()
	c.StoreQueryDuration.WithLabelValues(index).Observe(duration.Seconds())
}

// RecordBreakerState updates circuit breaker status
func (c *Metrics) RecordBreakerState(breaker string, state int) {
	c.BreakerState.WithLabelValues(breaker).Set(float64(state))
}

// RecordStoreConnected updates store connection status
func (c *Metrics) RecordStoreConnected(connected bool) {
	value := 0.0
	if connected {
		value = 1.0
	}
	c.StoreConnected.Set(value)
}
