package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Исходы запроса к шлюзу.
const (
	OutcomeOK          = "ok"
	OutcomeBadRequest  = "bad_request"
	OutcomeUnavailable = "unavailable"
	OutcomeError       = "error"
)

// Результаты обращения к кешу.
const (
	CacheHit   = "hit"
	CacheMiss  = "miss"
	CacheError = "error"
)

// Metrics holds all Prometheus metrics for the gateway
type Metrics struct {
	QueriesTotal   *prometheus.CounterVec
	QueryDuration  *prometheus.HistogramVec
	CacheRequests  *prometheus.CounterVec
	StoreConnected prometheus.Gauge
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry prometheus.Registerer) *Metrics {
	return &Metrics{
		QueriesTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "endesa_gateway_queries_total",
				Help: "Total number of /data/endesa requests by discriminator and outcome",
			},
			[]string{"discriminator", "outcome"},
		),

		QueryDuration: promauto.With(registry).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "endesa_gateway_query_duration_seconds",
				Help:    "Duration of store reads in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"collection"},
		),

		CacheRequests: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "endesa_gateway_cache_requests_total",
				Help: "Total number of cache lookups by result",
			},
			[]string{"result"},
		),

		StoreConnected: promauto.With(registry).NewGauge(
			prometheus.GaugeOpts{
				Name: "endesa_gateway_store_connected",
				Help: "Whether the document store is reachable (1) or not (0)",
			},
		),
	}
}

// RecordQuery counts a finished request
func (m *Metrics) RecordQuery(discriminator, outcome string) {
	m.QueriesTotal.WithLabelValues(discriminator, outcome).Inc()
}

// ObserveStoreRead records how long a store read took
func (m *Metrics) ObserveStoreRead(collection string, d time.Duration) {
	m.QueryDuration.WithLabelValues(collection).Observe(d.Seconds())
}

// RecordCache counts a cache lookup
func (m *Metrics) RecordCache(result string) {
	m.CacheRequests.WithLabelValues(result).Inc()
}

// SetStoreConnected updates the store connectivity gauge
func (m *Metrics) SetStoreConnected(connected bool) {
	if connected {
		m.StoreConnected.Set(1)
		return
	}
	m.StoreConnected.Set(0)
}
