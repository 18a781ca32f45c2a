package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics. A nil *Metrics is valid and records nothing.
type Metrics struct {
	// Request metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Cache metrics
	CacheLookups  *prometheus.CounterVec
	LoaderCalls   *prometheus.CounterVec
	LockAttempts  *prometheus.CounterVec
	CacheRebuilds *prometheus.CounterVec

	// Seckill metrics
	SeckillOutcomes *prometheus.CounterVec
	IDsIssued       *prometheus.CounterVec

	// Worker pool metrics
	RebuildQueueSize prometheus.Gauge
}

// NewMetrics creates the metrics and registers them on reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "seckill_requests_total",
				Help: "Total number of API requests processed",
			},
			[]string{"transport", "operation", "code"},
		),

		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "seckill_request_duration_seconds",
				Help:    "Duration of API request processing",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"transport", "operation"},
		),

		CacheLookups: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "seckill_cache_lookups_total",
				Help: "Cache lookups by read strategy and result",
			},
			[]string{"strategy", "result"},
		),

		LoaderCalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "seckill_cache_loader_calls_total",
				Help: "Backing store loads triggered by cache misses",
			},
			[]string{"strategy", "result"},
		),

		LockAttempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "seckill_lock_attempts_total",
				Help: "Distributed lock acquisitions by outcome",
			},
			[]string{"scope", "outcome"},
		),

		CacheRebuilds: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "seckill_cache_rebuilds_total",
				Help: "Asynchronous logical-expiry rebuilds by status",
			},
			[]string{"status"},
		),

		SeckillOutcomes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "seckill_orders_total",
				Help: "Seckill attempts by outcome",
			},
			[]string{"outcome"},
		),

		IDsIssued: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "seckill_ids_issued_total",
				Help: "Identifiers issued per business prefix",
			},
			[]string{"prefix"},
		),

		RebuildQueueSize: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "seckill_rebuild_queue_size",
				Help: "Rebuild tasks waiting for a worker",
			},
		),
	}
}

// RecordRequest records an API request
func (m *Metrics) RecordRequest(transport, operation, code string, duration float64) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(transport, operation, code).Inc()
	m.RequestDuration.WithLabelValues(transport, operation).Observe(duration)
}

// RecordCacheLookup records the result of a cache read
func (m *Metrics) RecordCacheLookup(strategy, result string) {
	if m == nil {
		return
	}
	m.CacheLookups.WithLabelValues(strategy, result).Inc()
}

// RecordLoaderCall records a backing store load
func (m *Metrics) RecordLoaderCall(strategy, result string) {
	if m == nil {
		return
	}
	m.LoaderCalls.WithLabelValues(strategy, result).Inc()
}

// RecordLockAttempt records a lock acquisition outcome
func (m *Metrics) RecordLockAttempt(scope, outcome string) {
	if m == nil {
		return
	}
	m.LockAttempts.WithLabelValues(scope, outcome).Inc()
}

// RecordRebuild records a finished rebuild
func (m *Metrics) RecordRebuild(status string) {
	if m == nil {
		return
	}
	m.CacheRebuilds.WithLabelValues(status).Inc()
}

// RecordSeckill records the outcome of a purchase attempt
func (m *Metrics) RecordSeckill(outcome string) {
	if m == nil {
		return
	}
	m.SeckillOutcomes.WithLabelValues(outcome).Inc()
}

// RecordIDIssued records an issued identifier
func (m *Metrics) RecordIDIssued(prefix string) {
	if m == nil {
		return
	}
	m.IDsIssued.WithLabelValues(prefix).Inc()
}

// UpdateRebuildQueueSize updates the rebuild backlog gauge
func (m *Metrics) UpdateRebuildQueueSize(size int) {
	if m == nil {
		return
	}
	m.RebuildQueueSize.Set(float64(size))
}
