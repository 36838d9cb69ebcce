package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// SolveMetrics tracks solve counts, latency, row hits and bulk sizes.
type SolveMetrics struct {
	solvesTotal   *prometheus.CounterVec
	solveDuration *prometheus.HistogramVec
	rowHits       *prometheus.CounterVec
	bulkBatchSize *prometheus.HistogramVec
}

// NewSolveMetrics creates and registers solve metrics with the registry.
func NewSolveMetrics(namespace string, registry *prometheus.Registry) *SolveMetrics {
	sm := &SolveMetrics{
		solvesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "solves_total",
				Help:      "Total number of solves by outcome",
			},
			[]string{"slug", "status"},
		),

		solveDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "solve_duration_seconds",
				Help:      "Duration of a single solve in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.000005, 2, 16), // 5µs to ~164ms
			},
			[]string{"slug"},
		),

		rowHits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "row_hits_total",
				Help:      "Total number of times a row answered a solve",
			},
			[]string{"slug", "row_id"},
		),

		bulkBatchSize: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "bulk_batch_size",
				Help:      "Number of requests per bulk solve",
				Buckets:   prometheus.ExponentialBuckets(1, 4, 8), // 1 to 16384
			},
			[]string{"slug"},
		),
	}

	registry.MustRegister(sm.solvesTotal, sm.solveDuration, sm.rowHits, sm.bulkBatchSize)
	return sm
}

// Record records one solve.
func (sm *SolveMetrics) Record(slug, status, rowID string, duration time.Duration) {
	sm.solvesTotal.WithLabelValues(slug, status).Inc()
	sm.solveDuration.WithLabelValues(slug).Observe(duration.Seconds())
	if rowID != "" {
		sm.rowHits.WithLabelValues(slug, rowID).Inc()
	}
}

// RecordBatch records a bulk solve batch size.
func (sm *SolveMetrics) RecordBatch(slug string, size int) {
	sm.bulkBatchSize.WithLabelValues(slug).Observe(float64(size))
}
