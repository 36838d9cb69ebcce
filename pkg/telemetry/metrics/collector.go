package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"mercator-hq/verdict/pkg/config"
)

// Solve status label values.
const (
	StatusSuccess  = "success"
	StatusFallback = "fallback"
	StatusNoMatch  = "no_match"
	StatusError    = "error"
)

// Publish result label values.
const (
	PublishPublished = "published"
	PublishBlocked   = "blocked"
	PublishInvalid   = "invalid"
	PublishError     = "error"
)

// DefaultMaxCardinality bounds the distinct slug/row label sets.
const DefaultMaxCardinality = 10000

// Collector owns every verdict metric and the registry they live in.
type Collector struct {
	config   *config.MetricsConfig
	registry *prometheus.Registry

	solve *SolveMetrics

	publishTotal       *prometheus.CounterVec
	decisionLogDropped prometheus.Counter
	rulesLoaded        prometheus.Gauge

	cardinalityLimiter *CardinalityLimiter
}

// NewCollector creates and registers the metrics. A nil registry gets a
// fresh one with the Go runtime and process collectors.
func NewCollector(cfg *config.MetricsConfig, registry *prometheus.Registry) *Collector {
	if cfg == nil {
		cfg = &config.MetricsConfig{}
	}
	if cfg.Namespace == "" {
		cfg.Namespace = config.DefaultMetricsNamespace
	}
	if registry == nil {
		registry = prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	c := &Collector{
		config:             cfg,
		registry:           registry,
		solve:              NewSolveMetrics(cfg.Namespace, registry),
		cardinalityLimiter: NewCardinalityLimiter(DefaultMaxCardinality),

		publishTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "publish_total",
				Help:      "Total number of publish attempts by result",
			},
			[]string{"slug", "result"},
		),

		decisionLogDropped: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "decision_log_dropped_total",
				Help:      "Total number of decision records dropped on a full buffer",
			},
		),

		rulesLoaded: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Name:      "rules_loaded",
				Help:      "Number of rules in the workspace",
			},
		),
	}

	registry.MustRegister(c.publishTotal, c.decisionLogDropped, c.rulesLoaded)
	return c
}

// RecordSolve records one solve. rowID is empty for failed solves.
func (c *Collector) RecordSolve(slug, status, rowID string, duration time.Duration) {
	if c == nil {
		return
	}
	if rowID != "" && !c.cardinalityLimiter.Allow(slug+"\x00"+rowID) {
		rowID = "other"
	}
	c.solve.Record(slug, status, rowID, duration)
}

// RecordBulk records the size of a bulk solve batch.
func (c *Collector) RecordBulk(slug string, size int) {
	if c == nil {
		return
	}
	c.solve.RecordBatch(slug, size)
}

// RecordPublish records a publish attempt.
func (c *Collector) RecordPublish(slug, result string) {
	if c == nil {
		return
	}
	c.publishTotal.WithLabelValues(slug, result).Inc()
}

// RecordDecisionDropped counts a dropped decision record.
func (c *Collector) RecordDecisionDropped() {
	if c == nil {
		return
	}
	c.decisionLogDropped.Inc()
}

// SetRulesLoaded sets the number of rules in the workspace.
func (c *Collector) SetRulesLoaded(n int) {
	if c == nil {
		return
	}
	c.rulesLoaded.Set(float64(n))
}

// Registry returns the Prometheus registry used by this collector.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// CardinalityLimiter prevents metric cardinality explosion by limiting
// the number of unique label combinations.
type CardinalityLimiter struct {
	maxCardinality int
	current        map[string]struct{}
	mu             sync.RWMutex
}

// NewCardinalityLimiter creates a new cardinality limiter.
func NewCardinalityLimiter(maxCardinality int) *CardinalityLimiter {
	return &CardinalityLimiter{
		maxCardinality: maxCardinality,
		current:        make(map[string]struct{}),
	}
}

// Allow reports whether labelSet is already tracked or fits under the limit.
func (cl *CardinalityLimiter) Allow(labelSet string) bool {
	cl.mu.RLock()
	if _, exists := cl.current[labelSet]; exists {
		cl.mu.RUnlock()
		return true
	}
	cl.mu.RUnlock()

	cl.mu.Lock()
	defer cl.mu.Unlock()

	if _, exists := cl.current[labelSet]; exists {
		return true
	}
	if len(cl.current) >= cl.maxCardinality {
		return false
	}
	cl.current[labelSet] = struct{}{}
	return true
}

// Count returns the current cardinality.
func (cl *CardinalityLimiter) Count() int {
	cl.mu.RLock()
	defer cl.mu.RUnlock()
	return len(cl.current)
}
