package metric

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contains all subsystem-level metrics (not component-specific)
type Metrics struct {
	// Request metrics
	RequestsTotal      *prometheus.CounterVec
	CacheHits          *prometheus.CounterVec
	CacheMisses        *prometheus.CounterVec
	CacheErrors        *prometheus.CounterVec
	GenerationDuration *prometheus.HistogramVec

	// Batch metrics
	BatchExecutions *prometheus.CounterVec
	BatchSize       prometheus.Histogram
	BatchDuration   prometheus.Histogram

	// Optimization metrics
	OptimizationPasses   *prometheus.CounterVec
	OptimizationDuration prometheus.Histogram
	StaleEntriesPurged   *prometheus.CounterVec
	HeapUsedBytes        prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all subsystem metrics
func NewMetrics() *Metrics {
	return &Metrics{
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "perfkit",
				Subsystem: "requests",
				Name:      "total",
				Help:      "Total number of requests by store",
			},
			[]string{"store"},
		),

		CacheHits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "perfkit",
				Subsystem: "cache",
				Name:      "hits_total",
				Help:      "Total number of cache hits by store",
			},
			[]string{"store"},
		),

		CacheMisses: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "perfkit",
				Subsystem: "cache",
				Name:      "misses_total",
				Help:      "Total number of cache misses by store",
			},
			[]string{"store"},
		),

		CacheErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "perfkit",
				Subsystem: "cache",
				Name:      "errors_total",
				Help:      "Total number of generator/loader errors by store",
			},
			[]string{"store"},
		),

		GenerationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "perfkit",
				Subsystem: "generation",
				Name:      "duration_seconds",
				Help:      "External generator invocation duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"operation"},
		),

		BatchExecutions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "perfkit",
				Subsystem: "batch",
				Name:      "executions_total",
				Help:      "Total number of batch flushes by trigger (size, deadline)",
			},
			[]string{"trigger"},
		),

		BatchSize: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "perfkit",
				Subsystem: "batch",
				Name:      "size",
				Help:      "Number of operations per flushed batch window",
				Buckets:   []float64{1, 2, 5, 10, 20, 50, 100},
			},
		),

		BatchDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "perfkit",
				Subsystem: "batch",
				Name:      "duration_seconds",
				Help:      "Wall time from flush start to slowest operation completion",
				Buckets:   prometheus.DefBuckets,
			},
		),

		OptimizationPasses: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "perfkit",
				Subsystem: "optimization",
				Name:      "passes_total",
				Help:      "Total number of reclamation passes by outcome",
			},
			[]string{"status"},
		),

		OptimizationDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "perfkit",
				Subsystem: "optimization",
				Name:      "duration_seconds",
				Help:      "Reclamation pass duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
		),

		StaleEntriesPurged: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "perfkit",
				Subsystem: "optimization",
				Name:      "stale_purged_total",
				Help:      "Total number of stale entries purged by store",
			},
			[]string{"store"},
		),

		HeapUsedBytes: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "perfkit",
				Subsystem: "optimization",
				Name:      "heap_used_bytes",
				Help:      "Heap usage observed at the last optimization tick",
			},
		),
	}
}

// RecordRequest increments the request counter for a store
func (c *Metrics) RecordRequest(store string) {
	c.RequestsTotal.WithLabelValues(store).Inc()
}

// RecordHit increments the cache hit counter for a store
func (c *Metrics) RecordHit(store string) {
	c.CacheHits.WithLabelValues(store).Inc()
}

// RecordMiss increments the cache miss counter for a store
func (c *Metrics) RecordMiss(store string) {
	c.CacheMisses.WithLabelValues(store).Inc()
}

// RecordCacheError increments the generator error counter for a store
func (c *Metrics) RecordCacheError(store string) {
	c.CacheErrors.WithLabelValues(store).Inc()
}

// RecordGenerationDuration records an external generator invocation time
func (c *Metrics) RecordGenerationDuration(operation string, duration time.Duration) {
	c.GenerationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordBatchExecution records one flushed batch window
func (c *Metrics) RecordBatchExecution(trigger string, size int, duration time.Duration) {
	c.BatchExecutions.WithLabelValues(trigger).Inc()
	c.BatchSize.Observe(float64(size))
	c.BatchDuration.Observe(duration.Seconds())
}

// RecordOptimizationPass records one reclamation pass
func (c *Metrics) RecordOptimizationPass(status string, duration time.Duration) {
	c.OptimizationPasses.WithLabelValues(status).Inc()
	c.OptimizationDuration.Observe(duration.Seconds())
}

// RecordStalePurged adds purged entry counts for a store
func (c *Metrics) RecordStalePurged(store string, count int) {
	if count > 0 {
		c.StaleEntriesPurged.WithLabelValues(store).Add(float64(count))
	}
}

// RecordHeapUsed updates the observed heap usage gauge
func (c *Metrics) RecordHeapUsed(bytes uint64) {
	c.HeapUsedBytes.Set(float64(bytes))
}
