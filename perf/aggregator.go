package perf

import (
	"sync"
	"time"

	"github.com/c360/perfkit/metric"
	"github.com/c360/perfkit/pkg/buffer"
)

// latencyWindowSize caps the rolling latency history per operation kind.
const latencyWindowSize = 100

// Store names used as counter dimensions and metric labels.
const (
	StoreResponses  = "responses"
	StoreTemplates  = "templates"
	StoreParameters = "parameters"
)

// storeNames lists all stores in reporting order.
var storeNames = []string{StoreResponses, StoreTemplates, StoreParameters}

// StoreCounters holds the per-store traffic counters in a snapshot.
type StoreCounters struct {
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
	Errors int64 `json:"errors"`
}

// Snapshot is a point-in-time view of aggregated metrics. It is a plain
// value; holding one never observes later mutation.
type Snapshot struct {
	Uptime            time.Duration            `json:"uptime"`
	TotalRequests     int64                    `json:"total_requests"`
	RequestsPerSecond float64                  `json:"requests_per_second"`
	Stores            map[string]StoreCounters `json:"stores"`
	HitRatio          float64                  `json:"hit_ratio"`
	BatchExecutions   int64                    `json:"batch_executions"`
	AverageLatency    time.Duration            `json:"average_latency"`
	LatencySamples    map[string]int           `json:"latency_samples"`
}

// Aggregator is the pure bookkeeping component: counters plus bounded
// rolling latency histories. It performs no I/O. The optimization
// controller reads it through Snapshot; only the owning components mutate.
type Aggregator struct {
	mu        sync.RWMutex
	startTime time.Time

	totalRequests   int64
	batchExecutions int64
	stores          map[string]*StoreCounters
	latencies       map[string]*buffer.Ring[time.Duration]

	// Optional mirror into the Prometheus core metrics
	core *metric.Metrics
}

// NewAggregator creates an aggregator. The core metrics mirror is optional;
// pass nil to keep the aggregator Prometheus-free (tests do).
func NewAggregator(core *metric.Metrics) *Aggregator {
	stores := make(map[string]*StoreCounters, len(storeNames))
	for _, name := range storeNames {
		stores[name] = &StoreCounters{}
	}

	return &Aggregator{
		startTime: time.Now(),
		stores:    stores,
		latencies: make(map[string]*buffer.Ring[time.Duration]),
		core:      core,
	}
}

// RecordRequest counts one request against a store.
func (a *Aggregator) RecordRequest(store string) {
	a.mu.Lock()
	a.totalRequests++
	a.mu.Unlock()

	if a.core != nil {
		a.core.RecordRequest(store)
	}
}

// RecordHit counts a cache hit for a store.
func (a *Aggregator) RecordHit(store string) {
	a.mu.Lock()
	if c, ok := a.stores[store]; ok {
		c.Hits++
	}
	a.mu.Unlock()

	if a.core != nil {
		a.core.RecordHit(store)
	}
}

// RecordMiss counts a cache miss for a store.
func (a *Aggregator) RecordMiss(store string) {
	a.mu.Lock()
	if c, ok := a.stores[store]; ok {
		c.Misses++
	}
	a.mu.Unlock()

	if a.core != nil {
		a.core.RecordMiss(store)
	}
}

// RecordError counts a generator/loader failure for a store.
func (a *Aggregator) RecordError(store string) {
	a.mu.Lock()
	if c, ok := a.stores[store]; ok {
		c.Errors++
	}
	a.mu.Unlock()

	if a.core != nil {
		a.core.RecordCacheError(store)
	}
}

// RecordBatchExecution counts one flushed batch window.
func (a *Aggregator) RecordBatchExecution() {
	a.mu.Lock()
	a.batchExecutions++
	a.mu.Unlock()
}

// RecordLatency appends a latency sample to the named rolling history,
// evicting the oldest sample past the window size.
func (a *Aggregator) RecordLatency(kind string, d time.Duration) {
	a.mu.Lock()
	ring, ok := a.latencies[kind]
	if !ok {
		ring = buffer.NewRing[time.Duration](latencyWindowSize)
		a.latencies[kind] = ring
	}
	a.mu.Unlock()

	ring.Append(d)

	if a.core != nil {
		a.core.RecordGenerationDuration(kind, d)
	}
}

// Snapshot derives the point-in-time metrics view.
func (a *Aggregator) Snapshot() Snapshot {
	a.mu.RLock()
	defer a.mu.RUnlock()

	uptime := time.Since(a.startTime)

	snap := Snapshot{
		Uptime:          uptime,
		TotalRequests:   a.totalRequests,
		BatchExecutions: a.batchExecutions,
		Stores:          make(map[string]StoreCounters, len(a.stores)),
		LatencySamples:  make(map[string]int, len(a.latencies)),
	}

	var hits, misses int64
	for name, c := range a.stores {
		snap.Stores[name] = *c
		hits += c.Hits
		misses += c.Misses
	}

	if total := hits + misses; total > 0 {
		snap.HitRatio = float64(hits) / float64(total)
	}

	if uptime > 0 {
		snap.RequestsPerSecond = float64(a.totalRequests) / uptime.Seconds()
	}

	// Average across every sample of every operation kind
	var sum time.Duration
	var count int
	for kind, ring := range a.latencies {
		n := ring.Len()
		snap.LatencySamples[kind] = n
		count += n
		sum += ring.Reduce(0, func(acc, item time.Duration) time.Duration {
			return acc + item
		})
	}
	if count > 0 {
		snap.AverageLatency = sum / time.Duration(count)
	}

	return snap
}
