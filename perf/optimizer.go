package perf

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/c360/perfkit/errors"
	"github.com/c360/perfkit/metric"
)

// MemoryReader reports current heap usage in megabytes. The default reads
// runtime.MemStats; tests substitute fixed values.
type MemoryReader func() float64

// GCHook forces a garbage collection. The default is runtime.GC.
type GCHook func()

// PoolOptimizer lets an external resource pool participate in a
// reclamation pass, for example by shrinking idle workers or connections.
type PoolOptimizer interface {
	OptimizePool(ctx context.Context) error
}

// OptimizationResult reports the outcome of one reclamation pass. Actions
// lists the steps that completed even when a later step failed.
type OptimizationResult struct {
	Success  bool          `json:"success"`
	Duration time.Duration `json:"duration"`
	Actions  []string      `json:"actions"`
	Error    string        `json:"error,omitempty"`
}

// Controller periodically inspects aggregated metrics and runs a
// reclamation pass when resource pressure crosses configured thresholds.
// At most one pass runs at a time; a tick that lands during a running
// pass is skipped rather than queued.
type Controller struct {
	cfg        OptimizationConfig
	manager    *Manager
	aggregator *Aggregator

	memory    MemoryReader
	gc        GCHook
	gcLimiter *rate.Limiter
	pool      PoolOptimizer

	core   *metric.Metrics
	logger *slog.Logger

	optimizing atomic.Bool

	mu       sync.Mutex
	started  bool
	shutdown chan struct{}
	done     chan struct{}
}

// ControllerOption configures optional controller collaborators.
type ControllerOption func(*Controller)

// WithMemoryReader substitutes the heap usage source.
func WithMemoryReader(reader MemoryReader) ControllerOption {
	return func(c *Controller) { c.memory = reader }
}

// WithGCHook substitutes the forced-collection hook.
func WithGCHook(hook GCHook) ControllerOption {
	return func(c *Controller) { c.gc = hook }
}

// WithPoolOptimizer adds an external pool to the reclamation pass.
func WithPoolOptimizer(pool PoolOptimizer) ControllerOption {
	return func(c *Controller) { c.pool = pool }
}

// WithCoreMetrics mirrors pass outcomes into the Prometheus core metrics.
func WithCoreMetrics(core *metric.Metrics) ControllerOption {
	return func(c *Controller) { c.core = core }
}

// NewController creates the optimization controller. The manager and
// aggregator are required; everything else has a runtime-backed default.
func NewController(cfg OptimizationConfig, manager *Manager, agg *Aggregator, logger *slog.Logger, opts ...ControllerOption) *Controller {
	if logger == nil {
		logger = slog.Default()
	}

	minInterval := cfg.GCMinInterval
	if minInterval <= 0 {
		minInterval = time.Minute
	}

	c := &Controller{
		cfg:        cfg,
		manager:    manager,
		aggregator: agg,
		memory:     heapUsedMB,
		gc:         runtime.GC,
		gcLimiter:  rate.NewLimiter(rate.Every(minInterval), 1),
		logger:     logger.With("component", "optimizer"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start launches the periodic optimization loop. The loop stops when Stop
// is called or ctx is cancelled.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.started {
		return errors.Wrap(errors.ErrAlreadyStarted, "optimizer", "Start", "start loop")
	}
	c.started = true
	c.shutdown = make(chan struct{})
	c.done = make(chan struct{})

	go c.run(ctx, c.shutdown, c.done)

	c.logger.Info("optimization loop started", "interval", c.cfg.Interval)
	return nil
}

// Stop terminates the loop and waits for an in-flight pass to finish.
func (c *Controller) Stop() error {
	c.mu.Lock()
	if !c.started {
		c.mu.Unlock()
		return nil
	}
	c.started = false
	shutdown, done := c.shutdown, c.done
	c.mu.Unlock()

	close(shutdown)
	<-done

	c.logger.Info("optimization loop stopped")
	return nil
}

func (c *Controller) run(ctx context.Context, shutdown, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(c.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.tick(ctx)
		case <-shutdown:
			return
		case <-ctx.Done():
			return
		}
	}
}

// tick runs one threshold check. Pass failures are logged, never fatal to
// the loop.
func (c *Controller) tick(ctx context.Context) {
	snap := c.aggregator.Snapshot()
	heapMB := c.memory()

	if c.core != nil {
		c.core.RecordHeapUsed(uint64(heapMB * 1024 * 1024))
	}

	c.logger.Debug("optimization tick",
		"heap_mb", heapMB,
		"hit_ratio", snap.HitRatio,
		"avg_latency", snap.AverageLatency,
		"total_requests", snap.TotalRequests,
		"uptime", snap.Uptime,
	)

	if !c.shouldOptimize(snap, heapMB) {
		return
	}

	result := c.OptimizeResources(ctx)
	if !result.Success {
		c.logger.Warn("optimization pass failed",
			"error", result.Error,
			"actions", result.Actions,
			"duration", result.Duration,
		)
	}
}

// shouldOptimize applies the threshold predicate: memory pressure, latency
// pressure, or a poor hit ratio each independently trigger a pass. The hit
// ratio check only applies once traffic exists, so an idle process never
// optimizes on the zero ratio.
func (c *Controller) shouldOptimize(snap Snapshot, heapMB float64) bool {
	if heapMB > c.cfg.MemoryThresholdMB {
		return true
	}
	if snap.AverageLatency > c.cfg.ResponseTimeThreshold {
		return true
	}
	if snap.TotalRequests > 0 && snap.HitRatio < c.cfg.CacheHitThreshold {
		return true
	}
	return false
}

// OptimizeResources runs one reclamation pass immediately, regardless of
// thresholds. If a pass is already running it returns ErrOptimizationBusy
// in the result rather than queuing.
func (c *Controller) OptimizeResources(ctx context.Context) OptimizationResult {
	if !c.optimizing.CompareAndSwap(false, true) {
		return OptimizationResult{
			Success: false,
			Error:   errors.ErrOptimizationBusy.Error(),
		}
	}
	defer c.optimizing.Store(false)

	start := time.Now()
	result := OptimizationResult{Success: true}

	// Stale purge first so a following collection sees the freed entries
	purged := c.manager.PurgeStale()
	var total int
	for store, count := range purged {
		total += count
		if c.core != nil && count > 0 {
			c.core.RecordStalePurged(store, count)
		}
	}
	result.Actions = append(result.Actions, fmt.Sprintf("purged %d stale entries", total))

	if heapMB := c.memory(); heapMB > c.cfg.GCThresholdMB && c.gcLimiter.Allow() {
		c.gc()
		result.Actions = append(result.Actions, "forced garbage collection")
	}

	if c.pool != nil {
		if err := c.pool.OptimizePool(ctx); err != nil {
			wrapped := errors.Wrap(err, "optimizer", "OptimizeResources", "optimize pool")
			result.Success = false
			result.Error = wrapped.Error()
		} else {
			result.Actions = append(result.Actions, "optimized resource pools")
		}
	}

	result.Duration = time.Since(start)

	status := "success"
	if !result.Success {
		status = "failure"
	}
	if c.core != nil {
		c.core.RecordOptimizationPass(status, result.Duration)
	}
	if c.aggregator != nil {
		c.aggregator.RecordLatency("optimization", result.Duration)
	}

	c.logger.Debug("optimization pass complete",
		"status", status,
		"actions", result.Actions,
		"duration", result.Duration,
	)
	return result
}

// heapUsedMB reads current heap allocation from the runtime.
func heapUsedMB() float64 {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return float64(ms.HeapAlloc) / (1024 * 1024)
}
