package perf

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/c360/perfkit/errors"
	"github.com/c360/perfkit/metric"
)

// Operation is a unit of work coalesced into a batch window. The coordinator
// runs it once the window flushes; the returned value or error is delivered
// to the Submit call that enqueued it.
type Operation func(ctx context.Context) (any, error)

// opResult carries an operation outcome back to its waiting Submit call.
type opResult struct {
	value any
	err   error
}

// pending is an enqueued operation plus its delivery channel.
type pending struct {
	op   Operation
	done chan opResult
}

// window is one open batch. Operations accumulate until the size limit or
// the deadline timer fires, whichever comes first.
type window struct {
	id       string
	key      string
	ops      []pending
	timer    *time.Timer
	openedAt time.Time
	flushed  bool
}

// Coordinator groups operations submitted under the same batch key into
// windows and executes each window as one dispatch. Operations within a
// window run concurrently; one failing operation never affects siblings.
type Coordinator struct {
	mu      sync.Mutex
	windows map[string]*window
	closed  bool

	maxBatchSize   int
	defaultTimeout time.Duration

	aggregator *Aggregator
	core       *metric.Metrics
	logger     *slog.Logger
}

// NewCoordinator creates a batch coordinator. The aggregator and core
// metrics are optional; a nil logger falls back to slog.Default.
func NewCoordinator(cfg BatchingConfig, agg *Aggregator, core *metric.Metrics, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}

	maxSize := cfg.MaxBatchSize
	if maxSize <= 0 {
		maxSize = defaultMaxBatchSize
	}
	timeout := cfg.DefaultTimeout
	if timeout < 0 {
		timeout = defaultBatchTimeout
	}

	return &Coordinator{
		windows:        make(map[string]*window),
		maxBatchSize:   maxSize,
		defaultTimeout: timeout,
		aggregator:     agg,
		core:           core,
		logger:         logger.With("component", "batch"),
	}
}

// Submit enqueues op under batchKey and blocks until its window flushes and
// the operation completes, or ctx is cancelled. A timeout of zero flushes
// the window on the next timer turn; operations still run asynchronously
// relative to their sibling Submit calls. A negative timeout selects the
// coordinator default.
func (c *Coordinator) Submit(ctx context.Context, batchKey string, op Operation, timeout time.Duration) (any, error) {
	if op == nil {
		return nil, errors.WrapInvalid(errors.ErrInvalidData, "batch", "Submit", "nil operation")
	}
	if timeout < 0 {
		timeout = c.defaultTimeout
	}

	// Buffered so delivery never blocks on an abandoned waiter
	done := make(chan opResult, 1)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, errors.Wrap(errors.ErrWindowClosed, "batch", "Submit", "enqueue")
	}

	w, ok := c.windows[batchKey]
	if !ok {
		w = &window{
			id:       uuid.NewString(),
			key:      batchKey,
			openedAt: time.Now(),
		}
		c.windows[batchKey] = w
		// AfterFunc handles timeout==0: the flush still happens off the
		// submitting goroutine, on the timer goroutine's next turn.
		w.timer = time.AfterFunc(timeout, func() {
			c.flush(batchKey, w.id, "deadline")
		})
	}

	w.ops = append(w.ops, pending{op: op, done: done})

	if len(w.ops) >= c.maxBatchSize {
		// Detach before dispatch so a concurrent Submit opens a fresh window
		c.detachLocked(w)
		c.mu.Unlock()
		c.dispatch(w, "size")
	} else {
		c.mu.Unlock()
	}

	select {
	case res := <-done:
		return res.value, res.err
	case <-ctx.Done():
		return nil, errors.WrapTransient(ctx.Err(), "batch", "Submit", "wait for batch result")
	}
}

// Flush immediately dispatches the open window for batchKey, if any.
func (c *Coordinator) Flush(batchKey string) {
	c.mu.Lock()
	w, ok := c.windows[batchKey]
	if !ok {
		c.mu.Unlock()
		return
	}
	c.detachLocked(w)
	c.mu.Unlock()
	c.dispatch(w, "manual")
}

// Close flushes every open window and rejects subsequent submissions.
func (c *Coordinator) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	detached := make([]*window, 0, len(c.windows))
	for _, w := range c.windows {
		c.detachLocked(w)
		detached = append(detached, w)
	}
	c.mu.Unlock()

	for _, w := range detached {
		c.dispatch(w, "shutdown")
	}
}

// PendingWindows reports the number of currently open windows.
func (c *Coordinator) PendingWindows() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.windows)
}

// detachLocked removes a window from the open set and stops its timer.
// Callers must hold c.mu. The flushed flag makes the deadline timer and a
// size-triggered flush race-safe: whichever detaches first dispatches.
func (c *Coordinator) detachLocked(w *window) {
	if w.flushed {
		return
	}
	w.flushed = true
	if w.timer != nil {
		w.timer.Stop()
	}
	delete(c.windows, w.key)
}

// flush is the deadline-timer entry point. It verifies the window under the
// key is still the one the timer was armed for before dispatching.
func (c *Coordinator) flush(batchKey, windowID, trigger string) {
	c.mu.Lock()
	w, ok := c.windows[batchKey]
	if !ok || w.id != windowID {
		c.mu.Unlock()
		return
	}
	c.detachLocked(w)
	c.mu.Unlock()
	c.dispatch(w, trigger)
}

// dispatch executes every operation in a detached window concurrently and
// delivers each result to its waiter. Failures are isolated per operation.
func (c *Coordinator) dispatch(w *window, trigger string) {
	if len(w.ops) == 0 {
		return
	}

	start := time.Now()
	ctx := context.Background()

	var wg sync.WaitGroup
	for _, p := range w.ops {
		wg.Add(1)
		go func(p pending) {
			defer wg.Done()
			p.done <- c.runOne(ctx, p.op)
		}(p)
	}
	wg.Wait()

	elapsed := time.Since(start)

	c.logger.Debug("batch window flushed",
		"batch_key", w.key,
		"window_id", w.id,
		"size", len(w.ops),
		"trigger", trigger,
		"window_age", time.Since(w.openedAt),
		"duration", elapsed,
	)

	if c.aggregator != nil {
		c.aggregator.RecordBatchExecution()
		c.aggregator.RecordLatency("batch", elapsed)
	}
	if c.core != nil {
		c.core.RecordBatchExecution(trigger, len(w.ops), elapsed)
	}
}

// runOne executes a single operation, converting a panic into a classified
// error so one misbehaving operation cannot take down the window.
func (c *Coordinator) runOne(ctx context.Context, op Operation) (res opResult) {
	defer func() {
		if r := recover(); r != nil {
			res = opResult{err: errors.Wrap(
				fmt.Errorf("%w: operation panic: %v", errors.ErrBatchFlushFailed, r),
				"batch", "dispatch", "run operation")}
		}
	}()

	value, err := op(ctx)
	if err != nil {
		return opResult{err: err}
	}
	return opResult{value: value}
}
