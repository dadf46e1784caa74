package worker

import "errors"

var (
	// ErrNilProcessor is raised when a pool is created without a processor
	ErrNilProcessor = errors.New("worker: processor function cannot be nil")

	// ErrPoolNotStarted is returned when submitting to a pool that has not been started
	ErrPoolNotStarted = errors.New("worker: pool not started")

	// ErrPoolAlreadyStarted is returned when starting a pool twice
	ErrPoolAlreadyStarted = errors.New("worker: pool already started")

	// ErrPoolStopped is returned when submitting to a stopped pool
	ErrPoolStopped = errors.New("worker: pool stopped")

	// ErrQueueFull is returned when the work queue is at capacity
	ErrQueueFull = errors.New("worker: queue full")

	// ErrStopTimeout is returned when workers do not drain within the stop timeout
	ErrStopTimeout = errors.New("worker: timeout waiting for workers to finish")
)
