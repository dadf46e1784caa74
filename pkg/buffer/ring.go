// Package buffer provides a thread-safe fixed-capacity ring buffer used for
// rolling sample windows, such as the most recent latency observations for
// an operation kind. When full, the oldest item is dropped to make room.
package buffer

import (
	"sync"
	"sync/atomic"
)

// Ring is a fixed-capacity ring buffer with drop-oldest overflow semantics.
type Ring[T any] struct {
	mu       sync.RWMutex
	items    []T
	capacity int
	size     int
	head     int // next write position
	tail     int // oldest item position

	// Atomic counters for observability
	writes int64
	drops  int64
}

// NewRing creates a ring buffer holding at most capacity items.
func NewRing[T any](capacity int) *Ring[T] {
	if capacity <= 0 {
		capacity = 1 // Minimum capacity
	}
	return &Ring[T]{
		items:    make([]T, capacity),
		capacity: capacity,
	}
}

// Append adds an item, dropping the oldest item when the buffer is full.
func (r *Ring[T]) Append(item T) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.size == r.capacity {
		// Drop oldest to make room
		r.tail = (r.tail + 1) % r.capacity
		r.size--
		atomic.AddInt64(&r.drops, 1)
	}

	r.items[r.head] = item
	r.head = (r.head + 1) % r.capacity
	r.size++
	atomic.AddInt64(&r.writes, 1)
}

// Len returns the number of items currently buffered.
func (r *Ring[T]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.size
}

// Capacity returns the fixed capacity of the buffer.
func (r *Ring[T]) Capacity() int {
	return r.capacity
}

// Snapshot returns buffered items in insertion order, oldest first.
func (r *Ring[T]) Snapshot() []T {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]T, r.size)
	for i := 0; i < r.size; i++ {
		out[i] = r.items[(r.tail+i)%r.capacity]
	}
	return out
}

// Reduce folds all buffered items, oldest first, into an accumulator without
// copying the backing slice.
func (r *Ring[T]) Reduce(initial T, fold func(acc, item T) T) T {
	r.mu.RLock()
	defer r.mu.RUnlock()

	acc := initial
	for i := 0; i < r.size; i++ {
		acc = fold(acc, r.items[(r.tail+i)%r.capacity])
	}
	return acc
}

// Reset removes all buffered items.
func (r *Ring[T]) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.size = 0
	r.head = 0
	r.tail = 0
}

// Writes returns the total number of appends since creation.
func (r *Ring[T]) Writes() int64 {
	return atomic.LoadInt64(&r.writes)
}

// Drops returns the total number of items dropped to overflow.
func (r *Ring[T]) Drops() int64 {
	return atomic.LoadInt64(&r.drops)
}
