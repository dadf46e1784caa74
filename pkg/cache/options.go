package cache

import (
	"github.com/c360/perfkit/metric"
)

// Option configures store behavior using the functional options pattern.
type Option[V any] func(*storeOptions[V])

// storeOptions holds internal configuration for store instances.
// Stats are always collected; Prometheus export is optional via WithMetrics.
type storeOptions[V any] struct {
	// metricsReg is optional - if provided, store stats are also exposed
	// as Prometheus metrics
	metricsReg *metric.MetricsRegistry

	// metricsPrefix is used as the store label for Prometheus metrics
	metricsPrefix string

	// evictCallback is called when entries leave the store
	evictCallback EvictCallback[V]
}

// WithMetrics enables Prometheus metrics export for store statistics.
// If registry is nil or prefix is empty, this option is ignored.
func WithMetrics[V any](registry *metric.MetricsRegistry, prefix string) Option[V] {
	return func(opts *storeOptions[V]) {
		if registry != nil && prefix != "" {
			opts.metricsReg = registry
			opts.metricsPrefix = prefix
		}
	}
}

// WithEvictionCallback sets a callback invoked when entries are evicted or
// expire. The callback receives the key and value of the removed entry.
func WithEvictionCallback[V any](callback EvictCallback[V]) Option[V] {
	return func(opts *storeOptions[V]) {
		opts.evictCallback = callback
	}
}

// applyOptions applies functional options to create final store configuration.
func applyOptions[V any](options ...Option[V]) *storeOptions[V] {
	opts := &storeOptions[V]{}

	for _, opt := range options {
		if opt != nil {
			opt(opts)
		}
	}

	return opts
}
