// Package perf is the performance optimization subsystem: TTL-bounded
// response, template, and parameter caching with LRU eviction, batch
// coalescing of related operations, rolling latency and hit-ratio
// aggregation, and a periodic controller that reclaims resources when
// memory, latency, or hit-ratio thresholds are crossed.
//
// Service is the facade most callers use; Manager, Coordinator,
// Aggregator, and Controller are exported for callers that compose the
// pieces themselves.
package perf
