// Package cache provides a generic, thread-safe bounded store combining
// least-recently-used capacity eviction with per-entry time-to-live expiry.
//
// Expiry is lazy: a read of an entry whose TTL has elapsed behaves as a miss
// and removes the entry. Eager removal of expired entries is available via
// PurgeExpired and is intended to be driven by a periodic reclamation pass,
// not by readers.
//
// Statistics are always collected (observability is not optional); Prometheus
// export is opt-in via functional options.
package cache

import (
	"time"

	"github.com/c360/perfkit/errors"
)

// Store represents a bounded TTL-aware key-value store parameterized by
// value type V.
type Store[V any] interface {
	// Get retrieves a value by key. An entry past its TTL is treated as
	// absent and removed. A hit refreshes recency for LRU purposes.
	Get(key string) (V, bool)

	// Set stores a value under the store's default TTL. Returns true if a
	// new entry was created, false if an existing entry was updated.
	Set(key string, value V) (bool, error)

	// SetWithTTL stores a value under an explicit TTL, overriding the
	// store default for this entry only.
	SetWithTTL(key string, value V, ttl time.Duration) (bool, error)

	// Delete removes an entry by key. Returns true if the key existed.
	Delete(key string) (bool, error)

	// DeleteMatching removes every entry whose key satisfies match and
	// returns the number removed. Entries past their TTL but still
	// resident count as removed.
	DeleteMatching(match func(key string) bool) int

	// PurgeExpired eagerly removes entries whose TTL has elapsed,
	// independent of access, and returns the number removed.
	PurgeExpired() int

	// Clear removes all entries from the store.
	Clear() error

	// Size returns the current number of entries, including any expired
	// entries not yet purged.
	Size() int

	// Keys returns all unexpired keys, most recently used first.
	Keys() []string

	// Stats returns the store's statistics tracker.
	Stats() *Statistics
}

// EvictCallback is called when an entry leaves the store through capacity
// eviction or expiry. It receives the key and value of the removed entry.
type EvictCallback[V any] func(key string, value V)

// Entry is the stored representation of a cached value.
type Entry[V any] struct {
	Key        string
	Value      V
	InsertedAt time.Time
	AccessedAt time.Time
	TTL        time.Duration
}

// ExpiresAt returns the instant after which the entry is considered absent.
func (e *Entry[V]) ExpiresAt() time.Time {
	return e.InsertedAt.Add(e.TTL)
}

// IsExpired reports whether the entry's age exceeds its TTL at now.
func (e *Entry[V]) IsExpired(now time.Time) bool {
	return now.After(e.ExpiresAt())
}

// validateKey validates a cache key for basic requirements.
func validateKey(key string) error {
	if key == "" {
		return errors.WrapInvalid(errors.ErrInvalidData, "cache", "validateKey", "key cannot be empty")
	}
	return nil
}
