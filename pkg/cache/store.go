package cache

import (
	"container/list"
	"sync"
	"time"
)

// boundedStore is the Store implementation: a map plus a doubly-linked list
// maintaining LRU order, with per-entry TTL checked lazily on read.
type boundedStore[V any] struct {
	mu         sync.RWMutex
	capacity   int
	defaultTTL time.Duration
	items      map[string]*list.Element // key -> list element
	order      *list.List               // front = most recently used
	stats      *Statistics              // always initialized
	metrics    *storeMetrics            // optional, if metrics enabled
	evictFn    EvictCallback[V]
}

// New creates a bounded store with the given capacity and default TTL.
// Returns an error if metrics registration fails when requested.
func New[V any](capacity int, defaultTTL time.Duration, options ...Option[V]) (Store[V], error) {
	opts := applyOptions(options...)

	var metrics *storeMetrics
	if opts.metricsReg != nil && opts.metricsPrefix != "" {
		var err error
		metrics, err = newStoreMetrics(opts.metricsReg, opts.metricsPrefix)
		if err != nil {
			return nil, err
		}
	}

	return &boundedStore[V]{
		capacity:   capacity,
		defaultTTL: defaultTTL,
		items:      make(map[string]*list.Element),
		order:      list.New(),
		stats:      NewStatistics(),
		metrics:    metrics,
		evictFn:    opts.evictCallback,
	}, nil
}

// Get retrieves a value, applying TTL lazily and refreshing LRU order on hit.
func (s *boundedStore[V]) Get(key string) (V, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	element, exists := s.items[key]
	if !exists {
		var zero V
		s.stats.Miss()
		if s.metrics != nil {
			s.metrics.recordMiss()
		}
		return zero, false
	}

	entry := element.Value.(*Entry[V])

	if entry.IsExpired(time.Now()) {
		s.removeElement(element)
		s.stats.Expiration()
		s.stats.Miss()
		s.stats.UpdateSize(int64(len(s.items)))
		if s.metrics != nil {
			s.metrics.recordExpiration()
			s.metrics.recordMiss()
			s.metrics.updateSize(len(s.items))
		}

		var zero V
		return zero, false
	}

	entry.AccessedAt = time.Now()
	s.order.MoveToFront(element)

	s.stats.Hit()
	if s.metrics != nil {
		s.metrics.recordHit()
	}

	return entry.Value, true
}

// Set stores a value under the store's default TTL.
func (s *boundedStore[V]) Set(key string, value V) (bool, error) {
	return s.SetWithTTL(key, value, s.defaultTTL)
}

// SetWithTTL stores a value under an explicit TTL and evicts the least
// recently used entry when capacity is exceeded.
func (s *boundedStore[V]) SetWithTTL(key string, value V, ttl time.Duration) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, err
	}
	if ttl <= 0 {
		ttl = s.defaultTTL
	}
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	if element, exists := s.items[key]; exists {
		// Update resets insertion time so the new TTL applies in full
		entry := element.Value.(*Entry[V])
		entry.Value = value
		entry.InsertedAt = now
		entry.AccessedAt = now
		entry.TTL = ttl
		s.order.MoveToFront(element)

		s.stats.Set()
		if s.metrics != nil {
			s.metrics.recordSet()
		}
		return false, nil
	}

	entry := &Entry[V]{
		Key:        key,
		Value:      value,
		InsertedAt: now,
		AccessedAt: now,
		TTL:        ttl,
	}
	element := s.order.PushFront(entry)
	s.items[key] = element

	if len(s.items) > s.capacity {
		s.evictLRU()
	}

	s.stats.Set()
	s.stats.UpdateSize(int64(len(s.items)))
	if s.metrics != nil {
		s.metrics.recordSet()
		s.metrics.updateSize(len(s.items))
	}

	return true, nil
}

// Delete removes an entry by key.
func (s *boundedStore[V]) Delete(key string) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	element, exists := s.items[key]
	if !exists {
		return false, nil
	}

	s.removeElement(element)

	s.stats.Delete()
	s.stats.UpdateSize(int64(len(s.items)))
	if s.metrics != nil {
		s.metrics.recordDelete()
		s.metrics.updateSize(len(s.items))
	}

	return true, nil
}

// DeleteMatching removes every entry whose key satisfies match.
// This is an O(n) scan; stores are capacity-bounded so n is small.
func (s *boundedStore[V]) DeleteMatching(match func(key string) bool) int {
	var matched []*list.Element

	s.mu.Lock()
	for element := s.order.Front(); element != nil; {
		next := element.Next()
		entry := element.Value.(*Entry[V])
		if match(entry.Key) {
			matched = append(matched, element)
			delete(s.items, entry.Key)
			s.order.Remove(element)
		}
		element = next
	}
	size := len(s.items)
	s.mu.Unlock()

	// Eviction callbacks run outside the lock
	if s.evictFn != nil {
		for _, element := range matched {
			entry := element.Value.(*Entry[V])
			s.evictFn(entry.Key, entry.Value)
		}
	}

	if len(matched) > 0 {
		for range matched {
			s.stats.Delete()
		}
		s.stats.UpdateSize(int64(size))
		if s.metrics != nil {
			for range matched {
				s.metrics.recordDelete()
			}
			s.metrics.updateSize(size)
		}
	}

	return len(matched)
}

// PurgeExpired removes all entries whose TTL has elapsed.
func (s *boundedStore[V]) PurgeExpired() int {
	now := time.Now()
	var expired []*list.Element

	s.mu.Lock()
	for element := s.order.Front(); element != nil; {
		next := element.Next()
		entry := element.Value.(*Entry[V])
		if entry.IsExpired(now) {
			expired = append(expired, element)
			delete(s.items, entry.Key)
			s.order.Remove(element)
		}
		element = next
	}
	size := len(s.items)
	s.mu.Unlock()

	// Eviction callbacks run outside the lock
	if s.evictFn != nil {
		for _, element := range expired {
			entry := element.Value.(*Entry[V])
			s.evictFn(entry.Key, entry.Value)
		}
	}

	if len(expired) > 0 {
		for range expired {
			s.stats.Expiration()
		}
		s.stats.UpdateSize(int64(size))
		if s.metrics != nil {
			for range expired {
				s.metrics.recordExpiration()
			}
			s.metrics.updateSize(size)
		}
	}

	return len(expired)
}

// Clear removes all entries from the store.
func (s *boundedStore[V]) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.evictFn != nil {
		for element := s.order.Back(); element != nil; element = element.Prev() {
			entry := element.Value.(*Entry[V])
			s.evictFn(entry.Key, entry.Value)
		}
	}

	s.items = make(map[string]*list.Element)
	s.order.Init()

	s.stats.UpdateSize(0)
	if s.metrics != nil {
		s.metrics.updateSize(0)
	}

	return nil
}

// Size returns the current number of entries.
func (s *boundedStore[V]) Size() int {
	s.mu.RLock()
	size := len(s.items)
	s.mu.RUnlock()
	return size
}

// Keys returns all unexpired keys, most recently used first.
func (s *boundedStore[V]) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.items))
	now := time.Now()

	for element := s.order.Front(); element != nil; element = element.Next() {
		entry := element.Value.(*Entry[V])
		if !entry.IsExpired(now) {
			keys = append(keys, entry.Key)
		}
	}
	return keys
}

// Stats returns the store's statistics tracker.
func (s *boundedStore[V]) Stats() *Statistics {
	return s.stats
}

// evictLRU removes the least recently used entry.
// Must be called with mutex held.
func (s *boundedStore[V]) evictLRU() {
	element := s.order.Back()
	if element != nil {
		s.removeElement(element)
		s.stats.Eviction()
		if s.metrics != nil {
			s.metrics.recordEviction()
		}
	}
}

// removeElement removes an element from both the list and map.
// Must be called with mutex held.
func (s *boundedStore[V]) removeElement(element *list.Element) {
	entry := element.Value.(*Entry[V])
	delete(s.items, entry.Key)
	s.order.Remove(element)

	if s.evictFn != nil {
		defer s.evictFn(entry.Key, entry.Value)
	}
}
