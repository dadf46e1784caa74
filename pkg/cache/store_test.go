package cache

import (
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"
)

func newTestStore(t *testing.T, capacity int, ttl time.Duration) Store[string] {
	t.Helper()
	store, err := New[string](capacity, ttl)
	if err != nil {
		t.Fatalf("unexpected error creating store: %v", err)
	}
	return store
}

func TestStore_BasicOperations(t *testing.T) {
	store := newTestStore(t, 10, time.Minute)

	// Get on empty store
	if value, exists := store.Get("key1"); exists {
		t.Errorf("Expected miss, got value: %s", value)
	}

	// Set and Get
	isNew, err := store.Set("key1", "value1")
	if err != nil {
		t.Fatalf("Unexpected error setting key: %v", err)
	}
	if !isNew {
		t.Error("Expected new entry creation")
	}

	if value, exists := store.Get("key1"); !exists || value != "value1" {
		t.Errorf("Expected 'value1', got value: %s, exists: %t", value, exists)
	}

	// Update
	isNew, err = store.Set("key1", "value1_updated")
	if err != nil {
		t.Fatalf("Unexpected error updating key: %v", err)
	}
	if isNew {
		t.Error("Expected existing entry update")
	}

	// Delete
	deleted, err := store.Delete("key1")
	if err != nil {
		t.Fatalf("Unexpected error deleting key: %v", err)
	}
	if !deleted {
		t.Error("Expected successful deletion")
	}

	deleted, _ = store.Delete("key1")
	if deleted {
		t.Error("Expected deletion failure for non-existent key")
	}
}

func TestStore_EmptyKeyRejected(t *testing.T) {
	store := newTestStore(t, 10, time.Minute)

	if _, err := store.Set("", "value"); err == nil {
		t.Error("Expected error for empty key")
	}
	if _, err := store.Delete(""); err == nil {
		t.Error("Expected error for empty key delete")
	}
}

func TestStore_LRUEviction(t *testing.T) {
	store := newTestStore(t, 3, time.Minute)

	_, _ = store.Set("key1", "value1")
	_, _ = store.Set("key2", "value2")
	_, _ = store.Set("key3", "value3")

	// Touch key1 so key2 becomes least recently used
	if _, exists := store.Get("key1"); !exists {
		t.Fatal("Expected key1 present")
	}

	// Inserting a 4th key evicts exactly one entry: the LRU (key2)
	_, _ = store.Set("key4", "value4")

	if store.Size() != 3 {
		t.Errorf("Expected size 3 after eviction, got %d", store.Size())
	}
	if _, exists := store.Get("key2"); exists {
		t.Error("Expected key2 (least recently used) evicted")
	}
	for _, key := range []string{"key1", "key3", "key4"} {
		if _, exists := store.Get(key); !exists {
			t.Errorf("Expected %s present", key)
		}
	}

	if store.Stats().Evictions() != 1 {
		t.Errorf("Expected 1 eviction, got %d", store.Stats().Evictions())
	}
}

func TestStore_CapacityNeverExceeded(t *testing.T) {
	store := newTestStore(t, 5, time.Minute)

	for i := 0; i < 20; i++ {
		_, _ = store.Set(fmt.Sprintf("key%d", i), "value")
		if store.Size() > 5 {
			t.Fatalf("Store exceeded capacity: %d", store.Size())
		}
	}
	if store.Size() != 5 {
		t.Errorf("Expected size 5, got %d", store.Size())
	}
}

func TestStore_TTLExpiry(t *testing.T) {
	store := newTestStore(t, 10, 50*time.Millisecond)

	_, _ = store.Set("key1", "value1")

	// Read well inside the TTL is a hit
	time.Sleep(10 * time.Millisecond)
	if _, exists := store.Get("key1"); !exists {
		t.Error("Expected hit at 10ms for ttl=50ms entry")
	}

	// Read past the TTL is a miss and removes the entry
	time.Sleep(55 * time.Millisecond)
	if value, exists := store.Get("key1"); exists {
		t.Errorf("Expected miss at >50ms, got value: %s", value)
	}
	if store.Size() != 0 {
		t.Errorf("Expected expired entry removed, size: %d", store.Size())
	}
	if store.Stats().Expirations() != 1 {
		t.Errorf("Expected 1 expiration, got %d", store.Stats().Expirations())
	}
}

func TestStore_PerEntryTTLOverride(t *testing.T) {
	store := newTestStore(t, 10, time.Minute)

	_, _ = store.SetWithTTL("short", "value", 30*time.Millisecond)
	_, _ = store.Set("long", "value")

	time.Sleep(50 * time.Millisecond)

	if _, exists := store.Get("short"); exists {
		t.Error("Expected short-TTL entry expired")
	}
	if _, exists := store.Get("long"); !exists {
		t.Error("Expected default-TTL entry still present")
	}
}

func TestStore_SetWithZeroTTLUsesDefault(t *testing.T) {
	store := newTestStore(t, 10, time.Minute)

	_, _ = store.SetWithTTL("key1", "value1", 0)

	if _, exists := store.Get("key1"); !exists {
		t.Error("Expected entry stored under default TTL")
	}
}

func TestStore_PurgeExpired(t *testing.T) {
	store := newTestStore(t, 10, time.Minute)

	_, _ = store.SetWithTTL("stale1", "v", 10*time.Millisecond)
	_, _ = store.SetWithTTL("stale2", "v", 10*time.Millisecond)
	_, _ = store.Set("fresh", "v")

	time.Sleep(25 * time.Millisecond)

	removed := store.PurgeExpired()
	if removed != 2 {
		t.Errorf("Expected 2 purged, got %d", removed)
	}
	if store.Size() != 1 {
		t.Errorf("Expected 1 entry remaining, got %d", store.Size())
	}

	// Nothing left to purge
	if removed := store.PurgeExpired(); removed != 0 {
		t.Errorf("Expected 0 purged on second pass, got %d", removed)
	}
}

func TestStore_DeleteMatching(t *testing.T) {
	store := newTestStore(t, 10, time.Minute)

	_, _ = store.Set("user:abc:profile", "v")
	_, _ = store.Set("user:abc:settings", "v")
	_, _ = store.Set("user:xyz:profile", "v")

	removed := store.DeleteMatching(func(key string) bool {
		return strings.Contains(key, "abc")
	})
	if removed != 2 {
		t.Errorf("Expected 2 removed, got %d", removed)
	}
	if store.Size() != 1 {
		t.Errorf("Expected 1 remaining, got %d", store.Size())
	}

	// Non-matching pattern removes nothing
	removed = store.DeleteMatching(func(key string) bool {
		return strings.Contains(key, "nope")
	})
	if removed != 0 {
		t.Errorf("Expected 0 removed, got %d", removed)
	}
	if _, exists := store.Get("user:xyz:profile"); !exists {
		t.Error("Expected unmatched entry intact")
	}
}

func TestStore_Keys(t *testing.T) {
	store := newTestStore(t, 10, time.Minute)

	_, _ = store.Set("a", "v")
	_, _ = store.Set("b", "v")
	_, _ = store.Get("a") // a becomes most recently used

	keys := store.Keys()
	if len(keys) != 2 {
		t.Fatalf("Expected 2 keys, got %d", len(keys))
	}
	if keys[0] != "a" {
		t.Errorf("Expected most recently used key first, got %v", keys)
	}
}

func TestStore_Clear(t *testing.T) {
	store := newTestStore(t, 10, time.Minute)

	_, _ = store.Set("a", "v")
	_, _ = store.Set("b", "v")

	if err := store.Clear(); err != nil {
		t.Fatalf("Unexpected error clearing: %v", err)
	}
	if store.Size() != 0 {
		t.Errorf("Expected empty store, got %d", store.Size())
	}
}

func TestStore_EvictionCallback(t *testing.T) {
	var mu sync.Mutex
	evicted := make(map[string]string)

	store, err := New[string](2, time.Minute, WithEvictionCallback[string](func(key, value string) {
		mu.Lock()
		evicted[key] = value
		mu.Unlock()
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, _ = store.Set("a", "v1")
	_, _ = store.Set("b", "v2")
	_, _ = store.Set("c", "v3") // evicts a

	mu.Lock()
	defer mu.Unlock()
	if evicted["a"] != "v1" {
		t.Errorf("Expected eviction callback for a, got %v", evicted)
	}
}

func TestStore_Statistics(t *testing.T) {
	store := newTestStore(t, 10, time.Minute)

	_, _ = store.Set("a", "v")
	_, _ = store.Get("a") // hit
	_, _ = store.Get("b") // miss

	stats := store.Stats()
	if stats.Hits() != 1 {
		t.Errorf("Expected 1 hit, got %d", stats.Hits())
	}
	if stats.Misses() != 1 {
		t.Errorf("Expected 1 miss, got %d", stats.Misses())
	}
	if stats.HitRatio() != 0.5 {
		t.Errorf("Expected hit ratio 0.5, got %f", stats.HitRatio())
	}

	summary := stats.Summary()
	if summary.Sets != 1 || summary.CurrentSize != 1 {
		t.Errorf("Unexpected summary: %+v", summary)
	}
}

func TestStore_HitRatioNoTraffic(t *testing.T) {
	store := newTestStore(t, 10, time.Minute)
	if ratio := store.Stats().HitRatio(); ratio != 0.0 {
		t.Errorf("Expected 0.0 hit ratio with no traffic, got %f", ratio)
	}
}

func TestStore_ConcurrentAccess(t *testing.T) {
	store := newTestStore(t, 100, time.Minute)

	var wg sync.WaitGroup
	for g := 0; g < 10; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				key := fmt.Sprintf("key-%d-%d", g, i)
				_, _ = store.Set(key, "value")
				_, _ = store.Get(key)
			}
		}(g)
	}
	wg.Wait()

	if store.Size() > 100 {
		t.Errorf("Store exceeded capacity under concurrency: %d", store.Size())
	}
}
