package perf

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAggregatorHitRatio(t *testing.T) {
	agg := NewAggregator(nil)

	for i := 0; i < 80; i++ {
		agg.RecordRequest(StoreResponses)
		agg.RecordHit(StoreResponses)
	}
	for i := 0; i < 20; i++ {
		agg.RecordRequest(StoreResponses)
		agg.RecordMiss(StoreResponses)
	}

	snap := agg.Snapshot()
	assert.Equal(t, int64(100), snap.TotalRequests)
	assert.InDelta(t, 0.8, snap.HitRatio, 0.0001)
	assert.Equal(t, int64(80), snap.Stores[StoreResponses].Hits)
	assert.Equal(t, int64(20), snap.Stores[StoreResponses].Misses)
}

func TestAggregatorZeroTrafficRatio(t *testing.T) {
	agg := NewAggregator(nil)

	snap := agg.Snapshot()
	assert.Equal(t, 0.0, snap.HitRatio)
	assert.Equal(t, int64(0), snap.TotalRequests)
	assert.Equal(t, time.Duration(0), snap.AverageLatency)
}

func TestAggregatorHitRatioAcrossStores(t *testing.T) {
	agg := NewAggregator(nil)

	agg.RecordHit(StoreResponses)
	agg.RecordMiss(StoreTemplates)
	agg.RecordHit(StoreParameters)
	agg.RecordHit(StoreParameters)

	snap := agg.Snapshot()
	assert.InDelta(t, 0.75, snap.HitRatio, 0.0001)
}

func TestAggregatorLatencyWindow(t *testing.T) {
	agg := NewAggregator(nil)

	// Overfill the window; only the newest latencyWindowSize samples count
	for i := 0; i < latencyWindowSize+50; i++ {
		agg.RecordLatency("generation", time.Millisecond)
	}

	snap := agg.Snapshot()
	assert.Equal(t, latencyWindowSize, snap.LatencySamples["generation"])
	assert.Equal(t, time.Millisecond, snap.AverageLatency)
}

func TestAggregatorAverageLatencyAcrossKinds(t *testing.T) {
	agg := NewAggregator(nil)

	agg.RecordLatency("generation", 10*time.Millisecond)
	agg.RecordLatency("generation", 20*time.Millisecond)
	agg.RecordLatency("batch", 30*time.Millisecond)

	snap := agg.Snapshot()
	assert.Equal(t, 20*time.Millisecond, snap.AverageLatency)
	assert.Equal(t, 2, snap.LatencySamples["generation"])
	assert.Equal(t, 1, snap.LatencySamples["batch"])
}

func TestAggregatorBatchExecutions(t *testing.T) {
	agg := NewAggregator(nil)

	agg.RecordBatchExecution()
	agg.RecordBatchExecution()

	assert.Equal(t, int64(2), agg.Snapshot().BatchExecutions)
}

func TestAggregatorConcurrentAccess(t *testing.T) {
	agg := NewAggregator(nil)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				agg.RecordRequest(StoreResponses)
				agg.RecordHit(StoreResponses)
				agg.RecordLatency("generation", time.Millisecond)
				agg.Snapshot()
			}
		}()
	}
	wg.Wait()

	snap := agg.Snapshot()
	assert.Equal(t, int64(1000), snap.TotalRequests)
	assert.Equal(t, int64(1000), snap.Stores[StoreResponses].Hits)
}
