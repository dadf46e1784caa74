package perf

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/perfkit/pkg/retry"
)

type stubLoader struct {
	mu    sync.Mutex
	calls map[string]int
	fail  map[string]error
}

func newStubLoader() *stubLoader {
	return &stubLoader{calls: make(map[string]int), fail: make(map[string]error)}
}

func (l *stubLoader) LoadTemplate(_ context.Context, path string) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls[path]++
	if err, ok := l.fail[path]; ok {
		return "", err
	}
	return "content of " + path, nil
}

func (l *stubLoader) callCount(path string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls[path]
}

type stubParamGen struct {
	calls atomic.Int64
}

func (g *stubParamGen) GenerateParameters(_ context.Context, requirement string, _ map[string]any) (json.RawMessage, error) {
	g.calls.Add(1)
	return json.RawMessage(fmt.Sprintf(`{"for":%q}`, requirement)), nil
}

func newTestManager(t *testing.T, opts ...ManagerOption) *Manager {
	t.Helper()
	m, err := NewManager(CachingConfig{
		MaxResponses:  100,
		MaxTemplates:  100,
		MaxParameters: 100,
		DefaultTTL:    time.Hour,
		TemplateTTL:   time.Hour,
		ParameterTTL:  time.Hour,
	}, NewAggregator(nil), nil, opts...)
	require.NoError(t, err)
	return m
}

func TestManagerGetOrComputeMissThenHit(t *testing.T) {
	m := newTestManager(t)

	var calls atomic.Int64
	generate := func(ctx context.Context) (json.RawMessage, error) {
		calls.Add(1)
		return json.RawMessage(`{"answer":42}`), nil
	}

	first, err := m.GetOrCompute(context.Background(), "query-1", generate, 0)
	require.NoError(t, err)
	assert.JSONEq(t, `{"answer":42}`, string(first))

	second, err := m.GetOrCompute(context.Background(), "query-1", generate, 0)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, int64(1), calls.Load(), "second lookup must be served from cache")
}

func TestManagerGetOrComputeTTLOverride(t *testing.T) {
	m := newTestManager(t)

	generate := func(ctx context.Context) (json.RawMessage, error) {
		return json.RawMessage(`1`), nil
	}
	_, err := m.GetOrCompute(context.Background(), "short", generate, 20*time.Millisecond)
	require.NoError(t, err)

	_, ok := m.GetCachedResponse("short")
	assert.True(t, ok)

	time.Sleep(30 * time.Millisecond)
	_, ok = m.GetCachedResponse("short")
	assert.False(t, ok, "per-call TTL must override the store default")
}

func TestManagerGetOrComputeCoalescesConcurrentMisses(t *testing.T) {
	m := newTestManager(t)

	var calls atomic.Int64
	release := make(chan struct{})
	generate := func(ctx context.Context) (json.RawMessage, error) {
		calls.Add(1)
		<-release
		return json.RawMessage(`"shared"`), nil
	}

	var wg sync.WaitGroup
	results := make([]json.RawMessage, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _ = m.GetOrCompute(context.Background(), "hot-key", generate, 0)
		}(i)
	}

	// Let all goroutines reach the in-flight computation before releasing
	assert.Eventually(t, func() bool { return calls.Load() >= 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int64(1), calls.Load(), "concurrent misses must share one computation")
	for _, r := range results {
		assert.Equal(t, json.RawMessage(`"shared"`), r)
	}
}

func TestManagerGetOrComputeGeneratorFailure(t *testing.T) {
	m := newTestManager(t)

	boom := errors.New("backend unavailable")
	_, err := m.GetOrCompute(context.Background(), "failing", func(ctx context.Context) (json.RawMessage, error) {
		return nil, boom
	}, 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)

	// The failure must not be cached
	var calls atomic.Int64
	_, err = m.GetOrCompute(context.Background(), "failing", func(ctx context.Context) (json.RawMessage, error) {
		calls.Add(1)
		return json.RawMessage(`"recovered"`), nil
	}, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), calls.Load())
}

func TestManagerGetTemplate(t *testing.T) {
	loader := newStubLoader()
	m := newTestManager(t, WithTemplateLoader(loader))

	content, err := m.GetTemplate(context.Background(), "prompts/extract.tmpl")
	require.NoError(t, err)
	assert.Equal(t, "content of prompts/extract.tmpl", content)

	_, err = m.GetTemplate(context.Background(), "prompts/extract.tmpl")
	require.NoError(t, err)
	assert.Equal(t, 1, loader.callCount("prompts/extract.tmpl"))

	// The miss path records one loader latency sample; the hit adds none
	snap := m.aggregator.Snapshot()
	assert.Equal(t, 1, snap.LatencySamples["template"])
}

func TestManagerGetTemplateWithoutLoader(t *testing.T) {
	m := newTestManager(t)

	_, err := m.GetTemplate(context.Background(), "missing.tmpl")
	require.Error(t, err)
}

func TestManagerGetParametersStableKey(t *testing.T) {
	gen := &stubParamGen{}
	m := newTestManager(t, WithParameterGenerator(gen))

	ctxA := map[string]any{"domain": "finance", "depth": 3}
	ctxB := map[string]any{"depth": 3, "domain": "finance"}

	first, err := m.GetParameters(context.Background(), "extract entities", ctxA)
	require.NoError(t, err)
	second, err := m.GetParameters(context.Background(), "extract entities", ctxB)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int64(1), gen.calls.Load(), "structurally equal contexts must hit the same entry")

	_, err = m.GetParameters(context.Background(), "extract entities", map[string]any{"domain": "legal"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), gen.calls.Load())
}

func TestManagerInvalidate(t *testing.T) {
	loader := newStubLoader()
	m := newTestManager(t, WithTemplateLoader(loader))

	require.NoError(t, m.SetCachedResponse("user-1", json.RawMessage(`1`)))
	require.NoError(t, m.SetCachedResponse("user-2", json.RawMessage(`2`)))
	require.NoError(t, m.SetCachedResponse("order-1", json.RawMessage(`3`)))
	_, err := m.GetTemplate(context.Background(), "user-profile.tmpl")
	require.NoError(t, err)

	removed := m.Invalidate(MatchSubstring("user-"))
	assert.Equal(t, 3, removed)

	_, ok := m.GetCachedResponse("user-1")
	assert.False(t, ok)
	_, ok = m.GetCachedResponse("order-1")
	assert.True(t, ok)
}

func TestManagerInvalidateRegex(t *testing.T) {
	m := newTestManager(t)

	require.NoError(t, m.SetCachedResponse("q-001", json.RawMessage(`1`)))
	require.NoError(t, m.SetCachedResponse("q-002", json.RawMessage(`2`)))
	require.NoError(t, m.SetCachedResponse("other", json.RawMessage(`3`)))

	matcher, err := MatchRegex(`^response:q-\d+$`)
	require.NoError(t, err)
	assert.Equal(t, 2, m.Invalidate(matcher))
}

func TestManagerPurgeStale(t *testing.T) {
	m, err := NewManager(CachingConfig{
		MaxResponses:  100,
		MaxTemplates:  100,
		MaxParameters: 100,
		DefaultTTL:    30 * time.Millisecond,
		TemplateTTL:   time.Hour,
		ParameterTTL:  time.Hour,
	}, NewAggregator(nil), nil)
	require.NoError(t, err)

	require.NoError(t, m.SetCachedResponse("short-lived", json.RawMessage(`1`)))
	time.Sleep(50 * time.Millisecond)

	purged := m.PurgeStale()
	assert.Equal(t, 1, purged[StoreResponses])
	assert.Equal(t, 0, purged[StoreTemplates])
	assert.Equal(t, 0, m.Sizes()[StoreResponses])
}

func TestManagerWarmup(t *testing.T) {
	loader := newStubLoader()
	loader.fail["bad.tmpl"] = retry.NonRetryable(errors.New("template missing"))
	m := newTestManager(t, WithTemplateLoader(loader))

	err := m.Warmup(context.Background(), []string{"a.tmpl", "b.tmpl", "bad.tmpl"})
	require.NoError(t, err, "per-path failures are skipped, not fatal")

	// Warmed templates are served without touching the loader again
	_, err = m.GetTemplate(context.Background(), "a.tmpl")
	require.NoError(t, err)
	assert.Equal(t, 1, loader.callCount("a.tmpl"))
}

func TestManagerWarmupWithoutLoader(t *testing.T) {
	m := newTestManager(t)
	require.Error(t, m.Warmup(context.Background(), []string{"a.tmpl"}))
}

func TestManagerClose(t *testing.T) {
	m := newTestManager(t)
	require.NoError(t, m.SetCachedResponse("k", json.RawMessage(`1`)))
	require.NoError(t, m.Close())

	_, err := m.GetOrCompute(context.Background(), "k", nil, 0)
	require.Error(t, err)
}
