package perf

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/c360/perfkit/errors"
	"github.com/c360/perfkit/metric"
	"github.com/c360/perfkit/pkg/cache"
	"github.com/c360/perfkit/pkg/retry"
	"github.com/c360/perfkit/pkg/worker"
)

// ResponseGenerator produces a response for a cache miss. Implementations
// typically wrap an LLM client or another expensive backend call.
type ResponseGenerator func(ctx context.Context) (json.RawMessage, error)

// TemplateLoader resolves a template path to its content on a template
// store miss.
type TemplateLoader interface {
	LoadTemplate(ctx context.Context, path string) (string, error)
}

// ParameterGenerator derives extraction parameters for a requirement and
// its context on a parameter store miss.
type ParameterGenerator interface {
	GenerateParameters(ctx context.Context, requirement string, context map[string]any) (json.RawMessage, error)
}

// Manager front-ends three TTL-bounded stores, one per key space, and
// coalesces concurrent misses for the same key into a single generator
// call. All methods are safe for concurrent use.
type Manager struct {
	responses  cache.Store[json.RawMessage]
	templates  cache.Store[string]
	parameters cache.Store[json.RawMessage]

	// Concurrent misses for the same key share one in-flight computation
	flight singleflight.Group

	templateLoader  TemplateLoader
	paramGenerator  ParameterGenerator
	metricsRegistry *metric.MetricsRegistry

	aggregator *Aggregator
	logger     *slog.Logger

	closeOnce sync.Once
	closed    chan struct{}
}

// ManagerOption configures optional manager collaborators.
type ManagerOption func(*Manager)

// WithTemplateLoader installs the loader used on template store misses.
func WithTemplateLoader(loader TemplateLoader) ManagerOption {
	return func(m *Manager) { m.templateLoader = loader }
}

// WithParameterGenerator installs the generator used on parameter store
// misses.
func WithParameterGenerator(gen ParameterGenerator) ManagerOption {
	return func(m *Manager) { m.paramGenerator = gen }
}

// WithStoreMetrics exports per-store counters through the registry.
func WithStoreMetrics(registry *metric.MetricsRegistry) ManagerOption {
	return func(m *Manager) { m.metricsRegistry = registry }
}

// NewManager creates the cache manager with one bounded store per key
// space. The aggregator is optional; a nil logger falls back to
// slog.Default.
func NewManager(cfg CachingConfig, agg *Aggregator, logger *slog.Logger, opts ...ManagerOption) (*Manager, error) {
	if logger == nil {
		logger = slog.Default()
	}

	m := &Manager{
		aggregator: agg,
		logger:     logger.With("component", "cache_manager"),
		closed:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}

	var responseOpts []cache.Option[json.RawMessage]
	var templateOpts []cache.Option[string]
	var parameterOpts []cache.Option[json.RawMessage]
	if m.metricsRegistry != nil {
		responseOpts = append(responseOpts, cache.WithMetrics[json.RawMessage](m.metricsRegistry, StoreResponses))
		templateOpts = append(templateOpts, cache.WithMetrics[string](m.metricsRegistry, StoreTemplates))
		parameterOpts = append(parameterOpts, cache.WithMetrics[json.RawMessage](m.metricsRegistry, StoreParameters))
	}

	var err error
	if m.responses, err = cache.New(cfg.MaxResponses, cfg.DefaultTTL, responseOpts...); err != nil {
		return nil, errors.Wrap(err, "cache_manager", "NewManager", "create response store")
	}
	if m.templates, err = cache.New(cfg.MaxTemplates, cfg.TemplateTTL, templateOpts...); err != nil {
		return nil, errors.Wrap(err, "cache_manager", "NewManager", "create template store")
	}
	if m.parameters, err = cache.New(cfg.MaxParameters, cfg.ParameterTTL, parameterOpts...); err != nil {
		return nil, errors.Wrap(err, "cache_manager", "NewManager", "create parameter store")
	}

	return m, nil
}

// GetOrCompute returns the cached response for id, or runs generate on a
// miss and caches the result under the response key space with ttl (zero
// selects the store default). Concurrent callers missing on the same id
// share a single generate call.
func (m *Manager) GetOrCompute(ctx context.Context, id string, generate ResponseGenerator, ttl time.Duration) (json.RawMessage, error) {
	select {
	case <-m.closed:
		return nil, errors.Wrap(errors.ErrCacheClosed, "cache_manager", "GetOrCompute", "lookup")
	default:
	}

	key := ResponseKey(id)
	m.record(func() { m.aggregator.RecordRequest(StoreResponses) })

	if value, ok := m.responses.Get(key); ok {
		m.record(func() { m.aggregator.RecordHit(StoreResponses) })
		return value, nil
	}
	m.record(func() { m.aggregator.RecordMiss(StoreResponses) })

	if generate == nil {
		return nil, errors.Wrap(errors.ErrKeyNotFound, "cache_manager", "GetOrCompute", "lookup without generator")
	}

	start := time.Now()
	result, err, _ := m.flight.Do(key, func() (any, error) {
		value, genErr := generate(ctx)
		if genErr != nil {
			return nil, genErr
		}
		if _, setErr := m.responses.SetWithTTL(key, value, ttl); setErr != nil {
			return nil, setErr
		}
		return value, nil
	})
	if err != nil {
		m.record(func() { m.aggregator.RecordError(StoreResponses) })
		return nil, errors.WrapTransient(err, "cache_manager", "GetOrCompute", "generate response")
	}

	m.record(func() { m.aggregator.RecordLatency("generation", time.Since(start)) })
	return result.(json.RawMessage), nil
}

// GetCachedResponse returns the cached response for id without computing
// on a miss.
func (m *Manager) GetCachedResponse(id string) (json.RawMessage, bool) {
	m.record(func() {
		m.aggregator.RecordRequest(StoreResponses)
	})
	value, ok := m.responses.Get(ResponseKey(id))
	if ok {
		m.record(func() { m.aggregator.RecordHit(StoreResponses) })
	} else {
		m.record(func() { m.aggregator.RecordMiss(StoreResponses) })
	}
	return value, ok
}

// SetCachedResponse stores a response under id with the store default TTL.
func (m *Manager) SetCachedResponse(id string, value json.RawMessage) error {
	if _, err := m.responses.Set(ResponseKey(id), value); err != nil {
		return errors.Wrap(err, "cache_manager", "SetCachedResponse", "store response")
	}
	return nil
}

// GetTemplate returns the template content for path, loading and caching
// it on a miss. Concurrent misses for the same path share one load.
func (m *Manager) GetTemplate(ctx context.Context, path string) (string, error) {
	key := TemplateKey(path)
	m.record(func() { m.aggregator.RecordRequest(StoreTemplates) })

	if content, ok := m.templates.Get(key); ok {
		m.record(func() { m.aggregator.RecordHit(StoreTemplates) })
		return content, nil
	}
	m.record(func() { m.aggregator.RecordMiss(StoreTemplates) })

	if m.templateLoader == nil {
		return "", errors.Wrap(errors.ErrTemplateNotFound, "cache_manager", "GetTemplate", "lookup without loader")
	}

	start := time.Now()
	result, err, _ := m.flight.Do(key, func() (any, error) {
		content, loadErr := m.templateLoader.LoadTemplate(ctx, path)
		if loadErr != nil {
			return nil, loadErr
		}
		if _, setErr := m.templates.Set(key, content); setErr != nil {
			return nil, setErr
		}
		return content, nil
	})
	if err != nil {
		m.record(func() { m.aggregator.RecordError(StoreTemplates) })
		return "", errors.WrapTransient(err, "cache_manager", "GetTemplate", "load template")
	}

	m.record(func() { m.aggregator.RecordLatency("template", time.Since(start)) })
	return result.(string), nil
}

// GetParameters returns extraction parameters for a requirement and its
// context, generating and caching on a miss. The cache key is derived from
// the requirement and a canonical rendering of the context, so structurally
// equal contexts hit the same entry.
func (m *Manager) GetParameters(ctx context.Context, requirement string, reqContext map[string]any) (json.RawMessage, error) {
	key := ParameterKey(requirement, reqContext)
	m.record(func() { m.aggregator.RecordRequest(StoreParameters) })

	if params, ok := m.parameters.Get(key); ok {
		m.record(func() { m.aggregator.RecordHit(StoreParameters) })
		return params, nil
	}
	m.record(func() { m.aggregator.RecordMiss(StoreParameters) })

	if m.paramGenerator == nil {
		return nil, errors.Wrap(errors.ErrKeyNotFound, "cache_manager", "GetParameters", "lookup without generator")
	}

	start := time.Now()
	result, err, _ := m.flight.Do(key, func() (any, error) {
		params, genErr := m.paramGenerator.GenerateParameters(ctx, requirement, reqContext)
		if genErr != nil {
			return nil, genErr
		}
		if _, setErr := m.parameters.Set(key, params); setErr != nil {
			return nil, setErr
		}
		return params, nil
	})
	if err != nil {
		m.record(func() { m.aggregator.RecordError(StoreParameters) })
		return nil, errors.WrapTransient(err, "cache_manager", "GetParameters", "generate parameters")
	}

	m.record(func() { m.aggregator.RecordLatency("parameters", time.Since(start)) })
	return result.(json.RawMessage), nil
}

// Invalidate removes every entry whose key matches across all three stores
// and returns the number of entries physically removed.
func (m *Manager) Invalidate(matcher Matcher) int {
	if matcher == nil {
		return 0
	}

	removed := m.responses.DeleteMatching(matcher.Match)
	removed += m.templates.DeleteMatching(matcher.Match)
	removed += m.parameters.DeleteMatching(matcher.Match)

	m.logger.Debug("cache invalidation",
		"pattern", matcher.String(),
		"removed", removed,
	)
	return removed
}

// PurgeStale eagerly removes expired entries from every store and returns
// per-store removal counts keyed by store name.
func (m *Manager) PurgeStale() map[string]int {
	return map[string]int{
		StoreResponses:  m.responses.PurgeExpired(),
		StoreTemplates:  m.templates.PurgeExpired(),
		StoreParameters: m.parameters.PurgeExpired(),
	}
}

// Warmup pre-populates the template store using a worker pool, retrying
// transient load failures. Paths that still fail are logged and skipped;
// warmup itself only fails when no loader is configured.
func (m *Manager) Warmup(ctx context.Context, paths []string) error {
	if len(paths) == 0 {
		return nil
	}
	if m.templateLoader == nil {
		return errors.Wrap(errors.ErrMissingConfig, "cache_manager", "Warmup", "warmup without template loader")
	}

	pool := worker.NewPool(4, len(paths), func(ctx context.Context, path string) error {
		content, err := retry.DoWithResult(ctx, retry.Warmup(), func() (string, error) {
			return m.templateLoader.LoadTemplate(ctx, path)
		})
		if err != nil {
			m.logger.Warn("template warmup failed", "path", path, "error", err)
			return nil
		}
		if _, err := m.templates.Set(TemplateKey(path), content); err != nil {
			m.logger.Warn("template warmup store failed", "path", path, "error", err)
		}
		return nil
	})

	if err := pool.Start(ctx); err != nil {
		return errors.Wrap(err, "cache_manager", "Warmup", "start warmup pool")
	}
	for _, path := range paths {
		if err := pool.Submit(path); err != nil {
			m.logger.Warn("template warmup submit failed", "path", path, "error", err)
		}
	}
	if err := pool.Stop(30 * time.Second); err != nil {
		return errors.WrapTransient(err, "cache_manager", "Warmup", "drain warmup pool")
	}

	m.logger.Info("template warmup complete", "templates", len(paths))
	return nil
}

// Sizes reports current entry counts per store.
func (m *Manager) Sizes() map[string]int {
	return map[string]int{
		StoreResponses:  m.responses.Size(),
		StoreTemplates:  m.templates.Size(),
		StoreParameters: m.parameters.Size(),
	}
}

// StoreStats exposes the per-store statistics for diagnostics.
func (m *Manager) StoreStats() map[string]cache.StatsSummary {
	return map[string]cache.StatsSummary{
		StoreResponses:  m.responses.Stats().Summary(),
		StoreTemplates:  m.templates.Stats().Summary(),
		StoreParameters: m.parameters.Stats().Summary(),
	}
}

// Close clears all stores and rejects subsequent computed lookups.
func (m *Manager) Close() error {
	m.closeOnce.Do(func() {
		close(m.closed)
		_ = m.responses.Clear()
		_ = m.templates.Clear()
		_ = m.parameters.Clear()
	})
	return nil
}

// record runs fn only when an aggregator is wired.
func (m *Manager) record(fn func()) {
	if m.aggregator != nil {
		fn()
	}
}
