package perf

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/c360/perfkit/errors"
	"github.com/c360/perfkit/metric"
)

// Dependencies carries the external collaborators a Service needs. Logger
// is the only required field; everything else degrades gracefully when
// absent.
type Dependencies struct {
	Logger          *slog.Logger
	MetricsRegistry *metric.MetricsRegistry

	TemplateLoader     TemplateLoader
	ParameterGenerator ParameterGenerator
	PoolOptimizer      PoolOptimizer

	// Test seams for the optimization controller
	MemoryReader MemoryReader
	GCHook       GCHook
}

// Service is the subsystem facade: it owns the cache manager, batch
// coordinator, metrics aggregator, and optimization controller, and
// exposes the public operations callers use.
type Service struct {
	config Config
	deps   Dependencies

	manager     *Manager
	coordinator *Coordinator
	aggregator  *Aggregator
	controller  *Controller
	core        *metric.Metrics

	logger *slog.Logger

	mu          sync.Mutex
	initialized bool
	running     bool
}

// NewService creates an uninitialized service. Call Initialize before use.
func NewService(cfg Config, deps Dependencies) (*Service, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Service{
		config: cfg,
		deps:   deps,
		logger: logger.With("component", "perf_service"),
	}, nil
}

// Initialize builds the internal components, registers metrics, and runs
// template warmup when configured. It does not start the optimization
// loop; Start does.
func (s *Service) Initialize(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.initialized {
		return errors.Wrap(errors.ErrAlreadyInitialized, "perf_service", "Initialize", "initialize components")
	}

	if s.deps.MetricsRegistry != nil {
		s.core = s.deps.MetricsRegistry.CoreMetrics()
	}

	s.aggregator = NewAggregator(s.core)

	managerOpts := []ManagerOption{
		WithTemplateLoader(s.deps.TemplateLoader),
		WithParameterGenerator(s.deps.ParameterGenerator),
	}
	if s.deps.MetricsRegistry != nil {
		managerOpts = append(managerOpts, WithStoreMetrics(s.deps.MetricsRegistry))
	}

	manager, err := NewManager(s.config.Caching, s.aggregator, s.logger, managerOpts...)
	if err != nil {
		return err
	}
	s.manager = manager

	s.coordinator = NewCoordinator(s.config.Batching, s.aggregator, s.core, s.logger)

	controllerOpts := []ControllerOption{}
	if s.deps.MemoryReader != nil {
		controllerOpts = append(controllerOpts, WithMemoryReader(s.deps.MemoryReader))
	}
	if s.deps.GCHook != nil {
		controllerOpts = append(controllerOpts, WithGCHook(s.deps.GCHook))
	}
	if s.deps.PoolOptimizer != nil {
		controllerOpts = append(controllerOpts, WithPoolOptimizer(s.deps.PoolOptimizer))
	}
	if s.core != nil {
		controllerOpts = append(controllerOpts, WithCoreMetrics(s.core))
	}
	s.controller = NewController(s.config.Optimization, s.manager, s.aggregator, s.logger, controllerOpts...)

	if s.config.Caching.WarmupEnabled {
		if err := s.manager.Warmup(ctx, s.config.Caching.WarmupTemplates); err != nil {
			// Warmup is best-effort
			s.logger.Warn("template warmup incomplete", "error", err)
		}
	}

	s.initialized = true
	s.logger.Info("performance subsystem initialized",
		"max_responses", s.config.Caching.MaxResponses,
		"max_batch_size", s.config.Batching.MaxBatchSize,
		"optimization_interval", s.config.Optimization.Interval,
	)
	return nil
}

// Start launches the periodic optimization loop.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return errors.Wrap(errors.ErrNotInitialized, "perf_service", "Start", "start before initialize")
	}
	if s.running {
		return errors.Wrap(errors.ErrAlreadyStarted, "perf_service", "Start", "start loop")
	}

	if err := s.controller.Start(ctx); err != nil {
		return err
	}
	s.running = true
	return nil
}

// Shutdown stops the optimization loop, flushes open batch windows, and
// clears the stores.
func (s *Service) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return nil
	}

	if s.running {
		if err := s.controller.Stop(); err != nil {
			s.logger.Warn("optimizer stop failed", "error", err)
		}
		s.running = false
	}

	s.coordinator.Close()
	if err := s.manager.Close(); err != nil {
		return errors.Wrap(err, "perf_service", "Shutdown", "close cache manager")
	}

	s.initialized = false
	s.logger.Info("performance subsystem shut down")
	return nil
}

// GetOrCompute returns the cached response for id, computing and caching
// on a miss with ttl (zero selects the store default). Concurrent misses
// for the same id share one computation.
func (s *Service) GetOrCompute(ctx context.Context, id string, generate ResponseGenerator, ttl time.Duration) (json.RawMessage, error) {
	m, err := s.componentManager("GetOrCompute")
	if err != nil {
		return nil, err
	}
	return m.GetOrCompute(ctx, id, generate, ttl)
}

// GetCachedResponse returns the cached response for id, if present and
// fresh.
func (s *Service) GetCachedResponse(id string) (json.RawMessage, bool) {
	m, err := s.componentManager("GetCachedResponse")
	if err != nil {
		return nil, false
	}
	return m.GetCachedResponse(id)
}

// GetTemplate returns cached template content, loading on a miss.
func (s *Service) GetTemplate(ctx context.Context, path string) (string, error) {
	m, err := s.componentManager("GetTemplate")
	if err != nil {
		return "", err
	}
	return m.GetTemplate(ctx, path)
}

// GetParameters returns cached extraction parameters, generating on a miss.
func (s *Service) GetParameters(ctx context.Context, requirement string, reqContext map[string]any) (json.RawMessage, error) {
	m, err := s.componentManager("GetParameters")
	if err != nil {
		return nil, err
	}
	return m.GetParameters(ctx, requirement, reqContext)
}

// BatchOperation enqueues op under batchKey and blocks until its window
// flushes and the operation completes.
func (s *Service) BatchOperation(ctx context.Context, batchKey string, op Operation, timeout time.Duration) (any, error) {
	s.mu.Lock()
	coordinator := s.coordinator
	initialized := s.initialized
	s.mu.Unlock()

	if !initialized {
		return nil, errors.Wrap(errors.ErrNotInitialized, "perf_service", "BatchOperation", "submit before initialize")
	}
	return coordinator.Submit(ctx, batchKey, op, timeout)
}

// InvalidateCache removes matching entries across all stores and returns
// the removal count.
func (s *Service) InvalidateCache(matcher Matcher) int {
	m, err := s.componentManager("InvalidateCache")
	if err != nil {
		return 0
	}
	return m.Invalidate(matcher)
}

// PerformanceMetrics returns a point-in-time snapshot of aggregated
// metrics.
func (s *Service) PerformanceMetrics() Snapshot {
	s.mu.Lock()
	agg := s.aggregator
	s.mu.Unlock()

	if agg == nil {
		return Snapshot{}
	}
	return agg.Snapshot()
}

// OptimizeResources runs a reclamation pass immediately, regardless of
// thresholds.
func (s *Service) OptimizeResources(ctx context.Context) (OptimizationResult, error) {
	s.mu.Lock()
	controller := s.controller
	initialized := s.initialized
	s.mu.Unlock()

	if !initialized {
		return OptimizationResult{}, errors.Wrap(errors.ErrNotInitialized, "perf_service", "OptimizeResources", "optimize before initialize")
	}
	return controller.OptimizeResources(ctx), nil
}

// componentManager returns the cache manager, failing when the service is
// not initialized.
func (s *Service) componentManager(method string) (*Manager, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return nil, errors.Wrap(errors.ErrNotInitialized, "perf_service", method, "use before initialize")
	}
	return s.manager, nil
}
