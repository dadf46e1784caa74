package perf

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/c360/perfkit/errors"
)

// Fallbacks applied when a component is constructed with a zero-valued
// batching section, matching DefaultConfig.
const (
	defaultMaxBatchSize = 10
	defaultBatchTimeout = 100 * time.Millisecond
)

// Config is the subsystem configuration. It is immutable for the process
// lifetime after construction; components copy the values they need.
type Config struct {
	Caching      CachingConfig      `json:"caching" yaml:"caching"`
	Batching     BatchingConfig     `json:"batching" yaml:"batching"`
	Optimization OptimizationConfig `json:"optimization" yaml:"optimization"`
}

// CachingConfig configures the three cache stores.
type CachingConfig struct {
	// Per-store capacity (entry counts)
	MaxResponses  int `json:"max_responses" yaml:"max_responses"`
	MaxTemplates  int `json:"max_templates" yaml:"max_templates"`
	MaxParameters int `json:"max_parameters" yaml:"max_parameters"`

	// Per-store default entry lifetime
	DefaultTTL   time.Duration `json:"default_ttl" yaml:"default_ttl"`
	TemplateTTL  time.Duration `json:"template_ttl" yaml:"template_ttl"`
	ParameterTTL time.Duration `json:"parameter_ttl" yaml:"parameter_ttl"`

	// WarmupEnabled pre-populates the template store at startup
	WarmupEnabled bool `json:"warmup_enabled" yaml:"warmup_enabled"`

	// WarmupTemplates lists template paths loaded during warmup
	WarmupTemplates []string `json:"warmup_templates" yaml:"warmup_templates"`
}

// BatchingConfig configures the batch coordinator.
type BatchingConfig struct {
	// MaxBatchSize forces an early flush when a window reaches this many
	// pending operations
	MaxBatchSize int `json:"max_batch_size" yaml:"max_batch_size"`

	// DefaultTimeout is the window deadline used when a submission does
	// not specify one
	DefaultTimeout time.Duration `json:"default_timeout" yaml:"default_timeout"`
}

// OptimizationConfig configures the periodic optimization controller.
type OptimizationConfig struct {
	// Interval between optimization ticks
	Interval time.Duration `json:"interval" yaml:"interval"`

	// GCThresholdMB triggers a manual garbage collection when heap usage
	// exceeds it during a reclamation pass
	GCThresholdMB float64 `json:"gc_threshold_mb" yaml:"gc_threshold_mb"`

	// MemoryThresholdMB triggers a reclamation pass when exceeded
	MemoryThresholdMB float64 `json:"memory_threshold_mb" yaml:"memory_threshold_mb"`

	// ResponseTimeThreshold triggers a reclamation pass when the rolling
	// average latency exceeds it
	ResponseTimeThreshold time.Duration `json:"response_time_threshold" yaml:"response_time_threshold"`

	// CacheHitThreshold triggers a reclamation pass when the hit ratio
	// falls below it (0.0 to 1.0)
	CacheHitThreshold float64 `json:"cache_hit_threshold" yaml:"cache_hit_threshold"`

	// GCMinInterval rate-limits manual garbage collections
	GCMinInterval time.Duration `json:"gc_min_interval" yaml:"gc_min_interval"`
}

// DefaultConfig returns the default subsystem configuration.
func DefaultConfig() Config {
	return Config{
		Caching: CachingConfig{
			MaxResponses:  1000,
			MaxTemplates:  100,
			MaxParameters: 500,
			DefaultTTL:    time.Hour,
			TemplateTTL:   2 * time.Hour,
			ParameterTTL:  30 * time.Minute,
			WarmupEnabled: false,
		},
		Batching: BatchingConfig{
			MaxBatchSize:   defaultMaxBatchSize,
			DefaultTimeout: defaultBatchTimeout,
		},
		Optimization: OptimizationConfig{
			Interval:              30 * time.Second,
			GCThresholdMB:         512,
			MemoryThresholdMB:     1024,
			ResponseTimeThreshold: 5 * time.Second,
			CacheHitThreshold:     0.7,
			GCMinInterval:         time.Minute,
		},
	}
}

// ApplyDefaults fills zero-valued fields from DefaultConfig so partial
// configuration files remain valid.
func (c *Config) ApplyDefaults() {
	def := DefaultConfig()

	if c.Caching.MaxResponses == 0 {
		c.Caching.MaxResponses = def.Caching.MaxResponses
	}
	if c.Caching.MaxTemplates == 0 {
		c.Caching.MaxTemplates = def.Caching.MaxTemplates
	}
	if c.Caching.MaxParameters == 0 {
		c.Caching.MaxParameters = def.Caching.MaxParameters
	}
	if c.Caching.DefaultTTL == 0 {
		c.Caching.DefaultTTL = def.Caching.DefaultTTL
	}
	if c.Caching.TemplateTTL == 0 {
		c.Caching.TemplateTTL = def.Caching.TemplateTTL
	}
	if c.Caching.ParameterTTL == 0 {
		c.Caching.ParameterTTL = def.Caching.ParameterTTL
	}

	if c.Batching.MaxBatchSize == 0 {
		c.Batching.MaxBatchSize = def.Batching.MaxBatchSize
	}
	if c.Batching.DefaultTimeout == 0 {
		c.Batching.DefaultTimeout = def.Batching.DefaultTimeout
	}

	if c.Optimization.Interval == 0 {
		c.Optimization.Interval = def.Optimization.Interval
	}
	if c.Optimization.GCThresholdMB == 0 {
		c.Optimization.GCThresholdMB = def.Optimization.GCThresholdMB
	}
	if c.Optimization.MemoryThresholdMB == 0 {
		c.Optimization.MemoryThresholdMB = def.Optimization.MemoryThresholdMB
	}
	if c.Optimization.ResponseTimeThreshold == 0 {
		c.Optimization.ResponseTimeThreshold = def.Optimization.ResponseTimeThreshold
	}
	if c.Optimization.CacheHitThreshold == 0 {
		c.Optimization.CacheHitThreshold = def.Optimization.CacheHitThreshold
	}
	if c.Optimization.GCMinInterval == 0 {
		c.Optimization.GCMinInterval = def.Optimization.GCMinInterval
	}
}

// Validate checks if the configuration is valid.
func (c Config) Validate() error {
	if err := c.Caching.Validate(); err != nil {
		return err
	}
	if err := c.Batching.Validate(); err != nil {
		return err
	}
	return c.Optimization.Validate()
}

// Validate checks the caching section.
func (c CachingConfig) Validate() error {
	for name, capacity := range map[string]int{
		"max_responses":  c.MaxResponses,
		"max_templates":  c.MaxTemplates,
		"max_parameters": c.MaxParameters,
	} {
		if capacity <= 0 {
			return errors.WrapInvalid(errors.ErrInvalidConfig, "CachingConfig", "Validate",
				fmt.Sprintf("%s must be positive, got %d", name, capacity))
		}
	}
	for name, ttl := range map[string]time.Duration{
		"default_ttl":   c.DefaultTTL,
		"template_ttl":  c.TemplateTTL,
		"parameter_ttl": c.ParameterTTL,
	} {
		if ttl <= 0 {
			return errors.WrapInvalid(errors.ErrInvalidConfig, "CachingConfig", "Validate",
				fmt.Sprintf("%s must be positive, got %v", name, ttl))
		}
	}
	if c.WarmupEnabled && len(c.WarmupTemplates) == 0 {
		return errors.WrapInvalid(errors.ErrMissingConfig, "CachingConfig", "Validate",
			"warmup_enabled requires warmup_templates")
	}
	return nil
}

// Validate checks the batching section.
func (c BatchingConfig) Validate() error {
	if c.MaxBatchSize <= 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "BatchingConfig", "Validate",
			fmt.Sprintf("max_batch_size must be positive, got %d", c.MaxBatchSize))
	}
	if c.DefaultTimeout < 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "BatchingConfig", "Validate",
			fmt.Sprintf("default_timeout cannot be negative, got %v", c.DefaultTimeout))
	}
	return nil
}

// Validate checks the optimization section.
func (c OptimizationConfig) Validate() error {
	if c.Interval <= 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "OptimizationConfig", "Validate",
			fmt.Sprintf("interval must be positive, got %v", c.Interval))
	}
	if c.CacheHitThreshold < 0 || c.CacheHitThreshold > 1 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "OptimizationConfig", "Validate",
			fmt.Sprintf("cache_hit_threshold must be in [0,1], got %f", c.CacheHitThreshold))
	}
	if c.MemoryThresholdMB < 0 || c.GCThresholdMB < 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "OptimizationConfig", "Validate",
			"memory thresholds cannot be negative")
	}
	if c.ResponseTimeThreshold < 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "OptimizationConfig", "Validate",
			fmt.Sprintf("response_time_threshold cannot be negative, got %v", c.ResponseTimeThreshold))
	}
	return nil
}

// UnmarshalYAML implements custom YAML unmarshaling for CachingConfig to
// support duration strings (e.g., "1h", "5m", "30s").
func (c *CachingConfig) UnmarshalYAML(value *yaml.Node) error {
	var aux struct {
		MaxResponses    int      `yaml:"max_responses"`
		MaxTemplates    int      `yaml:"max_templates"`
		MaxParameters   int      `yaml:"max_parameters"`
		DefaultTTL      string   `yaml:"default_ttl"`
		TemplateTTL     string   `yaml:"template_ttl"`
		ParameterTTL    string   `yaml:"parameter_ttl"`
		WarmupEnabled   bool     `yaml:"warmup_enabled"`
		WarmupTemplates []string `yaml:"warmup_templates"`
	}

	if err := value.Decode(&aux); err != nil {
		return err
	}

	c.MaxResponses = aux.MaxResponses
	c.MaxTemplates = aux.MaxTemplates
	c.MaxParameters = aux.MaxParameters
	c.WarmupEnabled = aux.WarmupEnabled
	c.WarmupTemplates = aux.WarmupTemplates

	var err error
	if c.DefaultTTL, err = parseDuration(aux.DefaultTTL, "default_ttl"); err != nil {
		return err
	}
	if c.TemplateTTL, err = parseDuration(aux.TemplateTTL, "template_ttl"); err != nil {
		return err
	}
	if c.ParameterTTL, err = parseDuration(aux.ParameterTTL, "parameter_ttl"); err != nil {
		return err
	}
	return nil
}

// UnmarshalYAML implements custom YAML unmarshaling for BatchingConfig.
func (c *BatchingConfig) UnmarshalYAML(value *yaml.Node) error {
	var aux struct {
		MaxBatchSize   int    `yaml:"max_batch_size"`
		DefaultTimeout string `yaml:"default_timeout"`
	}

	if err := value.Decode(&aux); err != nil {
		return err
	}

	c.MaxBatchSize = aux.MaxBatchSize

	var err error
	if c.DefaultTimeout, err = parseDuration(aux.DefaultTimeout, "default_timeout"); err != nil {
		return err
	}
	return nil
}

// UnmarshalYAML implements custom YAML unmarshaling for OptimizationConfig.
func (c *OptimizationConfig) UnmarshalYAML(value *yaml.Node) error {
	var aux struct {
		Interval              string  `yaml:"interval"`
		GCThresholdMB         float64 `yaml:"gc_threshold_mb"`
		MemoryThresholdMB     float64 `yaml:"memory_threshold_mb"`
		ResponseTimeThreshold string  `yaml:"response_time_threshold"`
		CacheHitThreshold     float64 `yaml:"cache_hit_threshold"`
		GCMinInterval         string  `yaml:"gc_min_interval"`
	}

	if err := value.Decode(&aux); err != nil {
		return err
	}

	c.GCThresholdMB = aux.GCThresholdMB
	c.MemoryThresholdMB = aux.MemoryThresholdMB
	c.CacheHitThreshold = aux.CacheHitThreshold

	var err error
	if c.Interval, err = parseDuration(aux.Interval, "interval"); err != nil {
		return err
	}
	if c.ResponseTimeThreshold, err = parseDuration(aux.ResponseTimeThreshold, "response_time_threshold"); err != nil {
		return err
	}
	if c.GCMinInterval, err = parseDuration(aux.GCMinInterval, "gc_min_interval"); err != nil {
		return err
	}
	return nil
}

// parseDuration parses a duration string, treating empty as zero so defaults
// can be applied afterwards.
func parseDuration(s, fieldName string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration for %s: %w", fieldName, err)
	}
	return d, nil
}
