// Package main implements the entry point for the PerfKit daemon.
// PerfKit is a performance optimization subsystem: TTL-bounded caching for
// generated responses, templates, and extraction parameters, batch
// coalescing of related operations, and a periodic resource optimization
// loop, with Prometheus metrics exposition.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"gopkg.in/yaml.v3"

	"github.com/c360/perfkit/metric"
	"github.com/c360/perfkit/perf"
	"github.com/c360/perfkit/pkg/llmgen"
)

// Build information constants
const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "perfkit"
)

func main() {
	// Add panic recovery
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := run(); err != nil {
		slog.Error("Application failed", "error", err, "exit_code", 1)
		os.Exit(1)
	}
}

func run() error {
	cliCfg, logger, shouldExit, err := initializeCLI()
	if shouldExit || err != nil {
		return err
	}

	cfg, err := loadConfiguration(cliCfg.ConfigPath)
	if err != nil {
		return err
	}

	if cliCfg.Validate {
		slog.Info("Configuration is valid")
		return nil
	}

	ctx := context.Background()

	metricsRegistry := metric.NewMetricsRegistry()
	metricsServer := metric.NewServer(cliCfg.MetricsPort, "/metrics", metricsRegistry)
	if cliCfg.MetricsPort > 0 {
		if err := metricsServer.Start(); err != nil {
			return fmt.Errorf("start metrics server: %w", err)
		}
		defer func() {
			if err := metricsServer.Stop(); err != nil {
				slog.Warn("Metrics server stop failed", "error", err)
			}
		}()
	}

	deps := perf.Dependencies{
		Logger:          logger,
		MetricsRegistry: metricsRegistry,
	}

	if cliCfg.LLMBaseURL != "" {
		generator, err := llmgen.New(llmgen.Config{
			BaseURL: cliCfg.LLMBaseURL,
			Model:   cliCfg.LLMModel,
			APIKey:  os.Getenv("PERFKIT_LLM_API_KEY"),
			Logger:  logger,
		})
		if err != nil {
			return fmt.Errorf("create LLM generator: %w", err)
		}
		deps.ParameterGenerator = generator
	}

	svc, err := perf.NewService(cfg, deps)
	if err != nil {
		return err
	}
	if err := svc.Initialize(ctx); err != nil {
		return err
	}
	if err := svc.Start(ctx); err != nil {
		return err
	}

	slog.Info("PerfKit running",
		"metrics_port", cliCfg.MetricsPort,
		"optimization_interval", cfg.Optimization.Interval)

	return runWithSignalHandling(ctx, svc)
}

// loadConfiguration reads the YAML configuration file and applies defaults.
// A missing path falls back to the built-in defaults.
func loadConfiguration(path string) (perf.Config, error) {
	cfg := perf.DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config file: %w", err)
	}

	cfg = perf.Config{}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config file: %w", err)
	}
	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// runWithSignalHandling blocks until SIGINT/SIGTERM, then shuts down.
func runWithSignalHandling(ctx context.Context, svc *perf.Service) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	slog.Info("Shutdown signal received", "signal", sig.String())

	if err := svc.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	slog.Info("Shutdown complete")
	return nil
}
