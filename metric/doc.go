// Package metric provides Prometheus-based metrics infrastructure for perfkit.
//
// The package wraps a private Prometheus registry so the subsystem never
// collides with metrics registered by a host application. Core subsystem
// metrics (cache traffic, batch flushes, optimization passes) are created
// once at registry construction; components register their own collectors
// through the MetricsRegistrar interface with duplicate detection.
//
// A small HTTP server exposes the registry at /metrics (OpenMetrics
// enabled) alongside a /health endpoint.
//
// Typical wiring:
//
//	registry := metric.NewMetricsRegistry()
//	srv := metric.NewServer(9090, "/metrics", registry)
//	go srv.Start()
//	defer srv.Stop()
//
//	registry.CoreMetrics().RecordHit("responses")
package metric
