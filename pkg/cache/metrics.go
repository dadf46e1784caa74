package cache

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/perfkit/errors"
	"github.com/c360/perfkit/metric"
)

// storeMetrics holds Prometheus metrics for one store instance.
type storeMetrics struct {
	hits        prometheus.Counter
	misses      prometheus.Counter
	sets        prometheus.Counter
	deletes     prometheus.Counter
	evictions   prometheus.Counter
	expirations prometheus.Counter

	size prometheus.Gauge
}

// newStoreMetrics creates and registers store metrics with the provided registry.
func newStoreMetrics(registry *metric.MetricsRegistry, prefix string) (*storeMetrics, error) {
	m := &storeMetrics{
		hits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "perfkit",
			Subsystem:   "store",
			Name:        "hits_total",
			ConstLabels: prometheus.Labels{"store": prefix},
			Help:        "Total number of store hits",
		}),
		misses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "perfkit",
			Subsystem:   "store",
			Name:        "misses_total",
			ConstLabels: prometheus.Labels{"store": prefix},
			Help:        "Total number of store misses",
		}),
		sets: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "perfkit",
			Subsystem:   "store",
			Name:        "sets_total",
			ConstLabels: prometheus.Labels{"store": prefix},
			Help:        "Total number of store set operations",
		}),
		deletes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "perfkit",
			Subsystem:   "store",
			Name:        "deletes_total",
			ConstLabels: prometheus.Labels{"store": prefix},
			Help:        "Total number of store delete operations",
		}),
		evictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "perfkit",
			Subsystem:   "store",
			Name:        "evictions_total",
			ConstLabels: prometheus.Labels{"store": prefix},
			Help:        "Total number of capacity evictions",
		}),
		expirations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "perfkit",
			Subsystem:   "store",
			Name:        "expirations_total",
			ConstLabels: prometheus.Labels{"store": prefix},
			Help:        "Total number of TTL expiry removals",
		}),
		size: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "perfkit",
			Subsystem:   "store",
			Name:        "size",
			ConstLabels: prometheus.Labels{"store": prefix},
			Help:        "Current number of entries in the store",
		}),
	}

	regs := []struct {
		name string
		err  error
	}{
		{"hits_total", registry.RegisterCounter(prefix, "hits_total", m.hits)},
		{"misses_total", registry.RegisterCounter(prefix, "misses_total", m.misses)},
		{"sets_total", registry.RegisterCounter(prefix, "sets_total", m.sets)},
		{"deletes_total", registry.RegisterCounter(prefix, "deletes_total", m.deletes)},
		{"evictions_total", registry.RegisterCounter(prefix, "evictions_total", m.evictions)},
		{"expirations_total", registry.RegisterCounter(prefix, "expirations_total", m.expirations)},
		{"size", registry.RegisterGauge(prefix, "size", m.size)},
	}
	for _, reg := range regs {
		if reg.err != nil {
			return nil, errors.Wrap(reg.err, "cache", "newStoreMetrics", "register "+reg.name)
		}
	}

	return m, nil
}

func (m *storeMetrics) recordHit()        { m.hits.Inc() }
func (m *storeMetrics) recordMiss()       { m.misses.Inc() }
func (m *storeMetrics) recordSet()        { m.sets.Inc() }
func (m *storeMetrics) recordDelete()     { m.deletes.Inc() }
func (m *storeMetrics) recordEviction()   { m.evictions.Inc() }
func (m *storeMetrics) recordExpiration() { m.expirations.Inc() }

func (m *storeMetrics) updateSize(size int) { m.size.Set(float64(size)) }
