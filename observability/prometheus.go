package observability

import (
	"errors"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var _ MetricFactory = (*PrometheusFactory)(nil)

// PrometheusFactory creates Prometheus collectors and registers them with a
// Registerer. Dotted metric names become underscored; counters get the
// conventional _total suffix.
type PrometheusFactory struct {
	registerer prometheus.Registerer

	mu         sync.Mutex
	collectors map[string]prometheus.Collector
}

// NewPrometheusFactory creates a factory. A nil registerer uses the
// Prometheus default registerer.
func NewPrometheusFactory(registerer prometheus.Registerer) *PrometheusFactory {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	return &PrometheusFactory{
		registerer: registerer,
		collectors: make(map[string]prometheus.Collector),
	}
}

func (f *PrometheusFactory) Counter(name string) Counter {
	return register(f, metricName(name)+"_total", func(n string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{Name: n, Help: "purchasekit " + name})
	})
}

func (f *PrometheusFactory) Histogram(name string) Histogram {
	return register(f, metricName(name), func(n string) prometheus.Histogram {
		return prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    n,
			Help:    "purchasekit " + name,
			Buckets: prometheus.ExponentialBuckets(1, 4, 10),
		})
	})
}

// Collector returns the collector registered under the dotted name, or nil.
func (f *PrometheusFactory) Collector(name string) prometheus.Collector {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok := f.collectors[metricName(name)+"_total"]; ok {
		return c
	}
	return f.collectors[metricName(name)]
}

// register reuses a collector created earlier under the same name, so two
// extensions over one factory share their series.
func register[C prometheus.Collector](f *PrometheusFactory, name string, create func(string) C) C {
	f.mu.Lock()
	defer f.mu.Unlock()
	if existing, ok := f.collectors[name].(C); ok {
		return existing
	}
	c := create(name)
	if err := f.registerer.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if prev, ok := are.ExistingCollector.(C); ok {
				c = prev
			}
		}
	}
	f.collectors[name] = c
	return c
}

func metricName(name string) string {
	return strings.NewReplacer(".", "_", "-", "_").Replace(name)
}
