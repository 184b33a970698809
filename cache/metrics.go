package cache

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics exports cache outcomes to Prometheus. Counters here are
// monotonic and survive StatsCollector.Reset. All methods accept a nil
// receiver.
type Metrics struct {
	registry *prometheus.Registry

	Hits         prometheus.Counter
	Misses       prometheus.Counter
	Sets         prometheus.Counter
	Errors       prometheus.Counter
	GetDuration  *prometheus.HistogramVec
	SweepDeleted prometheus.Counter
}

// NewMetrics creates the cache metrics on a fresh registry under namespace.
func NewMetrics(namespace string) *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		Hits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Total number of cache hits",
		}),
		Misses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Total number of cache misses",
		}),
		Sets: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_sets_total",
			Help:      "Total number of successful cache writes",
		}),
		Errors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_errors_total",
			Help:      "Total number of failed cache operations",
		}),
		GetDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cache_get_duration_seconds",
			Help:      "Cache get round trip in seconds",
			Buckets:   []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
		}, []string{"outcome"}),
		SweepDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_sweep_keys_deleted_total",
			Help:      "Total number of keys removed by bulk invalidation",
		}),
	}

	registry.MustRegister(m.Hits, m.Misses, m.Sets, m.Errors, m.GetDuration, m.SweepDeleted)
	return m
}

// Registry returns the registry holding the cache metrics.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) observeGet(kind LatencyKind, d time.Duration) {
	if m == nil {
		return
	}
	if kind == LatencyHit {
		m.Hits.Inc()
	} else {
		m.Misses.Inc()
	}
	m.GetDuration.WithLabelValues(string(kind)).Observe(d.Seconds())
}

func (m *Metrics) incSets() {
	if m != nil {
		m.Sets.Inc()
	}
}

func (m *Metrics) incErrors() {
	if m != nil {
		m.Errors.Inc()
	}
}

func (m *Metrics) addSweepDeleted(n int64) {
	if m != nil && n > 0 {
		m.SweepDeleted.Add(float64(n))
	}
}
