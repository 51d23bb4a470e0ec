package metrics

import "github.com/prometheus/client_golang/prometheus"

// Removal reasons used as label values.
const (
	ReasonExplicit = "explicit"
	ReasonExpired  = "expired"
)

// Ingest outcomes used as label values.
const (
	IngestStored = "stored"
	IngestEmpty  = "empty"
	IngestFailed = "failed"
)

// Collectors groups the Prometheus collectors exported by one expiring cache.
type Collectors struct {
	Hits     prometheus.Counter
	Misses   prometheus.Counter
	Sets     prometheus.Counter
	Sweeps   prometheus.Counter
	Removals *prometheus.CounterVec
	Ingests  *prometheus.CounterVec
	Entries  prometheus.Gauge
	Latency  *prometheus.HistogramVec
}

// NewCollectors creates the collectors for the cache called name and registers
// them on reg. Registering two caches with the same name on one registry panics.
func NewCollectors(reg prometheus.Registerer, name string) *Collectors {
	labels := prometheus.Labels{"cache": name}
	c := &Collectors{
		Hits: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "expirable_cache_hits_total",
			Help:        "Total number of cache hits",
			ConstLabels: labels,
		}),
		Misses: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "expirable_cache_misses_total",
			Help:        "Total number of cache misses",
			ConstLabels: labels,
		}),
		Sets: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "expirable_cache_sets_total",
			Help:        "Total number of Set operations",
			ConstLabels: labels,
		}),
		Sweeps: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "expirable_cache_sweeps_total",
			Help:        "Total number of background sweeps",
			ConstLabels: labels,
		}),
		Removals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "expirable_cache_removals_total",
			Help:        "Total number of removed entries by reason",
			ConstLabels: labels,
		}, []string{"reason"}),
		Ingests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "expirable_cache_ingests_total",
			Help:        "Total number of resolved stream ingests by result",
			ConstLabels: labels,
		}, []string{"result"}),
		Entries: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "expirable_cache_entries",
			Help:        "Current number of entries, pending ingests included",
			ConstLabels: labels,
		}),
		Latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "expirable_cache_latency_seconds",
			Help:        "Latency of cache operations",
			Buckets:     prometheus.DefBuckets,
			ConstLabels: labels,
		}, []string{"op"}),
	}
	reg.MustRegister(c.Hits, c.Misses, c.Sets, c.Sweeps, c.Removals, c.Ingests, c.Entries, c.Latency)
	return c
}

// Removed records one removal.
func (c *Collectors) Removed(expired bool) {
	if expired {
		c.Removals.WithLabelValues(ReasonExpired).Inc()
		return
	}
	c.Removals.WithLabelValues(ReasonExplicit).Inc()
}

// NewRegistry creates a new Prometheus registry.
func NewRegistry() *prometheus.Registry {
	return prometheus.NewRegistry()
}
