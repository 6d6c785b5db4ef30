// Package metrics exposes Prometheus collectors for the query cache.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the cache collectors, labeled by query scope so one noisy
// resource cannot hide another's behavior.
type Metrics struct {
	Hits          *prometheus.CounterVec
	Misses        *prometheus.CounterVec
	StaleServed   *prometheus.CounterVec
	Rollbacks     *prometheus.CounterVec
	Invalidations *prometheus.CounterVec
	Entries       prometheus.Gauge
}

// New creates cache metrics registered with the given registerer.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		Hits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "moviesnow_cache_hits_total",
				Help: "Reads answered from a fresh cached value.",
			},
			[]string{"scope"},
		),
		Misses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "moviesnow_cache_misses_total",
				Help: "Reads that required a fetch (cold or expired).",
			},
			[]string{"scope"},
		),
		StaleServed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "moviesnow_cache_stale_served_total",
				Help: "Reads answered with an expired value because the API was unhealthy.",
			},
			[]string{"scope"},
		),
		Rollbacks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "moviesnow_cache_rollbacks_total",
				Help: "Optimistic updates undone after the mutation failed.",
			},
			[]string{"scope"},
		),
		Invalidations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "moviesnow_cache_invalidations_total",
				Help: "Entries marked stale after a settled mutation.",
			},
			[]string{"scope"},
		),
		Entries: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "moviesnow_cache_entries",
				Help: "Entries currently held in the cache.",
			},
		),
	}
}

// IncrementHit records a fresh-value read for the scope.
func (m *Metrics) IncrementHit(scope string) {
	m.Hits.WithLabelValues(scope).Inc()
}

// IncrementMiss records a fetch-requiring read for the scope.
func (m *Metrics) IncrementMiss(scope string) {
	m.Misses.WithLabelValues(scope).Inc()
}

// IncrementStaleServed records an expired value served as fallback.
func (m *Metrics) IncrementStaleServed(scope string) {
	m.StaleServed.WithLabelValues(scope).Inc()
}

// IncrementRollback records an undone optimistic update.
func (m *Metrics) IncrementRollback(scope string) {
	m.Rollbacks.WithLabelValues(scope).Inc()
}

// IncrementInvalidation records an entry marked stale.
func (m *Metrics) IncrementInvalidation(scope string) {
	m.Invalidations.WithLabelValues(scope).Inc()
}

// SetEntries records the current cache population.
func (m *Metrics) SetEntries(n int) {
	m.Entries.Set(float64(n))
}
