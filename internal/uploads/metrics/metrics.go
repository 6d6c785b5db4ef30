// Package metrics exposes Prometheus collectors for the upload queue.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the queue collectors.
type Metrics struct {
	Enqueued prometheus.Counter
	Finished *prometheus.CounterVec
	Queued   prometheus.Gauge
	Active   prometheus.Gauge
}

// New creates queue metrics registered with the given registerer.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		Enqueued: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "moviesnow_uploads_enqueued_total",
				Help: "Uploads accepted into the queue.",
			},
		),
		Finished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "moviesnow_uploads_finished_total",
				Help: "Uploads settled, by final state.",
			},
			[]string{"state"},
		),
		Queued: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "moviesnow_uploads_queued",
				Help: "Uploads waiting for a worker.",
			},
		),
		Active: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "moviesnow_uploads_active",
				Help: "Uploads currently transferring.",
			},
		),
	}
}

// IncrementEnqueued counts one accepted upload.
func (m *Metrics) IncrementEnqueued() {
	m.Enqueued.Inc()
}

// IncrementFinished counts one settled upload.
func (m *Metrics) IncrementFinished(state string) {
	m.Finished.WithLabelValues(state).Inc()
}

// SetQueued records the waiting-item gauge.
func (m *Metrics) SetQueued(n int) {
	m.Queued.Set(float64(n))
}

// SetActive records the transferring-item gauge.
func (m *Metrics) SetActive(n int) {
	m.Active.Set(float64(n))
}
