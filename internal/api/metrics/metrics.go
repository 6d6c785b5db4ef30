// Package metrics holds the Prometheus collectors for the API transport.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus collectors for client HTTP operations. It is
// constructed against an explicit registerer so tests and embedders control
// collector lifetime; nothing registers globally.
type Metrics struct {
	RequestDuration *prometheus.HistogramVec
	RequestErrors   *prometheus.CounterVec
	Retries         *prometheus.CounterVec
	TokenRefreshes  prometheus.Counter
	InFlight        prometheus.Gauge
}

// New registers and returns transport metrics collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		RequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "moviesnow_client_request_duration_ms",
			Help:    "Duration of API requests in milliseconds, including retries",
			Buckets: []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		}, []string{"method", "path", "status_class"}),
		RequestErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "moviesnow_client_request_errors_total",
			Help: "Total number of API requests that failed after all retries",
		}, []string{"path", "code"}),
		Retries: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "moviesnow_client_request_retries_total",
			Help: "Total number of retry attempts by trigger",
		}, []string{"reason"}),
		TokenRefreshes: factory.NewCounter(prometheus.CounterOpts{
			Name: "moviesnow_client_token_refreshes_total",
			Help: "Total number of access token refreshes",
		}),
		InFlight: factory.NewGauge(prometheus.GaugeOpts{
			Name: "moviesnow_client_requests_in_flight",
			Help: "Current number of in-flight API requests",
		}),
	}
}

// ObserveRequest records one completed request (after retries).
func (m *Metrics) ObserveRequest(method, path, statusClass string, durationMs float64) {
	m.RequestDuration.WithLabelValues(method, path, statusClass).Observe(durationMs)
}

// IncrementError records a request that exhausted its retry budget.
func (m *Metrics) IncrementError(path, code string) {
	m.RequestErrors.WithLabelValues(path, code).Inc()
}

// IncrementRetry records a scheduled retry with its trigger.
func (m *Metrics) IncrementRetry(reason string) {
	m.Retries.WithLabelValues(reason).Inc()
}

// IncrementTokenRefreshes records a completed token refresh.
func (m *Metrics) IncrementTokenRefreshes() {
	m.TokenRefreshes.Inc()
}
