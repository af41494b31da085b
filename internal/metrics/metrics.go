// Package metrics provides Prometheus metrics for backend and auth provider calls.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics contains the client-side request metrics.
type Metrics struct {
	registry *prometheus.Registry

	RequestsTotal          *prometheus.CounterVec   // Backend requests by endpoint and status class
	RequestDurationSeconds *prometheus.HistogramVec // Backend latency by endpoint
	ProviderCallsTotal     *prometheus.CounterVec   // Auth provider calls by operation and outcome
	StatusPollsTotal       *prometheus.CounterVec   // Processing status polls by observed status
}

// New creates a Metrics instance registered on its own registry so that
// several clients (and tests) can coexist in one process.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wi_backend_requests_total",
			Help: "Total number of backend API requests by endpoint and status class",
		}, []string{"endpoint", "status"}),

		RequestDurationSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "wi_backend_request_duration_seconds",
			Help:    "Duration of backend API requests by endpoint",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 15, 60, 180},
		}, []string{"endpoint"}),

		ProviderCallsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wi_auth_provider_calls_total",
			Help: "Total number of auth provider calls by operation and outcome",
		}, []string{"operation", "outcome"}),

		StatusPollsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wi_session_status_polls_total",
			Help: "Total number of session processing status polls by observed status",
		}, []string{"status"}),
	}
	reg.MustRegister(m.RequestsTotal, m.RequestDurationSeconds, m.ProviderCallsTotal, m.StatusPollsTotal)
	return m
}

// RecordRequest records one backend request.
func (m *Metrics) RecordRequest(endpoint string, statusCode int, durationSeconds float64) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(endpoint, StatusClass(statusCode)).Inc()
	m.RequestDurationSeconds.WithLabelValues(endpoint).Observe(durationSeconds)
}

// RecordProviderCall records one auth provider call.
func (m *Metrics) RecordProviderCall(operation string, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.ProviderCallsTotal.WithLabelValues(operation, outcome).Inc()
}

// RecordStatusPoll records one status poll result.
func (m *Metrics) RecordStatusPoll(status string) {
	if m == nil {
		return
	}
	m.StatusPollsTotal.WithLabelValues(status).Inc()
}

// Handler exposes the registry for scraping.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry, mostly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// StatusClass buckets an HTTP status code ("2xx", "4xx", ...). Zero means
// the request never got a response.
func StatusClass(code int) string {
	switch {
	case code == 0:
		return "error"
	case code < 200:
		return "1xx"
	case code < 300:
		return "2xx"
	case code < 400:
		return "3xx"
	case code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}
