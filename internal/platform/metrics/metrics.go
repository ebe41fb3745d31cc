package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the HTTP-level Prometheus metrics for the service.
type Metrics struct {
	// Requests by route pattern, method and status code
	Requests *prometheus.CounterVec

	RequestLatency *prometheus.HistogramVec

	// Logins by outcome: "success" or "failure"
	Logins *prometheus.CounterVec
}

// New creates and registers the HTTP metrics on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Requests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "clinicaudit_http_requests_total",
			Help: "Total HTTP requests by route, method and status",
		}, []string{"route", "method", "status"}),

		RequestLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "clinicaudit_http_request_duration_seconds",
			Help:    "HTTP request latency by route",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"route", "method"}),

		Logins: f.NewCounterVec(prometheus.CounterOpts{
			Name: "clinicaudit_logins_total",
			Help: "Login attempts by outcome",
		}, []string{"outcome"}),
	}
}

// ObserveRequest records one completed request.
func (m *Metrics) ObserveRequest(route, method, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.Requests.WithLabelValues(route, method, status).Inc()
	m.RequestLatency.WithLabelValues(route, method).Observe(d.Seconds())
}

// IncrementLogin records a login attempt.
func (m *Metrics) IncrementLogin(success bool) {
	if m == nil {
		return
	}
	outcome := "failure"
	if success {
		outcome = "success"
	}
	m.Logins.WithLabelValues(outcome).Inc()
}
