// Package metrics defines the Prometheus metrics of the in-process HR
// backend used by tests and local development.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the backend's request and authentication metrics.
type Metrics struct {
	// Requests counts answered requests by method, route pattern and status.
	Requests        *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// AuthRejections counts bearer credentials refused by reason
	// (missing, expired, invalid, revoked).
	AuthRejections *prometheus.CounterVec
	// PermissionDenials counts 403s by the permission that was missing.
	PermissionDenials *prometheus.CounterVec

	Logins       *prometheus.CounterVec
	ResetTokens  prometheus.Counter
	ActiveTokens prometheus.Gauge
}

// NewMetrics creates the metrics and registers them with registry.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	factory := promauto.With(registry)

	return &Metrics{
		Requests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hrbackend_requests_total",
				Help: "Total number of requests answered",
			},
			[]string{"method", "route", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "hrbackend_request_duration_seconds",
				Help:    "Request handling latency",
				Buckets: []float64{.001, .005, .01, .05, .1, .5, 1},
			},
			[]string{"method", "route"},
		),
		AuthRejections: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hrbackend_auth_rejections_total",
				Help: "Bearer credentials rejected, by reason",
			},
			[]string{"reason"},
		),
		PermissionDenials: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hrbackend_permission_denials_total",
				Help: "Requests refused for a missing permission",
			},
			[]string{"permission"},
		),
		Logins: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hrbackend_logins_total",
				Help: "Login attempts by result",
			},
			[]string{"result"},
		),
		ResetTokens: factory.NewCounter(prometheus.CounterOpts{
			Name: "hrbackend_reset_tokens_issued_total",
			Help: "Password reset tokens issued",
		}),
		ActiveTokens: factory.NewGauge(prometheus.GaugeOpts{
			Name: "hrbackend_active_tokens",
			Help: "Credentials issued and not yet logged out",
		}),
	}
}

// ObserveRequest records one answered request.
func (m *Metrics) ObserveRequest(method, route string, status int, elapsed time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	m.Requests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.RequestDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}
