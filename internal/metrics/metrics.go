package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// HTTP
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "http_request_duration_seconds",
			Help: "Duration of HTTP requests in seconds",
		},
		[]string{"method", "path"},
	)

	// Sweep
	SweepRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "renewal_sweep_runs_total",
			Help: "Total number of sweep runs by result",
		},
		[]string{"result"},
	)
	SweepDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "renewal_sweep_duration_seconds",
			Help:    "Duration of sweep runs in seconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		},
	)
	RemindersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "renewal_reminders_total",
			Help: "Reminders handled per subscriber by outcome and tier",
		},
		[]string{"outcome", "tier"},
	)

	// Payments
	WebhookEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_webhook_events_total",
			Help: "Payment events handled by type and outcome",
		},
		[]string{"type", "outcome"},
	)
)

var registerOnce sync.Once

// InitMetrics registers every collector with the default registry.
func InitMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			HTTPRequestsTotal,
			HTTPRequestDuration,
			SweepRunsTotal,
			SweepDuration,
			RemindersTotal,
			WebhookEventsTotal,
		)
	})
}
