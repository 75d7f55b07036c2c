// Package metrics provides Prometheus metrics instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestDuration tracks chat service request duration per operation.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chat_request_duration_seconds",
			Help:    "Chat service request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"operation", "outcome"},
	)

	// RequestsTotal tracks total chat service requests per operation.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_requests_total",
			Help: "Total chat service requests",
		},
		[]string{"operation", "outcome"},
	)

	// TurnsTotal tracks completed message exchanges (user + ai pair).
	TurnsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_turns_total",
			Help: "Total completed message exchanges",
		},
		[]string{"outcome"},
	)

	// ConversationsStarted tracks conversations opened by this client.
	ConversationsStarted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_conversations_started_total",
			Help: "Total conversations started",
		},
	)

	// ConversationsEnded tracks conversations closed by this client.
	ConversationsEnded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_conversations_ended_total",
			Help: "Total conversations ended",
		},
	)

	// SearchesTotal tracks semantic search queries issued.
	SearchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_searches_total",
			Help: "Total semantic search queries",
		},
		[]string{"outcome"},
	)

	// ServerRequestDuration tracks stub server HTTP request duration.
	ServerRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "stub_request_duration_seconds",
			Help:    "Stub server HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	// ServerRequestsTotal tracks total stub server HTTP requests.
	ServerRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stub_requests_total",
			Help: "Total stub server HTTP requests",
		},
		[]string{"method", "path", "status"},
	)
)

// RecordRequest records metrics for one chat service request.
func RecordRequest(operation, outcome string, duration float64) {
	RequestDuration.WithLabelValues(operation, outcome).Observe(duration)
	RequestsTotal.WithLabelValues(operation, outcome).Inc()
}

// RecordServerRequest records metrics for one stub server HTTP request.
func RecordServerRequest(method, path, status string, duration float64) {
	ServerRequestDuration.WithLabelValues(method, path, status).Observe(duration)
	ServerRequestsTotal.WithLabelValues(method, path, status).Inc()
}
