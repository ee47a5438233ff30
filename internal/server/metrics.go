// Package server — metrics.go registers all Prometheus metrics for the HTTP
// server and exposes helpers used by handlers and middleware.
package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metric label values shared across registrations.
const (
	// outcomeOK labels a fully completed answer turn.
	outcomeOK = "ok"
	// outcomeError labels a turn that failed at any stage.
	outcomeError = "error"
	// outcomeDropped labels a webhook task rejected by a full queue.
	outcomeDropped = "dropped"
)

// serverMetrics holds all Prometheus metrics owned by the HTTP server.
// A single instance is created in New and stored on Server so that tests can
// inject a fresh prometheus.Registry without polluting the default one.
type serverMetrics struct {
	// askTurnsTotal counts completed answer turns (synchronous /querygpt
	// and background webhook turns), partitioned by outcome.
	askTurnsTotal *prometheus.CounterVec

	// askDurationSeconds records the wall-clock duration of each answer
	// turn from expansion to persistence.
	askDurationSeconds *prometheus.HistogramVec

	// webhookTasksTotal counts webhook work submissions, partitioned by
	// outcome: "ok" and "error" for executed turns, "dropped" for tasks
	// rejected by a full queue.
	webhookTasksTotal *prometheus.CounterVec

	// httpRequestsTotal counts all HTTP requests handled by the mux,
	// partitioned by method, endpoint name, and status code.
	httpRequestsTotal *prometheus.CounterVec

	// httpDurationSeconds records the latency of all HTTP requests.
	httpDurationSeconds *prometheus.HistogramVec
}

// newServerMetrics registers all server metrics against reg and returns the
// populated serverMetrics. promauto.With(reg) is used so that each call
// registers into the provided registry rather than the global default —
// this keeps unit tests hermetic.
func newServerMetrics(reg prometheus.Registerer) *serverMetrics {
	factory := promauto.With(reg)

	return &serverMetrics{
		askTurnsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mekonggpt",
			Subsystem: "ask",
			Name:      "turns_total",
			Help:      "Total number of answer turns completed, partitioned by outcome.",
		}, []string{"outcome"}),

		askDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "mekonggpt",
			Subsystem: "ask",
			Name:      "duration_seconds",
			Help:      "Wall-clock duration of answer turns from expansion to persistence.",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300},
		}, []string{"outcome"}),

		webhookTasksTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mekonggpt",
			Subsystem: "webhook",
			Name:      "tasks_total",
			Help:      "Total number of webhook work submissions, partitioned by submitted/dropped.",
		}, []string{"outcome"}),

		httpRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mekonggpt",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled by the server, partitioned by method, endpoint, and status code.",
		}, []string{"method", "endpoint", "code"}),

		httpDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "mekonggpt",
			Subsystem: "http",
			Name:      "duration_seconds",
			Help:      "Latency of HTTP requests handled by the server.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
	}
}
