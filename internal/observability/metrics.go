package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce          sync.Once
	httpRequestsTotal     *prometheus.CounterVec
	httpLatencySeconds    *prometheus.HistogramVec
	httpErrorsTotal       *prometheus.CounterVec
	assignmentWritesTotal *prometheus.CounterVec
	gradingConflictsTotal prometheus.Counter
	eventFailuresTotal    prometheus.Counter
)

// RegisterMetrics initialises the Prometheus collectors used by the API.
func RegisterMetrics() {
	registerOnce.Do(func() {
		httpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "classroom_http_requests_total",
			Help: "Total number of API requests served.",
		}, []string{"method", "route", "status"})

		httpLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "classroom_http_latency_seconds",
			Help:    "Latency distribution for API requests.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0},
		}, []string{"method", "route"})

		httpErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "classroom_http_errors_total",
			Help: "Total number of error responses returned by the API.",
		}, []string{"method", "route", "status"})

		assignmentWritesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "classroom_assignment_writes_total",
			Help: "Assignment writes by kind.",
		}, []string{"kind"})

		gradingConflictsTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "classroom_grading_conflicts_total",
			Help: "Grades rejected because the assignment changed after it was read.",
		})

		eventFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "classroom_event_publish_failures_total",
			Help: "Assignment change events that could not be published.",
		})

		prometheus.MustRegister(httpRequestsTotal, httpLatencySeconds, httpErrorsTotal, assignmentWritesTotal, gradingConflictsTotal, eventFailuresTotal)
	})
}

// HTTPRequests exposes the request counter.
func HTTPRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return httpRequestsTotal
}

// HTTPLatency exposes the request latency histogram.
func HTTPLatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return httpLatencySeconds
}

// HTTPErrors exposes the error response counter.
func HTTPErrors() *prometheus.CounterVec {
	RegisterMetrics()
	return httpErrorsTotal
}

// AssignmentWrites exposes the assignment write counter.
func AssignmentWrites() *prometheus.CounterVec {
	RegisterMetrics()
	return assignmentWritesTotal
}

// GradingConflicts exposes the grading conflict counter.
func GradingConflicts() prometheus.Counter {
	RegisterMetrics()
	return gradingConflictsTotal
}

// EventFailures exposes the event publish failure counter.
func EventFailures() prometheus.Counter {
	RegisterMetrics()
	return eventFailuresTotal
}
