package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Question pipeline metrics
var (
	// QuestionsTotal counts answered questions by terminal state
	QuestionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "copilot_questions_total",
			Help: "Total number of questions processed, by outcome",
		},
		[]string{"outcome"},
	)

	// ModelCallDuration tracks latency of calls to the text-generation service
	ModelCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "copilot_model_call_duration_seconds",
			Help:    "Duration of language model calls in seconds",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 40, 60},
		},
		[]string{"provider", "status"},
	)

	// SandboxDuration tracks how long generated code ran
	SandboxDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "copilot_sandbox_duration_seconds",
			Help:    "Duration of sandboxed code executions in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"status"},
	)

	// AnomaliesFlagged is the number of flagged points in the last scored series
	AnomaliesFlagged = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "copilot_anomalies_flagged",
			Help: "Number of anomalous points in the most recently scored trend series",
		},
		[]string{"series"},
	)
)

// HTTP metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "copilot_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "copilot_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "copilot_http_requests_in_flight",
			Help: "Number of HTTP requests currently being served",
		},
	)
)

// RecordModelCall records one call to the model service
func RecordModelCall(provider string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	ModelCallDuration.WithLabelValues(provider, status).Observe(duration.Seconds())
}

// RecordSandboxRun records one sandbox execution
func RecordSandboxRun(duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	SandboxDuration.WithLabelValues(status).Observe(duration.Seconds())
}
