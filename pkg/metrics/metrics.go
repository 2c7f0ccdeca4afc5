// Package metrics provides Prometheus metrics instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestDuration tracks HTTP request duration.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	// RequestsTotal tracks total HTTP requests.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// MessagesTotal tracks inbound survey messages consumed.
	MessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "survey_messages_total",
			Help: "Total inbound survey messages",
		},
		[]string{"poll_id"},
	)

	// QuestionsAsked tracks questions presented to participants.
	QuestionsAsked = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "survey_questions_asked_total",
			Help: "Total questions presented to participants",
		},
		[]string{"poll_id"},
	)

	// AnswersTotal tracks submitted answers by validity.
	AnswersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "survey_answers_total",
			Help: "Total submitted answers",
		},
		[]string{"poll_id", "validity"},
	)

	// BatchesCompleted tracks per-session batch pauses issued.
	BatchesCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "survey_batches_completed_total",
			Help: "Total batch-completed pauses issued",
		},
		[]string{"poll_id"},
	)

	// SurveysCompleted tracks surveys run to completion.
	SurveysCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "survey_completions_total",
			Help: "Total surveys completed",
		},
		[]string{"poll_id"},
	)

	// WorkerMessages tracks NATS worker message outcomes.
	WorkerMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "survey_worker_messages_total",
			Help: "Inbound worker messages by outcome",
		},
		[]string{"outcome"},
	)
)

// RecordRequest records metrics for an HTTP request.
func RecordRequest(method, path, status string, duration float64) {
	RequestDuration.WithLabelValues(method, path, status).Observe(duration)
	RequestsTotal.WithLabelValues(method, path, status).Inc()
}
