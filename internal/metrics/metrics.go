package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pipeline_requests_total",
		Help: "Pipeline executions by pipeline name",
	}, []string{"pipeline"})

	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pipeline_stage_duration_seconds",
		Help:    "Per-stage latency against the external services",
		Buckets: []float64{0.05, 0.1, 0.2, 0.3, 0.5, 0.8, 1.0, 2.0, 5.0, 10.0},
	}, []string{"stage"})

	E2EDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pipeline_e2e_duration_seconds",
		Help:    "End-to-end latency for one pipeline execution",
		Buckets: []float64{0.1, 0.2, 0.5, 1.0, 2.0, 3.0, 5.0, 10.0, 20.0},
	}, []string{"pipeline"})

	Errors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pipeline_errors_total",
		Help: "Error counts by stage and error type",
	}, []string{"stage", "error_type"})

	ChatSessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "chat_sessions_active",
		Help: "Currently open WebSocket chat sessions",
	})

	ChatSessionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chat_sessions_total",
		Help: "Total WebSocket chat sessions accepted",
	})

	TicketsDerived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tickets_derived_total",
		Help: "Tickets derived from NLU results, by priority",
	}, []string{"priority"})
)
