package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Workflow metrics
	WorkflowsStarted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "copilot_workflows_started_total",
			Help: "Total number of workflow runs started",
		},
	)

	WorkflowsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "copilot_workflows_completed_total",
			Help: "Total number of workflow runs completed",
		},
		[]string{"status"},
	)

	WorkflowDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "copilot_workflow_duration_seconds",
			Help:    "Workflow run duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	RouteDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "copilot_route_decisions_total",
			Help: "Total number of routing decisions by resolved route",
		},
		[]string{"route"},
	)

	// SQL pipeline metrics
	SQLExecutions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "copilot_sql_executions_total",
			Help: "Total number of SQL execution attempts",
		},
		[]string{"status"},
	)

	RepairAttempts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "copilot_sql_repair_attempts_total",
			Help: "Total number of SQL repair attempts",
		},
	)

	// Retrieval metrics
	RetrievalLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "copilot_retrieval_latency_seconds",
			Help:    "Document retrieval latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Predictor metrics
	PredictorRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "copilot_predictor_requests_total",
			Help: "Total number of predictor service requests",
		},
		[]string{"signature", "status"},
	)

	PredictorLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "copilot_predictor_latency_seconds",
			Help:    "Predictor service request latency in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"signature"},
	)

	// Cache metrics
	CacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "copilot_cache_hits_total",
			Help: "Total number of result cache hits",
		},
	)

	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "copilot_cache_misses_total",
			Help: "Total number of result cache misses",
		},
	)
)
