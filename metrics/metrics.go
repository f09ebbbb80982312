// Package metrics provides Prometheus metrics for the grading service.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// ExecutionBuckets covers sub-second scripts up to the maximum timeout.
var ExecutionBuckets = []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30}

var (
	// ValidationsTotal counts validator verdicts by result (safe/unsafe).
	ValidationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "codegrader_validations_total",
			Help: "Validation verdicts",
		},
		[]string{"result"},
	)

	// BlockedIssuesTotal counts validation issues by kind.
	BlockedIssuesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "codegrader_validation_issues_total",
			Help: "Validation issues",
		},
		[]string{"kind"},
	)

	// SubmissionsTotal counts facade calls by operation and outcome.
	SubmissionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "codegrader_submissions_total",
			Help: "Submissions",
		},
		[]string{"operation", "outcome"},
	)

	// ExecutionsTotal counts sandbox executions by outcome.
	ExecutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "codegrader_executions_total",
			Help: "Sandbox executions",
		},
		[]string{"outcome"},
	)

	// ExecutionDuration records sandbox execution wall time in seconds.
	ExecutionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "codegrader_execution_duration_seconds",
			Help:    "Execution duration",
			Buckets: ExecutionBuckets,
		},
		[]string{"outcome"},
	)

	// ActiveExecutions tracks submissions currently being executed or graded.
	ActiveExecutions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "codegrader_executions_active",
			Help: "Active executions",
		},
	)

	// TestCasesTotal counts graded test cases by result (passed/failed).
	TestCasesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "codegrader_test_cases_total",
			Help: "Graded test cases",
		},
		[]string{"result"},
	)

	// RequestsTotal counts REST requests by method, route and status class.
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "codegrader_http_requests_total",
			Help: "HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	// RequestDuration records REST request duration in seconds.
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "codegrader_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: ExecutionBuckets,
		},
		[]string{"method", "route"},
	)

	// ToolCallsTotal counts MCP tool invocations by tool and status.
	ToolCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "codegrader_mcp_tool_calls_total",
			Help: "MCP tool calls",
		},
		[]string{"tool", "status"},
	)
)

func init() {
	prometheus.MustRegister(
		ValidationsTotal,
		BlockedIssuesTotal,
		SubmissionsTotal,
		ExecutionsTotal,
		ExecutionDuration,
		ActiveExecutions,
		TestCasesTotal,
		RequestsTotal,
		RequestDuration,
		ToolCallsTotal,
	)
}
