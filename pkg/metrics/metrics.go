// Package metrics holds the Prometheus collectors for the question
// answering pipeline and its HTTP surface.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	questionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "askdb_questions_total",
			Help: "Total number of questions answered, by terminal outcome.",
		},
		[]string{"outcome"},
	)

	stageDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "askdb_stage_duration_seconds",
			Help:    "Latency of each pipeline stage.",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"stage"},
	)

	llmRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "askdb_llm_requests_total",
			Help: "Total number of language model calls, by kind and status.",
		},
		[]string{"kind", "status"},
	)

	refusalsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "askdb_refusals_total",
			Help: "Total number of generated queries refused, by reason.",
		},
		[]string{"reason"},
	)

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "askdb_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	mcpToolCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "askdb_mcp_tool_calls_total",
			Help: "Total number of MCP tool calls, by tool and status.",
		},
		[]string{"tool", "status"},
	)

	httpRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "askdb_http_request_duration_seconds",
			Help:    "HTTP request latency by route.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)

func init() {
	prometheus.MustRegister(
		questionsTotal,
		stageDurationSeconds,
		llmRequestsTotal,
		refusalsTotal,
		httpRequestsTotal,
		httpRequestDurationSeconds,
		mcpToolCallsTotal,
	)
}

// ObserveQuestion counts one finished ask by outcome
// (clarification, no_data, explanation, apology, refused, failed).
func ObserveQuestion(outcome string) {
	questionsTotal.WithLabelValues(outcome).Inc()
}

// ObserveStage records how long a pipeline stage took.
func ObserveStage(stage string, elapsed time.Duration) {
	stageDurationSeconds.WithLabelValues(stage).Observe(elapsed.Seconds())
}

// ObserveLLMRequest counts one oracle call. kind is completion or chat.
func ObserveLLMRequest(kind, status string) {
	llmRequestsTotal.WithLabelValues(kind, status).Inc()
}

// ObserveRefusal counts a query refused by the safety or scoping checks.
func ObserveRefusal(reason string) {
	refusalsTotal.WithLabelValues(reason).Inc()
}

// ObserveHTTPRequest records a served HTTP request.
func ObserveHTTPRequest(method, path, status string, elapsed time.Duration) {
	httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, path, status).Observe(elapsed.Seconds())
}

// ObserveMCPToolCall counts one MCP tool call. status is ok, tool_error or error.
func ObserveMCPToolCall(tool, status string) {
	mcpToolCallsTotal.WithLabelValues(tool, status).Inc()
}
