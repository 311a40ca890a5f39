// Package metrics exposes the service's Prometheus collectors.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "corporate_agent_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "route", "status"},
	)
	httpRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "corporate_agent_http_request_duration_seconds",
			Help:    "HTTP request latency by route.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)
	stageDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "corporate_agent_stage_duration_seconds",
			Help:    "Pipeline stage latency.",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 40, 60, 90},
		},
		[]string{"stage", "outcome"},
	)
	queryResultsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "corporate_agent_query_results_total",
			Help: "Retrieval results by kind (irrelevant, data, error).",
		},
		[]string{"kind"},
	)
	presentationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "corporate_agent_presentations_total",
			Help: "Final presentations by response type.",
		},
		[]string{"response_type"},
	)
	presentationRepairsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "corporate_agent_presentation_repairs_total",
			Help: "Presentation outputs repaired, retried or replaced by the fallback.",
		},
		[]string{"action"},
	)
	operationCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "corporate_agent_operation_calls_total",
			Help: "Registry operation invocations.",
		},
		[]string{"operation", "outcome"},
	)
	operationDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "corporate_agent_operation_duration_seconds",
			Help:    "Registry operation latency.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"operation"},
	)
	registryLoadFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "corporate_agent_registry_load_failures_total",
			Help: "Operation registry loads that failed and degraded to an empty set.",
		},
	)
	llmCostUSDTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "corporate_agent_llm_cost_usd_total",
			Help: "Estimated model spend in USD.",
		},
		[]string{"model"},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpRequestDurationSeconds,
		stageDurationSeconds,
		queryResultsTotal,
		presentationsTotal,
		presentationRepairsTotal,
		operationCallsTotal,
		operationDurationSeconds,
		registryLoadFailuresTotal,
		llmCostUSDTotal,
	)
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func ObserveHTTPRequest(method, route string, status int, elapsed time.Duration) {
	s := strconv.Itoa(status)
	httpRequestsTotal.WithLabelValues(method, route, s).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route, s).Observe(elapsed.Seconds())
}

func ObserveStage(stage string, elapsed time.Duration, err error) {
	stageDurationSeconds.WithLabelValues(stage, outcome(err)).Observe(elapsed.Seconds())
}

func ObserveQueryResult(kind string) {
	queryResultsTotal.WithLabelValues(kind).Inc()
}

func ObservePresentation(responseType string) {
	presentationsTotal.WithLabelValues(responseType).Inc()
}

func ObservePresentationRepair(action string) {
	presentationRepairsTotal.WithLabelValues(action).Inc()
}

func ObserveOperation(name string, elapsed time.Duration, err error) {
	operationCallsTotal.WithLabelValues(name, outcome(err)).Inc()
	operationDurationSeconds.WithLabelValues(name).Observe(elapsed.Seconds())
}

func ObserveRegistryLoadFailure() {
	registryLoadFailuresTotal.Inc()
}

func ObserveLLMCost(model string, usd float64) {
	if usd > 0 {
		llmCostUSDTotal.WithLabelValues(model).Add(usd)
	}
}
