package observability

import "github.com/prometheus/client_golang/prometheus"

// Metrics bundles the named instruments the execution substrate's
// components report into, following the teacher's `linkflow_<area>_
// <unit>` naming convention rescoped to `lnkflow_<component>_<unit>`.
type Metrics struct {
	ExecutionsTotal      *prometheus.CounterVec
	ExecutionDuration    *prometheus.HistogramVec
	NodeExecutionsTotal  *prometheus.CounterVec
	NodeExecutionLatency *prometheus.HistogramVec
	CacheHits            *prometheus.CounterVec
	CacheMisses          *prometheus.CounterVec
	CreditsConsumed      *prometheus.CounterVec
	DispatchRejections   *prometheus.CounterVec
}

// NewMetrics registers the standard instrument set against reg.
func NewMetrics(reg *Registry) *Metrics {
	return &Metrics{
		ExecutionsTotal: reg.Counter(
			"lnkflow_scheduler_executions_total",
			"Total workflow executions by terminal status",
			"workspace_id", "status",
		),
		ExecutionDuration: reg.Histogram(
			"lnkflow_scheduler_execution_duration_ms",
			"Workflow execution duration in milliseconds",
			[]float64{50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000, 60000},
			"workspace_id",
		),
		NodeExecutionsTotal: reg.Counter(
			"lnkflow_scheduler_node_executions_total",
			"Total node executions by terminal status",
			"node_type", "status",
		),
		NodeExecutionLatency: reg.Histogram(
			"lnkflow_scheduler_node_execution_duration_ms",
			"Node execution duration in milliseconds",
			[]float64{10, 25, 50, 100, 250, 500, 1000, 5000, 30000},
			"node_type",
		),
		CacheHits: reg.Counter(
			"lnkflow_cache_hits_total",
			"Cache hits by level",
			"level",
		),
		CacheMisses: reg.Counter(
			"lnkflow_cache_misses_total",
			"Cache misses by level",
			"level",
		),
		CreditsConsumed: reg.Counter(
			"lnkflow_credit_consumed_total",
			"Credits consumed by transaction type",
			"workspace_id", "type",
		),
		DispatchRejections: reg.Counter(
			"lnkflow_dispatch_rejections_total",
			"Dispatch gate rejections by reason",
			"reason",
		),
	}
}
