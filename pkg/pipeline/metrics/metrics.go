package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BuildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "insightlake_build_info",
			Help: "Build information",
		},
		[]string{"version", "commit", "date"},
	)

	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "insightlake_pipeline_runs_total",
			Help: "Total number of pipeline runs by terminal status",
		},
		[]string{"status"},
	)

	StagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "insightlake_pipeline_stages_total",
			Help: "Total number of stage executions",
		},
		[]string{"stage"},
	)

	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "insightlake_pipeline_stage_duration_seconds",
			Help:    "Duration of stage executions",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 0.01s to ~41s
		},
		[]string{"stage"},
	)

	LLMCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "insightlake_llm_calls_total",
			Help: "Total number of generation-capability calls",
		},
		[]string{"stage", "status"},
	)

	QueriesExecutedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "insightlake_queries_executed_total",
			Help: "Total number of queries run against the embedded engine",
		},
		[]string{"status"},
	)
)
