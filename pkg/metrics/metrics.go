// Package metrics 定义了流水线的 Prometheus 指标。
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// StageDuration 记录每个阶段的耗时。
	// Labels: stage, status (passed, flagged, blocked)
	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "smeplug",
		Subsystem: "pipeline",
		Name:      "stage_duration_seconds",
		Help:      "Duration of each pipeline stage in seconds",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 15},
	}, []string{"stage", "status"})

	// StageBudgetExceeded 统计超过时间预算的阶段。
	StageBudgetExceeded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "smeplug",
		Subsystem: "pipeline",
		Name:      "stage_budget_exceeded_total",
		Help:      "Pipeline stages whose duration exceeded the configured budget",
	}, []string{"stage"})

	// QueriesTotal 统计查询结果。
	// Labels: decision, reason (empty, policy_block, generation_failed)
	QueriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "smeplug",
		Subsystem: "pipeline",
		Name:      "queries_total",
		Help:      "Queries processed by the pipeline, by final decision",
	}, []string{"decision", "reason"})

	// HallucinationScore 记录幻觉分数分布。
	HallucinationScore = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "smeplug",
		Name:      "hallucination_score",
		Help:      "Distribution of hallucination scores for generated answers",
		Buckets:   []float64{0, 0.05, 0.1, 0.2, 0.3, 0.5, 0.7, 0.9, 1},
	})

	// AuditWriteFailures 统计审计写入失败次数。
	AuditWriteFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "smeplug",
		Name:      "audit_write_failures_total",
		Help:      "Audit entries that could not be persisted",
	})

	// AuditEventFailures 统计审计事件发布失败次数。
	AuditEventFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "smeplug",
		Name:      "audit_event_publish_failures_total",
		Help:      "Audit events that could not be published to Kafka",
	})
)
