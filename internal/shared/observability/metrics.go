package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics definitions
var (
	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pyanalyzer_stage_seconds",
		Help:    "Time spent in one pipeline stage for a document.",
		Buckets: prometheus.DefBuckets,
	}, []string{"stage"})

	RuleIterations = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "pyanalyzer_rule_applications",
		Help:    "Rule applications needed to reach a fixpoint for one module.",
		Buckets: prometheus.ExponentialBuckets(1, 4, 8),
	})

	RuleLimitHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pyanalyzer_rule_iteration_limit_total",
		Help: "Total number of rule evaluations stopped by the iteration cap.",
	})

	QueueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "pyanalyzer_queue_depth",
		Help: "Work items waiting in analysis queues, by priority.",
	}, []string{"priority"})

	ChangeQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pyanalyzer_change_queue_depth",
		Help: "Changed paths reported by the watcher and not yet applied.",
	})

	QueueEnqueuedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pyanalyzer_queue_enqueued_total",
		Help: "Total number of work items accepted into analysis queues.",
	}, []string{"priority"})

	TasksProcessedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pyanalyzer_tasks_processed_total",
		Help: "Total number of analysis tasks run, by task and outcome.",
	}, []string{"task", "outcome"})

	WatcherEventsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pyanalyzer_watcher_events_total",
		Help: "Total number of file system events received by the watcher.",
	})

	LiveServices = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pyanalyzer_live_services",
		Help: "Language services currently referenced.",
	})

	LiveContexts = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pyanalyzer_live_contexts",
		Help: "File contexts currently registered with a language service.",
	})

	CrossCheckMismatchTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pyanalyzer_crosscheck_mismatch_total",
		Help: "Documents where tree-sitter and the parser disagree about syntax errors.",
	})

	ReanalysisThrottledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pyanalyzer_reanalysis_throttled_total",
		Help: "Change batches delayed by the re-analysis rate limiter.",
	})
)
