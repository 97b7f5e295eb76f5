package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	metricsNamespace  = "procurement_assistant"
	pipelineSubsystem = "pipeline"
)

var (
	answersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: pipelineSubsystem,
		Name:      "answers_total",
		Help:      "Finished question-answer cycles by terminal stage.",
	}, []string{"stage"})

	rejectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: pipelineSubsystem,
		Name:      "rejections_total",
		Help:      "Rejected answers by rejection code.",
	}, []string{"code"})

	conflictsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: pipelineSubsystem,
		Name:      "norm_conflicts_total",
		Help:      "Detected norm conflicts by conflict type.",
	}, []string{"type"})

	chunksRetrieved = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: metricsNamespace,
		Subsystem: pipelineSubsystem,
		Name:      "chunks_retrieved",
		Help:      "Chunks placed into the model context per question.",
		Buckets:   []float64{0, 1, 2, 4, 6, 8, 10, 13},
	})

	answerConfidence = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: metricsNamespace,
		Subsystem: pipelineSubsystem,
		Name:      "answer_confidence",
		Help:      "Confidence assigned to drafted answers.",
		Buckets:   []float64{0.05, 0.15, 0.25, 0.3, 0.5, 0.6, 0.85, 0.95},
	})

	completionAttempts = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: "completion",
		Name:      "attempts_total",
		Help:      "Completion calls made, including retries.",
	})

	completionRateLimited = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: "completion",
		Name:      "rate_limited_total",
		Help:      "Completion attempts that failed with rate limiting.",
	})
)
