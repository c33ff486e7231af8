// Package metrics declares the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	AssessmentsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fraud_assessments_total",
		Help: "Total number of transactions assessed, labelled by risk tier.",
	}, []string{"risk_level"})

	AssessmentDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "fraud_assessment_duration_ms",
		Help:    "End-to-end assessment latency in milliseconds, persistence included.",
		Buckets: []float64{0.5, 1, 2.5, 5, 10, 25, 50, 100, 250, 500},
	})

	AlertsRaised = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fraud_alerts_raised_total",
		Help: "Total number of alerts raised, labelled by type and severity.",
	}, []string{"type", "severity"})

	ProcessingErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fraud_processing_errors_total",
		Help: "Total number of pipeline failures, labelled by stage.",
	}, []string{"stage"})

	FeedGenerated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fraud_feed_transactions_generated_total",
		Help: "Total number of transactions produced by the live feed.",
	})

	FeedSubscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fraud_feed_subscribers",
		Help: "Current number of live feed subscribers.",
	})

	QuickActions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fraud_quick_actions_total",
		Help: "Total number of analyst actions, labelled by action.",
	}, []string{"action"})
)

// Pipeline stages reported on ProcessingErrors.
const (
	StageDecode  = "decode"
	StagePersist = "persist"
	StageCache   = "cache"
	StagePublish = "publish"
)
