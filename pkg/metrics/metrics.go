package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Webhook deliveries by result: ok, invalid_signature.
	WebhookDeliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "imagebot_webhook_deliveries_total",
			Help: "Total webhook deliveries received",
		},
		[]string{"result"},
	)

	// Events inside accepted deliveries: processed, ignored.
	WebhookEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "imagebot_webhook_events_total",
			Help: "Total webhook events by disposition",
		},
		[]string{"disposition"},
	)

	PipelineOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "imagebot_pipeline_outcomes_total",
			Help: "Terminal outcome of each image generation pipeline",
		},
		[]string{"outcome"},
	)

	StageFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "imagebot_pipeline_stage_failures_total",
			Help: "Pipeline stage failures",
		},
		[]string{"stage"},
	)

	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "imagebot_pipeline_stage_duration_seconds",
			Help:    "Pipeline stage duration",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"stage"},
	)
)
