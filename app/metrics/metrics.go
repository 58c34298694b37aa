// Package metrics provides Prometheus metrics for crosspost.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PublishTotal counts adapter publish calls by outcome.
	PublishTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "crosspost",
			Name:      "publish_total",
			Help:      "Total number of publish attempts",
		},
		[]string{"platform", "status"},
	)

	// PublishDuration measures adapter publish calls.
	PublishDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "crosspost",
			Name:      "publish_duration_seconds",
			Help:      "Duration of publish attempts in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"platform"},
	)

	// RetriesTotal counts jobs moved to scheduled-retry.
	RetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "crosspost",
			Name:      "retries_total",
			Help:      "Total number of scheduled retries",
		},
		[]string{"platform"},
	)

	// QueueItems tracks queue items by status.
	QueueItems = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "crosspost",
			Name:      "queue_items",
			Help:      "Number of queue items by status",
		},
		[]string{"status"},
	)

	// ValidationScore observes compatibility scores.
	ValidationScore = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "crosspost",
			Name:      "validation_score",
			Help:      "Distribution of compatibility scores",
			Buckets:   []float64{0, 25, 50, 60, 70, 80, 90, 95, 100},
		},
		[]string{"platform"},
	)
)

// RecordPublish records one adapter publish call.
func RecordPublish(platform, status string, duration float64) {
	PublishTotal.WithLabelValues(platform, status).Inc()
	PublishDuration.WithLabelValues(platform).Observe(duration)
}

// RecordRetry records a job rescheduled after a recoverable failure.
func RecordRetry(platform string) {
	RetriesTotal.WithLabelValues(platform).Inc()
}

// SetQueueDepth sets the gauge of every status in counts.
func SetQueueDepth(counts map[string]int) {
	for status, n := range counts {
		QueueItems.WithLabelValues(status).Set(float64(n))
	}
}

// RecordValidation records a compatibility score.
func RecordValidation(platform string, score int) {
	ValidationScore.WithLabelValues(platform).Observe(float64(score))
}
