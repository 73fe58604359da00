package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Publish queue
	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "publish_queue_depth",
			Help: "Items waiting in the outbound publish queue",
		},
	)
	QueuePublished = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "publish_queue_published_total",
			Help: "Items published to the broker by the publish queue",
		},
	)
	QueueRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "publish_queue_retries_total",
			Help: "Batch publish attempts that were retried",
		},
	)
	QueueDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "publish_queue_dropped_total",
			Help: "Items dropped after exhausting publish retries",
		},
	)
	QueueEnqueueTimeouts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "publish_queue_enqueue_timeouts_total",
			Help: "Enqueue calls that waited longer than enqueue_timeout",
		},
	)
	QueuePublishDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "publish_queue_publish_duration_seconds",
			Help:    "Latency of a single batch publish call",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Consumers, partitioned by topic
	ConsumerReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "consumer_messages_received_total",
			Help: "Messages received from the broker",
		},
		[]string{"topic"},
	)
	ConsumerRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "consumer_messages_rejected_total",
			Help: "Messages that could not be decoded and were skipped",
		},
		[]string{"topic"},
	)
	ConsumerBatches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "consumer_batches_total",
			Help: "Batches flushed by consumers, by outcome",
		},
		[]string{"topic", "outcome"},
	)
	ConsumerApplied = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "consumer_applied_total",
			Help: "Rows actually inserted or click events actually applied",
		},
		[]string{"topic"},
	)

	// Click emitter
	EmitterDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "click_emitter_dropped_total",
			Help: "Click events dropped because the emitter buffer was full",
		},
	)
	EmitterFailed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "click_emitter_failed_total",
			Help: "Click events whose publish failed",
		},
	)
)

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
