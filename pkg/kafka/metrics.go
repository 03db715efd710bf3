package kafka

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	consumerLabels = []string{"topic", "consumer_group"}
	producerLabels = []string{"topic"}

	// Order events are single small messages; most publishes finish well
	// under the default bucket floor.
	latencyBuckets = []float64{.001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5}
)

func consumerCounter(name, help string) *prometheus.CounterVec {
	return promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "kafka", Subsystem: "consumer", Name: name, Help: help,
	}, consumerLabels)
}

func producerCounter(name, help string) *prometheus.CounterVec {
	return promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "kafka", Subsystem: "producer", Name: name, Help: help,
	}, producerLabels)
}

// Consumer metrics, labeled by topic and consumer group.
var (
	ConsumerMessagesReceived  = consumerCounter("messages_received_total", "Messages fetched from the broker.")
	ConsumerMessagesProcessed = consumerCounter("messages_processed_total", "Messages handled successfully.")
	ConsumerMessagesFailed    = consumerCounter("messages_failed_total", "Messages that exhausted handler retries.")
	ConsumerDLQPublished      = consumerCounter("dlq_published_total", "Messages copied to a dead-letter topic.")

	ConsumerProcessingDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "kafka", Subsystem: "consumer", Name: "processing_duration_seconds",
		Help:    "Handler time per message, including retries.",
		Buckets: latencyBuckets,
	}, consumerLabels)

	ConsumerEventLag = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "kafka", Subsystem: "consumer", Name: "event_lag_seconds",
		Help:    "Time between an event's timestamp and its fetch.",
		Buckets: []float64{.01, .05, .1, .5, 1, 5, 15, 60, 300, 900},
	}, consumerLabels)

	// ConsumerMessagesDuplicate is labeled by event type since the
	// idempotency guard does not see the topic.
	ConsumerMessagesDuplicate = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "kafka", Subsystem: "consumer", Name: "messages_duplicate_total",
		Help: "Messages skipped because their event ID was already processed.",
	}, []string{"event_type"})
)

// Producer metrics, labeled by topic.
var (
	ProducerMessagesPublished = producerCounter("messages_published_total", "Messages written to the broker.")
	ProducerPublishErrors     = producerCounter("publish_errors_total", "Failed publish attempts.")

	ProducerPublishDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "kafka", Subsystem: "producer", Name: "publish_duration_seconds",
		Help:    "Time to write one message.",
		Buckets: latencyBuckets,
	}, producerLabels)
)
