package kafka

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
)

// DLQSuffix is appended to a topic name to form its dead-letter topic.
const DLQSuffix = ".dlq"

// Headers added to dead-lettered messages.
const (
	HeaderDLQTopic     = "dlq.original_topic"
	HeaderDLQPartition = "dlq.original_partition"
	HeaderDLQOffset    = "dlq.original_offset"
	HeaderDLQGroup     = "dlq.consumer_group"
	HeaderDLQError     = "dlq.error"
	HeaderDLQFailedAt  = "dlq.failed_at"
)

const maxDLQErrorLen = 1024

// DLQProducer parks messages a consumer gave up on.
type DLQProducer struct {
	writer messageWriter
	logger *slog.Logger
	now    func() time.Time
}

// NewDLQProducer creates a DLQ producer that writes one message per call.
func NewDLQProducer(brokers []string, logger *slog.Logger) *DLQProducer {
	w := newWriter(brokers, &kafka.LeastBytes{}, ProducerConfig{BatchSize: 1, BatchTimeout: 100 * time.Millisecond})
	return &DLQProducer{writer: w, logger: logger, now: time.Now}
}

// DLQTopic returns the dead-letter topic for originalTopic.
func DLQTopic(originalTopic string) string {
	return originalTopic + DLQSuffix
}

// Publish copies msg to its dead-letter topic. Key, value and headers are
// preserved and the source coordinates, group and cause are appended.
func (d *DLQProducer) Publish(ctx context.Context, msg kafka.Message, cause error, group string) error {
	topic := DLQTopic(msg.Topic)
	parked := kafka.Message{
		Topic:   topic,
		Key:     msg.Key,
		Value:   msg.Value,
		Headers: d.headers(msg, cause, group),
	}

	log := d.logger.With(
		slog.String("dlq_topic", topic),
		slog.Int("partition", msg.Partition),
		slog.Int64("offset", msg.Offset),
		slog.String("consumer_group", group),
	)
	if err := d.writer.WriteMessages(ctx, parked); err != nil {
		log.ErrorContext(ctx, "dead-letter publish failed", slog.String("error", err.Error()))
		return fmt.Errorf("publish to DLQ %s: %w", topic, err)
	}
	log.WarnContext(ctx, "message dead-lettered")
	return nil
}

func (d *DLQProducer) headers(msg kafka.Message, cause error, group string) []kafka.Header {
	h := make([]kafka.Header, 0, len(msg.Headers)+6)
	h = append(h, msg.Headers...)
	h = append(h,
		kafka.Header{Key: HeaderDLQTopic, Value: []byte(msg.Topic)},
		kafka.Header{Key: HeaderDLQPartition, Value: []byte(strconv.Itoa(msg.Partition))},
		kafka.Header{Key: HeaderDLQOffset, Value: []byte(strconv.FormatInt(msg.Offset, 10))},
		kafka.Header{Key: HeaderDLQGroup, Value: []byte(group)},
	)
	if d.now != nil {
		h = append(h, kafka.Header{Key: HeaderDLQFailedAt, Value: []byte(d.now().UTC().Format(time.RFC3339))})
	}
	if cause != nil {
		reason := cause.Error()
		if len(reason) > maxDLQErrorLen {
			reason = reason[:maxDLQErrorLen]
		}
		h = append(h, kafka.Header{Key: HeaderDLQError, Value: []byte(reason)})
	}
	return h
}

// Close closes the DLQ producer.
func (d *DLQProducer) Close() error {
	return d.writer.Close()
}
