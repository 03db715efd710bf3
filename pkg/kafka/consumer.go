package kafka

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
)

const (
	defaultMaxAttempts  = 3
	defaultRetryBackoff = 100 * time.Millisecond
)

// Handler is a function that processes a Kafka event.
type Handler func(ctx context.Context, event *Event) error

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks a handler error as one that retrying cannot fix. The
// consumer dead-letters such messages after the first attempt.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// ConsumerConfig holds Kafka consumer configuration. Zero values select
// defaults.
type ConsumerConfig struct {
	Brokers  []string
	GroupID  string
	Topic    string
	MinBytes int
	MaxBytes int

	// MaxAttempts is the number of handler calls before a message is
	// dead-lettered and committed.
	MaxAttempts int
	// RetryBackoff grows linearly with each failed attempt.
	RetryBackoff time.Duration
}

// messageReader is the part of *kafka.Reader the consumer uses.
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// DeadLetterPublisher receives messages whose handler kept failing.
type DeadLetterPublisher interface {
	Publish(ctx context.Context, msg kafka.Message, lastErr error, consumerGroup string) error
}

// Consumer reads events from one topic and hands them to a Handler.
// Messages are committed once handled, dead-lettered or found malformed.
type Consumer struct {
	reader      messageReader
	topic       string
	group       string
	logger      *slog.Logger
	handler     Handler
	dlq         DeadLetterPublisher
	maxAttempts int
	backoff     time.Duration
	closeOnce   sync.Once
}

// NewConsumer creates a consumer for one topic and group. dlq may be nil, in
// which case failed messages are only logged.
func NewConsumer(cfg ConsumerConfig, handler Handler, dlq DeadLetterPublisher, logger *slog.Logger) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		GroupID:  cfg.GroupID,
		Topic:    cfg.Topic,
		MinBytes: max(cfg.MinBytes, 1),
		MaxBytes: positiveOr(cfg.MaxBytes, 10e6),
	})
	c := newConsumer(r, cfg.Topic, cfg.GroupID, handler, dlq, logger)
	c.maxAttempts = positiveOr(cfg.MaxAttempts, defaultMaxAttempts)
	c.backoff = positiveOr(cfg.RetryBackoff, defaultRetryBackoff)
	return c
}

// positiveOr returns v when positive, else def.
func positiveOr[T int | time.Duration](v, def T) T {
	if v > 0 {
		return v
	}
	return def
}

func newConsumer(r messageReader, topic, group string, handler Handler, dlq DeadLetterPublisher, logger *slog.Logger) *Consumer {
	return &Consumer{
		reader:      r,
		topic:       topic,
		group:       group,
		logger:      logger,
		handler:     handler,
		dlq:         dlq,
		maxAttempts: defaultMaxAttempts,
		backoff:     defaultRetryBackoff,
	}
}

// Start consumes until ctx is canceled, then closes the reader.
func (c *Consumer) Start(ctx context.Context) error {
	c.logger.Info("consumer started",
		slog.String("topic", c.topic),
		slog.String("group", c.group),
		slog.Int("max_attempts", c.maxAttempts),
	)

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.Info("consumer stopping", slog.String("topic", c.topic))
				return c.Close()
			}
			c.logger.Error("failed to fetch message", slog.String("error", err.Error()))
			if !sleep(ctx, c.backoff) {
				return c.Close()
			}
			continue
		}
		ConsumerMessagesReceived.WithLabelValues(msg.Topic, c.group).Inc()

		if stop := c.process(ctx, msg); stop {
			return c.Close()
		}
	}
}

// sleep waits for d and reports false if ctx ended first.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// process handles one message and commits it. It reports true when the
// context was canceled mid-retry and the message was left uncommitted.
func (c *Consumer) process(ctx context.Context, msg kafka.Message) bool {
	event, err := UnmarshalEvent(msg.Value)
	if err != nil {
		c.logger.Error("failed to unmarshal event",
			slog.String("error", err.Error()),
			slog.String("topic", msg.Topic),
			slog.Int64("offset", msg.Offset),
		)
		c.deadLetter(ctx, msg, err)
		c.commit(ctx, msg)
		return false
	}
	if !event.Timestamp.IsZero() {
		ConsumerEventLag.WithLabelValues(msg.Topic, c.group).Observe(time.Since(event.Timestamp).Seconds())
	}

	hctx := extractTrace(ctx, msg.Headers)
	start := time.Now()
	attempts, canceled, lastErr := c.handle(ctx, hctx, msg, event)
	if canceled {
		return true
	}
	ConsumerProcessingDuration.WithLabelValues(msg.Topic, c.group).Observe(time.Since(start).Seconds())

	if lastErr != nil {
		ConsumerMessagesFailed.WithLabelValues(msg.Topic, c.group).Inc()
		c.logger.Error("handler gave up on message",
			slog.String("event_type", event.EventType),
			slog.String("aggregate_id", event.AggregateID),
			slog.String("error", lastErr.Error()),
			slog.Int("attempts", attempts),
			slog.Bool("permanent", IsPermanent(lastErr)),
		)
		c.deadLetter(ctx, msg, lastErr)
	} else {
		ConsumerMessagesProcessed.WithLabelValues(msg.Topic, c.group).Inc()
	}

	c.commit(ctx, msg)
	return false
}

// handle calls the handler until it succeeds, returns a permanent error or
// runs out of attempts. Backoff waits honour ctx.
func (c *Consumer) handle(ctx, hctx context.Context, msg kafka.Message, event *Event) (attempts int, canceled bool, err error) {
	for attempts = 1; ; attempts++ {
		err = c.handler(hctx, event)
		if err == nil || IsPermanent(err) || attempts >= c.maxAttempts {
			return attempts, false, err
		}
		c.logger.Warn("handler failed, will retry",
			slog.String("event_type", event.EventType),
			slog.String("aggregate_id", event.AggregateID),
			slog.String("error", err.Error()),
			slog.String("topic", msg.Topic),
			slog.Int("partition", msg.Partition),
			slog.Int64("offset", msg.Offset),
			slog.Int("attempt", attempts),
		)
		if !sleep(ctx, time.Duration(attempts)*c.backoff) {
			return attempts, true, err
		}
	}
}

func (c *Consumer) deadLetter(ctx context.Context, msg kafka.Message, cause error) {
	if c.dlq == nil {
		return
	}
	if err := c.dlq.Publish(ctx, msg, cause, c.group); err != nil {
		return
	}
	ConsumerDLQPublished.WithLabelValues(msg.Topic, c.group).Inc()
}

func (c *Consumer) commit(ctx context.Context, msg kafka.Message) {
	if err := c.reader.CommitMessages(ctx, msg); err != nil {
		c.logger.Error("failed to commit message",
			slog.String("topic", msg.Topic),
			slog.Int64("offset", msg.Offset),
			slog.String("error", err.Error()),
		)
	}
}

// Close closes the consumer. It is safe to call multiple times.
func (c *Consumer) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.reader.Close()
	})
	return err
}
