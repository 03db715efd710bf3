// Package event adapts order domain events to Kafka.
package event

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/leduxro-prog/erp-dashboard-sub000/internal/domain"
	"github.com/leduxro-prog/erp-dashboard-sub000/internal/service"
	pkgkafka "github.com/leduxro-prog/erp-dashboard-sub000/pkg/kafka"
	"github.com/leduxro-prog/erp-dashboard-sub000/pkg/logger"
)

// Aggregate type constant.
const AggregateTypeOrder = "order"

// Source identifier for events originating from the order engine.
const SourceOrderEngine = "order-engine"

// writer is the part of *pkgkafka.Producer the publisher uses.
type writer interface {
	Publish(ctx context.Context, topic string, event *pkgkafka.Event) error
}

// Publisher publishes order domain events to Kafka, one topic per event type.
type Publisher struct {
	kafka  writer
	prefix string
	logger *slog.Logger
}

var _ service.EventPublisher = (*Publisher)(nil)

// NewPublisher creates a Kafka-backed event publisher. Topics are named
// "<prefix>.<event type>".
func NewPublisher(kafka writer, prefix string, logger *slog.Logger) *Publisher {
	return &Publisher{kafka: kafka, prefix: prefix, logger: logger}
}

// Publish wraps the domain event in the standard envelope, keyed by order id.
func (p *Publisher) Publish(ctx context.Context, e domain.Event) error {
	eventType := string(e.Type)
	topic := pkgkafka.Topic(p.prefix, eventType)
	orderID := strconv.FormatInt(e.OrderID, 10)

	env, err := pkgkafka.NewEvent(eventType, orderID, AggregateTypeOrder, SourceOrderEngine, e.OccurredAt, e.Payload)
	if err != nil {
		return fmt.Errorf("create %s event: %w", eventType, err)
	}
	env.WithMetadata("order_number", e.OrderNumber)
	if id := logger.CorrelationIDFromContext(ctx); id != "" {
		env.WithCorrelationID(id)
	}

	if err := p.kafka.Publish(ctx, topic, env); err != nil {
		return fmt.Errorf("publish %s event: %w", eventType, err)
	}

	p.logger.DebugContext(ctx, "published order event",
		slog.String("event_type", eventType),
		slog.String("topic", topic),
		slog.Int64("order_id", e.OrderID),
	)
	return nil
}

// Nop discards events. Used when no broker is configured.
type Nop struct{}

// Publish implements service.EventPublisher.
func (Nop) Publish(context.Context, domain.Event) error { return nil }
