package event

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leduxro-prog/erp-dashboard-sub000/internal/domain"
	"github.com/leduxro-prog/erp-dashboard-sub000/internal/service"
	apperrors "github.com/leduxro-prog/erp-dashboard-sub000/pkg/errors"
	pkgkafka "github.com/leduxro-prog/erp-dashboard-sub000/pkg/kafka"
	"github.com/leduxro-prog/erp-dashboard-sub000/pkg/logger"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type captureWriter struct {
	topics []string
	events []*pkgkafka.Event
	err    error
}

func (w *captureWriter) Publish(_ context.Context, topic string, e *pkgkafka.Event) error {
	w.topics = append(w.topics, topic)
	w.events = append(w.events, e)
	return w.err
}

// ============================================================================
// Publisher Tests
// ============================================================================

func TestPublisher_PublishWrapsDomainEvent(t *testing.T) {
	w := &captureWriter{}
	p := NewPublisher(w, "b2b", discardLogger())
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	ctx := logger.WithCorrelationID(context.Background(), "corr-1")
	err := p.Publish(ctx, domain.Event{
		Type:        domain.EventStatusChanged,
		OrderID:     42,
		OrderNumber: "ORD-000042",
		OccurredAt:  at,
		Payload:     domain.StatusChangedData{OldStatus: domain.StatusQuotePending, NewStatus: domain.StatusQuoteSent, ChangedBy: "user-1"},
	})
	require.NoError(t, err)

	require.Len(t, w.events, 1)
	assert.Equal(t, "b2b.order.status_changed", w.topics[0])

	e := w.events[0]
	assert.Equal(t, "order.status_changed", e.EventType)
	assert.Equal(t, "42", e.AggregateID)
	assert.Equal(t, AggregateTypeOrder, e.AggregateType)
	assert.Equal(t, SourceOrderEngine, e.Source)
	assert.Equal(t, at, e.Timestamp)
	assert.Equal(t, "corr-1", e.CorrelationID)
	assert.Equal(t, "ORD-000042", e.Metadata["order_number"])
	assert.NotEmpty(t, e.EventID)

	var data domain.StatusChangedData
	require.NoError(t, e.UnmarshalData(&data))
	assert.Equal(t, domain.StatusQuoteSent, data.NewStatus)
}

func TestPublisher_DefaultPrefix(t *testing.T) {
	w := &captureWriter{}
	p := NewPublisher(w, "", discardLogger())

	require.NoError(t, p.Publish(context.Background(), domain.Event{Type: domain.EventOrderCreated, OrderID: 1}))
	assert.Equal(t, "ecommerce.order.created", w.topics[0])
}

func TestPublisher_WriterError(t *testing.T) {
	w := &captureWriter{err: errors.New("broker unreachable")}
	p := NewPublisher(w, "b2b", discardLogger())

	err := p.Publish(context.Background(), domain.Event{Type: domain.EventOrderCancelled, OrderID: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "publish order.cancelled event")
}

func TestNop(t *testing.T) {
	assert.NoError(t, Nop{}.Publish(context.Background(), domain.Event{}))
}

// ============================================================================
// Reservation Retry Handler Tests
// ============================================================================

type fakeRetrier struct {
	calls []int64
	actor string
	err   error
}

func (f *fakeRetrier) RetryStockReservation(_ context.Context, orderID int64, actor string) (*service.OrderResponse, error) {
	f.calls = append(f.calls, orderID)
	f.actor = actor
	if f.err != nil {
		return nil, f.err
	}
	return &service.OrderResponse{ID: orderID, Status: domain.StatusQuotePending}, nil
}

func failureEvent(t *testing.T, aggregateID string) *pkgkafka.Event {
	t.Helper()
	e, err := pkgkafka.NewEvent(string(domain.EventStockReservationFailed), aggregateID, AggregateTypeOrder, SourceOrderEngine, time.Time{},
		domain.StockReservationFailedData{Reason: "ledger timeout"})
	require.NoError(t, err)
	return e
}

func TestReservationRetryHandler(t *testing.T) {
	tests := []struct {
		name      string
		retryErr  error
		wantErr   bool
		wantCalls int
	}{
		{name: "retried", wantCalls: 1},
		{name: "already recovered", retryErr: domain.NewInvalidOrderInput("status", "not failed"), wantCalls: 1},
		{name: "order gone", retryErr: &domain.OrderNotFoundError{OrderID: 7}, wantCalls: 1},
		{name: "ledger still down", retryErr: &domain.StockReservationError{OrderID: 7, Err: apperrors.ErrConflict}, wantErr: true, wantCalls: 1},
		{name: "lost race", retryErr: &domain.ConcurrentModificationError{OrderID: 7, ExpectedVersion: 2}, wantErr: true, wantCalls: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			retrier := &fakeRetrier{err: tt.retryErr}
			handler := NewReservationRetryHandler(retrier, discardLogger())

			err := handler(context.Background(), failureEvent(t, "7"))
			if tt.wantErr {
				assert.Error(t, err)
				assert.False(t, pkgkafka.IsPermanent(err))
			} else {
				assert.NoError(t, err)
			}
			assert.Len(t, retrier.calls, tt.wantCalls)
			if tt.wantCalls > 0 {
				assert.Equal(t, int64(7), retrier.calls[0])
				assert.Equal(t, domain.SystemActor, retrier.actor)
			}
		})
	}
}

func TestReservationRetryHandler_IgnoresOtherEvents(t *testing.T) {
	retrier := &fakeRetrier{}
	handler := NewReservationRetryHandler(retrier, discardLogger())

	e, err := pkgkafka.NewEvent(string(domain.EventOrderCreated), "7", AggregateTypeOrder, SourceOrderEngine, time.Time{}, nil)
	require.NoError(t, err)

	require.NoError(t, handler(context.Background(), e))
	assert.Empty(t, retrier.calls)
}

func TestReservationRetryHandler_BadAggregateID(t *testing.T) {
	handler := NewReservationRetryHandler(&fakeRetrier{}, discardLogger())
	err := handler(context.Background(), failureEvent(t, "abc"))
	require.Error(t, err)
	assert.True(t, pkgkafka.IsPermanent(err), "a bad id cannot succeed on retry")
}

func TestReservationRetryHandler_RedisIdempotency(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	retrier := &fakeRetrier{}
	store := pkgkafka.NewRedisIdempotencyStore(client, "order-engine:retry:", time.Hour)
	handler := pkgkafka.IdempotentHandler(store, NewReservationRetryHandler(retrier, discardLogger()), discardLogger())

	e := failureEvent(t, "7")
	require.NoError(t, handler(context.Background(), e))
	require.NoError(t, handler(context.Background(), e))

	assert.Len(t, retrier.calls, 1, "redelivered event must not retry twice")
}
