package event

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/leduxro-prog/erp-dashboard-sub000/internal/domain"
	"github.com/leduxro-prog/erp-dashboard-sub000/internal/service"
	apperrors "github.com/leduxro-prog/erp-dashboard-sub000/pkg/errors"
	pkgkafka "github.com/leduxro-prog/erp-dashboard-sub000/pkg/kafka"
)

// ReservationRetrier re-runs stock reservation for an order that failed it.
type ReservationRetrier interface {
	RetryStockReservation(ctx context.Context, orderID int64, actor string) (*service.OrderResponse, error)
}

// NewReservationRetryHandler returns a consumer handler for
// order.stock_reservation_failed events. Orders that were already recovered,
// cancelled or deleted are acknowledged without a retry. Malformed events are
// dead-lettered at once; any other failure is returned so the consumer
// retries and eventually dead-letters the message.
func NewReservationRetryHandler(retrier ReservationRetrier, logger *slog.Logger) pkgkafka.Handler {
	return func(ctx context.Context, e *pkgkafka.Event) error {
		if e.EventType != string(domain.EventStockReservationFailed) {
			return nil
		}

		orderID, err := strconv.ParseInt(e.AggregateID, 10, 64)
		if err != nil || orderID <= 0 {
			return pkgkafka.Permanent(fmt.Errorf("invalid aggregate id %q", e.AggregateID))
		}

		var data domain.StockReservationFailedData
		if err := e.UnmarshalData(&data); err != nil {
			return pkgkafka.Permanent(err)
		}

		_, err = retrier.RetryStockReservation(ctx, orderID, domain.SystemActor)
		var conflict *domain.ConcurrentModificationError
		switch {
		case err == nil:
			logger.InfoContext(ctx, "stock reservation retried",
				slog.Int64("order_id", orderID),
				slog.String("original_reason", data.Reason),
			)
			return nil
		case errors.Is(err, apperrors.ErrDependency), errors.As(err, &conflict):
			return fmt.Errorf("retry stock reservation for order %d: %w", orderID, err)
		case errors.Is(err, apperrors.ErrNotFound), errors.Is(err, apperrors.ErrConflict), errors.Is(err, apperrors.ErrInvalidInput):
			logger.InfoContext(ctx, "stock reservation retry skipped",
				slog.Int64("order_id", orderID),
				slog.String("reason", err.Error()),
			)
			return nil
		default:
			return fmt.Errorf("retry stock reservation for order %d: %w", orderID, err)
		}
	}
}
