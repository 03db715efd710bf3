package app

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"
)

const kafkaPingAttempts = 3

type pinger interface {
	Ping(ctx context.Context) error
}

// pingKafkaWithRetry pings the producer with exponential backoff
// (1s/2s with ±25% jitter between attempts).
func pingKafkaWithRetry(ctx context.Context, producer pinger, logger *slog.Logger) error {
	return pingWithBackoff(ctx, producer, logger, time.Second)
}

func pingWithBackoff(ctx context.Context, producer pinger, logger *slog.Logger, baseWait time.Duration) error {
	var lastErr error
	for attempt := 0; attempt < kafkaPingAttempts; attempt++ {
		if lastErr = producer.Ping(ctx); lastErr == nil {
			return nil
		}
		if attempt == kafkaPingAttempts-1 {
			break
		}
		base := baseWait << uint(attempt)
		jitter := time.Duration(float64(base) * 0.25 * (2*rand.Float64() - 1)) // #nosec G404 -- non-cryptographic jitter for retry backoff
		wait := base + jitter
		logger.Warn("kafka producer ping failed, retrying",
			slog.Int("attempt", attempt+1),
			slog.Int("max_attempts", kafkaPingAttempts),
			slog.Duration("backoff", wait),
			slog.String("error", lastErr.Error()),
		)
		select {
		case <-ctx.Done():
			return fmt.Errorf("kafka ping: context canceled during retry: %w", ctx.Err())
		case <-time.After(wait):
		}
	}
	return fmt.Errorf("kafka producer ping failed after %d attempts: %w", kafkaPingAttempts, lastErr)
}
