package kafka

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// IdempotencyStore tracks which event ids are processed or being processed.
// Implementations must be safe for concurrent use.
type IdempotencyStore interface {
	// Claim atomically records eventID and reports whether this caller is the
	// first to do so within the retention window.
	Claim(ctx context.Context, eventID string) (bool, error)
	// Release forgets eventID so a failed event can be claimed again.
	Release(ctx context.Context, eventID string) error
}

// MemoryIdempotencyStore keeps claims in process memory, so it only
// deduplicates within one replica.
type MemoryIdempotencyStore struct {
	mu      sync.Mutex
	claims  map[string]time.Time
	ttl     time.Duration
	nowFunc func() time.Time
}

// NewMemoryIdempotencyStore creates a store whose claims expire after ttl.
func NewMemoryIdempotencyStore(ttl time.Duration) *MemoryIdempotencyStore {
	return &MemoryIdempotencyStore{
		claims:  make(map[string]time.Time),
		ttl:     ttl,
		nowFunc: time.Now,
	}
}

// Claim implements IdempotencyStore. Expired claims are dropped on the way.
func (s *MemoryIdempotencyStore) Claim(_ context.Context, eventID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.nowFunc()
	if at, ok := s.claims[eventID]; ok && now.Sub(at) <= s.ttl {
		return false, nil
	}
	for id, at := range s.claims {
		if now.Sub(at) > s.ttl {
			delete(s.claims, id)
		}
	}
	s.claims[eventID] = now
	return true, nil
}

// Release implements IdempotencyStore.
func (s *MemoryIdempotencyStore) Release(_ context.Context, eventID string) error {
	s.mu.Lock()
	delete(s.claims, eventID)
	s.mu.Unlock()
	return nil
}

// Len returns the number of live and not yet swept claims.
func (s *MemoryIdempotencyStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.claims)
}

// RedisIdempotencyStore keeps claims in Redis so every replica of a consumer
// group shares them.
type RedisIdempotencyStore struct {
	client redis.Cmdable
	prefix string
	ttl    time.Duration
}

// NewRedisIdempotencyStore creates a store writing keys "<prefix><eventID>".
func NewRedisIdempotencyStore(client redis.Cmdable, prefix string, ttl time.Duration) *RedisIdempotencyStore {
	return &RedisIdempotencyStore{client: client, prefix: prefix, ttl: ttl}
}

// Claim implements IdempotencyStore with SET NX.
func (s *RedisIdempotencyStore) Claim(ctx context.Context, eventID string) (bool, error) {
	return s.client.SetNX(ctx, s.prefix+eventID, time.Now().UTC().Format(time.RFC3339), s.ttl).Result()
}

// Release implements IdempotencyStore.
func (s *RedisIdempotencyStore) Release(ctx context.Context, eventID string) error {
	return s.client.Del(ctx, s.prefix+eventID).Err()
}

// IdempotentHandler runs inner at most once per event id. Duplicates return
// nil without calling inner. A failed run releases its claim so redelivery
// retries it. When the store is unreachable the event is processed anyway.
func IdempotentHandler(store IdempotencyStore, inner Handler, logger *slog.Logger) Handler {
	return func(ctx context.Context, event *Event) error {
		if event.EventID == "" {
			return inner(ctx, event)
		}
		log := logger.With(
			slog.String("event_id", event.EventID),
			slog.String("event_type", event.EventType),
		)

		claimed, err := store.Claim(ctx, event.EventID)
		if err != nil {
			log.WarnContext(ctx, "idempotency claim failed, processing anyway", slog.String("error", err.Error()))
			return inner(ctx, event)
		}
		if !claimed {
			ConsumerMessagesDuplicate.WithLabelValues(event.EventType).Inc()
			log.DebugContext(ctx, "skipping duplicate event", slog.String("aggregate_id", event.AggregateID))
			return nil
		}

		if err := inner(ctx, event); err != nil {
			if relErr := store.Release(ctx, event.EventID); relErr != nil {
				log.WarnContext(ctx, "idempotency release failed", slog.String("error", relErr.Error()))
			}
			return err
		}
		return nil
	}
}
