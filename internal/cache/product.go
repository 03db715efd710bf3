// Package cache provides a Redis read-through cache in front of the product
// catalog.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"

	"github.com/leduxro-prog/erp-dashboard-sub000/internal/service"
)

// KeyPrefix namespaces product entries in Redis.
const KeyPrefix = "order-engine:product:"

// ProductCacheRequests counts product lookups by outcome (hit, miss, error).
var ProductCacheRequests = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "order_product_cache_requests_total",
		Help: "Total number of product cache lookups by result",
	},
	[]string{"result"},
)

// ProductCache wraps a ProductService with a Redis cache. Redis failures
// never fail a lookup; the call falls through to the catalog.
type ProductCache struct {
	client redis.Cmdable
	next   service.ProductService
	ttl    time.Duration
	logger *slog.Logger
}

// NewProductCache returns next unchanged when ttl is not positive, which
// disables caching.
func NewProductCache(client redis.Cmdable, next service.ProductService, ttl time.Duration, logger *slog.Logger) service.ProductService {
	if ttl <= 0 || client == nil {
		return next
	}
	return &ProductCache{client: client, next: next, ttl: ttl, logger: logger}
}

func key(id string) string { return KeyPrefix + id }

// GetProducts serves cached snapshots and fetches the rest in one batch.
func (c *ProductCache) GetProducts(ctx context.Context, ids []string) ([]service.ProductSnapshot, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	cached, missing := c.lookup(ctx, ids)
	if len(missing) == 0 {
		return order(ids, cached), nil
	}

	fetched, err := c.next.GetProducts(ctx, missing)
	if err != nil {
		return nil, err
	}
	for _, p := range fetched {
		cached[p.ID] = p
	}
	c.store(ctx, fetched)

	return order(ids, cached), nil
}

func (c *ProductCache) lookup(ctx context.Context, ids []string) (map[string]service.ProductSnapshot, []string) {
	found := make(map[string]service.ProductSnapshot, len(ids))

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = key(id)
	}

	values, err := c.client.MGet(ctx, keys...).Result()
	if err != nil {
		ProductCacheRequests.WithLabelValues("error").Add(float64(len(ids)))
		c.logger.WarnContext(ctx, "product cache read failed",
			slog.String("error", err.Error()),
		)
		return found, ids
	}

	var missing []string
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			missing = append(missing, ids[i])
			continue
		}
		var p service.ProductSnapshot
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			missing = append(missing, ids[i])
			continue
		}
		found[ids[i]] = p
	}

	ProductCacheRequests.WithLabelValues("hit").Add(float64(len(found)))
	ProductCacheRequests.WithLabelValues("miss").Add(float64(len(missing)))
	return found, missing
}

func (c *ProductCache) store(ctx context.Context, products []service.ProductSnapshot) {
	if len(products) == 0 {
		return
	}
	_, err := c.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, p := range products {
			data, err := json.Marshal(p)
			if err != nil {
				return fmt.Errorf("marshal product %s: %w", p.ID, err)
			}
			pipe.Set(ctx, key(p.ID), data, c.ttl)
		}
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		c.logger.WarnContext(ctx, "product cache write failed",
			slog.String("error", err.Error()),
		)
	}
}

// order returns the snapshots for ids in request order, skipping ids the
// catalog did not return and duplicate ids.
func order(ids []string, byID map[string]service.ProductSnapshot) []service.ProductSnapshot {
	out := make([]service.ProductSnapshot, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		if p, ok := byID[id]; ok {
			out = append(out, p)
		}
	}
	return out
}

// Invalidate drops cached entries, e.g. after a catalog price change event.
func (c *ProductCache) Invalidate(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = key(id)
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis del products: %w", err)
	}
	return nil
}
