package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/andresuchdata/autopo-replenish/internal/domain"
)

const (
	performanceKeyPrefix  = keyPrefix + "supplier_performance:"
	defaultPerformanceTTL = 5 * time.Minute
)

type SupplierPerformanceCache interface {
	Get(ctx context.Context, supplierID string) (*domain.SupplierPerformance, bool, error)
	Set(ctx context.Context, report *domain.SupplierPerformance) error
	Invalidate(ctx context.Context, supplierID string) error
}

type redisPerformanceCache struct {
	client *redis.Client
	ttl    time.Duration
}

type noopPerformanceCache struct{}

// NewSupplierPerformanceCache caches reports in Redis, or nowhere when client
// is nil.
func NewSupplierPerformanceCache(client *redis.Client, ttlSeconds int) SupplierPerformanceCache {
	if client == nil {
		return &noopPerformanceCache{}
	}
	return &redisPerformanceCache{client: client, ttl: ttlOrDefault(ttlSeconds, defaultPerformanceTTL)}
}

func NewNoopSupplierPerformanceCache() SupplierPerformanceCache {
	return &noopPerformanceCache{}
}

func (c *redisPerformanceCache) Get(ctx context.Context, supplierID string) (*domain.SupplierPerformance, bool, error) {
	payload, err := c.client.Get(ctx, buildPerformanceKey(supplierID)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get failed: %w", err)
	}

	var report domain.SupplierPerformance
	if err := json.Unmarshal(payload, &report); err != nil {
		return nil, false, fmt.Errorf("decode supplier performance cache: %w", err)
	}
	return &report, true, nil
}

func (c *redisPerformanceCache) Set(ctx context.Context, report *domain.SupplierPerformance) error {
	payload, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("encode supplier performance cache: %w", err)
	}
	if err := c.client.Set(ctx, buildPerformanceKey(report.SupplierID), payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (c *redisPerformanceCache) Invalidate(ctx context.Context, supplierID string) error {
	return c.client.Del(ctx, buildPerformanceKey(supplierID)).Err()
}

func (n *noopPerformanceCache) Get(ctx context.Context, supplierID string) (*domain.SupplierPerformance, bool, error) {
	return nil, false, nil
}

func (n *noopPerformanceCache) Set(ctx context.Context, report *domain.SupplierPerformance) error {
	return nil
}

func (n *noopPerformanceCache) Invalidate(ctx context.Context, supplierID string) error {
	return nil
}

func buildPerformanceKey(supplierID string) string {
	return performanceKeyPrefix + strings.ToLower(strings.TrimSpace(supplierID))
}
