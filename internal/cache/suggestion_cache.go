package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/andresuchdata/autopo-replenish/internal/domain"
)

const (
	suggestionKeyPrefix  = keyPrefix + "suggestions:"
	defaultSuggestionTTL = time.Minute
)

// SuggestionCache keeps the batch of an evaluation window so that repeated
// reads inside the window skip the stock ledger. Any rule or stock change
// must invalidate it.
type SuggestionCache interface {
	Get(ctx context.Context, window time.Time) (*domain.SuggestionBatch, bool, error)
	Set(ctx context.Context, batch *domain.SuggestionBatch) error
	InvalidateAll(ctx context.Context) error
}

type redisSuggestionCache struct {
	client *redis.Client
	ttl    time.Duration
}

type noopSuggestionCache struct{}

func NewSuggestionCache(client *redis.Client, ttlSeconds int) SuggestionCache {
	if client == nil {
		return &noopSuggestionCache{}
	}
	return &redisSuggestionCache{client: client, ttl: ttlOrDefault(ttlSeconds, defaultSuggestionTTL)}
}

func NewNoopSuggestionCache() SuggestionCache {
	return &noopSuggestionCache{}
}

func (c *redisSuggestionCache) Get(ctx context.Context, window time.Time) (*domain.SuggestionBatch, bool, error) {
	payload, err := c.client.Get(ctx, buildSuggestionKey(window)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get failed: %w", err)
	}

	var batch domain.SuggestionBatch
	if err := json.Unmarshal(payload, &batch); err != nil {
		return nil, false, fmt.Errorf("decode suggestion cache: %w", err)
	}
	return &batch, true, nil
}

func (c *redisSuggestionCache) Set(ctx context.Context, batch *domain.SuggestionBatch) error {
	payload, err := json.Marshal(batch)
	if err != nil {
		return fmt.Errorf("encode suggestion cache: %w", err)
	}
	if err := c.client.Set(ctx, buildSuggestionKey(batch.GeneratedAt), payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (c *redisSuggestionCache) InvalidateAll(ctx context.Context) error {
	return deleteKeysWithPrefix(ctx, c.client, suggestionKeyPrefix, scanBatchSize)
}

func (n *noopSuggestionCache) Get(ctx context.Context, window time.Time) (*domain.SuggestionBatch, bool, error) {
	return nil, false, nil
}

func (n *noopSuggestionCache) Set(ctx context.Context, batch *domain.SuggestionBatch) error {
	return nil
}

func (n *noopSuggestionCache) InvalidateAll(ctx context.Context) error {
	return nil
}

func buildSuggestionKey(window time.Time) string {
	return suggestionKeyPrefix + window.UTC().Format(time.RFC3339)
}
