package images

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ternarybob/newswire/internal/interfaces"
	"github.com/ternarybob/newswire/internal/models"
)

const defaultCacheTTL = 30 * 24 * time.Hour

// RedisSearchCache stores image search result sets keyed by query hash.
// Recurring topics hit the cache instead of repeating billed searches.
type RedisSearchCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisSearchCache(client *redis.Client, ttl time.Duration) *RedisSearchCache {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &RedisSearchCache{client: client, ttl: ttl}
}

func cacheKey(queryHash string) string {
	return "imgsearch:" + queryHash
}

func (c *RedisSearchCache) Get(ctx context.Context, queryHash string) (*models.CachedImageSearch, error) {
	data, err := c.client.Get(ctx, cacheKey(queryHash)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, interfaces.ErrNotFound
		}
		return nil, fmt.Errorf("image search cache get: %w", err)
	}

	var entry models.CachedImageSearch
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("decode cached image search: %w", err)
	}
	return &entry, nil
}

func (c *RedisSearchCache) Put(ctx context.Context, entry *models.CachedImageSearch) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode cached image search: %w", err)
	}
	if err := c.client.Set(ctx, cacheKey(entry.QueryHash), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("image search cache put: %w", err)
	}
	return nil
}

var _ interfaces.SearchCache = (*RedisSearchCache)(nil)
