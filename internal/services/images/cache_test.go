package images

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/newswire/internal/interfaces"
	"github.com/ternarybob/newswire/internal/models"
)

func testCache(t *testing.T, ttl time.Duration) (*RedisSearchCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisSearchCache(client, ttl), mr
}

func TestCacheRoundTrip(t *testing.T) {
	cache, _ := testCache(t, time.Hour)
	ctx := context.Background()

	entry := &models.CachedImageSearch{
		QueryHash: "abc123",
		QueryText: "india cricket",
		Provider:  "serper-v1",
		Results: []models.ImageCandidate{
			{URL: "https://img.example/a.jpg", Width: 1200, Format: "jpg"},
		},
	}
	require.NoError(t, cache.Put(ctx, entry))

	got, err := cache.Get(ctx, "abc123")
	require.NoError(t, err)
	assert.Equal(t, "india cricket", got.QueryText)
	require.Len(t, got.Results, 1)
	assert.Equal(t, 1200, got.Results[0].Width)
	assert.False(t, got.CreatedAt.IsZero(), "Put must stamp CreatedAt")
}

func TestCacheMissReturnsNotFound(t *testing.T) {
	cache, _ := testCache(t, time.Hour)
	_, err := cache.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, interfaces.ErrNotFound)
}

func TestCacheEntriesExpire(t *testing.T) {
	cache, mr := testCache(t, time.Minute)
	ctx := context.Background()

	require.NoError(t, cache.Put(ctx, &models.CachedImageSearch{QueryHash: "h1"}))
	mr.FastForward(2 * time.Minute)

	_, err := cache.Get(ctx, "h1")
	assert.ErrorIs(t, err, interfaces.ErrNotFound)
}
