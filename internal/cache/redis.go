package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/bobarin/wellvoice/internal/models"
	"github.com/go-redis/redis/v8"
)

const redisKeyPrefix = "voicecache"

// RedisBackend stores each entry as a JSON string with a native expiry, so
// SET gives atomic replace semantics and Redis handles physical deletion.
type RedisBackend struct {
	client *redis.Client
}

var _ Backend = (*RedisBackend)(nil)

// NewRedisBackend connects to redisURL and verifies the connection.
func NewRedisBackend(redisURL string) (*RedisBackend, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisBackend{client: client}, nil
}

func (r *RedisBackend) Close() error {
	return r.client.Close()
}

func redisKey(ownerID, key string) string {
	return fmt.Sprintf("%s:%s:%s", redisKeyPrefix, ownerID, key)
}

func (r *RedisBackend) GetCacheEntry(ctx context.Context, ownerID, key string, now time.Time) (*models.CacheEntry, error) {
	data, err := r.client.Get(ctx, redisKey(ownerID, key)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cache entry: %w", err)
	}

	var entry models.CacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cache entry: %w", err)
	}
	if entry.Expired(now) {
		return nil, nil
	}
	return &entry, nil
}

func (r *RedisBackend) UpsertCacheEntry(ctx context.Context, entry *models.CacheEntry) error {
	ttl := entry.ExpiresAt.Sub(entry.CreatedAt)
	if ttl <= 0 {
		return fmt.Errorf("cache entry already expired")
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal cache entry: %w", err)
	}

	return r.client.Set(ctx, redisKey(entry.OwnerID, entry.Key), data, ttl).Err()
}

// DeleteExpiredCacheEntries is a no-op; keys expire on their own.
func (r *RedisBackend) DeleteExpiredCacheEntries(ctx context.Context, now time.Time) (int64, error) {
	return 0, nil
}
