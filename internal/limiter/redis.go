package limiter

import (
	"context"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisStore implements CounterStore on Redis. INCR gives the atomic
// read-modify-write the limiter requires; a get-then-set sequence would
// under-count under concurrent requests.
type RedisStore struct {
	rdb *redis.Client
}

// NewRedisStore wraps an existing Redis client.
func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

// Get returns the counter value, 0 when absent.
func (s *RedisStore) Get(ctx context.Context, key string) (int64, error) {
	n, err := s.rdb.Get(ctx, key).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return n, err
}

// Set stores a counter value with a TTL.
func (s *RedisStore) Set(ctx context.Context, key string, value int64, ttl time.Duration) error {
	return s.rdb.Set(ctx, key, value, ttl).Err()
}

// Increment atomically bumps the counter.
func (s *RedisStore) Increment(ctx context.Context, key string) (int64, error) {
	return s.rdb.Incr(ctx, key).Result()
}

// Expire refreshes the key's TTL.
func (s *RedisStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	return s.rdb.Expire(ctx, key, ttl).Err()
}

// Delete removes the key.
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	return s.rdb.Del(ctx, key).Err()
}
