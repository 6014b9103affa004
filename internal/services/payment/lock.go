package payment

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisLocker implements Locker with SETNX
type RedisLocker struct {
	client *redis.Client
}

// NewRedisLocker creates a new redis backed locker
func NewRedisLocker(client *redis.Client) *RedisLocker {
	return &RedisLocker{client: client}
}

// TryLock takes key for ttl unless someone else holds it
func (l *RedisLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return l.client.SetNX(ctx, key, time.Now().UTC().Format(time.RFC3339), ttl).Result()
}

// Unlock releases key
func (l *RedisLocker) Unlock(ctx context.Context, key string) error {
	return l.client.Del(ctx, key).Err()
}
