// Package tokencache stores provider access tokens until shortly before they expire.
package tokencache

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

const keyPrefix = "provider_token:"

// Cache stores short-lived access tokens
type Cache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, token string, ttl time.Duration) error
}

// RedisCache shares tokens between instances through redis
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache creates a token cache backed by redis
func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

// Get returns the cached token, if any
func (c *RedisCache) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := c.client.Get(ctx, keyPrefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

// Set stores a token for ttl
func (c *RedisCache) Set(ctx context.Context, key, token string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	return c.client.Set(ctx, keyPrefix+key, token, ttl).Err()
}

type entry struct {
	token     string
	expiresAt time.Time
}

// MemoryCache keeps tokens in process
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]entry
	now     func() time.Time
}

// NewMemoryCache creates an in-process token cache
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		entries: make(map[string]entry),
		now:     time.Now,
	}
}

// Get returns the cached token if it has not expired
func (c *MemoryCache) Get(_ context.Context, key string) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return "", false, nil
	}
	if !c.now().Before(e.expiresAt) {
		delete(c.entries, key)
		return "", false, nil
	}
	return e.token, true, nil
}

// Set stores a token for ttl
func (c *MemoryCache) Set(_ context.Context, key, token string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry{token: token, expiresAt: c.now().Add(ttl)}
	return nil
}

// TTL converts a provider's expires_in (seconds) into a cache lifetime with a safety margin.
func TTL(expiresIn int, margin time.Duration) time.Duration {
	ttl := time.Duration(expiresIn)*time.Second - margin
	if ttl < 0 {
		return 0
	}
	return ttl
}
