// Package cache provides a Redis-backed customer lookup cache.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/tinytb/web3.storage/ports"
)

// DefaultTTL bounds how long a user to customer mapping is trusted.
const DefaultTTL = 24 * time.Hour

const keyPrefix = "w3api:customer:"

// RedisCache implements ports.CustomerCache using Redis.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// Open connects to the Redis server at url (redis://[:password@]host:port/db)
// and verifies the connection.
func Open(ctx context.Context, url string, ttl time.Duration) (*RedisCache, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	c := NewRedisCache(redis.NewClient(opts), ttl)
	if err := c.HealthCheck(ctx); err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}

// NewRedisCache wraps an existing client. A non-positive ttl uses DefaultTTL.
func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisCache{client: client, ttl: ttl}
}

// Get returns the cached customer id for userID.
func (c *RedisCache) Get(ctx context.Context, userID string) (string, bool, error) {
	id, err := c.client.Get(ctx, keyPrefix+userID).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis get: %w", err)
	}
	return id, true, nil
}

// Set stores the customer id for userID.
func (c *RedisCache) Set(ctx context.Context, userID, customerID string) error {
	if err := c.client.Set(ctx, keyPrefix+userID, customerID, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// HealthCheck pings the server.
func (c *RedisCache) HealthCheck(ctx context.Context) error {
	if err := c.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	return nil
}

// Close closes the client.
func (c *RedisCache) Close() error {
	return c.client.Close()
}

// Ensure interface compliance.
var (
	_ ports.CustomerCache = (*RedisCache)(nil)
	_ ports.HealthChecker = (*RedisCache)(nil)
)
