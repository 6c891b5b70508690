package entity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisKeyPrefix namespaces extraction results in a shared Redis.
const RedisKeyPrefix = "mantra:entities:"

// RedisCache is a Cache shared across server instances. Redis expires entries
// itself, so stale results are never returned.
type RedisCache struct {
	client redis.Cmdable
	ttl    time.Duration
}

// NewRedisCache wraps an existing client.
func NewRedisCache(client redis.Cmdable, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisCache{client: client, ttl: ttl}
}

// DialRedis connects to addr and verifies the connection.
func DialRedis(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("entity: redis ping %s: %w", addr, err)
	}
	return client, nil
}

// Get returns the entities stored under key.
func (c *RedisCache) Get(ctx context.Context, key string) ([]Entity, bool, error) {
	data, err := c.client.Get(ctx, RedisKeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("entity: redis get: %w", err)
	}

	var entities []Entity
	if err := json.Unmarshal(data, &entities); err != nil {
		return nil, false, fmt.Errorf("entity: decode cached entities: %w", err)
	}
	return entities, true, nil
}

// Set stores entities under key with the cache TTL.
func (c *RedisCache) Set(ctx context.Context, key string, entities []Entity) error {
	if entities == nil {
		entities = []Entity{}
	}
	data, err := json.Marshal(entities)
	if err != nil {
		return fmt.Errorf("entity: encode entities: %w", err)
	}
	if err := c.client.Set(ctx, RedisKeyPrefix+key, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("entity: redis set: %w", err)
	}
	return nil
}

var _ Cache = (*RedisCache)(nil)
