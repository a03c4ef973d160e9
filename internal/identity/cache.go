package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const jwksCacheKey = "identity:jwks:google"

// RedisDocumentCache keeps the fetched key-set document in Redis so every
// replica does not fetch it separately.
type RedisDocumentCache struct {
	client *redis.Client
	key    string
}

// NewRedisDocumentCache creates a Redis-backed DocumentCache.
func NewRedisDocumentCache(client *redis.Client) *RedisDocumentCache {
	return &RedisDocumentCache{client: client, key: jwksCacheKey}
}

// Get returns the cached document, or nil when there is none.
func (c *RedisDocumentCache) Get(ctx context.Context) ([]byte, error) {
	doc, err := c.client.Get(ctx, c.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redis get jwks: %w", err)
	}
	return doc, nil
}

// Set stores doc until ttl elapses.
func (c *RedisDocumentCache) Set(ctx context.Context, doc []byte, ttl time.Duration) error {
	if err := c.client.Set(ctx, c.key, doc, ttl).Err(); err != nil {
		return fmt.Errorf("redis set jwks: %w", err)
	}
	return nil
}
