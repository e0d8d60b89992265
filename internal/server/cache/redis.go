package cache

import (
	"context"
	"errors"
	"time"

	"github.com/akimychev/converse/internal/server/conversation"
	"github.com/redis/go-redis/v9"
)

const (
	// Redis key prefix for conversation state entries.
	conversationKeyPrefix = "conv:"
	// DefaultTTL bounds a cached conversation to 30 minutes of inactivity.
	DefaultTTL = 30 * time.Minute
)

// RedisCache implements ConversationCache on a Redis client.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCache creates a Redis-backed conversation cache.
func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisCache{client: client, ttl: ttl}
}

// Get returns the decoded state, treating both an absent key and an
// undecodable blob as a miss. A blob written by an incompatible build decodes
// to an error, and replaying from the durable log is always safe.
func (c *RedisCache) Get(ctx context.Context, sessionID string) (*conversation.State, bool, error) {
	val, err := c.client.Get(ctx, c.key(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	state, err := conversation.Decode(val)
	if err != nil {
		return nil, false, nil
	}
	return state, true, nil
}

// Set stores the encoded state with a full fresh TTL.
func (c *RedisCache) Set(ctx context.Context, sessionID string, state *conversation.State) error {
	val, err := conversation.Encode(state)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.key(sessionID), val, c.ttl).Err()
}

// Invalidate drops the entry.
func (c *RedisCache) Invalidate(ctx context.Context, sessionID string) error {
	return c.client.Del(ctx, c.key(sessionID)).Err()
}

func (c *RedisCache) key(sessionID string) string {
	return conversationKeyPrefix + sessionID
}
