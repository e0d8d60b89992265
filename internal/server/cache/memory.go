package cache

import (
	"context"
	"sync"
	"time"

	"github.com/akimychev/converse/internal/server/conversation"
)

type memoryEntry struct {
	data      []byte
	expiresAt time.Time
}

// InMemoryCache implements ConversationCache on a process-local map with the
// same TTL semantics as the Redis driver. Used in tests and single-process
// deployments without Redis.
type InMemoryCache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[string]memoryEntry
	now     func() time.Time
}

// NewInMemoryCache creates an in-memory conversation cache.
func NewInMemoryCache(ttl time.Duration) *InMemoryCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &InMemoryCache{
		ttl:     ttl,
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

// Get returns the decoded state if present and not expired. Expired entries
// are dropped lazily on read.
func (c *InMemoryCache) Get(ctx context.Context, sessionID string) (*conversation.State, bool, error) {
	c.mu.RLock()
	entry, exists := c.entries[sessionID]
	c.mu.RUnlock()

	if !exists {
		return nil, false, nil
	}
	if c.now().After(entry.expiresAt) {
		c.mu.Lock()
		delete(c.entries, sessionID)
		c.mu.Unlock()
		return nil, false, nil
	}

	state, err := conversation.Decode(entry.data)
	if err != nil {
		return nil, false, nil
	}
	return state, true, nil
}

// Set stores the encoded state with a full fresh TTL.
func (c *InMemoryCache) Set(ctx context.Context, sessionID string, state *conversation.State) error {
	data, err := conversation.Encode(state)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[sessionID] = memoryEntry{data: data, expiresAt: c.now().Add(c.ttl)}
	return nil
}

// Invalidate drops the entry.
func (c *InMemoryCache) Invalidate(ctx context.Context, sessionID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, sessionID)
	return nil
}
