// Package cache implements the ephemeral conversation-cache tier: a TTL-bound
// map from session id to serialized conversation state. The cache is a pure
// accelerator over the durable turn log: losing an entry costs a replay,
// never data.
package cache

import (
	"context"

	"github.com/akimychev/converse/internal/server/conversation"
)

// ConversationCache is the contract the consistency coordinator programs
// against. Implementations must treat an absent or undecodable entry as a
// miss, not an error.
type ConversationCache interface {
	// Get returns the cached state for the session and whether it was found.
	// Reads do not refresh the TTL; the write after the turn does.
	Get(ctx context.Context, sessionID string) (*conversation.State, bool, error)

	// Set stores the state under the session id with a full fresh TTL.
	Set(ctx context.Context, sessionID string, state *conversation.State) error

	// Invalidate eagerly drops the entry, used when the session is deleted.
	Invalidate(ctx context.Context, sessionID string) error
}
