package cache

import (
	"context"
	"testing"
	"time"

	"github.com/akimychev/converse/internal/server/conversation"
	"github.com/stretchr/testify/require"
)

func TestInMemoryCache_SetGetRoundTrip(t *testing.T) {
	c := NewInMemoryCache(time.Minute)
	ctx := context.Background()

	state := conversation.NewState()
	state.Append("hello", "hi there")
	require.NoError(t, c.Set(ctx, "s-1", state))

	got, ok, err := c.Get(ctx, "s-1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, state, got)
}

func TestInMemoryCache_MissOnUnknownSession(t *testing.T) {
	c := NewInMemoryCache(time.Minute)

	_, ok, err := c.Get(context.Background(), "nope")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestInMemoryCache_ExpiredEntryIsAMiss(t *testing.T) {
	c := NewInMemoryCache(time.Minute)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "s-1", conversation.NewState()))

	// Move the clock past the TTL.
	c.now = func() time.Time { return time.Now().Add(2 * time.Minute) }

	_, ok, err := c.Get(ctx, "s-1")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestInMemoryCache_SetRefreshesTTL(t *testing.T) {
	c := NewInMemoryCache(time.Minute)
	ctx := context.Background()

	base := time.Now()
	c.now = func() time.Time { return base }
	require.NoError(t, c.Set(ctx, "s-1", conversation.NewState()))

	// 40s later the entry is near expiry; a write renews it.
	c.now = func() time.Time { return base.Add(40 * time.Second) }
	require.NoError(t, c.Set(ctx, "s-1", conversation.NewState()))

	// 80s after the first write the entry would have expired without the
	// second write refreshing the TTL.
	c.now = func() time.Time { return base.Add(80 * time.Second) }
	_, ok, err := c.Get(ctx, "s-1")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestInMemoryCache_Invalidate(t *testing.T) {
	c := NewInMemoryCache(time.Minute)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "s-1", conversation.NewState()))
	require.NoError(t, c.Invalidate(ctx, "s-1"))

	_, ok, err := c.Get(ctx, "s-1")
	require.NoError(t, err)
	require.False(t, ok)
}
