package local

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) *LocalCache {
	c, err := NewCache(Config{GCInterval: time.Minute})
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c
}

func TestCache_SetGet(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "login:tok-1", "42", 0))

	v, err := c.Get(ctx, "login:tok-1")
	require.NoError(t, err)
	assert.Equal(t, "42", v)
}

func TestCache_GetMissing(t *testing.T) {
	c := newTestCache(t)
	_, err := c.Get(context.Background(), "login:absent")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCache_TTLExpiry(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "login:short", "7", 10*time.Millisecond))
	time.Sleep(20 * time.Millisecond)

	_, err := c.Get(ctx, "login:short")
	assert.ErrorIs(t, err, ErrNotFound)

	exists, err := c.Exists(ctx, "login:short")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestCache_Del(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "login:a", "1", 0))
	require.NoError(t, c.Set(ctx, "login:b", "2", 0))
	require.NoError(t, c.Del(ctx, "login:a", "login:b", "login:never-set"))

	_, err := c.Get(ctx, "login:a")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = c.Get(ctx, "login:b")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCache_Exists(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	exists, err := c.Exists(ctx, "login:tok")
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, c.Set(ctx, "login:tok", "9", time.Hour))
	exists, err = c.Exists(ctx, "login:tok")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestCache_SweepRemovesExpired(t *testing.T) {
	c, err := NewCache(Config{GCInterval: 10 * time.Millisecond})
	require.NoError(t, err)
	t.Cleanup(c.Close)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "login:stale", "3", time.Millisecond))
	require.NoError(t, c.Set(ctx, "login:live", "4", time.Hour))

	assert.Eventually(t, func() bool {
		c.mu.RLock()
		defer c.mu.RUnlock()
		_, ok := c.entries["login:stale"]
		return !ok
	}, time.Second, 10*time.Millisecond, "sweep did not evict the expired entry")

	v, err := c.Get(ctx, "login:live")
	require.NoError(t, err)
	assert.Equal(t, "4", v)
}

func TestCache_Overwrite(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "login:tok", "1", time.Hour))
	require.NoError(t, c.Set(ctx, "login:tok", "2", time.Hour))

	v, err := c.Get(ctx, "login:tok")
	require.NoError(t, err)
	assert.Equal(t, "2", v)
}
