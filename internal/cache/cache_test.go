package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type payload struct {
	Revenue string `json:"revenue"`
	Orders  int    `json:"orders"`
}

func newRedisCache(t *testing.T) (Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisCache(client, time.Minute, zap.NewNop()), mr
}

func TestRedisCacheRoundTrip(t *testing.T) {
	c, mr := newRedisCache(t)
	ctx := context.Background()

	var got payload
	hit, err := c.Get(ctx, "kpis:2011-01-01:2011-01-31", &got)
	require.NoError(t, err)
	assert.False(t, hit)

	require.NoError(t, c.Set(ctx, "kpis:2011-01-01:2011-01-31", payload{Revenue: "10.50", Orders: 3}))
	assert.True(t, mr.Exists(keyPrefix+"kpis:2011-01-01:2011-01-31"))

	hit, err = c.Get(ctx, "kpis:2011-01-01:2011-01-31", &got)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, payload{Revenue: "10.50", Orders: 3}, got)

	mr.FastForward(2 * time.Minute)
	hit, err = c.Get(ctx, "kpis:2011-01-01:2011-01-31", &got)
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestRedisCacheInvalidate(t *testing.T) {
	c, mr := newRedisCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "a", payload{Orders: 1}))
	require.NoError(t, c.Set(ctx, "b", payload{Orders: 2}))
	require.NoError(t, mr.Set("unrelated", "keep"))

	require.NoError(t, c.Invalidate(ctx))

	var got payload
	hit, err := c.Get(ctx, "a", &got)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.True(t, mr.Exists("unrelated"))
}

func TestRedisCacheCorruptEntryIsMiss(t *testing.T) {
	c, mr := newRedisCache(t)
	require.NoError(t, mr.Set(keyPrefix+"broken", "\xff\xff\xff\xff\xff\xff\xff\xff\xff\xff\xff"))

	var got payload
	hit, err := c.Get(context.Background(), "broken", &got)
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestNewWithoutClientIsNoop(t *testing.T) {
	c := New(Params{Log: zap.NewNop()})
	ctx := context.Background()
	require.NoError(t, c.Set(ctx, "a", payload{Orders: 1}))

	var got payload
	hit, err := c.Get(ctx, "a", &got)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.NoError(t, c.Invalidate(ctx))
}
