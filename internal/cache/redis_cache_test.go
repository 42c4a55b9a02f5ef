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

type overview struct {
	Completed int `json:"completed"`
}

func newRedisCache(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedisCache(rdb, time.Minute, zap.NewNop()), mr
}

func TestRedisCache_RoundTrip(t *testing.T) {
	c, mr := newRedisCache(t)
	ctx := context.Background()

	var out overview
	gen, hit, err := c.Get(ctx, "admin_overview", "all", &out)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Zero(t, gen)

	require.NoError(t, c.Set(ctx, gen, "admin_overview", "all", overview{Completed: 3}))
	assert.True(t, mr.Exists("analytics:0:admin_overview:all"))
	assert.Equal(t, time.Minute, mr.TTL("analytics:0:admin_overview:all"))

	_, hit, err = c.Get(ctx, "admin_overview", "all", &out)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, 3, out.Completed)

	mr.FastForward(2 * time.Minute)
	_, hit, err = c.Get(ctx, "admin_overview", "all", &out)
	require.NoError(t, err)
	assert.False(t, hit, "expired")
}

func TestRedisCache_InvalidateHidesEntries(t *testing.T) {
	c, _ := newRedisCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, 0, "user_overview", "user:7", overview{Completed: 1}))
	require.NoError(t, c.Invalidate(ctx))

	var out overview
	gen, hit, err := c.Get(ctx, "user_overview", "user:7", &out)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, int64(1), gen)
}

func TestRedisCache_SetAfterInvalidateUsesObservedGeneration(t *testing.T) {
	c, _ := newRedisCache(t)
	ctx := context.Background()

	var out overview
	gen, hit, err := c.Get(ctx, "admin_overview", "all", &out)
	require.NoError(t, err)
	require.False(t, hit)

	// a mutation lands while the report is being computed
	require.NoError(t, c.Invalidate(ctx))
	require.NoError(t, c.Set(ctx, gen, "admin_overview", "all", overview{Completed: 0}))

	_, hit, err = c.Get(ctx, "admin_overview", "all", &out)
	require.NoError(t, err)
	assert.False(t, hit, "a report computed before the invalidation must not be served")
}

func TestRedisCache_UndecodableEntryIsAMiss(t *testing.T) {
	c, mr := newRedisCache(t)
	ctx := context.Background()
	require.NoError(t, mr.Set("analytics:0:leaderboard:all", "not json"))

	var out []overview
	_, hit, err := c.Get(ctx, "leaderboard", "all", &out)
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestRedisCache_GenerationReadFailure(t *testing.T) {
	c, mr := newRedisCache(t)
	ctx := context.Background()
	require.NoError(t, mr.Set(generationKey, "not-a-number"))

	var out overview
	_, _, err := c.Get(ctx, "admin_overview", "all", &out)
	assert.Error(t, err)
}
