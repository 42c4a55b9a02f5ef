package cache

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEntryKey(t *testing.T) {
	assert.Equal(t, "analytics:0:overview:user:7", entryKey(0, "overview", "user:7"))
	assert.Equal(t, "analytics:12:leaderboard:all", entryKey(12, "leaderboard", "all"))
}

func TestNoop(t *testing.T) {
	var c AnalyticsCache = Noop{}
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, 0, "overview", "all", map[string]int{"total": 1}))

	var out map[string]int
	gen, hit, err := c.Get(ctx, "overview", "all", &out)
	require.NoError(t, err)
	assert.Zero(t, gen)
	assert.False(t, hit)
	assert.Nil(t, out)
	assert.NoError(t, c.Invalidate(ctx))
}
