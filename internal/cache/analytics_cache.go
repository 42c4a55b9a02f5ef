package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const generationKey = "analytics:generation"

// AnalyticsCache stores computed analytics reports. Invalidate drops every
// cached report at once.
//
// Get returns the generation it read from. A report computed after a miss must
// be stored with Set under that generation, so a result computed across an
// Invalidate lands in a namespace nobody reads.
type AnalyticsCache interface {
	Get(ctx context.Context, report, scope string, dest any) (gen int64, hit bool, err error)
	Set(ctx context.Context, gen int64, report, scope string, value any) error
	Invalidate(ctx context.Context) error
}

// RedisCache namespaces entries by a generation counter. Invalidation bumps the
// counter so older entries are never read again and expire through their TTL.
type RedisCache struct {
	rdb    redis.Cmdable
	ttl    time.Duration
	logger *zap.Logger
}

func NewRedisCache(rdb redis.Cmdable, ttl time.Duration, logger *zap.Logger) *RedisCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &RedisCache{rdb: rdb, ttl: ttl, logger: logger}
}

func entryKey(generation int64, report, scope string) string {
	return fmt.Sprintf("analytics:%d:%s:%s", generation, report, scope)
}

func (c *RedisCache) generation(ctx context.Context) (int64, error) {
	gen, err := c.rdb.Get(ctx, generationKey).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return gen, err
}

func (c *RedisCache) Get(ctx context.Context, report, scope string, dest any) (int64, bool, error) {
	gen, err := c.generation(ctx)
	if err != nil {
		return 0, false, fmt.Errorf("failed to read cache generation: %w", err)
	}

	data, err := c.rdb.Get(ctx, entryKey(gen, report, scope)).Bytes()
	if errors.Is(err, redis.Nil) {
		return gen, false, nil
	}
	if err != nil {
		return gen, false, fmt.Errorf("failed to read cache entry: %w", err)
	}

	if err := json.Unmarshal(data, dest); err != nil {
		c.logger.Warn("Discarding undecodable cache entry",
			zap.String("report", report),
			zap.String("scope", scope),
			zap.Error(err),
		)
		return gen, false, nil
	}
	return gen, true, nil
}

func (c *RedisCache) Set(ctx context.Context, gen int64, report, scope string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode cache entry: %w", err)
	}
	if err := c.rdb.Set(ctx, entryKey(gen, report, scope), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to write cache entry: %w", err)
	}
	return nil
}

func (c *RedisCache) Invalidate(ctx context.Context) error {
	gen, err := c.rdb.Incr(ctx, generationKey).Result()
	if err != nil {
		return fmt.Errorf("failed to bump cache generation: %w", err)
	}
	c.logger.Debug("Analytics cache invalidated", zap.Int64("generation", gen))
	return nil
}

// Noop never stores anything. Used when caching is disabled.
type Noop struct{}

func (Noop) Get(context.Context, string, string, any) (int64, bool, error) { return 0, false, nil }
func (Noop) Set(context.Context, int64, string, string, any) error        { return nil }
func (Noop) Invalidate(context.Context) error                             { return nil }
