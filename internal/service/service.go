package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"taskflow/internal/cache"
	"taskflow/internal/model"
	"taskflow/internal/repository"
	"taskflow/pkg/logger"
	"taskflow/pkg/metrics"
)

const defaultMaxAttempts = 3

type Option func(*core)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *core) { c.now = now }
}

// WithMaxAttempts bounds how many times a write is retried after a version
// conflict.
func WithMaxAttempts(n int) Option {
	return func(c *core) {
		if n > 0 {
			c.maxAttempts = n
		}
	}
}

// core holds what every write path shares: the store, the cache to invalidate
// and the CAS retry loop.
type core struct {
	store       repository.TaskStore
	cache       cache.AnalyticsCache
	logger      *zap.Logger
	now         func() time.Time
	maxAttempts int
}

func newCore(store repository.TaskStore, c cache.AnalyticsCache, log *zap.Logger, opts []Option) core {
	if c == nil {
		c = cache.Noop{}
	}
	out := core{
		store:       store,
		cache:       c,
		logger:      log,
		now:         time.Now,
		maxAttempts: defaultMaxAttempts,
	}
	for _, opt := range opts {
		opt(&out)
	}
	return out
}

// mutateFunc changes a private copy of the task and returns the events to
// record with the write. Returning an error abandons the write.
type mutateFunc func(t *model.Task, now time.Time) ([]model.OutboundEvent, error)

// mutate runs load → fn → compare-and-set, re-loading and re-applying fn after
// a version conflict. No lock is held between the load and the write.
func (c *core) mutate(ctx context.Context, operation, taskID string, fn mutateFunc) (*model.Task, error) {
	log := logger.WithTrace(ctx, c.logger).With(
		zap.String("operation", operation),
		zap.String("task_id", taskID),
	)

	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		task, err := c.store.Get(ctx, taskID)
		if err != nil {
			return nil, err
		}

		now := c.now()
		events, err := fn(task, now)
		if err != nil {
			return nil, err
		}
		task.UpdatedAt = now

		err = c.store.Update(ctx, task, events...)
		if err == nil {
			if attempt > 1 {
				metrics.IncrementVersionConflict(operation, "resolved")
			}
			c.invalidate(ctx, log)
			return task, nil
		}
		if !errors.Is(err, repository.ErrVersionConflict) {
			return nil, err
		}

		metrics.IncrementVersionConflict(operation, "retry")
		log.Info("Version conflict, retrying", zap.Int("attempt", attempt))
	}

	metrics.IncrementVersionConflict(operation, "exhausted")
	log.Warn("Giving up after repeated version conflicts", zap.Int("attempts", c.maxAttempts))
	return nil, model.Conflictf("task was modified concurrently")
}

// invalidate drops cached analytics. Failures only cost freshness until the
// TTL expires, so they are logged and swallowed.
func (c *core) invalidate(ctx context.Context, log *zap.Logger) {
	if err := c.cache.Invalidate(ctx); err != nil {
		log.Warn("Failed to invalidate analytics cache", zap.Error(err))
	}
}

func resultLabel(err error) string {
	if err == nil {
		return "success"
	}
	if kind := model.KindOf(err); kind != "" {
		return string(kind)
	}
	return "error"
}
