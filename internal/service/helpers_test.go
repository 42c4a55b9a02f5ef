package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"taskflow/internal/model"
	"taskflow/internal/repository"
)

var t0 = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock { return &clock{now: t0} }

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func seedTask(t *testing.T, store repository.TaskStore, id string, userIDs ...int) {
	t.Helper()
	task := &model.Task{
		ID:        id,
		Title:     "Seeded " + id,
		Priority:  model.PriorityMedium,
		CreatedBy: 1,
		CreatedAt: t0,
		UpdatedAt: t0,
		Assignees: []model.AssigneeProgress{},
	}
	task.ReplaceAssignees(userIDs)
	require.NoError(t, store.Create(context.Background(), task))
}

// mapCache is an in-memory AnalyticsCache with a generation counter.
type mapCache struct {
	mu          sync.Mutex
	gen         int64
	entries     map[string][]byte
	invalidated int
	failInvalid bool
}

func newMapCache() *mapCache { return &mapCache{entries: map[string][]byte{}} }

func (c *mapCache) key(gen int64, report, scope string) string {
	return fmt.Sprintf("%d|%s|%s", gen, report, scope)
}

func (c *mapCache) Get(_ context.Context, report, scope string, dest any) (int64, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	data, ok := c.entries[c.key(c.gen, report, scope)]
	if !ok {
		return c.gen, false, nil
	}
	return c.gen, true, json.Unmarshal(data, dest)
}

func (c *mapCache) Set(_ context.Context, gen int64, report, scope string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[c.key(gen, report, scope)] = data
	return nil
}

func (c *mapCache) Invalidate(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidated++
	if c.failInvalid {
		return errors.New("redis down")
	}
	c.gen++
	return nil
}

// racingStore lets another writer slip in before the first n updates.
type racingStore struct {
	*repository.MemoryStore
	races     int
	updates   int
	interfere func(t *model.Task)
}

func (s *racingStore) Update(ctx context.Context, task *model.Task, events ...model.OutboundEvent) error {
	s.updates++
	if s.races > 0 {
		s.races--
		other, err := s.MemoryStore.Get(ctx, task.ID)
		if err != nil {
			return err
		}
		s.interfere(other)
		if err := s.MemoryStore.Update(ctx, other); err != nil {
			return err
		}
	}
	return s.MemoryStore.Update(ctx, task, events...)
}

// conflictStore rejects every update.
type conflictStore struct {
	*repository.MemoryStore
	updates int
}

func (s *conflictStore) Update(context.Context, *model.Task, ...model.OutboundEvent) error {
	s.updates++
	return repository.ErrVersionConflict
}

func routingKeys(events []model.OutboundEvent) []string {
	out := make([]string, 0, len(events))
	for _, e := range events {
		out = append(out, e.RoutingKey)
	}
	return out
}
