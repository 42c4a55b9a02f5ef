package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskflow/internal/model"
)

var t0 = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

func newTask(id string, createdAt time.Time, userIDs ...int) *model.Task {
	t := &model.Task{
		ID:        id,
		Title:     "Task " + id,
		Priority:  model.PriorityMedium,
		CreatedBy: 1,
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}
	for _, id := range userIDs {
		t.Assignees = append(t.Assignees, model.NewAssignee(id))
	}
	return t
}

func TestMemoryStore_CreateAndGetDeepCopy(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	task := newTask("a", t0, 7)
	require.NoError(t, s.Create(ctx, task))
	assert.Equal(t, int64(1), task.Version)

	// mutating the caller's copy does not leak into the store
	task.Assignees[0].Progress = 90

	got, err := s.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 0, got.Assignees[0].Progress)
	assert.Equal(t, int64(1), got.Version)

	got.Assignees[0].Progress = 50
	again, err := s.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 0, again.Assignees[0].Progress)

	err = s.Create(ctx, newTask("a", t0))
	assert.True(t, model.IsKind(err, model.KindConflict))
}

func TestMemoryStore_GetMissing(t *testing.T) {
	_, err := NewMemoryStore().Get(context.Background(), "nope")
	assert.True(t, model.IsKind(err, model.KindNotFound))
}

func TestMemoryStore_UpdateCompareAndSet(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.Create(ctx, newTask("a", t0, 7)))

	first, err := s.Get(ctx, "a")
	require.NoError(t, err)
	second, err := s.Get(ctx, "a")
	require.NoError(t, err)

	first.Title = "first writer"
	event := model.OutboundEvent{RoutingKey: model.RoutingKeyProgressUpdated, Payload: "x"}
	require.NoError(t, s.Update(ctx, first, event))
	assert.Equal(t, int64(2), first.Version)

	second.Title = "second writer"
	err = s.Update(ctx, second, event)
	assert.True(t, errors.Is(err, ErrVersionConflict))
	assert.Equal(t, int64(1), second.Version)

	stored, err := s.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "first writer", stored.Title)
	assert.Equal(t, int64(2), stored.Version)
	assert.Len(t, s.Events(), 1, "events of a rejected write are dropped")

	err = s.Update(ctx, newTask("missing", t0))
	assert.True(t, model.IsKind(err, model.KindNotFound))
}

func TestMemoryStore_ListFilters(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.Create(ctx, newTask("old", t0, 1, 2)))
	require.NoError(t, s.Create(ctx, newTask("new", t0.Add(time.Hour), 2)))
	archived := newTask("archived", t0.Add(2*time.Hour), 1)
	archived.Archive(t0)
	require.NoError(t, s.Create(ctx, archived))

	ids := func(tasks []model.Task) []string {
		out := make([]string, 0, len(tasks))
		for _, t := range tasks {
			out = append(out, t.ID)
		}
		return out
	}

	all, err := s.List(ctx, TaskFilter{})
	require.NoError(t, err)
	assert.Equal(t, []string{"new", "old"}, ids(all))

	withArchived, err := s.List(ctx, TaskFilter{IncludeArchived: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"archived", "new", "old"}, ids(withArchived))

	user := 1
	mine, err := s.List(ctx, TaskFilter{UserID: &user})
	require.NoError(t, err)
	assert.Equal(t, []string{"old"}, ids(mine))

	mineAll, err := s.List(ctx, TaskFilter{UserID: &user, IncludeArchived: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"archived", "old"}, ids(mineAll))
}

func TestMemoryStore_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewMemoryStore().Get(ctx, "a")
	assert.True(t, model.IsKind(err, model.KindStorage))
}

func TestAssigneeContains(t *testing.T) {
	assert.Equal(t, `[{"userId":42}]`, assigneeContains(42))
}

func TestMigrationNamesSorted(t *testing.T) {
	names, err := migrationNames()
	require.NoError(t, err)
	assert.Equal(t, []string{
		"migrations/001_create_tasks.sql",
		"migrations/002_create_outbox_events.sql",
	}, names)
}
