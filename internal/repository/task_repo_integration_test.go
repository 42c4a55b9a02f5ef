//go:build integration

package repository

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"go.uber.org/zap"

	"taskflow/internal/model"
	"taskflow/pkg/outbox"
)

func newPostgres(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	pg, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("taskflow"),
		postgres.WithUsername("taskflow"),
		postgres.WithPassword("taskflow"),
		postgres.BasicWaitStrategies(),
	)
	testcontainers.CleanupContainer(t, pg)
	require.NoError(t, err)

	dsn, err := pg.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, Migrate(ctx, pool, zap.NewNop()))
	// 重复执行必须是幂等的
	require.NoError(t, Migrate(ctx, pool, zap.NewNop()))
	return pool
}

func countOutbox(t *testing.T, pool *pgxpool.Pool, aggregateID string) int {
	t.Helper()
	var n int
	err := pool.QueryRow(context.Background(),
		`SELECT COUNT(*) FROM outbox_events WHERE aggregate_id = $1`, aggregateID).Scan(&n)
	require.NoError(t, err)
	return n
}

func TestTaskRepository_Postgres(t *testing.T) {
	pool := newPostgres(t)
	outboxRepo := outbox.NewRepository(pool)
	repo := NewTaskRepository(pool, outboxRepo, zap.NewNop())
	ctx := context.Background()

	require.NoError(t, repo.Ping(ctx))

	t.Run("assignees round trip through jsonb", func(t *testing.T) {
		task := newTask("pg-roundtrip", t0, 7, 8)
		due := t0.Add(48 * time.Hour)
		task.DueDate = &due
		task.Tags = []string{"backend", "q2"}

		a := task.Assignee(7)
		_, err := a.Workflow.AddStep("design")
		require.NoError(t, err)
		_, err = a.Workflow.AddStep("build")
		require.NoError(t, err)
		a.Workflow[0].Done = true
		a.Progress = 50
		a.Status = model.StatusInProgress
		started := t0.Add(time.Hour)
		a.StartedAt = &started
		a.TimeSpentMinutes = 42
		a.ActiveTimerStartedAt = &started

		require.NoError(t, repo.Create(ctx, task))
		assert.Equal(t, int64(1), task.Version)

		got, err := repo.Get(ctx, "pg-roundtrip")
		require.NoError(t, err)
		assert.Equal(t, int64(1), got.Version)
		assert.Equal(t, []string{"backend", "q2"}, got.Tags)
		require.NotNil(t, got.DueDate)
		assert.True(t, due.Equal(*got.DueDate))
		assert.True(t, t0.Equal(got.CreatedAt))

		require.Len(t, got.Assignees, 2)
		g := got.Assignee(7)
		require.NotNil(t, g)
		assert.Equal(t, model.StatusInProgress, g.Status)
		assert.Equal(t, 50, g.Progress)
		assert.Equal(t, 42, g.TimeSpentMinutes)
		require.NotNil(t, g.ActiveTimerStartedAt)
		assert.True(t, started.Equal(*g.ActiveTimerStartedAt))
		require.Len(t, g.Workflow, 2)
		assert.Equal(t, a.Workflow[0].StepID, g.Workflow[0].StepID)
		assert.True(t, g.Workflow[0].Done)
		assert.Equal(t, 2, g.Workflow[1].Order)
		assert.Equal(t, model.StatusPending, got.Assignee(8).Status)
	})

	t.Run("update is compare and set", func(t *testing.T) {
		require.NoError(t, repo.Create(ctx, newTask("pg-cas", t0, 7)))

		first, err := repo.Get(ctx, "pg-cas")
		require.NoError(t, err)
		second, err := repo.Get(ctx, "pg-cas")
		require.NoError(t, err)

		first.Assignees[0].Progress = 30
		require.NoError(t, repo.Update(ctx, first, model.OutboundEvent{
			RoutingKey: model.RoutingKeyProgressUpdated,
			Payload:    map[string]any{"task_id": "pg-cas"},
		}))
		assert.Equal(t, int64(2), first.Version)

		second.Assignees[0].Progress = 80
		err = repo.Update(ctx, second, model.OutboundEvent{
			RoutingKey: model.RoutingKeyProgressUpdated,
			Payload:    map[string]any{"task_id": "pg-cas"},
		})
		assert.ErrorIs(t, err, ErrVersionConflict)
		assert.Equal(t, int64(1), second.Version)

		stored, err := repo.Get(ctx, "pg-cas")
		require.NoError(t, err)
		assert.Equal(t, int64(2), stored.Version)
		assert.Equal(t, 30, stored.Assignees[0].Progress)
		assert.Equal(t, 1, countOutbox(t, pool, "pg-cas"), "rejected update writes no event")
	})

	t.Run("missing task", func(t *testing.T) {
		_, err := repo.Get(ctx, "pg-nope")
		assert.True(t, model.IsKind(err, model.KindNotFound))

		err = repo.Update(ctx, newTask("pg-nope", t0, 7))
		assert.True(t, model.IsKind(err, model.KindNotFound))
	})

	t.Run("events are written with the task", func(t *testing.T) {
		task := newTask("pg-events", t0, 7)
		require.NoError(t, repo.Create(ctx, task,
			model.OutboundEvent{RoutingKey: model.RoutingKeyProgressUpdated, Payload: model.ProgressEvent{EventID: "e1", TaskID: "pg-events", UserID: 7}},
			model.OutboundEvent{RoutingKey: model.RoutingKeyAssigneeCompleted, Payload: model.ProgressEvent{EventID: "e2", TaskID: "pg-events", UserID: 7}},
		))
		assert.Equal(t, 2, countOutbox(t, pool, "pg-events"))

		var payload []byte
		err := pool.QueryRow(ctx, `
			SELECT payload FROM outbox_events
			WHERE aggregate_id = $1 AND routing_key = $2
		`, "pg-events", model.RoutingKeyAssigneeCompleted).Scan(&payload)
		require.NoError(t, err)
		var ev model.ProgressEvent
		require.NoError(t, json.Unmarshal(payload, &ev))
		assert.Equal(t, "e2", ev.EventID)
	})

	t.Run("list filters by assignee and archive flag", func(t *testing.T) {
		require.NoError(t, repo.Create(ctx, newTask("pg-list-a", t0.Add(time.Hour), 501)))
		require.NoError(t, repo.Create(ctx, newTask("pg-list-b", t0.Add(2*time.Hour), 501, 502)))

		archived := newTask("pg-list-c", t0.Add(3*time.Hour), 501)
		archived.Archive(t0)
		require.NoError(t, repo.Create(ctx, archived))

		uid := 501
		tasks, err := repo.List(ctx, TaskFilter{UserID: &uid})
		require.NoError(t, err)
		require.Len(t, tasks, 2)
		assert.Equal(t, "pg-list-b", tasks[0].ID, "newest first")
		assert.Equal(t, "pg-list-a", tasks[1].ID)

		tasks, err = repo.List(ctx, TaskFilter{UserID: &uid, IncludeArchived: true})
		require.NoError(t, err)
		assert.Len(t, tasks, 3)

		other := 502
		tasks, err = repo.List(ctx, TaskFilter{UserID: &other})
		require.NoError(t, err)
		require.Len(t, tasks, 1)
		assert.Equal(t, "pg-list-b", tasks[0].ID)
	})
}

func TestOutboxRepository_ClaimIsExclusive(t *testing.T) {
	pool := newPostgres(t)
	ctx := context.Background()
	outboxRepo := outbox.NewRepository(pool).WithClaimLease(time.Minute)
	repo := NewTaskRepository(pool, outboxRepo, zap.NewNop())

	const total = 20
	for i := 0; i < total; i++ {
		id := "claim-" + string(rune('a'+i))
		require.NoError(t, repo.Create(ctx, newTask(id, t0, 7), model.OutboundEvent{
			RoutingKey: model.RoutingKeyProgressUpdated,
			Payload:    map[string]any{"task_id": id},
		}))
	}

	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		claimed = map[int64]int{}
	)
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			events, err := outboxRepo.ClaimPendingEvents(ctx, 8)
			assert.NoError(t, err)
			mu.Lock()
			defer mu.Unlock()
			for _, e := range events {
				claimed[e.ID]++
			}
		}()
	}
	wg.Wait()

	assert.Len(t, claimed, total)
	for id, n := range claimed {
		assert.Equal(t, 1, n, "event %d claimed more than once", id)
	}

	again, err := outboxRepo.ClaimPendingEvents(ctx, total)
	require.NoError(t, err)
	assert.Empty(t, again, "claimed events stay leased")

	// 租约到期后重新可见
	_, err = pool.Exec(ctx, `UPDATE outbox_events SET next_retry_at = NOW() - INTERVAL '1 second'`)
	require.NoError(t, err)
	again, err = outboxRepo.ClaimPendingEvents(ctx, 5)
	require.NoError(t, err)
	require.Len(t, again, 5)
	for i := 1; i < len(again); i++ {
		assert.False(t, again[i].CreatedAt.Before(again[i-1].CreatedAt), "oldest first")
	}

	require.NoError(t, outboxRepo.MarkAsSent(ctx, again[0].ID))
	sent, err := outboxRepo.GetEventByID(ctx, again[0].ID)
	require.NoError(t, err)
	assert.Equal(t, outbox.StatusSent, sent.Status)
}
