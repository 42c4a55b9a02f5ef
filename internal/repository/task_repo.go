package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"taskflow/internal/model"
	"taskflow/pkg/metrics"
	"taskflow/pkg/outbox"
)

const taskAggregate = "task"

const taskColumns = `id, title, description, priority, due_date, tags, created_by,
       created_at, updated_at, is_archived, archived_at, assignees, version`

// TaskRepository is the PostgreSQL TaskStore. Assignee entries live in the
// tasks.assignees JSONB column so a task is read and written as one row.
type TaskRepository struct {
	db         *pgxpool.Pool
	outboxRepo *outbox.Repository
	logger     *zap.Logger
}

func NewTaskRepository(db *pgxpool.Pool, outboxRepo *outbox.Repository, logger *zap.Logger) *TaskRepository {
	return &TaskRepository{
		db:         db,
		outboxRepo: outboxRepo,
		logger:     logger,
	}
}

func observe(operation string, start time.Time) {
	metrics.RecordDBQueryDuration(operation, "tasks", time.Since(start))
}

func scanTask(row pgx.Row) (*model.Task, error) {
	var (
		t         model.Task
		priority  string
		assignees []byte
	)
	err := row.Scan(
		&t.ID,
		&t.Title,
		&t.Description,
		&priority,
		&t.DueDate,
		&t.Tags,
		&t.CreatedBy,
		&t.CreatedAt,
		&t.UpdatedAt,
		&t.IsArchived,
		&t.ArchivedAt,
		&assignees,
		&t.Version,
	)
	if err != nil {
		return nil, err
	}
	t.Priority = model.Priority(priority)
	if err := json.Unmarshal(assignees, &t.Assignees); err != nil {
		return nil, fmt.Errorf("failed to decode assignees of task %s: %w", t.ID, err)
	}
	return &t, nil
}

func encodeAssignees(assignees []model.AssigneeProgress) ([]byte, error) {
	if assignees == nil {
		assignees = []model.AssigneeProgress{}
	}
	return json.Marshal(assignees)
}

func tagsOrEmpty(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}

// assigneeContains builds the JSONB containment document used to find tasks
// assigned to a user.
func assigneeContains(userID int) string {
	return fmt.Sprintf(`[{"userId":%d}]`, userID)
}

func (r *TaskRepository) Ping(ctx context.Context) error {
	return r.db.Ping(ctx)
}

func (r *TaskRepository) Get(ctx context.Context, id string) (*model.Task, error) {
	r.logger.Debug("Loading task", zap.String("task_id", id))
	defer observe("select", time.Now())

	t, err := scanTask(r.db.QueryRow(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.NotFoundf("task not found")
		}
		r.logger.Error("Failed to load task", zap.String("task_id", id), zap.Error(err))
		return nil, model.StorageError("failed to load task", err)
	}
	return t, nil
}

func (r *TaskRepository) List(ctx context.Context, filter TaskFilter) ([]model.Task, error) {
	r.logger.Debug("Listing tasks",
		zap.Any("user_id", filter.UserID),
		zap.Bool("include_archived", filter.IncludeArchived),
	)
	defer observe("select", time.Now())

	query := `SELECT ` + taskColumns + ` FROM tasks WHERE ($1 OR NOT is_archived)`
	args := []any{filter.IncludeArchived}
	if filter.UserID != nil {
		query += ` AND assignees @> $2::jsonb`
		args = append(args, assigneeContains(*filter.UserID))
	}
	query += ` ORDER BY created_at DESC, id`

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to query tasks", zap.Error(err))
		return nil, model.StorageError("failed to list tasks", err)
	}
	defer rows.Close()

	tasks := []model.Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			r.logger.Error("Failed to scan task row", zap.Error(err))
			return nil, model.StorageError("failed to list tasks", err)
		}
		tasks = append(tasks, *t)
	}
	if err := rows.Err(); err != nil {
		r.logger.Error("Failed to iterate task rows", zap.Error(err))
		return nil, model.StorageError("failed to list tasks", err)
	}

	r.logger.Info("Tasks listed successfully", zap.Int("count", len(tasks)))
	return tasks, nil
}

func (r *TaskRepository) Create(ctx context.Context, task *model.Task, events ...model.OutboundEvent) error {
	r.logger.Debug("Inserting task",
		zap.String("task_id", task.ID),
		zap.String("title", task.Title),
		zap.Int("assignees", len(task.Assignees)),
	)
	defer observe("insert", time.Now())

	assignees, err := encodeAssignees(task.Assignees)
	if err != nil {
		return model.StorageError("failed to encode assignees", err)
	}

	err = r.inTx(ctx, task.ID, events, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO tasks (id, title, description, priority, due_date, tags, created_by,
			                   created_at, updated_at, is_archived, archived_at, assignees, version)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, 1)
		`,
			task.ID,
			task.Title,
			task.Description,
			string(task.Priority),
			task.DueDate,
			tagsOrEmpty(task.Tags),
			task.CreatedBy,
			task.CreatedAt,
			task.UpdatedAt,
			task.IsArchived,
			task.ArchivedAt,
			assignees,
		)
		return err
	})
	if err != nil {
		r.logger.Error("Failed to insert task", zap.String("task_id", task.ID), zap.Error(err))
		return model.StorageError("failed to create task", err)
	}

	task.Version = 1
	r.logger.Info("Task inserted successfully", zap.String("task_id", task.ID))
	return nil
}

func (r *TaskRepository) Update(ctx context.Context, task *model.Task, events ...model.OutboundEvent) error {
	r.logger.Debug("Updating task",
		zap.String("task_id", task.ID),
		zap.Int64("version", task.Version),
	)
	defer observe("update", time.Now())

	assignees, err := encodeAssignees(task.Assignees)
	if err != nil {
		return model.StorageError("failed to encode assignees", err)
	}

	var conflict, missing bool
	err = r.inTx(ctx, task.ID, events, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE tasks
			SET title = $3, description = $4, priority = $5, due_date = $6, tags = $7,
			    updated_at = $8, is_archived = $9, archived_at = $10, assignees = $11,
			    version = version + 1
			WHERE id = $1 AND version = $2
		`,
			task.ID,
			task.Version,
			task.Title,
			task.Description,
			string(task.Priority),
			task.DueDate,
			tagsOrEmpty(task.Tags),
			task.UpdatedAt,
			task.IsArchived,
			task.ArchivedAt,
			assignees,
		)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 1 {
			return nil
		}

		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM tasks WHERE id = $1)`, task.ID).Scan(&exists); err != nil {
			return err
		}
		if exists {
			conflict = true
			return ErrVersionConflict
		}
		missing = true
		return model.NotFoundf("task not found")
	})

	switch {
	case err == nil:
	case conflict:
		r.logger.Info("Task version conflict",
			zap.String("task_id", task.ID),
			zap.Int64("version", task.Version),
		)
		return ErrVersionConflict
	case missing:
		return err
	default:
		r.logger.Error("Failed to update task", zap.String("task_id", task.ID), zap.Error(err))
		return model.StorageError("failed to update task", err)
	}

	task.Version++
	r.logger.Info("Task updated successfully",
		zap.String("task_id", task.ID),
		zap.Int64("version", task.Version),
		zap.Int("events", len(events)),
	)
	return nil
}

// inTx runs write and then appends events to the outbox in the same
// transaction.
func (r *TaskRepository) inTx(ctx context.Context, taskID string, events []model.OutboundEvent, write func(pgx.Tx) error) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := write(tx); err != nil {
		return err
	}

	for _, e := range events {
		if err := outbox.InsertEventInTx(ctx, tx, r.outboxRepo, taskAggregate, taskID, e.RoutingKey, e.Payload); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
