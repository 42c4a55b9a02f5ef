package repository

import (
	"context"
	"errors"

	"taskflow/internal/model"
)

// ErrVersionConflict is returned by Update when the stored version no longer
// matches the version the task was read at.
var ErrVersionConflict = errors.New("task version conflict")

// TaskFilter narrows List. A nil UserID lists every task.
type TaskFilter struct {
	UserID          *int
	IncludeArchived bool
}

// TaskStore persists task aggregates with optimistic versioning.
type TaskStore interface {
	Get(ctx context.Context, id string) (*model.Task, error)
	List(ctx context.Context, filter TaskFilter) ([]model.Task, error)
	// Create stores a new task at version 1.
	Create(ctx context.Context, task *model.Task, events ...model.OutboundEvent) error
	// Update is a compare-and-set on task.Version. On success task.Version is
	// advanced to the stored value; events are recorded atomically with the
	// write.
	Update(ctx context.Context, task *model.Task, events ...model.OutboundEvent) error
	Ping(ctx context.Context) error
}

func matches(t *model.Task, f TaskFilter) bool {
	if t.IsArchived && !f.IncludeArchived {
		return false
	}
	if f.UserID != nil && !t.HasAssignee(*f.UserID) {
		return false
	}
	return true
}
