package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"taskflow/internal/cache"
	"taskflow/internal/model"
	"taskflow/internal/repository"
	"taskflow/pkg/logger"
	"taskflow/pkg/metrics"
)

const (
	defaultPageLimit = 50
	maxPageLimit     = 200
)

// TaskService manages tasks and their assignee lists.
type TaskService struct {
	core
}

func NewTaskService(store repository.TaskStore, c cache.AnalyticsCache, logger *zap.Logger, opts ...Option) *TaskService {
	return &TaskService{core: newCore(store, c, logger, opts)}
}

type CreateTaskInput struct {
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Priority    string     `json:"priority"`
	DueDate     *time.Time `json:"dueDate"`
	Tags        []string   `json:"tags"`
	Assignees   []int      `json:"assignees"`
}

func validateUserIDs(ids []int) error {
	for _, id := range ids {
		if id <= 0 {
			return model.Validationf("invalid user id %d", id)
		}
	}
	return nil
}

func cleanTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		if tag = strings.TrimSpace(tag); tag != "" {
			out = append(out, tag)
		}
	}
	return out
}

func (s *TaskService) CreateTask(ctx context.Context, createdBy int, in CreateTaskInput) (*model.Task, error) {
	title, err := model.ValidateTitle(in.Title)
	if err != nil {
		return nil, err
	}
	priority, err := model.ParsePriority(in.Priority)
	if err != nil {
		return nil, err
	}
	if err := validateUserIDs(in.Assignees); err != nil {
		return nil, err
	}

	now := s.now()
	task := &model.Task{
		ID:          uuid.NewString(),
		Title:       title,
		Description: strings.TrimSpace(in.Description),
		Priority:    priority,
		DueDate:     in.DueDate,
		Tags:        cleanTags(in.Tags),
		CreatedBy:   createdBy,
		CreatedAt:   now,
		UpdatedAt:   now,
		Assignees:   []model.AssigneeProgress{},
	}
	task.ReplaceAssignees(in.Assignees)

	if err := s.store.Create(ctx, task); err != nil {
		return nil, err
	}

	logger.WithTrace(ctx, s.logger).Info("Task created",
		zap.String("task_id", task.ID),
		zap.Int("created_by", createdBy),
		zap.Int("assignees", len(task.Assignees)),
	)
	s.invalidate(ctx, s.logger)
	return task, nil
}

func (s *TaskService) GetTask(ctx context.Context, taskID string) (*model.Task, error) {
	return s.store.Get(ctx, taskID)
}

type ListMyTasksQuery struct {
	Status   string
	Priority string
	Page     int
	Limit    int
}

// ListMyTasks lists the caller's non-archived tasks, newest first. The status
// filter applies to the caller's own entry.
func (s *TaskService) ListMyTasks(ctx context.Context, userID int, q ListMyTasksQuery) (*MyTaskPage, error) {
	var status model.Status
	if q.Status != "" {
		st, err := model.ParseStatus(q.Status)
		if err != nil {
			return nil, err
		}
		status = st
	}
	var priority model.Priority
	if q.Priority != "" {
		p, err := model.ParsePriority(q.Priority)
		if err != nil {
			return nil, err
		}
		priority = p
	}

	page := max(q.Page, 1)
	limit := q.Limit
	if limit <= 0 {
		limit = defaultPageLimit
	}
	limit = min(limit, maxPageLimit)

	tasks, err := s.store.List(ctx, repository.TaskFilter{UserID: &userID})
	if err != nil {
		return nil, err
	}

	now := s.now()
	matched := make([]MyTask, 0, len(tasks))
	for i := range tasks {
		t := &tasks[i]
		a := t.Assignee(userID)
		if a == nil {
			continue
		}
		if status != "" && a.Status != status {
			continue
		}
		if priority != "" && t.Priority != priority {
			continue
		}
		matched = append(matched, newMyTask(t, a, now))
	}

	total := len(matched)
	// page 来自查询参数，先比较再相乘，避免溢出
	start := total
	if page-1 <= total/limit {
		start = min((page-1)*limit, total)
	}
	end := min(start+limit, total)

	return &MyTaskPage{
		Tasks: matched[start:end],
		Total: total,
		Page:  page,
		Limit: limit,
		Pages: (total + limit - 1) / limit,
	}, nil
}

func (s *TaskService) AddAssignee(ctx context.Context, taskID string, userID int) (*model.Task, error) {
	if err := validateUserIDs([]int{userID}); err != nil {
		return nil, err
	}
	task, err := s.mutate(ctx, "add_assignee", taskID, func(t *model.Task, _ time.Time) ([]model.OutboundEvent, error) {
		return nil, t.AddAssignee(userID)
	})
	metrics.IncrementAssigneeMutation("add_assignee", resultLabel(err))
	return task, err
}

func (s *TaskService) RemoveAssignee(ctx context.Context, taskID string, userID int) (*model.Task, error) {
	task, err := s.mutate(ctx, "remove_assignee", taskID, func(t *model.Task, _ time.Time) ([]model.OutboundEvent, error) {
		return nil, t.RemoveAssignee(userID)
	})
	metrics.IncrementAssigneeMutation("remove_assignee", resultLabel(err))
	return task, err
}

// ReplaceAssignees sets the assignee list. Users already assigned keep their
// progress.
func (s *TaskService) ReplaceAssignees(ctx context.Context, taskID string, userIDs []int) (*model.Task, error) {
	if userIDs == nil {
		return nil, model.Validationf("assignees array is required")
	}
	if err := validateUserIDs(userIDs); err != nil {
		return nil, err
	}
	task, err := s.mutate(ctx, "replace_assignees", taskID, func(t *model.Task, _ time.Time) ([]model.OutboundEvent, error) {
		t.ReplaceAssignees(userIDs)
		return nil, nil
	})
	metrics.IncrementAssigneeMutation("replace_assignees", resultLabel(err))
	return task, err
}

// ArchiveTask hides the task from listings and analytics. Archiving twice
// keeps the first archivedAt.
func (s *TaskService) ArchiveTask(ctx context.Context, taskID string) (*model.Task, error) {
	current, err := s.store.Get(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if current.IsArchived {
		return current, nil
	}
	return s.mutate(ctx, "archive", taskID, func(t *model.Task, now time.Time) ([]model.OutboundEvent, error) {
		if !t.IsArchived {
			t.Archive(now)
		}
		return nil, nil
	})
}
