package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"taskflow/internal/cache"
	"taskflow/internal/model"
	"taskflow/internal/repository"
	"taskflow/pkg/metrics"
	"taskflow/pkg/trace"
)

// ProgressService runs one assignee's operations on a task: status, timer and
// personal workflow.
type ProgressService struct {
	core
}

func NewProgressService(store repository.TaskStore, c cache.AnalyticsCache, logger *zap.Logger, opts ...Option) *ProgressService {
	return &ProgressService{core: newCore(store, c, logger, opts)}
}

func notAssigned() error {
	return model.Forbiddenf("you are not assigned to this task")
}

// load returns the task and the caller's entry in it.
func (s *ProgressService) load(ctx context.Context, userID int, taskID string) (*model.Task, *model.AssigneeProgress, error) {
	task, err := s.store.Get(ctx, taskID)
	if err != nil {
		return nil, nil, err
	}
	a := task.Assignee(userID)
	if a == nil {
		return nil, nil, notAssigned()
	}
	return task, a, nil
}

func (s *ProgressService) GetMyTask(ctx context.Context, userID int, taskID string) (*MyTask, error) {
	task, a, err := s.load(ctx, userID, taskID)
	if err != nil {
		return nil, err
	}
	view := newMyTask(task, a, s.now())
	return &view, nil
}

func (s *ProgressService) GetWorkflow(ctx context.Context, userID int, taskID string) (*WorkflowState, error) {
	_, a, err := s.load(ctx, userID, taskID)
	if err != nil {
		return nil, err
	}
	state := newWorkflowState(a, "")
	return &state, nil
}

func (s *ProgressService) AddWorkflowStep(ctx context.Context, userID int, taskID, label string) (*WorkflowState, error) {
	return s.ApplyWorkflowCommand(ctx, userID, taskID, model.AddStep{Label: label})
}

func (s *ProgressService) ToggleWorkflowStep(ctx context.Context, userID int, taskID, stepID string) (*WorkflowState, error) {
	if stepID == "" {
		return nil, model.Validationf("stepId is required")
	}
	return s.ApplyWorkflowCommand(ctx, userID, taskID, model.ToggleStep{StepID: stepID})
}

func (s *ProgressService) ReorderWorkflowSteps(ctx context.Context, userID int, taskID string, steps []model.StepOrder) (*WorkflowState, error) {
	if steps == nil {
		return nil, model.Validationf("steps array is required")
	}
	return s.ApplyWorkflowCommand(ctx, userID, taskID, model.Reorder{Steps: steps})
}

func (s *ProgressService) DeleteWorkflowStep(ctx context.Context, userID int, taskID, stepID string) (*WorkflowState, error) {
	if stepID == "" {
		return nil, model.Validationf("stepId is required")
	}
	return s.ApplyWorkflowCommand(ctx, userID, taskID, model.DeleteStep{StepID: stepID})
}

// ApplyWorkflowCommand runs cmd on the caller's workflow and recomputes their
// progress and status.
func (s *ProgressService) ApplyWorkflowCommand(ctx context.Context, userID int, taskID string, cmd model.WorkflowCommand) (*WorkflowState, error) {
	var stepID string
	a, err := s.mutateAssignee(ctx, cmd.Name(), userID, taskID, func(a *model.AssigneeProgress, now time.Time) error {
		res, err := a.ApplyWorkflow(cmd, now)
		stepID = res.StepID
		return err
	})
	if err != nil {
		return nil, err
	}
	state := newWorkflowState(a, stepID)
	return &state, nil
}

func (s *ProgressService) UpdateTimer(ctx context.Context, userID int, taskID string, action model.TimerAction) (*TimerState, error) {
	if _, err := model.ParseTimerAction(string(action)); err != nil {
		return nil, err
	}
	a, err := s.mutateAssignee(ctx, "timer_"+string(action), userID, taskID, func(a *model.AssigneeProgress, now time.Time) error {
		return a.Apply(action, now)
	})
	if err != nil {
		return nil, err
	}
	return &TimerState{TimeSpentMinutes: a.TimeSpentMinutes, IsTimerActive: a.IsActive()}, nil
}

func (s *ProgressService) SetAssigneeStatus(ctx context.Context, userID int, taskID string, status model.Status) (*StatusState, error) {
	if _, err := model.ParseStatus(string(status)); err != nil {
		return nil, err
	}
	a, err := s.mutateAssignee(ctx, "set_status", userID, taskID, func(a *model.AssigneeProgress, now time.Time) error {
		return a.SetStatus(status, now)
	})
	if err != nil {
		return nil, err
	}
	return &StatusState{Status: a.Status, Progress: a.Progress}, nil
}

// mutateAssignee applies fn to the caller's entry under the CAS loop and
// returns a copy of the entry as written.
func (s *ProgressService) mutateAssignee(
	ctx context.Context,
	action string,
	userID int,
	taskID string,
	fn func(a *model.AssigneeProgress, now time.Time) error,
) (*model.AssigneeProgress, error) {
	var written model.AssigneeProgress
	_, err := s.mutate(ctx, action, taskID, func(t *model.Task, now time.Time) ([]model.OutboundEvent, error) {
		a := t.Assignee(userID)
		if a == nil {
			return nil, notAssigned()
		}
		prev := a.Status
		if err := fn(a, now); err != nil {
			return nil, err
		}
		written = a.Clone()
		return progressEvents(ctx, t.ID, action, prev, a, now), nil
	})
	metrics.IncrementAssigneeMutation(action, resultLabel(err))
	if err != nil {
		return nil, err
	}
	return &written, nil
}

// progressEvents builds the events for one assignee mutation: always a
// progress update, plus a completion event on the transition into completed.
func progressEvents(ctx context.Context, taskID, action string, prev model.Status, a *model.AssigneeProgress, now time.Time) []model.OutboundEvent {
	payload := model.ProgressEvent{
		EventID:          uuid.NewString(),
		TraceID:          trace.FromContext(ctx),
		TaskID:           taskID,
		UserID:           a.UserID,
		Action:           action,
		Status:           a.Status,
		Progress:         a.Progress,
		TimeSpentMinutes: a.TimeSpentMinutes,
		OccurredAt:       now,
	}
	events := []model.OutboundEvent{{RoutingKey: model.RoutingKeyProgressUpdated, Payload: payload}}
	if prev != model.StatusCompleted && a.Status == model.StatusCompleted {
		completed := payload
		completed.EventID = uuid.NewString()
		events = append(events, model.OutboundEvent{RoutingKey: model.RoutingKeyAssigneeCompleted, Payload: completed})
	}
	return events
}
