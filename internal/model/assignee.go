package model

import (
	"math"
	"time"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in-progress"
	StatusCompleted  Status = "completed"
)

func ParseStatus(s string) (Status, error) {
	switch st := Status(s); st {
	case StatusPending, StatusInProgress, StatusCompleted:
		return st, nil
	case "":
		return "", Validationf("status is required")
	default:
		return "", Validationf("invalid status value")
	}
}

// AssigneeProgress is one user's independent progress on a task.
type AssigneeProgress struct {
	UserID      int        `json:"userId"`
	Status      Status     `json:"status"`
	Progress    int        `json:"progress"`
	StartedAt   *time.Time `json:"startedAt"`
	CompletedAt *time.Time `json:"completedAt"`
	Timer
	Workflow Workflow `json:"workflow"`
}

func NewAssignee(userID int) AssigneeProgress {
	return AssigneeProgress{
		UserID:   userID,
		Status:   StatusPending,
		Workflow: Workflow{},
	}
}

func (a AssigneeProgress) Clone() AssigneeProgress {
	out := a
	out.StartedAt = cloneTime(a.StartedAt)
	out.CompletedAt = cloneTime(a.CompletedAt)
	out.ActiveTimerStartedAt = cloneTime(a.ActiveTimerStartedAt)
	out.Workflow = a.Workflow.Clone()
	return out
}

// SetStatus is the explicit-user-action path of the state machine.
func (a *AssigneeProgress) SetStatus(status Status, now time.Time) error {
	if _, err := ParseStatus(string(status)); err != nil {
		return err
	}

	a.Status = status
	switch status {
	case StatusInProgress:
		a.markStarted(now)
		a.CompletedAt = nil
	case StatusCompleted:
		a.markStarted(now)
		a.Progress = 100
		a.complete(now)
	case StatusPending:
		a.CompletedAt = nil
	}
	return nil
}

// ApplyWorkflow runs cmd against the personal workflow and recomputes progress
// and status. On error the assignee is left untouched.
func (a *AssigneeProgress) ApplyWorkflow(cmd WorkflowCommand, now time.Time) (WorkflowResult, error) {
	next := a.Clone()
	before := len(next.Workflow)

	res, err := cmd.apply(&next.Workflow)
	if err != nil {
		return WorkflowResult{}, err
	}

	emptied := before > 0 && len(next.Workflow) == 0
	next.recompute(emptied, now)

	*a = next
	return res, nil
}

func (a *AssigneeProgress) recompute(emptied bool, now time.Time) {
	steps := len(a.Workflow)
	if steps == 0 && !emptied {
		return
	}

	progress := 0
	if steps > 0 {
		progress = int(math.Round(a.Workflow.CompletionRatio() * 100))
	}

	prev := a.Status
	a.Progress = progress
	a.Status = StatusPolicy(prev, progress, steps)

	switch a.Status {
	case StatusCompleted:
		a.markStarted(now)
		if prev != StatusCompleted || a.CompletedAt == nil {
			a.complete(now)
		}
	case StatusInProgress:
		a.markStarted(now)
		a.CompletedAt = nil
	default:
		a.CompletedAt = nil
	}
}

// StatusPolicy decides the workflow-driven status from the previous status,
// the recomputed progress and the number of remaining steps.
//
//	steps == 0          -> pending (the workflow was emptied)
//	progress == 100     -> completed
//	0 < progress < 100  -> in-progress
//	progress == 0       -> pending stays pending, anything else regresses to in-progress
func StatusPolicy(prev Status, progress, steps int) Status {
	switch {
	case steps == 0:
		return StatusPending
	case progress >= 100:
		return StatusCompleted
	case progress > 0:
		return StatusInProgress
	case prev == StatusPending:
		return StatusPending
	default:
		return StatusInProgress
	}
}

func (a *AssigneeProgress) markStarted(now time.Time) {
	if a.StartedAt == nil {
		t := now
		a.StartedAt = &t
	}
}

func (a *AssigneeProgress) complete(now time.Time) {
	t := now
	a.CompletedAt = &t
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
