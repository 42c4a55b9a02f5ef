package service

import (
	"time"

	"taskflow/internal/model"
)

// MyTask is a task seen through one assignee's entry.
type MyTask struct {
	ID            string         `json:"id"`
	Title         string         `json:"title"`
	Description   string         `json:"description"`
	Priority      model.Priority `json:"priority"`
	Status        model.Status   `json:"status"`
	Progress      int            `json:"progress"`
	DueDate       *time.Time     `json:"dueDate"`
	IsOverdue     bool           `json:"isOverdue"`
	DaysUntilDue  *int           `json:"daysUntilDue"`
	Tags          []string       `json:"tags"`
	CreatedBy     int            `json:"createdBy"`
	CreatedAt     time.Time      `json:"createdAt"`
	UpdatedAt     time.Time      `json:"updatedAt"`
	MyStatus      model.Status   `json:"myStatus"`
	MyProgress    int            `json:"myProgress"`
	MyWorkflow    model.Workflow `json:"myWorkflow"`
	MyTimeSpent   int            `json:"myTimeSpent"`
	MyStartedAt   *time.Time     `json:"myStartedAt"`
	MyCompletedAt *time.Time     `json:"myCompletedAt"`
	IsTimerActive bool           `json:"isTimerActive"`
}

func newMyTask(t *model.Task, a *model.AssigneeProgress, now time.Time) MyTask {
	tags := t.Tags
	if tags == nil {
		tags = []string{}
	}
	workflow := a.Workflow
	if workflow == nil {
		workflow = model.Workflow{}
	}
	return MyTask{
		ID:            t.ID,
		Title:         t.Title,
		Description:   t.Description,
		Priority:      t.Priority,
		Status:        t.Status(),
		Progress:      t.Progress(),
		DueDate:       t.DueDate,
		IsOverdue:     t.IsOverdue(now),
		DaysUntilDue:  t.DaysUntilDue(now),
		Tags:          tags,
		CreatedBy:     t.CreatedBy,
		CreatedAt:     t.CreatedAt,
		UpdatedAt:     t.UpdatedAt,
		MyStatus:      a.Status,
		MyProgress:    a.Progress,
		MyWorkflow:    workflow,
		MyTimeSpent:   a.TimeSpentMinutes,
		MyStartedAt:   a.StartedAt,
		MyCompletedAt: a.CompletedAt,
		IsTimerActive: a.IsActive(),
	}
}

// MyTaskPage is one page of ListMyTasks.
type MyTaskPage struct {
	Tasks []MyTask `json:"tasks"`
	Total int      `json:"total"`
	Page  int      `json:"page"`
	Limit int      `json:"limit"`
	Pages int      `json:"pages"`
}

// WorkflowState is an assignee's workflow after a read or a command.
type WorkflowState struct {
	StepID         string         `json:"stepId,omitempty"`
	Workflow       model.Workflow `json:"workflow"`
	Progress       int            `json:"progress"`
	Status         model.Status   `json:"status"`
	CompletedSteps int            `json:"completedSteps"`
	TotalSteps     int            `json:"totalSteps"`
}

func newWorkflowState(a *model.AssigneeProgress, stepID string) WorkflowState {
	completed, total := a.Workflow.Counts()
	workflow := a.Workflow
	if workflow == nil {
		workflow = model.Workflow{}
	}
	return WorkflowState{
		StepID:         stepID,
		Workflow:       workflow,
		Progress:       a.Progress,
		Status:         a.Status,
		CompletedSteps: completed,
		TotalSteps:     total,
	}
}

type TimerState struct {
	TimeSpentMinutes int  `json:"timeSpentMinutes"`
	IsTimerActive    bool `json:"isTimerActive"`
}

type StatusState struct {
	Status   model.Status `json:"status"`
	Progress int          `json:"progress"`
}
