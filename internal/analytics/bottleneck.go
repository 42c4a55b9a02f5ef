package analytics

import (
	"sort"
	"time"

	"taskflow/internal/model"
)

const (
	longRunningAfterDays = 7
	reassignedAbove      = 2
	bottleneckLimit      = 10
)

type TaskRef struct {
	ID          string         `json:"id"`
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Priority    model.Priority `json:"priority"`
	Status      model.Status   `json:"status"`
}

type OverdueTask struct {
	TaskRef
	DueDate   time.Time `json:"dueDate"`
	Assignees int       `json:"assignees"`
}

type LongRunningTask struct {
	TaskRef
	DurationDays int `json:"duration"`
}

type ReassignedTask struct {
	TaskRef
	AssigneeCount int `json:"assigneeCount"`
}

type BottleneckSet struct {
	Overdue        []OverdueTask     `json:"overdue"`
	LongRunning    []LongRunningTask `json:"longRunning"`
	MostReassigned []ReassignedTask  `json:"mostReassigned"`
}

func refOf(t *model.Task) TaskRef {
	return TaskRef{
		ID:          t.ID,
		Title:       t.Title,
		Description: t.Description,
		Priority:    t.Priority,
		Status:      t.Status(),
	}
}

// Bottlenecks classifies tasks that are overdue, stalled for more than a
// week, or spread over many assignees. The last two lists are capped at ten.
func (a *Aggregator) Bottlenecks(tasks []model.Task) BottleneckSet {
	now := a.now()
	set := BottleneckSet{
		Overdue:        []OverdueTask{},
		LongRunning:    []LongRunningTask{},
		MostReassigned: []ReassignedTask{},
	}

	for i := range tasks {
		t := &tasks[i]
		incomplete := t.HasIncomplete()

		if incomplete && t.DueDate != nil && t.DueDate.Before(now) {
			set.Overdue = append(set.Overdue, OverdueTask{
				TaskRef:   refOf(t),
				DueDate:   *t.DueDate,
				Assignees: len(t.Assignees),
			})
		}
		if incomplete && wholeDays(now, t.UpdatedAt) > longRunningAfterDays {
			set.LongRunning = append(set.LongRunning, LongRunningTask{
				TaskRef:      refOf(t),
				DurationDays: wholeDays(now, t.CreatedAt),
			})
		}
		if len(t.Assignees) > reassignedAbove {
			set.MostReassigned = append(set.MostReassigned, ReassignedTask{
				TaskRef:       refOf(t),
				AssigneeCount: len(t.Assignees),
			})
		}
	}

	sort.SliceStable(set.LongRunning, func(i, j int) bool {
		return set.LongRunning[i].DurationDays > set.LongRunning[j].DurationDays
	})
	sort.SliceStable(set.MostReassigned, func(i, j int) bool {
		return set.MostReassigned[i].AssigneeCount > set.MostReassigned[j].AssigneeCount
	})
	set.LongRunning = set.LongRunning[:min(len(set.LongRunning), bottleneckLimit)]
	set.MostReassigned = set.MostReassigned[:min(len(set.MostReassigned), bottleneckLimit)]
	return set
}
