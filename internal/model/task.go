package model

import (
	"math"
	"strings"
	"time"
	"unicode/utf8"
)

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Priorities lists every priority in reporting order.
var Priorities = []Priority{PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent}

func ParsePriority(s string) (Priority, error) {
	if s == "" {
		return PriorityMedium, nil
	}
	for _, p := range Priorities {
		if string(p) == s {
			return p, nil
		}
	}
	return "", Validationf("%s is not a valid priority", s)
}

// Task is the aggregate root. Every write of a task goes through the store
// with the Version it was read at.
type Task struct {
	ID          string             `json:"id"`
	Title       string             `json:"title"`
	Description string             `json:"description"`
	Priority    Priority           `json:"priority"`
	DueDate     *time.Time         `json:"dueDate"`
	Tags        []string           `json:"tags"`
	CreatedBy   int                `json:"createdBy"`
	CreatedAt   time.Time          `json:"createdAt"`
	UpdatedAt   time.Time          `json:"updatedAt"`
	IsArchived  bool               `json:"isArchived"`
	ArchivedAt  *time.Time         `json:"archivedAt"`
	Assignees   []AssigneeProgress `json:"assignees"`
	Version     int64              `json:"version"`
}

// ValidateTitle trims and checks a task title.
func ValidateTitle(title string) (string, error) {
	title = strings.TrimSpace(title)
	n := utf8.RuneCountInString(title)
	switch {
	case title == "":
		return "", Validationf("title is required")
	case n < 3:
		return "", Validationf("task title must be at least 3 characters")
	case n > 200:
		return "", Validationf("task title cannot exceed 200 characters")
	}
	return title, nil
}

// Assignee returns a pointer into the assignee list, or nil.
func (t *Task) Assignee(userID int) *AssigneeProgress {
	for i := range t.Assignees {
		if t.Assignees[i].UserID == userID {
			return &t.Assignees[i]
		}
	}
	return nil
}

func (t *Task) HasAssignee(userID int) bool {
	return t.Assignee(userID) != nil
}

func (t *Task) AddAssignee(userID int) error {
	if t.HasAssignee(userID) {
		return Conflictf("user %d is already assigned to this task", userID)
	}
	t.Assignees = append(t.Assignees, NewAssignee(userID))
	return nil
}

// RemoveAssignee drops the user's entry together with its workflow and timer
// history.
func (t *Task) RemoveAssignee(userID int) error {
	for i := range t.Assignees {
		if t.Assignees[i].UserID == userID {
			t.Assignees = append(t.Assignees[:i], t.Assignees[i+1:]...)
			return nil
		}
	}
	return NotFoundf("user %d is not assigned to this task", userID)
}

// ReplaceAssignees keeps entries for users still listed, in their existing
// order, then appends defaults for new users. Duplicates collapse.
func (t *Task) ReplaceAssignees(userIDs []int) {
	wanted := make(map[int]bool, len(userIDs))
	for _, id := range userIDs {
		wanted[id] = true
	}

	kept := make([]AssigneeProgress, 0, len(userIDs))
	seen := make(map[int]bool, len(userIDs))
	for _, a := range t.Assignees {
		if wanted[a.UserID] && !seen[a.UserID] {
			kept = append(kept, a)
			seen[a.UserID] = true
		}
	}
	for _, id := range userIDs {
		if !seen[id] {
			kept = append(kept, NewAssignee(id))
			seen[id] = true
		}
	}
	t.Assignees = kept
}

func (t *Task) Archive(now time.Time) {
	t.IsArchived = true
	at := now
	t.ArchivedAt = &at
}

// Progress is the rounded mean of assignee progress.
func (t *Task) Progress() int {
	if len(t.Assignees) == 0 {
		return 0
	}
	sum := 0
	for _, a := range t.Assignees {
		sum += a.Progress
	}
	return int(math.Round(float64(sum) / float64(len(t.Assignees))))
}

// HasIncomplete reports whether any assignee has not completed.
func (t *Task) HasIncomplete() bool {
	for _, a := range t.Assignees {
		if a.Status != StatusCompleted {
			return true
		}
	}
	return false
}

func (t *Task) IsFullyCompleted() bool {
	return len(t.Assignees) > 0 && !t.HasIncomplete()
}

// Status is derived from the assignees, never stored.
func (t *Task) Status() Status {
	if t.IsFullyCompleted() {
		return StatusCompleted
	}
	for _, a := range t.Assignees {
		if a.Status != StatusPending {
			return StatusInProgress
		}
	}
	return StatusPending
}

func (t *Task) IsOverdue(now time.Time) bool {
	if t.DueDate == nil || t.IsFullyCompleted() {
		return false
	}
	return now.After(*t.DueDate)
}

// DaysUntilDue rounds up to whole days; negative once the due date passed.
func (t *Task) DaysUntilDue(now time.Time) *int {
	if t.DueDate == nil {
		return nil
	}
	days := int(math.Ceil(t.DueDate.Sub(now).Hours() / 24))
	return &days
}

func (t Task) Clone() Task {
	out := t
	out.DueDate = cloneTime(t.DueDate)
	out.ArchivedAt = cloneTime(t.ArchivedAt)
	if t.Tags != nil {
		out.Tags = append([]string(nil), t.Tags...)
	}
	if t.Assignees != nil {
		out.Assignees = make([]AssigneeProgress, len(t.Assignees))
		for i, a := range t.Assignees {
			out.Assignees[i] = a.Clone()
		}
	}
	return out
}
