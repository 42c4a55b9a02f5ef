package model

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func taskWith(statuses ...Status) Task {
	var t Task
	for i, s := range statuses {
		a := NewAssignee(i + 1)
		a.Status = s
		if s == StatusCompleted {
			a.Progress = 100
		}
		t.Assignees = append(t.Assignees, a)
	}
	return t
}

func TestTask_DerivedStatus(t *testing.T) {
	tests := []struct {
		name     string
		task     Task
		want     Status
		complete bool
	}{
		{"no assignees", taskWith(), StatusPending, false},
		{"all pending", taskWith(StatusPending, StatusPending), StatusPending, false},
		{"one started", taskWith(StatusPending, StatusInProgress), StatusInProgress, false},
		{"partly completed", taskWith(StatusCompleted, StatusPending), StatusInProgress, false},
		{"all completed", taskWith(StatusCompleted, StatusCompleted), StatusCompleted, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.task.Status())
			assert.Equal(t, tt.complete, tt.task.IsFullyCompleted())
		})
	}
}

func TestTask_Progress(t *testing.T) {
	task := taskWith(StatusInProgress, StatusInProgress, StatusInProgress)
	task.Assignees[0].Progress = 33
	task.Assignees[1].Progress = 50
	task.Assignees[2].Progress = 0

	assert.Equal(t, 28, task.Progress())
	empty := taskWith()
	assert.Equal(t, 0, empty.Progress())
}

func TestTask_OverdueAndDaysUntilDue(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	due := now.Add(-36 * time.Hour)

	task := taskWith(StatusInProgress)
	task.DueDate = &due
	assert.True(t, task.IsOverdue(now))
	require.NotNil(t, task.DaysUntilDue(now))
	assert.Equal(t, -1, *task.DaysUntilDue(now))

	done := taskWith(StatusCompleted)
	done.DueDate = &due
	assert.False(t, done.IsOverdue(now), "completed tasks are never overdue")

	future := now.Add(30 * time.Hour)
	task.DueDate = &future
	assert.False(t, task.IsOverdue(now))
	assert.Equal(t, 2, *task.DaysUntilDue(now))

	task.DueDate = nil
	assert.Nil(t, task.DaysUntilDue(now))
	assert.False(t, task.IsOverdue(now))
}

func TestTask_AddAndRemoveAssignee(t *testing.T) {
	var task Task
	require.NoError(t, task.AddAssignee(4))

	err := task.AddAssignee(4)
	assert.Equal(t, KindConflict, KindOf(err))
	assert.Len(t, task.Assignees, 1)

	require.NoError(t, task.RemoveAssignee(4))
	assert.Empty(t, task.Assignees)
	assert.Equal(t, KindNotFound, KindOf(task.RemoveAssignee(4)))
}

func TestTask_ReplaceAssigneesKeepsProgress(t *testing.T) {
	task := taskWith(StatusCompleted, StatusInProgress)
	task.Assignees[1].TimeSpentMinutes = 45

	task.ReplaceAssignees([]int{2, 9, 9})

	require.Len(t, task.Assignees, 2)
	assert.Equal(t, 2, task.Assignees[0].UserID)
	assert.Equal(t, 45, task.Assignees[0].TimeSpentMinutes)
	assert.Equal(t, StatusInProgress, task.Assignees[0].Status)
	assert.Equal(t, 9, task.Assignees[1].UserID)
	assert.Equal(t, StatusPending, task.Assignees[1].Status)
}

func TestTask_CloneIsDeep(t *testing.T) {
	task := taskWith(StatusPending)
	task.Tags = []string{"a"}
	task.Assignees[0].Workflow = Workflow{{StepID: "s1", Order: 1}}

	c := task.Clone()
	c.Tags[0] = "b"
	c.Assignees[0].Workflow[0].Done = true
	c.Assignees[0].Progress = 99

	assert.Equal(t, "a", task.Tags[0])
	assert.False(t, task.Assignees[0].Workflow[0].Done)
	assert.Equal(t, 0, task.Assignees[0].Progress)
}

func TestValidateTitle(t *testing.T) {
	got, err := ValidateTitle("  Ship it  ")
	require.NoError(t, err)
	assert.Equal(t, "Ship it", got)

	for _, bad := range []string{"", "  ", "ab", "任务", strings.Repeat("x", 201), strings.Repeat("任", 201)} {
		_, err := ValidateTitle(bad)
		assert.Equal(t, KindValidation, KindOf(err), bad)
	}

	// limits count characters, not bytes
	for _, ok := range []string{"修复缺", strings.Repeat("任", 200)} {
		got, err := ValidateTitle(ok)
		require.NoError(t, err)
		assert.Equal(t, ok, got)
	}
}
