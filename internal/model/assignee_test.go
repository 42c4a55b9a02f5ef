package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

func assertInvariant(t *testing.T, a AssigneeProgress) {
	t.Helper()
	if a.Status == StatusCompleted {
		assert.Equal(t, 100, a.Progress, "completed implies progress 100")
		assert.NotNil(t, a.CompletedAt, "completed implies completedAt")
	} else {
		assert.Nil(t, a.CompletedAt, "completedAt only on completed")
	}
	if a.Status != StatusPending {
		assert.NotNil(t, a.StartedAt, "startedAt set once out of pending")
	}
	assert.GreaterOrEqual(t, a.Progress, 0)
	assert.LessOrEqual(t, a.Progress, 100)
}

func TestAssignee_SingleStepToggleCompletes(t *testing.T) {
	a := NewAssignee(7)
	a.Workflow = Workflow{{StepID: "s1", Label: "only", Order: 1}}

	_, err := a.ApplyWorkflow(ToggleStep{StepID: "s1"}, t0)
	require.NoError(t, err)

	assert.Equal(t, 100, a.Progress)
	assert.Equal(t, StatusCompleted, a.Status)
	require.NotNil(t, a.CompletedAt)
	assert.Equal(t, t0, *a.CompletedAt)
	assertInvariant(t, a)
}

func TestAssignee_HalfDoneIsInProgress(t *testing.T) {
	a := NewAssignee(7)
	a.Workflow = Workflow{{StepID: "s1", Order: 1}, {StepID: "s2", Order: 2}}

	_, err := a.ApplyWorkflow(ToggleStep{StepID: "s1"}, t0)
	require.NoError(t, err)

	assert.Equal(t, 50, a.Progress)
	assert.Equal(t, StatusInProgress, a.Status)
	require.NotNil(t, a.StartedAt)
	assert.Equal(t, t0, *a.StartedAt)
	assertInvariant(t, a)
}

func TestAssignee_ToggleTwiceRestoresDoneAndProgress(t *testing.T) {
	a := NewAssignee(7)
	a.Workflow = Workflow{{StepID: "s1", Order: 1}, {StepID: "s2", Order: 2, Done: true}, {StepID: "s3", Order: 3}}
	_, err := a.ApplyWorkflow(Reorder{}, t0)
	require.NoError(t, err)
	origProgress := a.Progress

	_, err = a.ApplyWorkflow(ToggleStep{StepID: "s1"}, t0)
	require.NoError(t, err)
	_, err = a.ApplyWorkflow(ToggleStep{StepID: "s1"}, t0.Add(time.Minute))
	require.NoError(t, err)

	assert.False(t, a.Workflow[0].Done)
	assert.Equal(t, origProgress, a.Progress)
	assertInvariant(t, a)
}

func TestAssignee_CompletedRegressesToInProgress(t *testing.T) {
	a := NewAssignee(7)
	a.Workflow = Workflow{{StepID: "s1", Order: 1}}
	_, err := a.ApplyWorkflow(ToggleStep{StepID: "s1"}, t0)
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, a.Status)

	_, err = a.ApplyWorkflow(ToggleStep{StepID: "s1"}, t0.Add(time.Hour))
	require.NoError(t, err)

	assert.Equal(t, 0, a.Progress)
	assert.Equal(t, StatusInProgress, a.Status)
	assert.Nil(t, a.CompletedAt)
	assertInvariant(t, a)
}

func TestAssignee_AddStepToPendingStaysPending(t *testing.T) {
	a := NewAssignee(7)

	res, err := a.ApplyWorkflow(AddStep{Label: "write tests"}, t0)
	require.NoError(t, err)

	assert.NotEmpty(t, res.StepID)
	assert.Equal(t, 0, a.Progress)
	assert.Equal(t, StatusPending, a.Status)
	assertInvariant(t, a)
}

func TestAssignee_AddStepToCompletedReopens(t *testing.T) {
	a := NewAssignee(7)
	a.Workflow = Workflow{{StepID: "s1", Order: 1}}
	_, err := a.ApplyWorkflow(ToggleStep{StepID: "s1"}, t0)
	require.NoError(t, err)

	_, err = a.ApplyWorkflow(AddStep{Label: "one more"}, t0.Add(time.Hour))
	require.NoError(t, err)

	assert.Equal(t, 50, a.Progress)
	assert.Equal(t, StatusInProgress, a.Status)
	assertInvariant(t, a)
}

func TestAssignee_DeleteLastStepRevertsToPending(t *testing.T) {
	a := NewAssignee(7)
	a.Workflow = Workflow{{StepID: "s1", Order: 1}, {StepID: "s2", Order: 2}}
	_, err := a.ApplyWorkflow(ToggleStep{StepID: "s1"}, t0)
	require.NoError(t, err)

	_, err = a.ApplyWorkflow(DeleteStep{StepID: "s1"}, t0)
	require.NoError(t, err)
	assert.Equal(t, 0, a.Progress)
	assert.Equal(t, StatusInProgress, a.Status, "steps remain, so no revert to pending")

	_, err = a.ApplyWorkflow(DeleteStep{StepID: "s2"}, t0)
	require.NoError(t, err)
	assert.Equal(t, 0, a.Progress)
	assert.Equal(t, StatusPending, a.Status)
	assertInvariant(t, a)
}

func TestAssignee_DeleteUndoneStepCompletes(t *testing.T) {
	a := NewAssignee(7)
	a.Workflow = Workflow{{StepID: "s1", Order: 1, Done: true}, {StepID: "s2", Order: 2}}

	_, err := a.ApplyWorkflow(DeleteStep{StepID: "s2"}, t0)
	require.NoError(t, err)

	assert.Equal(t, StatusCompleted, a.Status)
	assertInvariant(t, a)
}

func TestAssignee_EmptyWorkflowKeepsManualProgress(t *testing.T) {
	a := NewAssignee(7)
	require.NoError(t, a.SetStatus(StatusInProgress, t0))
	a.Progress = 40

	_, err := a.ApplyWorkflow(Reorder{}, t0)
	require.NoError(t, err)

	assert.Equal(t, 40, a.Progress)
	assert.Equal(t, StatusInProgress, a.Status)
}

func TestAssignee_FailedCommandLeavesStateUntouched(t *testing.T) {
	a := NewAssignee(7)
	a.Workflow = Workflow{{StepID: "s1", Order: 1}}
	before := a.Clone()

	_, err := a.ApplyWorkflow(ToggleStep{StepID: "nope"}, t0)
	require.Error(t, err)
	assert.Equal(t, KindNotFound, KindOf(err))
	assert.Equal(t, before, a)
}

func TestAssignee_SetStatus(t *testing.T) {
	t.Run("in-progress records startedAt once", func(t *testing.T) {
		a := NewAssignee(1)
		require.NoError(t, a.SetStatus(StatusInProgress, t0))
		require.NoError(t, a.SetStatus(StatusInProgress, t0.Add(time.Hour)))
		require.NotNil(t, a.StartedAt)
		assert.Equal(t, t0, *a.StartedAt)
		assertInvariant(t, a)
	})

	t.Run("completed forces progress and completedAt", func(t *testing.T) {
		a := NewAssignee(1)
		require.NoError(t, a.SetStatus(StatusCompleted, t0))
		assert.Equal(t, 100, a.Progress)
		assert.Equal(t, t0, *a.CompletedAt)
		assertInvariant(t, a)
	})

	t.Run("leaving completed clears completedAt", func(t *testing.T) {
		a := NewAssignee(1)
		require.NoError(t, a.SetStatus(StatusCompleted, t0))
		require.NoError(t, a.SetStatus(StatusPending, t0))
		assert.Nil(t, a.CompletedAt)
		assert.Equal(t, StatusPending, a.Status)
	})

	t.Run("unknown status rejected", func(t *testing.T) {
		a := NewAssignee(1)
		err := a.SetStatus(Status("done"), t0)
		assert.Equal(t, KindValidation, KindOf(err))
		assert.Equal(t, StatusPending, a.Status)
	})
}

func TestStatusPolicy(t *testing.T) {
	tests := []struct {
		name     string
		prev     Status
		progress int
		steps    int
		want     Status
	}{
		{"emptied workflow", StatusInProgress, 0, 0, StatusPending},
		{"all done", StatusPending, 100, 3, StatusCompleted},
		{"partial from pending", StatusPending, 33, 3, StatusInProgress},
		{"partial from completed", StatusCompleted, 67, 3, StatusInProgress},
		{"zero stays pending", StatusPending, 0, 2, StatusPending},
		{"zero from in-progress", StatusInProgress, 0, 2, StatusInProgress},
		{"zero from completed", StatusCompleted, 0, 1, StatusInProgress},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StatusPolicy(tt.prev, tt.progress, tt.steps))
		})
	}
}

func TestParseWorkflowCommand(t *testing.T) {
	tests := []struct {
		name    string
		req     WorkflowRequest
		want    WorkflowCommand
		wantErr bool
	}{
		{"add", WorkflowRequest{Action: "addStep", Label: "x"}, AddStep{Label: "x"}, false},
		{"add without label", WorkflowRequest{Action: "addStep"}, nil, true},
		{"toggle", WorkflowRequest{Action: "toggleStep", StepID: "a"}, ToggleStep{StepID: "a"}, false},
		{"toggle without id", WorkflowRequest{Action: "toggleStep"}, nil, true},
		{"delete", WorkflowRequest{Action: "deleteStep", StepID: "a"}, DeleteStep{StepID: "a"}, false},
		{"reorder", WorkflowRequest{Action: "reorder", Steps: []StepOrder{}}, Reorder{Steps: []StepOrder{}}, false},
		{"reorder without steps", WorkflowRequest{Action: "reorder"}, nil, true},
		{"unknown", WorkflowRequest{Action: "rename"}, nil, true},
		{"missing", WorkflowRequest{}, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseWorkflowCommand(tt.req)
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, KindValidation, KindOf(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
