package model

import (
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
)

const maxStepLabelLength = 200

type WorkflowStep struct {
	StepID string `json:"stepId"`
	Label  string `json:"label"`
	Done   bool   `json:"done"`
	Order  int    `json:"order"`
}

// StepOrder assigns a new order value to a step during Reorder.
type StepOrder struct {
	StepID string `json:"stepId"`
	Order  int    `json:"order"`
}

// Workflow is an assignee's personal checklist, kept in display order.
type Workflow []WorkflowStep

// NewStepID returns an 8 character step identifier.
func NewStepID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

// AddStep appends a new undone step and returns its id.
func (w *Workflow) AddStep(label string) (string, error) {
	label = strings.TrimSpace(label)
	if label == "" {
		return "", Validationf("step label is required")
	}
	if utf8.RuneCountInString(label) > maxStepLabelLength {
		return "", Validationf("step label cannot exceed %d characters", maxStepLabelLength)
	}

	id := NewStepID()
	for w.index(id) >= 0 {
		id = NewStepID()
	}

	*w = append(*w, WorkflowStep{
		StepID: id,
		Label:  label,
		Done:   false,
		Order:  len(*w) + 1,
	})
	return id, nil
}

func (w Workflow) ToggleStep(stepID string) error {
	i := w.index(stepID)
	if i < 0 {
		return NotFoundf("workflow step not found")
	}
	w[i].Done = !w[i].Done
	return nil
}

func (w *Workflow) DeleteStep(stepID string) error {
	i := w.index(stepID)
	if i < 0 {
		return NotFoundf("workflow step not found")
	}
	*w = append((*w)[:i], (*w)[i+1:]...)
	return nil
}

// Reorder applies the given order values to matching steps, ignores unknown
// ids and stable-sorts the workflow by order.
func (w Workflow) Reorder(orders []StepOrder) {
	for _, o := range orders {
		if i := w.index(o.StepID); i >= 0 {
			w[i].Order = o.Order
		}
	}
	sort.SliceStable(w, func(i, j int) bool {
		return w[i].Order < w[j].Order
	})
}

// CompletionRatio is done/total, or 0 for an empty workflow.
func (w Workflow) CompletionRatio() float64 {
	done, total := w.Counts()
	if total == 0 {
		return 0
	}
	return float64(done) / float64(total)
}

// Counts returns (completed, total) steps.
func (w Workflow) Counts() (int, int) {
	done := 0
	for _, s := range w {
		if s.Done {
			done++
		}
	}
	return done, len(w)
}

func (w Workflow) Clone() Workflow {
	if w == nil {
		return nil
	}
	out := make(Workflow, len(w))
	copy(out, w)
	return out
}

func (w Workflow) index(stepID string) int {
	for i := range w {
		if w[i].StepID == stepID {
			return i
		}
	}
	return -1
}
