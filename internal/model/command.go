package model

// WorkflowCommand is the closed set of mutations a user can apply to their
// personal workflow. Implementations live in this package only.
type WorkflowCommand interface {
	Name() string
	apply(w *Workflow) (WorkflowResult, error)
}

// WorkflowResult carries command-specific output back to the caller.
type WorkflowResult struct {
	StepID string
}

type AddStep struct {
	Label string
}

type ToggleStep struct {
	StepID string
}

type DeleteStep struct {
	StepID string
}

type Reorder struct {
	Steps []StepOrder
}

func (AddStep) Name() string    { return "addStep" }
func (ToggleStep) Name() string { return "toggleStep" }
func (DeleteStep) Name() string { return "deleteStep" }
func (Reorder) Name() string    { return "reorder" }

func (c AddStep) apply(w *Workflow) (WorkflowResult, error) {
	id, err := w.AddStep(c.Label)
	return WorkflowResult{StepID: id}, err
}

func (c ToggleStep) apply(w *Workflow) (WorkflowResult, error) {
	return WorkflowResult{StepID: c.StepID}, w.ToggleStep(c.StepID)
}

func (c DeleteStep) apply(w *Workflow) (WorkflowResult, error) {
	return WorkflowResult{StepID: c.StepID}, w.DeleteStep(c.StepID)
}

func (c Reorder) apply(w *Workflow) (WorkflowResult, error) {
	w.Reorder(c.Steps)
	return WorkflowResult{}, nil
}

// WorkflowRequest is the legacy action-keyed wire shape.
type WorkflowRequest struct {
	Action string      `json:"action"`
	StepID string      `json:"stepId"`
	Label  string      `json:"label"`
	Steps  []StepOrder `json:"steps"`
}

// ParseWorkflowCommand turns a wire request into a typed command.
func ParseWorkflowCommand(req WorkflowRequest) (WorkflowCommand, error) {
	switch req.Action {
	case "":
		return nil, Validationf("action is required")
	case "addStep":
		if req.Label == "" {
			return nil, Validationf("label is required for addStep")
		}
		return AddStep{Label: req.Label}, nil
	case "toggleStep":
		if req.StepID == "" {
			return nil, Validationf("stepId is required for toggleStep")
		}
		return ToggleStep{StepID: req.StepID}, nil
	case "deleteStep":
		if req.StepID == "" {
			return nil, Validationf("stepId is required for deleteStep")
		}
		return DeleteStep{StepID: req.StepID}, nil
	case "reorder":
		if req.Steps == nil {
			return nil, Validationf("steps array is required for reorder")
		}
		return Reorder{Steps: req.Steps}, nil
	default:
		return nil, Validationf("invalid action")
	}
}
