package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"taskflow/internal/model"
	"taskflow/internal/service"
)

// ProgressHandler serves the /my-tasks routes. Every route acts on the
// caller's own assignee entry.
type ProgressHandler struct {
	progress *service.ProgressService
	tasks    *service.TaskService
	logger   *zap.Logger
}

func NewProgressHandler(progress *service.ProgressService, tasks *service.TaskService, logger *zap.Logger) *ProgressHandler {
	return &ProgressHandler{progress: progress, tasks: tasks, logger: logger}
}

var timerMessages = map[model.TimerAction]string{
	model.TimerStart: "Timer started successfully",
	model.TimerPause: "Timer paused successfully",
	model.TimerStop:  "Timer stopped successfully",
}

// ListMyTasks GET /my-tasks?status=&priority=&page=&limit=
func (h *ProgressHandler) ListMyTasks(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	page, err := queryInt(c, "page")
	if err != nil {
		respondError(c, h.logger, "list_my_tasks", err)
		return
	}
	limit, err := queryInt(c, "limit")
	if err != nil {
		respondError(c, h.logger, "list_my_tasks", err)
		return
	}

	result, err := h.tasks.ListMyTasks(c.Request.Context(), userID, service.ListMyTasksQuery{
		Status:   c.Query("status"),
		Priority: c.Query("priority"),
		Page:     page,
		Limit:    limit,
	})
	if err != nil {
		respondError(c, h.logger, "list_my_tasks", err)
		return
	}
	respond(c, http.StatusOK, "Tasks retrieved successfully", result)
}

// GetMyTask GET /my-tasks/:taskId
func (h *ProgressHandler) GetMyTask(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	task, err := h.progress.GetMyTask(c.Request.Context(), userID, c.Param("taskId"))
	if err != nil {
		respondError(c, h.logger, "get_my_task", err)
		return
	}
	respond(c, http.StatusOK, "Task retrieved successfully", gin.H{"task": task})
}

// UpdateStatus PATCH /my-tasks/:taskId/status
func (h *ProgressHandler) UpdateStatus(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	var req struct {
		Status string `json:"status"`
	}
	if err := bindJSON(c, &req); err != nil {
		respondError(c, h.logger, "set_status", err)
		return
	}
	status, err := model.ParseStatus(req.Status)
	if err != nil {
		respondError(c, h.logger, "set_status", err)
		return
	}

	state, err := h.progress.SetAssigneeStatus(c.Request.Context(), userID, c.Param("taskId"), status)
	if err != nil {
		respondError(c, h.logger, "set_status", err)
		return
	}
	respond(c, http.StatusOK, "Status updated successfully", state)
}

// UpdateTimer PATCH /my-tasks/:taskId/timer
func (h *ProgressHandler) UpdateTimer(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	var req struct {
		Action string `json:"action"`
	}
	if err := bindJSON(c, &req); err != nil {
		respondError(c, h.logger, "timer", err)
		return
	}
	action, err := model.ParseTimerAction(req.Action)
	if err != nil {
		respondError(c, h.logger, "timer", err)
		return
	}

	state, err := h.progress.UpdateTimer(c.Request.Context(), userID, c.Param("taskId"), action)
	if err != nil {
		respondError(c, h.logger, "timer", err)
		return
	}
	respond(c, http.StatusOK, timerMessages[action], state)
}

// GetWorkflow GET /my-tasks/:taskId/workflow
func (h *ProgressHandler) GetWorkflow(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	state, err := h.progress.GetWorkflow(c.Request.Context(), userID, c.Param("taskId"))
	if err != nil {
		respondError(c, h.logger, "get_workflow", err)
		return
	}
	respond(c, http.StatusOK, "Workflow retrieved successfully", gin.H{
		"workflow":       state.Workflow,
		"progress":       state.Progress,
		"status":         state.Status,
		"totalSteps":     state.TotalSteps,
		"completedSteps": state.CompletedSteps,
	})
}

// AddStep POST /my-tasks/:taskId/workflow/add-step
func (h *ProgressHandler) AddStep(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	var req struct {
		Label string `json:"label"`
	}
	if err := bindJSON(c, &req); err != nil {
		respondError(c, h.logger, "add_step", err)
		return
	}

	state, err := h.progress.AddWorkflowStep(c.Request.Context(), userID, c.Param("taskId"), req.Label)
	if err != nil {
		respondError(c, h.logger, "add_step", err)
		return
	}
	respond(c, http.StatusCreated, "Workflow step added successfully", gin.H{
		"stepId":   state.StepID,
		"progress": state.Progress,
		"status":   state.Status,
	})
}

// ToggleStep PATCH /my-tasks/:taskId/workflow/toggle-step
func (h *ProgressHandler) ToggleStep(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	var req struct {
		StepID string `json:"stepId"`
	}
	if err := bindJSON(c, &req); err != nil {
		respondError(c, h.logger, "toggle_step", err)
		return
	}

	state, err := h.progress.ToggleWorkflowStep(c.Request.Context(), userID, c.Param("taskId"), req.StepID)
	if err != nil {
		respondError(c, h.logger, "toggle_step", err)
		return
	}
	respond(c, http.StatusOK, "Workflow step toggled successfully", gin.H{
		"progress":       state.Progress,
		"status":         state.Status,
		"completedSteps": state.CompletedSteps,
		"totalSteps":     state.TotalSteps,
	})
}

// ReorderSteps PATCH /my-tasks/:taskId/workflow/reorder
func (h *ProgressHandler) ReorderSteps(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	var req struct {
		Steps []model.StepOrder `json:"steps"`
	}
	if err := bindJSON(c, &req); err != nil {
		respondError(c, h.logger, "reorder", err)
		return
	}

	state, err := h.progress.ReorderWorkflowSteps(c.Request.Context(), userID, c.Param("taskId"), req.Steps)
	if err != nil {
		respondError(c, h.logger, "reorder", err)
		return
	}
	respond(c, http.StatusOK, "Workflow reordered successfully", gin.H{"workflow": state.Workflow})
}

// DeleteStep DELETE /my-tasks/:taskId/workflow/step/:stepId
func (h *ProgressHandler) DeleteStep(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	state, err := h.progress.DeleteWorkflowStep(c.Request.Context(), userID, c.Param("taskId"), c.Param("stepId"))
	if err != nil {
		respondError(c, h.logger, "delete_step", err)
		return
	}
	respond(c, http.StatusOK, "Workflow step deleted successfully", gin.H{
		"progress": state.Progress,
		"status":   state.Status,
	})
}

// UpdateWorkflow PATCH /my-tasks/:taskId/workflow
// 单一入口，按 action 分发到具体的 workflow 命令
func (h *ProgressHandler) UpdateWorkflow(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	var req model.WorkflowRequest
	if err := bindJSON(c, &req); err != nil {
		respondError(c, h.logger, "update_workflow", err)
		return
	}
	cmd, err := model.ParseWorkflowCommand(req)
	if err != nil {
		respondError(c, h.logger, "update_workflow", err)
		return
	}

	state, err := h.progress.ApplyWorkflowCommand(c.Request.Context(), userID, c.Param("taskId"), cmd)
	if err != nil {
		respondError(c, h.logger, "update_workflow", err)
		return
	}
	respond(c, http.StatusOK, "Workflow updated successfully", gin.H{
		"workflow": state.Workflow,
		"progress": state.Progress,
		"status":   state.Status,
	})
}
