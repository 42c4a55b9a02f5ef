package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"taskflow/internal/service"
)

// TaskHandler 管理员任务管理接口
type TaskHandler struct {
	tasks  *service.TaskService
	logger *zap.Logger
}

func NewTaskHandler(tasks *service.TaskService, logger *zap.Logger) *TaskHandler {
	return &TaskHandler{tasks: tasks, logger: logger}
}

// CreateTask POST /tasks
func (h *TaskHandler) CreateTask(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	var in service.CreateTaskInput
	if err := bindJSON(c, &in); err != nil {
		respondError(c, h.logger, "create_task", err)
		return
	}

	task, err := h.tasks.CreateTask(c.Request.Context(), userID, in)
	if err != nil {
		respondError(c, h.logger, "create_task", err)
		return
	}
	respond(c, http.StatusCreated, "Task created successfully", gin.H{"task": task})
}

// GetTask GET /tasks/:taskId
func (h *TaskHandler) GetTask(c *gin.Context) {
	task, err := h.tasks.GetTask(c.Request.Context(), c.Param("taskId"))
	if err != nil {
		respondError(c, h.logger, "get_task", err)
		return
	}
	respond(c, http.StatusOK, "Task fetched successfully", gin.H{"task": task})
}

// ReplaceAssignees PUT /tasks/:taskId/assignees
func (h *TaskHandler) ReplaceAssignees(c *gin.Context) {
	var req struct {
		UserIDs []int `json:"userIds"`
	}
	if err := bindJSON(c, &req); err != nil {
		respondError(c, h.logger, "replace_assignees", err)
		return
	}

	task, err := h.tasks.ReplaceAssignees(c.Request.Context(), c.Param("taskId"), req.UserIDs)
	if err != nil {
		respondError(c, h.logger, "replace_assignees", err)
		return
	}
	respond(c, http.StatusOK, "Assignees updated successfully", gin.H{"task": task})
}

// AddAssignee POST /tasks/:taskId/assignees
func (h *TaskHandler) AddAssignee(c *gin.Context) {
	var req struct {
		UserID int `json:"userId"`
	}
	if err := bindJSON(c, &req); err != nil {
		respondError(c, h.logger, "add_assignee", err)
		return
	}

	task, err := h.tasks.AddAssignee(c.Request.Context(), c.Param("taskId"), req.UserID)
	if err != nil {
		respondError(c, h.logger, "add_assignee", err)
		return
	}
	respond(c, http.StatusOK, "User assigned to task successfully", gin.H{"task": task})
}

// RemoveAssignee DELETE /tasks/:taskId/assignees/:userId
func (h *TaskHandler) RemoveAssignee(c *gin.Context) {
	userID, err := pathUserID(c, "userId")
	if err != nil {
		respondError(c, h.logger, "remove_assignee", err)
		return
	}

	task, err := h.tasks.RemoveAssignee(c.Request.Context(), c.Param("taskId"), userID)
	if err != nil {
		respondError(c, h.logger, "remove_assignee", err)
		return
	}
	respond(c, http.StatusOK, "User unassigned from task successfully", gin.H{"task": task})
}

// ArchiveTask POST /tasks/:taskId/archive
func (h *TaskHandler) ArchiveTask(c *gin.Context) {
	task, err := h.tasks.ArchiveTask(c.Request.Context(), c.Param("taskId"))
	if err != nil {
		respondError(c, h.logger, "archive_task", err)
		return
	}
	respond(c, http.StatusOK, "Task archived successfully", gin.H{"task": task})
}
