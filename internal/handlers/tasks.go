package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/charlesng35/taskpulse/internal/middleware"
	"github.com/charlesng35/taskpulse/internal/models"
	"github.com/charlesng35/taskpulse/internal/realtime"
	"github.com/charlesng35/taskpulse/internal/services"
	"github.com/charlesng35/taskpulse/pkg/logger"
	"github.com/charlesng35/taskpulse/pkg/response"
)

// Publisher is the realtime dispatch primitive handlers call after a committed change.
type Publisher interface {
	PublishToRoom(roomID, eventType string, payload any, actor realtime.Actor) int
	PublishToUser(userID, eventType string, payload any, actor realtime.Actor) int
}

// Change types carried by task-updated.
const (
	ChangeUpdated = "updated"
	ChangeDeleted = "deleted"
)

// TaskAssignment is delivered on the assignee's personal channel.
type TaskAssignment struct {
	TaskID string `json:"taskId"`
	Title  string `json:"title"`
	Status string `json:"status"`
}

// TaskHandler exposes task CRUD and fans committed changes out to the task's room.
type TaskHandler struct {
	tasks *services.TaskService
	hub   Publisher
	log   *zap.Logger
}

func NewTaskHandler(tasks *services.TaskService, hub Publisher) *TaskHandler {
	return &TaskHandler{tasks: tasks, hub: hub, log: logger.WithModule("tasks")}
}

type createTaskRequest struct {
	Title       string     `json:"title" validate:"notblank,max=200"`
	Description string     `json:"description" validate:"max=10000"`
	Status      string     `json:"status" validate:"omitempty,oneof=todo in_progress done"`
	Priority    string     `json:"priority" validate:"omitempty,oneof=low medium high"`
	AssigneeID  *string    `json:"assignee_id"`
	DueAt       *time.Time `json:"due_at"`
}

type updateTaskRequest struct {
	Title       *string    `json:"title" validate:"omitempty,max=200"`
	Description *string    `json:"description" validate:"omitempty,max=10000"`
	Status      *string    `json:"status" validate:"omitempty,oneof=todo in_progress done"`
	Priority    *string    `json:"priority" validate:"omitempty,oneof=low medium high"`
	AssigneeID  *string    `json:"assignee_id"`
	DueAt       *time.Time `json:"due_at"`
}

// GET /api/tasks
func (h *TaskHandler) List(c *gin.Context) {
	filters := services.TaskFilters{
		Status:     models.TaskStatus(strings.TrimSpace(c.Query("status"))),
		AssigneeID: strings.TrimSpace(c.Query("assignee_id")),
		Query:      strings.TrimSpace(c.Query("q")),
	}
	if filters.Status != "" && !filters.Status.Valid() {
		response.Error(c, services.ErrInvalidTaskStatus)
		return
	}

	limit, offset := pageQuery(c)

	tasks, total, err := h.tasks.List(requestContext(c), filters, limit, offset)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.List(c, tasks, &response.Meta{Total: int(total), Limit: limit, Offset: offset})
}

// GET /api/tasks/:id
func (h *TaskHandler) Get(c *gin.Context) {
	task, err := h.tasks.Get(requestContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, task)
}

// POST /api/tasks
func (h *TaskHandler) Create(c *gin.Context) {
	var req createTaskRequest
	if !bindAndValidate(c, &req) {
		return
	}

	task, err := h.tasks.Create(requestContext(c), c.GetString(middleware.CtxUserIDKey), services.CreateTaskInput{
		Title:       req.Title,
		Description: req.Description,
		Status:      models.TaskStatus(req.Status),
		Priority:    models.TaskPriority(req.Priority),
		AssigneeID:  req.AssigneeID,
		DueAt:       req.DueAt,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	if task.AssigneeID != nil {
		h.notifyAssignee(c, *task.AssigneeID, task)
	}
	response.Success(c, http.StatusCreated, task)
}

// PATCH /api/tasks/:id
func (h *TaskHandler) Update(c *gin.Context) {
	var req updateTaskRequest
	if !bindAndValidate(c, &req) {
		return
	}

	input := services.UpdateTaskInput{
		Title:       req.Title,
		Description: req.Description,
		AssigneeID:  req.AssigneeID,
		DueAt:       req.DueAt,
	}
	if req.Status != nil {
		status := models.TaskStatus(*req.Status)
		input.Status = &status
	}
	if req.Priority != nil {
		priority := models.TaskPriority(*req.Priority)
		input.Priority = &priority
	}

	update, err := h.tasks.Update(requestContext(c), c.Param("id"), input)
	if err != nil {
		response.Error(c, err)
		return
	}

	if len(update.Changes) > 0 {
		h.publishChange(c, update.Task.ID, ChangeUpdated, update.Changes)
	}
	if update.NewAssignee != "" {
		h.notifyAssignee(c, update.NewAssignee, update.Task)
	}
	response.Success(c, http.StatusOK, update.Task)
}

// DELETE /api/tasks/:id
func (h *TaskHandler) Delete(c *gin.Context) {
	id := c.Param("id")
	if err := h.tasks.Delete(requestContext(c), id); err != nil {
		response.Error(c, err)
		return
	}

	h.publishChange(c, id, ChangeDeleted, map[string]any{"id": id})
	response.Success(c, http.StatusOK, gin.H{"deleted": true})
}

func (h *TaskHandler) publishChange(c *gin.Context, taskID, changeType string, changes map[string]any) {
	if h.hub == nil {
		return
	}
	raw, err := json.Marshal(changes)
	if err != nil {
		h.log.Warn("encode task change", zap.String("room_id", taskID), zap.Error(err))
		return
	}
	change := realtime.TaskChange{ChangeType: changeType, Changes: raw}
	h.hub.PublishToRoom(taskID, realtime.EventTaskUpdated, change, currentActor(c))
}

func (h *TaskHandler) notifyAssignee(c *gin.Context, userID string, task *models.Task) {
	if h.hub == nil || userID == "" {
		return
	}
	payload := TaskAssignment{TaskID: task.ID, Title: task.Title, Status: string(task.Status)}
	h.hub.PublishToUser(userID, realtime.EventTaskAssigned, payload, currentActor(c))
}
