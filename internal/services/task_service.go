package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/charlesng35/taskpulse/internal/models"
	apperrors "github.com/charlesng35/taskpulse/pkg/errors"
)

var (
	// ErrTaskNotFound indicates the requested task does not exist.
	ErrTaskNotFound = apperrors.New("TASK_NOT_FOUND", "Task not found", http.StatusNotFound)
	// ErrInvalidTaskStatus rejects statuses outside the board columns.
	ErrInvalidTaskStatus = apperrors.New("TASK_INVALID_STATUS", "Status must be one of todo, in_progress, done", http.StatusBadRequest)
)

// CreateTaskInput describes a new task.
type CreateTaskInput struct {
	Title       string
	Description string
	Status      models.TaskStatus
	Priority    models.TaskPriority
	AssigneeID  *string
	DueAt       *time.Time
}

// UpdateTaskInput enumerates mutable task attributes. Nil fields are left untouched; an
// empty AssigneeID clears the assignment.
type UpdateTaskInput struct {
	Title       *string
	Description *string
	Status      *models.TaskStatus
	Priority    *models.TaskPriority
	AssigneeID  *string
	DueAt       *time.Time
}

// TaskFilters narrows task listings.
type TaskFilters struct {
	Status     models.TaskStatus
	AssigneeID string
	Query      string
}

// TaskUpdate reports a committed change together with what moved.
type TaskUpdate struct {
	Task        *models.Task
	Changes     map[string]any
	NewAssignee string
}

// TaskService persists tasks.
type TaskService struct {
	db *gorm.DB
}

// NewTaskService constructs a TaskService instance.
func NewTaskService(db *gorm.DB) (*TaskService, error) {
	if db == nil {
		return nil, errors.New("task service: db is required")
	}
	return &TaskService{db: db}, nil
}

// Create stores a task authored by creatorID.
func (s *TaskService) Create(ctx context.Context, creatorID string, input CreateTaskInput) (*models.Task, error) {
	ctx = ensureContext(ctx)

	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, apperrors.NewBadRequest("title is required")
	}

	status := input.Status
	if status == "" {
		status = models.TaskStatusTodo
	}
	if !status.Valid() {
		return nil, ErrInvalidTaskStatus
	}
	priority := input.Priority
	if priority == "" {
		priority = models.TaskPriorityMedium
	}

	task := &models.Task{
		Title:       title,
		Description: strings.TrimSpace(input.Description),
		Status:      status,
		Priority:    priority,
		DueAt:       input.DueAt,
		CreatorID:   creatorID,
	}
	if assignee := trimmedPtr(input.AssigneeID); assignee != nil && *assignee != "" {
		if err := s.ensureUser(ctx, *assignee); err != nil {
			return nil, err
		}
		task.AssigneeID = assignee
	}

	if err := s.db.WithContext(ctx).Create(task).Error; err != nil {
		return nil, translateWriteError(err, "task service: create task", nil)
	}
	return s.Get(ctx, task.ID)
}

// Get loads a task with its assignee and creator.
func (s *TaskService) Get(ctx context.Context, id string) (*models.Task, error) {
	ctx = ensureContext(ctx)

	var task models.Task
	err := s.db.WithContext(ctx).
		Preload("Assignee").
		Preload("Creator").
		First(&task, "id = ?", strings.TrimSpace(id)).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTaskNotFound
		}
		return nil, fmt.Errorf("task service: get task: %w", err)
	}
	return &task, nil
}

// List returns a page of tasks ordered by most recent activity, plus the total count.
func (s *TaskService) List(ctx context.Context, filters TaskFilters, limit, offset int) ([]models.Task, int64, error) {
	ctx = ensureContext(ctx)
	limit, offset = normalisePage(limit, offset)

	query := s.db.WithContext(ctx).Model(&models.Task{})
	if filters.Status != "" {
		query = query.Where("status = ?", filters.Status)
	}
	if filters.AssigneeID != "" {
		query = query.Where("assignee_id = ?", filters.AssigneeID)
	}
	if q := strings.TrimSpace(filters.Query); q != "" {
		like := "%" + strings.ToLower(q) + "%"
		query = query.Where("LOWER(title) LIKE ? OR LOWER(description) LIKE ?", like, like)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("task service: count tasks: %w", err)
	}

	var tasks []models.Task
	if err := query.
		Preload("Assignee").
		Order("updated_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&tasks).Error; err != nil {
		return nil, 0, fmt.Errorf("task service: list tasks: %w", err)
	}
	return tasks, total, nil
}

// Update applies input and reports which columns changed. NewAssignee is set only when
// the task moved to a different, non-empty assignee.
func (s *TaskService) Update(ctx context.Context, id string, input UpdateTaskInput) (*TaskUpdate, error) {
	ctx = ensureContext(ctx)

	task, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	changes := map[string]any{}
	if v := trimmedPtr(input.Title); v != nil {
		if *v == "" {
			return nil, apperrors.NewBadRequest("title cannot be blank")
		}
		if *v != task.Title {
			changes["title"] = *v
		}
	}
	if v := trimmedPtr(input.Description); v != nil && *v != task.Description {
		changes["description"] = *v
	}
	if input.Status != nil {
		if !input.Status.Valid() {
			return nil, ErrInvalidTaskStatus
		}
		if *input.Status != task.Status {
			changes["status"] = *input.Status
		}
	}
	if input.Priority != nil && *input.Priority != task.Priority {
		changes["priority"] = *input.Priority
	}
	if input.DueAt != nil {
		changes["due_at"] = input.DueAt.UTC()
	}

	newAssignee := ""
	if v := trimmedPtr(input.AssigneeID); v != nil {
		current := ""
		if task.AssigneeID != nil {
			current = *task.AssigneeID
		}
		if *v != current {
			if *v == "" {
				changes["assignee_id"] = nil
			} else {
				if err := s.ensureUser(ctx, *v); err != nil {
					return nil, err
				}
				changes["assignee_id"] = *v
				newAssignee = *v
			}
		}
	}

	if len(changes) == 0 {
		return &TaskUpdate{Task: task, Changes: changes}, nil
	}

	if err := s.db.WithContext(ctx).Model(&models.Task{}).Where("id = ?", task.ID).Updates(changes).Error; err != nil {
		return nil, translateWriteError(err, "task service: update task", nil)
	}

	updated, err := s.Get(ctx, task.ID)
	if err != nil {
		return nil, err
	}
	return &TaskUpdate{Task: updated, Changes: changes, NewAssignee: newAssignee}, nil
}

// Delete removes a task and its comments.
func (s *TaskService) Delete(ctx context.Context, id string) error {
	ctx = ensureContext(ctx)

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("task_id = ?", id).Delete(&models.Comment{}).Error; err != nil {
			return fmt.Errorf("task service: delete comments: %w", err)
		}
		result := tx.Delete(&models.Task{}, "id = ?", id)
		if result.Error != nil {
			return fmt.Errorf("task service: delete task: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return ErrTaskNotFound
		}
		return nil
	})
}

func (s *TaskService) ensureUser(ctx context.Context, userID string) error {
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", userID).Count(&count).Error; err != nil {
		return fmt.Errorf("task service: lookup assignee: %w", err)
	}
	if count == 0 {
		return apperrors.NewBadRequest("assignee does not exist")
	}
	return nil
}
