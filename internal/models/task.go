package models

import "time"

// TaskStatus tracks a task through the board columns.
type TaskStatus string

const (
	TaskStatusTodo       TaskStatus = "todo"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusDone       TaskStatus = "done"
)

// Valid reports whether s is a known column.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusTodo, TaskStatusInProgress, TaskStatusDone:
		return true
	}
	return false
}

// TaskPriority orders work within a column.
type TaskPriority string

const (
	TaskPriorityLow    TaskPriority = "low"
	TaskPriorityMedium TaskPriority = "medium"
	TaskPriorityHigh   TaskPriority = "high"
)

// Task is a unit of tracked work. Its id doubles as the realtime room id.
type Task struct {
	BaseModel

	Title       string       `gorm:"not null" json:"title"`
	Description string       `json:"description"`
	Status      TaskStatus   `gorm:"type:varchar(32);not null;default:'todo';index" json:"status"`
	Priority    TaskPriority `gorm:"type:varchar(16);not null;default:'medium'" json:"priority"`
	DueAt       *time.Time   `json:"due_at,omitempty"`

	AssigneeID *string `gorm:"type:varchar(36);index" json:"assignee_id"`
	Assignee   *User   `gorm:"foreignKey:AssigneeID" json:"assignee,omitempty"`
	CreatorID  string  `gorm:"type:varchar(36);not null;index" json:"creator_id"`
	Creator    *User   `gorm:"foreignKey:CreatorID" json:"creator,omitempty"`
}
