package models

// Comment is a persisted remark on a task.
type Comment struct {
	BaseModel

	TaskID   string `gorm:"type:varchar(36);not null;index" json:"task_id"`
	Task     *Task  `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	AuthorID string `gorm:"type:varchar(36);not null;index" json:"author_id"`
	Author   *User  `gorm:"foreignKey:AuthorID" json:"author,omitempty"`
	Text     string `gorm:"type:text;not null" json:"text"`
}
