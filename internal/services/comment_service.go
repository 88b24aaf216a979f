package services

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"
	"unicode/utf8"

	"gorm.io/gorm"

	"github.com/charlesng35/taskpulse/internal/models"
	apperrors "github.com/charlesng35/taskpulse/pkg/errors"
)

// DefaultMaxCommentLength caps comment text in runes when no limit is configured.
const DefaultMaxCommentLength = 4000

// CommentService persists task comments.
type CommentService struct {
	db        *gorm.DB
	maxLength int
}

// NewCommentService constructs a CommentService instance. A non-positive maxLength
// falls back to DefaultMaxCommentLength.
func NewCommentService(db *gorm.DB, maxLength int) (*CommentService, error) {
	if db == nil {
		return nil, errors.New("comment service: db is required")
	}
	if maxLength <= 0 {
		maxLength = DefaultMaxCommentLength
	}
	return &CommentService{db: db, maxLength: maxLength}, nil
}

// MaxLength reports the configured text limit in runes.
func (s *CommentService) MaxLength() int { return s.maxLength }

// Create stores a comment on taskID written by authorID. The length limit applies to the
// trimmed input; the stored text is HTML-escaped so every read path sees the same string.
func (s *CommentService) Create(ctx context.Context, taskID, authorID, text string) (*models.Comment, error) {
	ctx = ensureContext(ctx)

	text = strings.TrimSpace(text)
	if text == "" {
		return nil, apperrors.NewBadRequest("text is required")
	}
	if utf8.RuneCountInString(text) > s.maxLength {
		return nil, apperrors.NewBadRequest(fmt.Sprintf("text must be at most %d characters", s.maxLength))
	}

	var count int64
	if err := s.db.WithContext(ctx).Model(&models.Task{}).Where("id = ?", taskID).Count(&count).Error; err != nil {
		return nil, fmt.Errorf("comment service: lookup task: %w", err)
	}
	if count == 0 {
		return nil, ErrTaskNotFound
	}

	comment := &models.Comment{TaskID: taskID, AuthorID: authorID, Text: html.EscapeString(text)}
	if err := s.db.WithContext(ctx).Create(comment).Error; err != nil {
		return nil, translateWriteError(err, "comment service: create comment", nil)
	}

	if err := s.db.WithContext(ctx).Preload("Author").First(comment, "id = ?", comment.ID).Error; err != nil {
		return nil, fmt.Errorf("comment service: reload comment: %w", err)
	}
	return comment, nil
}

// ListByTask returns one page of a task's comments oldest first, plus the task's total
// comment count.
func (s *CommentService) ListByTask(ctx context.Context, taskID string, limit, offset int) ([]models.Comment, int64, error) {
	ctx = ensureContext(ctx)
	limit, offset = normalisePage(limit, offset)

	query := s.db.WithContext(ctx).Model(&models.Comment{}).Where("task_id = ?", taskID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("comment service: count comments: %w", err)
	}

	var comments []models.Comment
	err := query.
		Preload("Author").
		Order("created_at ASC, id ASC").
		Limit(limit).
		Offset(offset).
		Find(&comments).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, 0, fmt.Errorf("comment service: list comments: %w", err)
	}
	return comments, total, nil
}
