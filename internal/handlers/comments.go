package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/taskpulse/internal/middleware"
	"github.com/charlesng35/taskpulse/internal/realtime"
	"github.com/charlesng35/taskpulse/internal/services"
	"github.com/charlesng35/taskpulse/pkg/response"
)

// CommentHandler persists comments and echoes them to the task room.
type CommentHandler struct {
	comments *services.CommentService
	hub      Publisher
}

func NewCommentHandler(comments *services.CommentService, hub Publisher) *CommentHandler {
	return &CommentHandler{comments: comments, hub: hub}
}

type createCommentRequest struct {
	Text string `json:"text" validate:"notblank"`
}

// GET /api/tasks/:id/comments
func (h *CommentHandler) List(c *gin.Context) {
	limit, offset := pageQuery(c)

	comments, total, err := h.comments.ListByTask(requestContext(c), c.Param("id"), limit, offset)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.List(c, comments, &response.Meta{Total: int(total), Limit: limit, Offset: offset})
}

// POST /api/tasks/:id/comments
func (h *CommentHandler) Create(c *gin.Context) {
	var req createCommentRequest
	if !bindAndValidate(c, &req) {
		return
	}

	taskID := c.Param("id")
	comment, err := h.comments.Create(requestContext(c), taskID, c.GetString(middleware.CtxUserIDKey), req.Text)
	if err != nil {
		response.Error(c, err)
		return
	}

	if h.hub != nil {
		actor := currentActor(c)
		echo := realtime.CommentEcho{
			ID:        comment.ID,
			Text:      comment.Text,
			Author:    actor,
			CreatedAt: comment.CreatedAt.UTC(),
		}
		h.hub.PublishToRoom(taskID, realtime.EventCommentAdded, echo, actor)
	}
	response.Success(c, http.StatusCreated, comment)
}
