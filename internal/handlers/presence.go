package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/taskpulse/internal/realtime"
	"github.com/charlesng35/taskpulse/pkg/errors"
	"github.com/charlesng35/taskpulse/pkg/response"
)

// PresenceReader is the read side of the presence directory.
type PresenceReader interface {
	Snapshot() []realtime.PresenceRecord
	Presence(userID string) (realtime.PresenceRecord, bool)
}

// PresenceHandler serves the directory to REST clients that are not connected yet.
type PresenceHandler struct {
	presence PresenceReader
}

func NewPresenceHandler(presence PresenceReader) *PresenceHandler {
	return &PresenceHandler{presence: presence}
}

// GET /api/presence
func (h *PresenceHandler) List(c *gin.Context) {
	records := h.presence.Snapshot()
	response.List(c, records, &response.Meta{Total: len(records)})
}

// GET /api/presence/:userID
func (h *PresenceHandler) Get(c *gin.Context) {
	record, ok := h.presence.Presence(c.Param("userID"))
	if !ok {
		response.Error(c, errors.ErrNotFound.WithMessage("User is offline"))
		return
	}
	response.Success(c, http.StatusOK, record)
}
