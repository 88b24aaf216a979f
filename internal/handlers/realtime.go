package handlers

import (
	"strings"

	"github.com/gin-gonic/gin"

	iauth "github.com/charlesng35/taskpulse/internal/auth"
	"github.com/charlesng35/taskpulse/internal/middleware"
	"github.com/charlesng35/taskpulse/internal/realtime"
	"github.com/charlesng35/taskpulse/pkg/errors"
	"github.com/charlesng35/taskpulse/pkg/response"
)

// RealtimeHandler authenticates socket upgrades and hands them to the transport.
type RealtimeHandler struct {
	authn     *iauth.Authenticator
	transport *realtime.Transport
}

func NewRealtimeHandler(authn *iauth.Authenticator, transport *realtime.Transport) *RealtimeHandler {
	return &RealtimeHandler{authn: authn, transport: transport}
}

// Stream validates the caller before any hub state is touched. Browsers cannot set
// headers on a WebSocket handshake, so the token may also arrive as a query parameter.
func (h *RealtimeHandler) Stream(c *gin.Context) {
	if h.authn == nil || h.transport == nil {
		response.Error(c, errors.ErrNotFound)
		return
	}

	token := strings.TrimSpace(c.Query("token"))
	if token == "" {
		token = strings.TrimSpace(c.Query("access_token"))
	}
	if token == "" {
		token = iauth.BearerToken(c.GetHeader("Authorization"))
	}
	if token == "" {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	identity, err := h.authn.Authenticate(requestContext(c), token)
	if err != nil {
		response.Error(c, err)
		return
	}

	c.Set(middleware.CtxUserIDKey, identity.UserID)
	h.transport.ServeSocket(identity, c.Writer, c.Request)
}
