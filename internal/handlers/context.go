package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/taskpulse/internal/middleware"
	"github.com/charlesng35/taskpulse/internal/realtime"
)

// requestContext safely returns the request context with a background fallback for tests.
func requestContext(c *gin.Context) context.Context {
	if c == nil {
		return context.Background()
	}
	if req := c.Request; req != nil {
		return req.Context()
	}
	return context.Background()
}

// currentActor returns the broadcast summary of the authenticated caller.
func currentActor(c *gin.Context) realtime.Actor {
	if identity, ok := middleware.IdentityFrom(c); ok {
		return identity.Actor()
	}
	return realtime.Actor{ID: c.GetString(middleware.CtxUserIDKey)}
}
