package middleware

import (
	"github.com/gin-gonic/gin"

	iauth "github.com/charlesng35/taskpulse/internal/auth"
	"github.com/charlesng35/taskpulse/internal/realtime"
	"github.com/charlesng35/taskpulse/pkg/errors"
	"github.com/charlesng35/taskpulse/pkg/response"
)

const (
	CtxUserIDKey   = "userID"
	CtxIdentityKey = "identity"
)

// Auth enforces bearer-token authentication. The error code tells clients whether to
// refresh (TOKEN_EXPIRED) or sign in again (TOKEN_INVALID, UNAUTHENTICATED).
func Auth(authn *iauth.Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := iauth.BearerToken(c.GetHeader("Authorization"))
		if token == "" {
			c.Header("WWW-Authenticate", "Bearer")
			response.Abort(c, errors.ErrUnauthorized)
			return
		}

		identity, err := authn.Authenticate(c.Request.Context(), token)
		if err != nil {
			c.Header("WWW-Authenticate", "Bearer")
			response.Abort(c, err)
			return
		}

		c.Set(CtxIdentityKey, identity)
		c.Set(CtxUserIDKey, identity.UserID)
		c.Next()
	}
}

// IdentityFrom returns the identity stored by Auth.
func IdentityFrom(c *gin.Context) (realtime.Identity, bool) {
	value, ok := c.Get(CtxIdentityKey)
	if !ok {
		return realtime.Identity{}, false
	}
	identity, ok := value.(realtime.Identity)
	return identity, ok
}
