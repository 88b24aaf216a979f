package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/charlesng35/taskpulse/internal/models"
	"github.com/charlesng35/taskpulse/internal/realtime"
	apperrors "github.com/charlesng35/taskpulse/pkg/errors"
	"github.com/charlesng35/taskpulse/pkg/metrics"
)

// UserLookup resolves the account behind a validated token.
type UserLookup interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
}

// Authenticator turns a bearer credential into a realtime identity. It never touches
// hub state, so callers run it before admitting a connection.
type Authenticator struct {
	tokens *JWTService
	users  UserLookup
}

// NewAuthenticator constructs an Authenticator.
func NewAuthenticator(tokens *JWTService, users UserLookup) (*Authenticator, error) {
	if tokens == nil {
		return nil, errors.New("authenticator: jwt service is required")
	}
	if users == nil {
		return nil, errors.New("authenticator: user lookup is required")
	}
	return &Authenticator{tokens: tokens, users: users}, nil
}

// Authenticate validates token and loads the owning user. Missing, unknown or inactive
// users fail with ErrUnauthorized; token problems keep their expired/invalid code.
func (a *Authenticator) Authenticate(ctx context.Context, token string) (realtime.Identity, error) {
	identity, err := a.authenticate(ctx, token)
	result := "success"
	if err != nil {
		result = strings.ToLower(apperrors.FromError(err).Code)
	}
	metrics.AuthAttempts.WithLabelValues("token", result).Inc()
	return identity, err
}

func (a *Authenticator) authenticate(ctx context.Context, token string) (realtime.Identity, error) {
	claims, err := a.tokens.ValidateAccessToken(strings.TrimSpace(token))
	if err != nil {
		return realtime.Identity{}, err
	}

	user, err := a.users.GetByID(ctx, claims.UserID())
	if err != nil {
		var appErr *apperrors.AppError
		if errors.As(err, &appErr) && appErr.StatusCode == http.StatusNotFound {
			return realtime.Identity{}, apperrors.ErrUnauthorized
		}
		return realtime.Identity{}, apperrors.ErrInternalServer.WithInternal(err)
	}
	if !user.IsActive {
		return realtime.Identity{}, apperrors.ErrUnauthorized.WithMessage("Account is disabled")
	}

	return IdentityFor(user), nil
}

// IdentityFor projects a user onto the credential-free identity the hub keeps.
func IdentityFor(user *models.User) realtime.Identity {
	return realtime.Identity{
		UserID:      user.ID,
		DisplayName: user.Name(),
		Avatar:      user.Avatar,
		Active:      user.IsActive,
	}
}

// BearerToken extracts a token from an Authorization header value.
func BearerToken(header string) string {
	header = strings.TrimSpace(header)
	if len(header) < 7 || !strings.EqualFold(header[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(header[7:])
}
