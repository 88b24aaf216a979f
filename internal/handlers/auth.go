package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	iauth "github.com/charlesng35/taskpulse/internal/auth"
	"github.com/charlesng35/taskpulse/internal/middleware"
	"github.com/charlesng35/taskpulse/internal/models"
	"github.com/charlesng35/taskpulse/internal/services"
	apperrors "github.com/charlesng35/taskpulse/pkg/errors"
	"github.com/charlesng35/taskpulse/pkg/metrics"
	"github.com/charlesng35/taskpulse/pkg/response"
)

// AuthHandler manages local accounts and access tokens.
type AuthHandler struct {
	users             *services.UserService
	jwt               *iauth.JWTService
	allowRegistration bool
}

func NewAuthHandler(users *services.UserService, jwt *iauth.JWTService, allowRegistration bool) *AuthHandler {
	return &AuthHandler{users: users, jwt: jwt, allowRegistration: allowRegistration}
}

type registerRequest struct {
	Username    string `json:"username" validate:"required,min=3,max=64"`
	Email       string `json:"email" validate:"required,email"`
	Password    string `json:"password" validate:"required,min=8,max=72"`
	DisplayName string `json:"display_name" validate:"max=128"`
	Avatar      string `json:"avatar" validate:"omitempty,url"`
}

type loginRequest struct {
	Identifier string `json:"identifier" validate:"required"`
	Password   string `json:"password" validate:"required"`
}

type userPayload struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
	Avatar      string `json:"avatar,omitempty"`
	IsActive    bool   `json:"is_active"`
}

type tokenResponse struct {
	AccessToken string      `json:"access_token"`
	TokenType   string      `json:"token_type"`
	ExpiresIn   int         `json:"expires_in"`
	User        userPayload `json:"user"`
}

func toUserPayload(user *models.User) userPayload {
	return userPayload{
		ID:          user.ID,
		Username:    user.Username,
		Email:       user.Email,
		DisplayName: user.Name(),
		Avatar:      user.Avatar,
		IsActive:    user.IsActive,
	}
}

// POST /api/auth/register
func (h *AuthHandler) Register(c *gin.Context) {
	if !h.allowRegistration {
		response.Error(c, apperrors.ErrForbidden.WithMessage("Registration is disabled"))
		return
	}

	var req registerRequest
	if !bindAndValidate(c, &req) {
		return
	}

	user, err := h.users.Create(requestContext(c), services.CreateUserInput{
		Username:    req.Username,
		Email:       req.Email,
		Password:    req.Password,
		DisplayName: req.DisplayName,
		Avatar:      req.Avatar,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	h.issue(c, http.StatusCreated, user)
}

// POST /api/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if !bindAndValidate(c, &req) {
		return
	}

	user, err := h.users.Authenticate(requestContext(c), req.Identifier, req.Password)
	if err != nil {
		metrics.AuthAttempts.WithLabelValues("login", authResult(err)).Inc()
		if errors.Is(err, services.ErrUserInactive) || errors.Is(err, apperrors.ErrInvalidCredentials) {
			response.Error(c, err)
			return
		}
		response.Error(c, apperrors.ErrInternalServer.WithInternal(err))
		return
	}

	metrics.AuthAttempts.WithLabelValues("login", "success").Inc()
	h.issue(c, http.StatusOK, user)
}

// GET /api/auth/me
func (h *AuthHandler) Me(c *gin.Context) {
	user, err := h.users.GetByID(requestContext(c), c.GetString(middleware.CtxUserIDKey))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, toUserPayload(user))
}

func (h *AuthHandler) issue(c *gin.Context, status int, user *models.User) {
	token, err := h.jwt.GenerateAccessToken(iauth.AccessTokenInput{UserID: user.ID, Username: user.Username})
	if err != nil {
		response.Error(c, apperrors.ErrInternalServer.WithInternal(err))
		return
	}

	response.Success(c, status, tokenResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   int(h.jwt.TTL().Seconds()),
		User:        toUserPayload(user),
	})
}

func authResult(err error) string {
	return strings.ToLower(apperrors.FromError(err).Code)
}
