package response

import (
	"net/http"

	"github.com/gin-gonic/gin"

	appErrors "github.com/charlesng35/taskpulse/pkg/errors"
)

// Response is the envelope every REST endpoint writes.
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *ErrorInfo  `json:"error,omitempty"`
	Meta    *Meta       `json:"meta,omitempty"`
}

// ErrorInfo holds error details to send to clients.
type ErrorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Meta describes list metadata.
type Meta struct {
	Total  int `json:"total"`
	Limit  int `json:"limit,omitempty"`
	Offset int `json:"offset,omitempty"`
}

// Success writes a JSON success response.
func Success(c *gin.Context, statusCode int, data interface{}) {
	c.JSON(statusCode, Response{
		Success: true,
		Data:    data,
	})
}

// List writes a JSON success response for a collection.
func List(c *gin.Context, data interface{}, meta *Meta) {
	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    data,
		Meta:    meta,
	})
}

// Error writes a JSON error response derived from an AppError.
func Error(c *gin.Context, err error) {
	c.JSON(Status(err), Response{
		Success: false,
		Error:   Info(err),
	})
}

// Abort writes an error response and stops the handler chain.
func Abort(c *gin.Context, err error) {
	c.AbortWithStatusJSON(Status(err), Response{
		Success: false,
		Error:   Info(err),
	})
}

// Info converts err into the client-safe error payload. Internal details never leave the server.
func Info(err error) *ErrorInfo {
	if err == nil {
		err = appErrors.ErrInternalServer
	}
	appErr := appErrors.FromError(err)
	return &ErrorInfo{Code: appErr.Code, Message: appErr.Message}
}

// Status resolves the HTTP status carried by err.
func Status(err error) int {
	if err == nil {
		return http.StatusInternalServerError
	}
	if status := appErrors.FromError(err).StatusCode; status != 0 {
		return status
	}
	return http.StatusInternalServerError
}
