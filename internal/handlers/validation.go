package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	apperrors "github.com/charlesng35/taskpulse/pkg/errors"
	"github.com/charlesng35/taskpulse/pkg/response"
	"github.com/charlesng35/taskpulse/pkg/validator"
)

const defaultListLimit = 50

// bindAndValidate decodes the JSON body into dest and applies its validate tags. Bodies
// that are not JSON of the right shape are BAD_REQUEST; rule failures are VALIDATION_ERROR,
// matching what the socket router reports. On failure the response is already written.
func bindAndValidate[T any](c *gin.Context, dest *T) bool {
	if err := c.ShouldBindJSON(dest); err != nil {
		response.Error(c, decodeError(err))
		return false
	}

	if err := validator.ValidateStruct(dest); err != nil {
		var failures validator.ValidationErrors
		if errors.As(err, &failures) && len(failures) > 0 {
			response.Error(c, apperrors.NewValidation(strings.Join(failures.Messages(), "; ")))
		} else {
			response.Error(c, apperrors.NewValidation("invalid request payload").WithInternal(err))
		}
		return false
	}
	return true
}

func decodeError(err error) *apperrors.AppError {
	var typeErr *json.UnmarshalTypeError
	var syntaxErr *json.SyntaxError
	switch {
	case errors.Is(err, io.EOF):
		return apperrors.NewBadRequest("request body is required")
	case errors.As(err, &typeErr) && typeErr.Field != "":
		return apperrors.NewBadRequest(typeErr.Field + " must be a " + typeErr.Type.String())
	case errors.As(err, &syntaxErr):
		return apperrors.NewBadRequest("malformed JSON at offset " + strconv.FormatInt(syntaxErr.Offset, 10))
	default:
		return apperrors.NewBadRequest("invalid JSON payload")
	}
}

// pageQuery reads limit and offset; absent, malformed or negative values use the defaults.
func pageQuery(c *gin.Context) (limit, offset int) {
	read := func(key string, fallback int) int {
		parsed, err := strconv.Atoi(strings.TrimSpace(c.Query(key)))
		if err != nil || parsed < 0 {
			return fallback
		}
		return parsed
	}
	return read("limit", defaultListLimit), read("offset", 0)
}
