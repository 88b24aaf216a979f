package validator

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type statusPayload struct {
	Status string `json:"status" validate:"required,oneof=online away busy offline"`
}

type commentPayload struct {
	RoomID string `json:"roomId" validate:"required"`
	Text   string `json:"text" validate:"notblank,max=10"`
}

func TestValidateStructReportsJSONFieldNames(t *testing.T) {
	err := ValidateStruct(commentPayload{Text: "hi"})
	require.Error(t, err)

	ve, ok := err.(ValidationErrors)
	require.True(t, ok)
	require.Len(t, ve, 1)
	require.Equal(t, "roomId", ve[0].Field)
	require.Equal(t, "required", ve[0].Tag)
	require.Equal(t, []string{"roomId is required"}, ve.Messages())
}

func TestNotBlankRejectsWhitespace(t *testing.T) {
	err := ValidateStruct(commentPayload{RoomID: "task-1", Text: "   \n\t"})
	require.Error(t, err)

	ve := err.(ValidationErrors)
	require.Equal(t, "notblank", ve[0].Tag)
	require.Equal(t, "text is required", ve.Messages()[0])

	require.NoError(t, ValidateStruct(commentPayload{RoomID: "task-1", Text: " ok "}))
}

func TestOneOfMessage(t *testing.T) {
	err := ValidateStruct(statusPayload{Status: "paused"})
	require.Error(t, err)

	ve := err.(ValidationErrors)
	require.Equal(t, "oneof", ve[0].Tag)
	require.Equal(t, "status must be one of online, away, busy, offline", ve.Messages()[0])

	require.NoError(t, ValidateStruct(statusPayload{Status: "busy"}))
}

func TestValidationErrorsString(t *testing.T) {
	ve := ValidationErrors{{Field: "text", Tag: "max", Param: "10"}, {Field: "roomId", Tag: "required"}}
	require.Equal(t, "text failed on max=10; roomId failed on required", ve.Error())
	require.Equal(t, "validation failed", ValidationErrors{}.Error())
}
