package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
)

func TestCloneKeepsCodeForIs(t *testing.T) {
	cloned := Clone(ErrDuplicateMonth, "student Ali already paid for January")
	wrapped := fmt.Errorf("record payment: %w", cloned)

	assert.True(t, errors.Is(wrapped, ErrDuplicateMonth))
	assert.False(t, errors.Is(wrapped, ErrStudentNotFound))
	assert.Equal(t, http.StatusConflict, FromError(wrapped).Status)
}

func TestFromErrorDefaultsToInternal(t *testing.T) {
	appErr := FromError(errors.New("boom"))
	assert.Equal(t, ErrInternal.Code, appErr.Code)
	assert.Equal(t, http.StatusInternalServerError, appErr.Status)
}

func TestPersistenceWrapsCause(t *testing.T) {
	cause := errors.New("connection refused")
	appErr := Persistence(cause, "failed to load student")
	assert.Equal(t, ErrPersistence.Code, appErr.Code)
	assert.ErrorIs(t, appErr, cause)
	assert.Contains(t, appErr.Error(), "connection refused")
}

func TestInvalidCollectsFieldDetails(t *testing.T) {
	type payload struct {
		Month string `validate:"required"`
		Code  string `validate:"len=6"`
	}
	err := validator.New().Struct(payload{Code: "12"})

	appErr := Invalid(err, "invalid payment payload")
	assert.Equal(t, ErrValidation.Code, appErr.Code)
	assert.Equal(t, http.StatusBadRequest, appErr.Status)
	assert.Equal(t, map[string]string{"Month": "required", "Code": "len"}, appErr.Details)
	assert.Nil(t, Clone(appErr, "").Details)
}

func TestInvalidWithoutFieldErrors(t *testing.T) {
	appErr := Invalid(errors.New("unexpected EOF"), "malformed body")
	assert.Equal(t, "malformed body", appErr.Message)
	assert.Nil(t, appErr.Details)
}
