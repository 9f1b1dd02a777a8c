package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppError_MessageAndUnwrap(t *testing.T) {
	cause := errors.New("driver closed")
	err := Wrap(cause, ErrCodeInternal, "load job")

	assert.Equal(t, "load job: driver closed", err.Error())
	assert.ErrorIs(t, err, cause)
	assert.Nil(t, Wrap(nil, ErrCodeInternal, "load job"))
	assert.Equal(t, "lead exists", Conflict("lead exists").Error())
}

func TestCodePredicates_SeeThroughWrapping(t *testing.T) {
	wrapped := fmt.Errorf("insert lead: %w", Conflict("lead already stored"))

	assert.True(t, IsConflict(wrapped))
	assert.False(t, IsValidation(wrapped))
	assert.Equal(t, ErrCodeConflict, GetCode(wrapped))

	assert.True(t, IsNotFound(NotFound("no job")))
	assert.True(t, IsValidation(Validation("bad interval")))
	assert.Equal(t, ErrorCode(""), GetCode(errors.New("plain")))
}

func TestValidationField(t *testing.T) {
	err := ValidationField("interval_minutes", "must be positive")
	assert.True(t, IsValidation(err))
	assert.Equal(t, "interval_minutes", GetField(err))
	assert.Empty(t, GetField(errors.New("plain")))
}
