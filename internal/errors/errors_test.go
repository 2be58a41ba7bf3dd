package errors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppError_Error(t *testing.T) {
	plain := InvalidCode("Invalid code")
	assert.Equal(t, "Invalid code", plain.Error())

	wrapped := Wrap(errors.New("boom"), ErrCodeIdP, "token issuance failed")
	assert.Equal(t, "token issuance failed: boom", wrapped.Error())
}

func TestWrap_NilError(t *testing.T) {
	assert.Nil(t, Wrap(nil, ErrCodeInternal, "ignored"))
	assert.Nil(t, Wrapf(nil, ErrCodeInternal, "ignored %d", 1))
}

func TestUnwrap(t *testing.T) {
	cause := errors.New("cause")
	err := Wrap(cause, ErrCodeIdP, "outer")
	require.ErrorIs(t, err, cause)
}

func TestCodeChecks(t *testing.T) {
	assert.True(t, IsInvalidCode(InvalidCode("x")))
	assert.True(t, IsAccessDenied(AccessDenied("x")))
	assert.True(t, IsValidation(Validationf("bad %s", "phone")))
	assert.True(t, IsNotFound(NotFound("x")))
	assert.True(t, IsIdP(Wrap(errors.New("y"), ErrCodeIdP, "x")))
	assert.False(t, IsInvalidCode(errors.New("plain")))
}

func TestGetCode(t *testing.T) {
	assert.Equal(t, ErrCodeValidation, GetCode(Validation("x")))
	assert.Equal(t, ErrorCode(""), GetCode(errors.New("plain")))
}
