package errors

import (
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppError_Error(t *testing.T) {
	err := NewValidationError("title is required")
	assert.Equal(t, "VALIDATION_ERROR: title is required", err.Error())

	cause := stderrors.New("pq: value too long")
	err = NewInternalError("insert failed").WithCause(cause)
	assert.Contains(t, err.Error(), "insert failed")
	assert.Contains(t, err.Error(), "pq: value too long")
}

func TestAppError_Unwrap(t *testing.T) {
	cause := stderrors.New("connection refused")
	err := NewUnavailableError("database unreachable").WithCause(cause)

	assert.True(t, stderrors.Is(err, cause))
}

func TestAppError_WithDetail(t *testing.T) {
	err := NewConnectionError("staging", "connect timed out")

	assert.Equal(t, "staging", err.Details["environment"])
	assert.Equal(t, ErrorTypeExternal, err.Type)

	err.WithDetail("attempt", "3")
	assert.Equal(t, "3", err.Details["attempt"])
}

func TestConstructors(t *testing.T) {
	cases := []struct {
		err      *AppError
		wantType ErrorType
		wantCode string
	}{
		{NewValidationError("x"), ErrorTypeValidation, "VALIDATION_ERROR"},
		{NewNotFoundError("session"), ErrorTypeNotFound, "NOT_FOUND"},
		{NewConflictError("x"), ErrorTypeConflict, "CONFLICT"},
		{NewRateLimitError("x"), ErrorTypeRateLimit, "RATE_LIMIT_EXCEEDED"},
		{NewInternalError("x"), ErrorTypeInternal, "INTERNAL_ERROR"},
		{NewExternalError("cloudsql", "x"), ErrorTypeExternal, "EXTERNAL_SERVICE_ERROR"},
		{NewTimeoutError("connect"), ErrorTypeTimeout, "TIMEOUT"},
		{NewUnavailableError("x"), ErrorTypeUnavailable, "SERVICE_UNAVAILABLE"},
		{NewStartupError("database", "x"), ErrorTypeInternal, "STARTUP_ERROR"},
		{NewDegradedError("cache", "x"), ErrorTypeUnavailable, "DEGRADED"},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.wantType, tc.err.Type, tc.wantCode)
		assert.Equal(t, tc.wantCode, tc.err.Code)
	}
}

func TestNotFoundMessage(t *testing.T) {
	err := NewNotFoundError("session")
	assert.Equal(t, "session not found", err.Message)
}

func TestTypeHelpers(t *testing.T) {
	assert.True(t, IsNotFound(NewNotFoundError("session")))
	assert.False(t, IsNotFound(NewTimeoutError("connect")))

	assert.True(t, IsTimeout(NewTimeoutError("connect")))
	assert.False(t, IsTimeout(stderrors.New("plain")))

	assert.True(t, IsType(NewConflictError("x"), ErrorTypeConflict))
	assert.False(t, IsType(stderrors.New("plain"), ErrorTypeConflict))
}

func TestGetCodeAndType(t *testing.T) {
	assert.Equal(t, "TIMEOUT", GetCode(NewTimeoutError("connect")))
	assert.Equal(t, "UNKNOWN_ERROR", GetCode(stderrors.New("plain")))

	assert.Equal(t, ErrorTypeTimeout, GetType(NewTimeoutError("connect")))
	// Unknown errors are treated as internal
	assert.Equal(t, ErrorTypeInternal, GetType(stderrors.New("plain")))
}
