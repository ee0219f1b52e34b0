package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDomainError_Creation(t *testing.T) {
	cause := errors.New("underlying error")

	err := NewPreconditionError("rabbitmq-server not found", cause)

	assert.Equal(t, ErrorTypePrecondition, err.Type)
	assert.Equal(t, "rabbitmq-server not found", err.Message)
	assert.Equal(t, cause, err.Cause)
	assert.NotNil(t, err.Context)
}

func TestDomainError_ErrorMessage(t *testing.T) {
	tests := []struct {
		name     string
		error    *DomainError
		expected string
	}{
		{
			name:     "error without cause",
			error:    NewValidationError("bad port", nil),
			expected: "validation: bad port",
		},
		{
			name:     "error with cause",
			error:    NewLaunchError("failed to start", errors.New("exec format error")),
			expected: "launch: failed to start: exec format error",
		},
		{
			name:     "error with sorted context",
			error:    NewPreconditionError("directory exists", nil).WithContext("path", "/tmp/x").WithContext("node", "n@h"),
			expected: "precondition: directory exists (node=n@h, path=/tmp/x)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.error.Error())
		})
	}
}

func TestDomainError_TypeChecking(t *testing.T) {
	precondition := NewPreconditionError("missing", nil)
	launch := NewLaunchError("refused", nil)

	assert.True(t, IsPreconditionError(precondition))
	assert.False(t, IsLaunchError(precondition))
	assert.True(t, IsLaunchError(launch))
	assert.False(t, IsPreconditionError(launch))
	assert.False(t, IsPreconditionError(nil))
	assert.False(t, IsPreconditionError(errors.New("plain")))
}

func TestDomainError_WrappedChain(t *testing.T) {
	inner := NewPreconditionError("directory exists", nil).WithContext("path", "/tmp/test-rmq-1230")
	outer := NewInternalError("start failed", inner)
	wrapped := fmt.Errorf("launcher: %w", outer)

	assert.True(t, IsPreconditionError(wrapped))
	assert.True(t, IsInternalError(wrapped))
	assert.Equal(t, ErrorTypeInternal, TypeOf(wrapped))

	var domainErr *DomainError
	require.True(t, errors.As(wrapped, &domainErr))
	assert.True(t, errors.Is(wrapped, &DomainError{Type: ErrorTypePrecondition}))
}

func TestTypeOf_PlainError(t *testing.T) {
	assert.Equal(t, ErrorTypeInternal, TypeOf(errors.New("boom")))
	assert.Equal(t, ErrorTypeTimeout, TypeOf(NewTimeoutError("slow", nil)))
}

func TestErrorCollection(t *testing.T) {
	collection := NewErrorCollection()
	assert.NoError(t, collection.ToError())

	collection.Add(nil)
	assert.Equal(t, 0, collection.Len())

	collection.Add(errors.New("first"))
	assert.Equal(t, "first", collection.Error())

	collection.Add(NewTimeoutError("group did not exit", nil))
	err := collection.ToError()
	require.Error(t, err)
	assert.Equal(t, 2, collection.Len())
	assert.Equal(t, "2 errors occurred: first; timeout: group did not exit", err.Error())

	// members stay reachable through the collection
	assert.True(t, IsTimeoutError(err))
	assert.True(t, IsTimeoutError(fmt.Errorf("close: %w", err)))
	assert.False(t, IsIOError(err))
}
