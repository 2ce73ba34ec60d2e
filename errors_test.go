package qcore

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStructuredError(t *testing.T) {
	err := NewError("compile", CompilerError, "ill-formed circuit")

	assert.Equal(t, "compile", err.Op)
	assert.Equal(t, CompilerError, err.Code)
	assert.Equal(t, "qcore: ill-formed circuit (op=compile)", err.Error())
}

func TestTaskError(t *testing.T) {
	err := NewTaskError("dispatch", "t-42", 3, DriverLogical, "bad quantity")

	assert.Equal(t, "t-42", err.TaskID)
	assert.Equal(t, 3, err.Step)
	assert.Equal(t, "qcore: bad quantity (op=dispatch)", err.Error())
}

func TestWrapErrorPreservesInnerCode(t *testing.T) {
	inner := NewTaskError("write", "t-1", 2, DriverTransient, "EAGAIN")
	wrapped := WrapError("retry", inner)

	assert.Equal(t, DriverTransient, wrapped.Code)
	assert.Equal(t, "t-1", wrapped.TaskID)
	assert.Equal(t, 2, wrapped.Step)
}

func TestWrapErrorOnPlainError(t *testing.T) {
	wrapped := WrapError("read", errors.New("boom"))
	require.NotNil(t, wrapped)
	assert.Equal(t, DriverLogical, wrapped.Code)
	assert.True(t, errors.Is(wrapped, wrapped.Inner) || errors.Unwrap(wrapped) != nil)
}

func TestWrapErrorNilIsNil(t *testing.T) {
	assert.Nil(t, WrapError("op", nil))
}

func TestIsCode(t *testing.T) {
	err := NewError("deadline", Timeout, "step deadline exceeded")

	assert.True(t, IsCode(err, Timeout))
	assert.False(t, IsCode(err, Cancelled))
	assert.False(t, IsCode(nil, Timeout))
}

func TestErrorIsMatchesOnCodeOnly(t *testing.T) {
	a := NewTaskError("dispatch", "t-1", 0, RegistryMiss, "unknown path")
	b := &Error{Code: RegistryMiss}

	assert.True(t, errors.Is(a, b))
	assert.False(t, errors.Is(a, &Error{Code: Cancelled}))
}
