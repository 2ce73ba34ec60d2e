// Package qerrors implements the structured error type shared by the
// public qcore API and every internal package that needs to classify a
// failure per spec.md §7's error-kind table. It lives under internal so
// that internal/runtime and its siblings can use it without the root
// package importing back into them.
package qerrors

import (
	"errors"
	"fmt"
)

// Error represents a structured qcore error carrying the task/step
// context needed to locate where in the pipeline it originated
// (spec.md §7 "Error Handling Design").
type Error struct {
	Op     string    // Operation that failed (e.g., "compile", "dispatch", "query")
	TaskID string    // Task ID (empty if not applicable)
	Step   int       // Step index within the task (-1 if not applicable)
	Code   ErrorCode // High-level error category
	Msg    string    // Human-readable message
	Inner  error     // Wrapped error
}

// Error implements the error interface.
func (e *Error) Error() string {
	var parts []string

	if e.Op != "" {
		parts = append(parts, fmt.Sprintf("op=%s", e.Op))
	}
	if e.TaskID != "" {
		parts = append(parts, fmt.Sprintf("task=%s", e.TaskID))
	}
	if e.Step >= 0 {
		parts = append(parts, fmt.Sprintf("step=%d", e.Step))
	}

	msg := e.Msg
	if msg == "" {
		msg = string(e.Code)
	}

	if len(parts) > 0 {
		return fmt.Sprintf("qcore: %s (%s)", msg, parts[0])
	}
	return fmt.Sprintf("qcore: %s", msg)
}

// Unwrap returns the wrapped error for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Inner
}

// Is provides errors.Is support, matching on Code alone so callers can
// test with a bare *Error{Code: ...} sentinel.
func (e *Error) Is(target error) bool {
	if target == nil {
		return false
	}
	te, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == te.Code
}

// ErrorCode enumerates the error kinds from spec.md §7's table.
type ErrorCode string

const (
	// RegistryMiss: query on an unknown path. Local recovery returns the
	// caller-supplied default; surfaced as a logged warning.
	RegistryMiss ErrorCode = "registry_miss"
	// TargetUnmapped: the Assembler cannot resolve a command to a
	// physical channel. Local recovery skips the command; surfaced as a
	// logged error, the task continues.
	TargetUnmapped ErrorCode = "target_unmapped"
	// DriverTransient: a transient I/O condition (timeout, EAGAIN).
	// Retried with bounded backoff; if exhausted the task Fails.
	DriverTransient ErrorCode = "driver_transient"
	// DriverLogical: a bad quantity name or an out-of-range value. No
	// local recovery; the task Fails and records the step index.
	DriverLogical ErrorCode = "driver_logical"
	// CompilerError: the circuit is ill-formed for the current
	// snapshot. No local recovery; the task Fails before step 0.
	CompilerError ErrorCode = "compiler_error"
	// Timeout: a task-level or step-level deadline was exceeded. No
	// local recovery; the task Fails.
	Timeout ErrorCode = "timeout"
	// Cancelled: an explicit cancel() was observed between sids. The
	// task transitions to Canceled.
	Cancelled ErrorCode = "cancelled"
)

// NewError creates a new structured error with no task/step context.
func NewError(op string, code ErrorCode, msg string) *Error {
	return &Error{Op: op, Code: code, Msg: msg, Step: -1}
}

// NewTaskError creates a new structured error scoped to a task and step.
func NewTaskError(op, taskID string, step int, code ErrorCode, msg string) *Error {
	return &Error{Op: op, TaskID: taskID, Step: step, Code: code, Msg: msg}
}

// WrapError wraps an existing error with qcore context, preserving an
// inner *Error's task/step/code if present.
func WrapError(op string, inner error) *Error {
	if inner == nil {
		return nil
	}

	if qe, ok := inner.(*Error); ok {
		return &Error{
			Op:     op,
			TaskID: qe.TaskID,
			Step:   qe.Step,
			Code:   qe.Code,
			Msg:    qe.Msg,
			Inner:  qe.Inner,
		}
	}

	return &Error{Op: op, Code: DriverLogical, Msg: inner.Error(), Inner: inner, Step: -1}
}

// IsCode reports whether err, or any error it wraps, is a *Error with
// the given code.
func IsCode(err error, code ErrorCode) bool {
	var qe *Error
	if errors.As(err, &qe) {
		return qe.Code == code
	}
	return false
}
