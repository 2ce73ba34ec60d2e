// Package qcore is the public API for the quantum-experiment task
// pipeline and calibration scheduler: submitting tasks, tracking their
// progress, and fetching the datasets they produce.
package qcore

import "github.com/qlab-core/qcore/internal/qerrors"

// Error represents a structured qcore error carrying the task/step
// context needed to locate where in the pipeline it originated
// (spec.md §7 "Error Handling Design"). It is a re-export of
// internal/qerrors.Error so that internal packages (which the public
// API imports) can construct and classify these errors without an
// import cycle back into the root package.
type Error = qerrors.Error

// ErrorCode enumerates the error kinds from spec.md §7's table.
type ErrorCode = qerrors.ErrorCode

const (
	RegistryMiss    = qerrors.RegistryMiss
	TargetUnmapped  = qerrors.TargetUnmapped
	DriverTransient = qerrors.DriverTransient
	DriverLogical   = qerrors.DriverLogical
	CompilerError   = qerrors.CompilerError
	Timeout         = qerrors.Timeout
	Cancelled       = qerrors.Cancelled
)

// NewError creates a new structured error with no task/step context.
var NewError = qerrors.NewError

// NewTaskError creates a new structured error scoped to a task and step.
var NewTaskError = qerrors.NewTaskError

// WrapError wraps an existing error with qcore context, preserving an
// inner *Error's task/step/code if present.
var WrapError = qerrors.WrapError

// IsCode reports whether err, or any error it wraps, is a *Error with
// the given code.
var IsCode = qerrors.IsCode
