// Package errors provides structured error types and exit codes for fleetbuild.
package errors

import (
	stderrors "errors"
	"fmt"
)

// Exit codes for run-level outcomes. Per-target failures are reported as a
// count instead (see pkg/fleetbuild).
const (
	ExitSuccess = 0 // Success
	ExitAbort   = 1 // Run aborted before or during setup (validation, config, runtime)
)

// ErrorKind represents the type of error.
type ErrorKind int

const (
	KindRuntime ErrorKind = iota
	// KindValidation is malformed operator input (version, release, pattern).
	// The run aborts before any repository mutation.
	KindValidation
	// KindConfig is missing or invalid run-level input (no group, no repo
	// source, unknown target names). The run exits before any worker starts.
	KindConfig
	// KindTarget is a clone/build/push failure scoped to one target.
	KindTarget
	// KindAggregation is a failure while computing build metrics. It never
	// aborts a build run.
	KindAggregation
	KindNotFound
)

// String returns the kind name used in log output.
func (k ErrorKind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindConfig:
		return "config"
	case KindTarget:
		return "target"
	case KindAggregation:
		return "aggregation"
	case KindNotFound:
		return "not-found"
	default:
		return "runtime"
	}
}

// FleetError is the base error type for fleetbuild.
type FleetError struct {
	Kind    ErrorKind
	Message string
	Target  string // Distgit key if applicable
	Stage   string // Lifecycle stage if applicable (clone, build, push, ...)
	Cause   error  // Underlying error
}

func (e *FleetError) Error() string {
	msg := e.Message
	if e.Cause != nil {
		if msg == "" {
			msg = e.Cause.Error()
		} else {
			msg = fmt.Sprintf("%s: %v", msg, e.Cause)
		}
	}
	if e.Target != "" && e.Stage != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Target, e.Stage, msg)
	}
	if e.Target != "" {
		return fmt.Sprintf("[%s] %s", e.Target, msg)
	}
	return msg
}

func (e *FleetError) Unwrap() error {
	return e.Cause
}

// ExitCode returns the process exit code for a run aborted by this error.
func (e *FleetError) ExitCode() int {
	return ExitAbort
}

// New creates a new runtime error.
func New(message string) *FleetError {
	return &FleetError{
		Kind:    KindRuntime,
		Message: message,
	}
}

// Validation creates a new validation error.
func Validation(message string) *FleetError {
	return &FleetError{
		Kind:    KindValidation,
		Message: message,
	}
}

// Validationf creates a new validation error with formatting.
func Validationf(format string, args ...interface{}) *FleetError {
	return Validation(fmt.Sprintf(format, args...))
}

// Config creates a new configuration error.
func Config(message string) *FleetError {
	return &FleetError{
		Kind:    KindConfig,
		Message: message,
	}
}

// Configf creates a new configuration error with formatting.
func Configf(format string, args ...interface{}) *FleetError {
	return Config(fmt.Sprintf(format, args...))
}

// Wrap wraps an error with additional context.
func Wrap(err error, message string) *FleetError {
	return &FleetError{
		Kind:    KindRuntime,
		Message: message,
		Cause:   err,
	}
}

// TargetError creates an error for a specific target and lifecycle stage.
func TargetError(target, stage string, cause error) *FleetError {
	return &FleetError{
		Kind:   KindTarget,
		Target: target,
		Stage:  stage,
		Cause:  cause,
	}
}

// Aggregation wraps a metrics computation failure.
func Aggregation(cause error) *FleetError {
	return &FleetError{
		Kind:    KindAggregation,
		Message: "build metrics unavailable",
		Cause:   cause,
	}
}

// NotFound creates a not found error.
func NotFound(what, name string) *FleetError {
	return &FleetError{
		Kind:    KindNotFound,
		Message: fmt.Sprintf("%s not found: %s", what, name),
	}
}

// IsKind reports whether any FleetError in err's chain has the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var fe *FleetError
	for err != nil {
		if !stderrors.As(err, &fe) {
			return false
		}
		if fe.Kind == kind {
			return true
		}
		err = fe.Cause
	}
	return false
}

// GetExitCode returns the exit code for an error.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var fe *FleetError
	if stderrors.As(err, &fe) {
		return fe.ExitCode()
	}
	return ExitAbort
}
