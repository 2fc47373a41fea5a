// Package errors provides the error taxonomy for taskscope and helpers for
// classifying errors at the consuming boundary.
//
// # Error Types
//
// Four typed errors cover the conditions the query engine can report:
//   - ValidationError: a malformed inbound payload or query shape
//   - TransitionError: a task status change outside the transition table
//   - ConnectionError: an HTTP or push-channel transport failure (retryable)
//   - NotFoundError: a task or resource the caller referenced does not exist
//
// A cache miss is not an error; lookups return (value, ok).
//
// # Usage
//
// Creating errors:
//
//	err := errors.NewTransitionError("pending", "blocked").WithTaskID("task-1")
//	err := errors.NewConnectionError("dial", "wss://host/ws/task", cause)
//	err := errors.NewValidationError("missing task_id").WithField("data.task_id")
//
// Checking errors:
//
//	if errors.Is(err, errors.ErrInvalidTransition) { ... }
//
//	var connErr *errors.ConnectionError
//	if errors.As(err, &connErr) { ... }
//
//	if errors.IsRetryable(err) { ... }
//
// # Error Classification
//
// Errors carry a severity, a retryable flag and a user-facing flag. Only
// ConnectionError is retryable by default: malformed payloads and rejected
// transitions are never retried.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Re-export standard library functions for convenience.
// This allows callers to import only this package for all error handling.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	New    = errors.New
	Join   = errors.Join
)

// Severity represents the severity level of an error.
type Severity int

const (
	// SeverityDebug is for errors that are useful for debugging but not critical.
	SeverityDebug Severity = iota
	// SeverityInfo is for informational errors that don't indicate a problem.
	SeverityInfo
	// SeverityWarning is for errors that might indicate a problem but aren't critical.
	SeverityWarning
	// SeverityError is for errors that indicate a real problem.
	SeverityError
	// SeverityCritical is for errors that require immediate attention.
	SeverityCritical
)

// String returns the string representation of the severity level.
func (s Severity) String() string {
	switch s {
	case SeverityDebug:
		return "debug"
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// -----------------------------------------------------------------------------
// Sentinel Errors
// -----------------------------------------------------------------------------

// Task sentinel errors
var (
	// ErrInvalidTransition indicates a status change outside the transition table.
	ErrInvalidTransition = New("invalid status transition")
	// ErrTaskNotFound indicates that a task is not in the local collection.
	ErrTaskNotFound = New("task not found")
	// ErrUnknownState indicates a status string that is not a task state.
	ErrUnknownState = New("unknown task state")
)

// Payload sentinel errors
var (
	// ErrMalformedPayload indicates an inbound message that failed schema validation.
	ErrMalformedPayload = New("malformed payload")
	// ErrInvalidInput indicates that input validation failed.
	ErrInvalidInput = New("invalid input")
)

// Transport sentinel errors
var (
	// ErrConnectionFailed indicates a transport-level failure.
	ErrConnectionFailed = New("connection failed")
	// ErrNotConnected indicates an operation that needs an open channel.
	ErrNotConnected = New("not connected")
)

// Scheduling sentinel errors
var (
	// ErrStaleResult indicates a result superseded by a newer request.
	ErrStaleResult = New("stale result")
	// ErrCanceled indicates that an operation was canceled.
	ErrCanceled = New("operation canceled")
)

// -----------------------------------------------------------------------------
// Base Error Interface
// -----------------------------------------------------------------------------

// TaskscopeError is the base interface for all typed errors in this module.
type TaskscopeError interface {
	error

	// Unwrap returns the underlying error, if any.
	Unwrap() error

	// Is reports whether this error matches the target error.
	Is(target error) bool

	// Severity returns the severity level of this error.
	Severity() Severity

	// IsRetryable returns true if the operation may succeed on retry.
	IsRetryable() bool

	// IsUserFacing returns true if the message is safe to display to end users.
	IsUserFacing() bool
}

// baseError provides common functionality for all error types.
type baseError struct {
	message    string
	cause      error
	severity   Severity
	retryable  bool
	userFacing bool
}

// Error returns the error message.
func (e *baseError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

// Unwrap returns the underlying error.
func (e *baseError) Unwrap() error {
	return e.cause
}

// Is checks if this error matches the target.
func (e *baseError) Is(target error) bool {
	if e.cause != nil {
		return errors.Is(e.cause, target)
	}
	return false
}

// Severity returns the error severity.
func (e *baseError) Severity() Severity {
	return e.severity
}

// IsRetryable returns whether the error is retryable.
func (e *baseError) IsRetryable() bool {
	return e.retryable
}

// IsUserFacing returns whether the error is safe to show users.
func (e *baseError) IsUserFacing() bool {
	return e.userFacing
}

// formatWithContext renders "prefix [k=v, ...]: message: cause".
func (e *baseError) formatWithContext(prefix string, parts []string) string {
	if len(parts) > 0 {
		prefix = fmt.Sprintf("%s [%s]", prefix, strings.Join(parts, ", "))
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// -----------------------------------------------------------------------------
// ValidationError
// -----------------------------------------------------------------------------

// ValidationError represents a malformed inbound payload or query shape.
// It is discarded at the boundary and never applied.
//
// Example:
//
//	err := errors.NewValidationError("task_id must be a non-empty string")
//	err = err.WithField("data.task_id").WithValue(42)
type ValidationError struct {
	baseError
	Field string
	Value any
}

// NewValidationError creates a new ValidationError.
func NewValidationError(message string) *ValidationError {
	return &ValidationError{
		baseError: baseError{
			message:    message,
			severity:   SeverityWarning,
			retryable:  false,
			userFacing: true,
		},
	}
}

// WithField adds a field path to the error context.
func (e *ValidationError) WithField(field string) *ValidationError {
	e.Field = field
	return e
}

// WithValue adds the invalid value to the error context.
func (e *ValidationError) WithValue(value any) *ValidationError {
	e.Value = value
	return e
}

// WithCause adds a cause to the error.
func (e *ValidationError) WithCause(cause error) *ValidationError {
	e.cause = cause
	return e
}

// Error returns the formatted error message.
func (e *ValidationError) Error() string {
	var parts []string
	if e.Field != "" {
		parts = append(parts, fmt.Sprintf("field=%s", e.Field))
	}
	if e.Value != nil {
		parts = append(parts, fmt.Sprintf("value=%v", e.Value))
	}
	return e.formatWithContext("validation error", parts)
}

// Is checks if this error matches the target.
func (e *ValidationError) Is(target error) bool {
	if _, ok := target.(*ValidationError); ok {
		return true
	}
	if target == ErrInvalidInput || target == ErrMalformedPayload {
		return true
	}
	return e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// TransitionError
// -----------------------------------------------------------------------------

// TransitionError represents a requested or inbound status change that is not
// present in the transition table. The original state is preserved.
//
// Example:
//
//	err := errors.NewTransitionError("completed", "pending").WithTaskID("task-7")
//	fmt.Println(err) // "transition error [task=task-7]: completed -> pending is not allowed"
type TransitionError struct {
	baseError
	TaskID string
	From   string
	To     string
}

// NewTransitionError creates a new TransitionError for the from -> to pair.
func NewTransitionError(from, to string) *TransitionError {
	return &TransitionError{
		baseError: baseError{
			message:    fmt.Sprintf("%s -> %s is not allowed", from, to),
			severity:   SeverityWarning,
			retryable:  false,
			userFacing: true,
		},
		From: from,
		To:   to,
	}
}

// WithTaskID adds a task ID to the error context.
func (e *TransitionError) WithTaskID(id string) *TransitionError {
	e.TaskID = id
	return e
}

// WithCause adds a cause to the error.
func (e *TransitionError) WithCause(cause error) *TransitionError {
	e.cause = cause
	return e
}

// Error returns the formatted error message.
func (e *TransitionError) Error() string {
	var parts []string
	if e.TaskID != "" {
		parts = append(parts, fmt.Sprintf("task=%s", e.TaskID))
	}
	return e.formatWithContext("transition error", parts)
}

// Is checks if this error matches the target.
func (e *TransitionError) Is(target error) bool {
	if _, ok := target.(*TransitionError); ok {
		return true
	}
	if target == ErrInvalidTransition {
		return true
	}
	return e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// ConnectionError
// -----------------------------------------------------------------------------

// ConnectionError represents an HTTP or push-channel transport failure.
// Connection errors are retryable by default and leave cache and task state
// untouched.
//
// Example:
//
//	err := errors.NewConnectionError("search", "https://api/tasks/search", cause).WithStatusCode(503)
type ConnectionError struct {
	baseError
	Operation  string
	Endpoint   string
	StatusCode int
}

// NewConnectionError creates a new ConnectionError.
func NewConnectionError(operation, endpoint string, cause error) *ConnectionError {
	return &ConnectionError{
		baseError: baseError{
			message:    fmt.Sprintf("%s failed", operation),
			cause:      cause,
			severity:   SeverityError,
			retryable:  true,
			userFacing: true,
		},
		Operation: operation,
		Endpoint:  endpoint,
	}
}

// WithStatusCode records the HTTP status that caused the failure.
func (e *ConnectionError) WithStatusCode(code int) *ConnectionError {
	e.StatusCode = code
	return e
}

// WithRetryable sets whether the error is retryable.
func (e *ConnectionError) WithRetryable(r bool) *ConnectionError {
	e.retryable = r
	return e
}

// Error returns the formatted error message.
func (e *ConnectionError) Error() string {
	var parts []string
	if e.Endpoint != "" {
		parts = append(parts, fmt.Sprintf("endpoint=%s", e.Endpoint))
	}
	if e.StatusCode != 0 {
		parts = append(parts, fmt.Sprintf("status=%d", e.StatusCode))
	}
	return e.formatWithContext("connection error", parts)
}

// Is checks if this error matches the target.
func (e *ConnectionError) Is(target error) bool {
	if _, ok := target.(*ConnectionError); ok {
		return true
	}
	if target == ErrConnectionFailed {
		return true
	}
	return e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// NotFoundError
// -----------------------------------------------------------------------------

// NotFoundError represents a resource that could not be found.
//
// Example:
//
//	err := errors.NewNotFoundError("task", "task-9")
//	fmt.Println(err) // "task 'task-9' not found"
type NotFoundError struct {
	baseError
	ResourceType string
	ResourceID   string
}

// NewNotFoundError creates a new NotFoundError.
func NewNotFoundError(resourceType, resourceID string) *NotFoundError {
	return &NotFoundError{
		baseError: baseError{
			message:    fmt.Sprintf("%s '%s' not found", resourceType, resourceID),
			severity:   SeverityWarning,
			retryable:  false,
			userFacing: true,
		},
		ResourceType: resourceType,
		ResourceID:   resourceID,
	}
}

// WithCause adds a cause to the error.
func (e *NotFoundError) WithCause(cause error) *NotFoundError {
	e.cause = cause
	return e
}

// Error returns the formatted error message.
func (e *NotFoundError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

// Is checks if this error matches the target.
func (e *NotFoundError) Is(target error) bool {
	if _, ok := target.(*NotFoundError); ok {
		return true
	}
	if target == ErrTaskNotFound && e.ResourceType == "task" {
		return true
	}
	return e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// Error Classification Helpers
// -----------------------------------------------------------------------------

// IsRetryable returns true if the error represents a transient condition
// that may succeed on retry. Typed errors report their own flag; otherwise
// anything wrapping ErrConnectionFailed is retryable.
//
// Example:
//
//	if errors.IsRetryable(err) {
//	    showRetryButton(err)
//	}
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var typed TaskscopeError
	if As(err, &typed) {
		return typed.IsRetryable()
	}

	return Is(err, ErrConnectionFailed)
}

// IsUserFacing returns true if the error message is safe to display to end users.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}

	var typed TaskscopeError
	if As(err, &typed) {
		return typed.IsUserFacing()
	}
	return false
}

// GetSeverity returns the severity level of the error.
// Returns SeverityError for errors that don't implement TaskscopeError.
func GetSeverity(err error) Severity {
	if err == nil {
		return SeverityDebug
	}

	var typed TaskscopeError
	if As(err, &typed) {
		return typed.Severity()
	}
	return SeverityError
}

// IsExpected reports whether err is an expected, non-fatal outcome
// (a rejected transition or a discarded payload) rather than a failure.
func IsExpected(err error) bool {
	if err == nil {
		return true
	}
	var transition *TransitionError
	var validation *ValidationError
	return As(err, &transition) || As(err, &validation) || Is(err, ErrStaleResult)
}

// -----------------------------------------------------------------------------
// Convenience Constructors
// -----------------------------------------------------------------------------

// Wrap wraps an error with additional context message.
// Unlike replacing the error, this preserves the typed error for errors.As.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with a formatted context message.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}
