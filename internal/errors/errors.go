// Package errors provides centralized error definitions and error handling
// utilities for the lodestar codebase. It defines the error taxonomy used by
// the session store, the persistence engine, and the orchestration boundary,
// along with classification helpers.
//
// # Error Types
//
//   - NotFoundError: a session (or other resource) does not exist
//   - PersistenceError: an I/O or serialization failure while writing or
//     reading the ledger
//   - ConfigurationError: missing or invalid configuration, such as an
//     unusable storage root
//   - TimeoutError: an external call exceeded its bound
//   - CancellationError: a caller-initiated abort
//
// # Usage
//
// Creating errors:
//
//	err := errors.NewNotFoundError("session", "analysis-1712000000000-a1b2c3d4")
//	err := errors.NewPersistenceError("write ledger", cause).WithPath(path)
//
// Checking errors:
//
//	if errors.Is(err, errors.ErrNotFound) { ... }
//
//	var perr *errors.PersistenceError
//	if errors.As(err, &perr) { ... }
//
//	if errors.IsRetryable(err) { ... }
package errors

import (
	"errors"
	"fmt"
	"strings"
	"time"
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

var (
	// ErrNotFound indicates that a requested resource does not exist.
	ErrNotFound = New("not found")
	// ErrLedgerCorrupted indicates that the ledger file cannot be parsed.
	ErrLedgerCorrupted = New("ledger data corrupted")
	// ErrStoreClosed indicates an operation against a store that has shut down.
	ErrStoreClosed = New("session store is closed")
	// ErrTimeout indicates that an operation timed out.
	ErrTimeout = New("operation timed out")
	// ErrCanceled indicates that an operation was canceled by the caller.
	ErrCanceled = New("operation canceled")
	// ErrInvalidInput indicates that input validation failed.
	ErrInvalidInput = New("invalid input")
)

// -----------------------------------------------------------------------------
// Base Error Interface
// -----------------------------------------------------------------------------

// LodestarError is the base interface for all lodestar errors.
// It extends the standard error interface with methods for error
// handling and classification.
type LodestarError interface {
	error

	// Unwrap returns the underlying error, if any.
	Unwrap() error

	// Is reports whether this error matches the target error.
	Is(target error) bool

	// Severity returns the severity level of this error.
	Severity() Severity

	// IsRetryable returns true if the error is transient and the operation
	// may succeed on retry.
	IsRetryable() bool

	// IsUserFacing returns true if the error message is safe to display
	// to end users.
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

func (e *baseError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

func (e *baseError) Unwrap() error {
	return e.cause
}

func (e *baseError) Is(target error) bool {
	if e.cause != nil {
		return errors.Is(e.cause, target)
	}
	return false
}

func (e *baseError) Severity() Severity {
	return e.severity
}

func (e *baseError) IsRetryable() bool {
	return e.retryable
}

func (e *baseError) IsUserFacing() bool {
	return e.userFacing
}

// -----------------------------------------------------------------------------
// NotFoundError
// -----------------------------------------------------------------------------

// NotFoundError represents a resource that could not be found.
//
// Example:
//
//	err := errors.NewNotFoundError("session", "abc123")
//	fmt.Println(err) // "session 'abc123' not found"
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
		return fmt.Sprintf("%s '%s' not found: %v", e.ResourceType, e.ResourceID, e.cause)
	}
	return fmt.Sprintf("%s '%s' not found", e.ResourceType, e.ResourceID)
}

// Is checks if this error matches the target.
func (e *NotFoundError) Is(target error) bool {
	if _, ok := target.(*NotFoundError); ok {
		return true
	}
	if errors.Is(target, ErrNotFound) {
		return true
	}
	return e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// PersistenceError
// -----------------------------------------------------------------------------

// PersistenceError represents an I/O or serialization failure while reading
// or writing the session ledger.
//
// Example:
//
//	err := errors.NewPersistenceError("write ledger", cause).WithPath("/tmp/sessions.json")
type PersistenceError struct {
	baseError
	Op   string // The failed operation, e.g. "write ledger", "load ledger"
	Path string // The file involved, if known
}

// NewPersistenceError creates a new PersistenceError.
// Persistence failures are generally transient (disk pressure, unmounted
// volumes) so they default to retryable.
func NewPersistenceError(op string, cause error) *PersistenceError {
	return &PersistenceError{
		baseError: baseError{
			message:    op,
			cause:      cause,
			severity:   SeverityError,
			retryable:  true,
			userFacing: true,
		},
		Op: op,
	}
}

// WithPath adds the ledger path to the error context.
func (e *PersistenceError) WithPath(path string) *PersistenceError {
	e.Path = path
	return e
}

// WithSeverity sets the error severity.
func (e *PersistenceError) WithSeverity(s Severity) *PersistenceError {
	e.severity = s
	return e
}

// WithRetryable sets whether the error is retryable.
func (e *PersistenceError) WithRetryable(r bool) *PersistenceError {
	e.retryable = r
	return e
}

// Error returns the formatted error message.
func (e *PersistenceError) Error() string {
	prefix := "persistence error"
	if e.Path != "" {
		prefix = fmt.Sprintf("persistence error [path=%s]", e.Path)
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// Is checks if this error matches the target.
func (e *PersistenceError) Is(target error) bool {
	if _, ok := target.(*PersistenceError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// ConfigurationError
// -----------------------------------------------------------------------------

// ConfigurationError represents missing or invalid configuration.
//
// Example:
//
//	err := errors.NewConfigurationError("storage.dir", "storage root is not writable")
type ConfigurationError struct {
	baseError
	Field string
	Value any
}

// NewConfigurationError creates a new ConfigurationError.
func NewConfigurationError(field, message string) *ConfigurationError {
	return &ConfigurationError{
		baseError: baseError{
			message:    message,
			severity:   SeverityError,
			retryable:  false,
			userFacing: true,
		},
		Field: field,
	}
}

// WithValue adds the invalid value to the error context.
func (e *ConfigurationError) WithValue(value any) *ConfigurationError {
	e.Value = value
	return e
}

// WithCause adds a cause to the error.
func (e *ConfigurationError) WithCause(cause error) *ConfigurationError {
	e.cause = cause
	return e
}

// Error returns the formatted error message.
func (e *ConfigurationError) Error() string {
	var parts []string
	if e.Field != "" {
		parts = append(parts, fmt.Sprintf("field=%s", e.Field))
	}
	if e.Value != nil {
		parts = append(parts, fmt.Sprintf("value=%v", e.Value))
	}

	prefix := "configuration error"
	if len(parts) > 0 {
		prefix = fmt.Sprintf("configuration error [%s]", strings.Join(parts, ", "))
	}

	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// Is checks if this error matches the target.
func (e *ConfigurationError) Is(target error) bool {
	if _, ok := target.(*ConfigurationError); ok {
		return true
	}
	if errors.Is(target, ErrInvalidInput) {
		return true
	}
	return e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// TimeoutError
// -----------------------------------------------------------------------------

// TimeoutError represents an operation that exceeded its time bound.
// Timeouts are a distinct failure class from user cancellation.
//
// Example:
//
//	err := errors.NewTimeoutError("remote analysis", 10*time.Minute)
type TimeoutError struct {
	baseError
	Operation string
	Duration  time.Duration
}

// NewTimeoutError creates a new TimeoutError.
func NewTimeoutError(operation string, duration time.Duration) *TimeoutError {
	return &TimeoutError{
		baseError: baseError{
			message:    operation,
			severity:   SeverityWarning,
			retryable:  true, // Timeouts are generally retryable
			userFacing: true,
		},
		Operation: operation,
		Duration:  duration,
	}
}

// WithCause adds a cause to the error.
func (e *TimeoutError) WithCause(cause error) *TimeoutError {
	e.cause = cause
	return e
}

// Error returns the formatted error message.
func (e *TimeoutError) Error() string {
	base := fmt.Sprintf("timeout error: %s (timeout: %s)", e.Operation, e.Duration)
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", base, e.cause)
	}
	return base
}

// Is checks if this error matches the target.
func (e *TimeoutError) Is(target error) bool {
	if _, ok := target.(*TimeoutError); ok {
		return true
	}
	if errors.Is(target, ErrTimeout) {
		return true
	}
	return e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// CancellationError
// -----------------------------------------------------------------------------

// CancellationError represents a caller-initiated abort. Cancellation is
// cooperative: it is observed at phase boundaries, and partial progress
// persisted before the abort is kept.
//
// Example:
//
//	err := errors.NewCancellationError("execute").WithCause(ctx.Err())
type CancellationError struct {
	baseError
	Phase string
}

// NewCancellationError creates a new CancellationError.
func NewCancellationError(phase string) *CancellationError {
	return &CancellationError{
		baseError: baseError{
			message:    "canceled",
			severity:   SeverityInfo,
			retryable:  false,
			userFacing: true,
		},
		Phase: phase,
	}
}

// WithCause adds a cause to the error.
func (e *CancellationError) WithCause(cause error) *CancellationError {
	e.cause = cause
	return e
}

// Error returns the formatted error message.
func (e *CancellationError) Error() string {
	prefix := "cancellation error"
	if e.Phase != "" {
		prefix = fmt.Sprintf("cancellation error [phase=%s]", e.Phase)
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// Is checks if this error matches the target.
func (e *CancellationError) Is(target error) bool {
	if _, ok := target.(*CancellationError); ok {
		return true
	}
	if errors.Is(target, ErrCanceled) {
		return true
	}
	return e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// Error Classification Helpers
// -----------------------------------------------------------------------------

// IsRetryable returns true if the error represents a transient condition
// that may succeed on retry.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var lerr LodestarError
	if As(err, &lerr) {
		return lerr.IsRetryable()
	}

	if Is(err, ErrTimeout) {
		return true
	}

	return false
}

// IsUserFacing returns true if the error message is safe to display to
// end users.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}

	var lerr LodestarError
	if As(err, &lerr) {
		return lerr.IsUserFacing()
	}

	return false
}

// GetSeverity returns the severity level of the error.
// Returns SeverityError for errors that don't implement LodestarError.
func GetSeverity(err error) Severity {
	if err == nil {
		return SeverityDebug
	}

	var lerr LodestarError
	if As(err, &lerr) {
		return lerr.Severity()
	}

	return SeverityError
}

// IsNotFound reports whether err is, or wraps, a NotFoundError.
func IsNotFound(err error) bool {
	if err == nil {
		return false
	}
	var notFound *NotFoundError
	return As(err, &notFound) || Is(err, ErrNotFound)
}

// -----------------------------------------------------------------------------
// Convenience Constructors
// -----------------------------------------------------------------------------

// Wrap wraps an error with additional context message.
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
