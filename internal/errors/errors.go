// Package errors provides centralized error definitions and error handling utilities
// for coeftune. It defines the error taxonomy of the tuning daemon, sentinel errors
// and error constructors with context wrapping.
//
// # Error Types
//
//   - ConnectivityError: the shared key-value link is unreachable. Recoverable; the
//     session pauses and the channel retries on a fixed backoff.
//   - ValidationError: a remote shot payload is malformed. The record is dropped and
//     no session state changes.
//   - OptimizerError: the external suggestion call failed. The shot buffer is kept and
//     the call is retried at the next trigger.
//   - ConfigurationError: invalid startup configuration. Fatal, and only raised before
//     the control loop starts ticking.
//
// A rate-limited write is not an error; see channel.WriteResult.
//
// # Usage
//
//	err := errors.NewValidationError("shot rejected", errors.ErrOutOfRange).
//		WithField("distance").WithValue(-1.0)
//
//	if errors.Is(err, errors.ErrOutOfRange) { ... }
//
//	var cfgErr *errors.ConfigurationError
//	if errors.As(err, &cfgErr) { ... }
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
	// SeverityCritical is for errors that stop the daemon.
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

// Connectivity sentinel errors
var (
	// ErrDisconnected indicates that the key-value link is down.
	ErrDisconnected = New("channel disconnected")
	// ErrPeerStale indicates the remote heartbeat is older than the liveness timeout.
	ErrPeerStale = New("peer heartbeat stale")
)

// Shot validation sentinel errors
var (
	// ErrMissingField indicates a required payload field is absent.
	ErrMissingField = New("required field missing")
	// ErrNonFinite indicates a numeric field is NaN or infinite.
	ErrNonFinite = New("value is not finite")
	// ErrOutOfRange indicates a numeric field is outside its physical range.
	ErrOutOfRange = New("value out of physical range")
	// ErrWrongType indicates a field holds a value of the wrong kind.
	ErrWrongType = New("field has wrong type")
	// ErrRepeatedRejections indicates the remote keeps sending shots that
	// fail validation.
	ErrRepeatedRejections = New("too many consecutive invalid shots")
)

// Optimizer sentinel errors
var (
	// ErrNoObservations indicates the optimizer was called with an empty buffer.
	ErrNoObservations = New("no observations")
	// ErrBadSuggestion indicates the optimizer returned a non-finite value.
	ErrBadSuggestion = New("optimizer returned invalid value")
)

// Configuration and session sentinel errors
var (
	// ErrInvalidBounds indicates min > max or default outside bounds.
	ErrInvalidBounds = New("invalid coefficient bounds")
	// ErrDuplicateCoefficient indicates two coefficients share a name.
	ErrDuplicateCoefficient = New("duplicate coefficient name")
	// ErrEmptyTuningOrder indicates no enabled coefficient is left to tune.
	ErrEmptyTuningOrder = New("empty tuning order")
	// ErrInvalidBacktrack indicates a backtrack target that is not strictly earlier.
	ErrInvalidBacktrack = New("invalid backtrack target")
)

// -----------------------------------------------------------------------------
// Base Error Interface
// -----------------------------------------------------------------------------

// TunerError is the base interface for all coeftune errors.
type TunerError interface {
	error

	// Unwrap returns the underlying error, if any.
	Unwrap() error

	// Is reports whether this error matches the target error.
	Is(target error) bool

	// Severity returns the severity level of this error.
	Severity() Severity
}

type baseError struct {
	message  string
	cause    error
	severity Severity
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

// format renders "<kind> [k=v, ...]: message: cause".
func (e *baseError) format(kind string, parts []string) string {
	prefix := kind
	if len(parts) > 0 {
		prefix = fmt.Sprintf("%s [%s]", kind, strings.Join(parts, ", "))
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// -----------------------------------------------------------------------------
// ConnectivityError
// -----------------------------------------------------------------------------

// ConnectivityError reports that the shared key-value link could not be reached.
//
// Example:
//
//	err := errors.NewConnectivityError("read failed", cause).WithAddress("redis://10.58.92.2:6379")
type ConnectivityError struct {
	baseError
	Address string
	Path    string
}

// NewConnectivityError creates a new ConnectivityError.
func NewConnectivityError(message string, cause error) *ConnectivityError {
	return &ConnectivityError{
		baseError: baseError{
			message:  message,
			cause:    cause,
			severity: SeverityWarning,
		},
	}
}

// WithAddress adds the store address to the error context.
func (e *ConnectivityError) WithAddress(addr string) *ConnectivityError {
	e.Address = addr
	return e
}

// WithPath adds the key path being accessed.
func (e *ConnectivityError) WithPath(path string) *ConnectivityError {
	e.Path = path
	return e
}

// Error returns the formatted error message.
func (e *ConnectivityError) Error() string {
	var parts []string
	if e.Address != "" {
		parts = append(parts, fmt.Sprintf("address=%s", e.Address))
	}
	if e.Path != "" {
		parts = append(parts, fmt.Sprintf("path=%s", e.Path))
	}
	return e.format("connectivity error", parts)
}

// Is checks if this error matches the target.
func (e *ConnectivityError) Is(target error) bool {
	if _, ok := target.(*ConnectivityError); ok {
		return true
	}
	if target == ErrDisconnected {
		return true
	}
	return e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// ValidationError
// -----------------------------------------------------------------------------

// ValidationError reports a rejected shot payload.
type ValidationError struct {
	baseError
	Field     string
	Value     any
	Timestamp float64
}

// NewValidationError creates a new ValidationError.
func NewValidationError(message string, cause error) *ValidationError {
	return &ValidationError{
		baseError: baseError{
			message:  message,
			cause:    cause,
			severity: SeverityWarning,
		},
	}
}

// WithField sets the offending field name.
func (e *ValidationError) WithField(field string) *ValidationError {
	e.Field = field
	return e
}

// WithValue sets the offending value.
func (e *ValidationError) WithValue(value any) *ValidationError {
	e.Value = value
	return e
}

// WithTimestamp sets the shot timestamp the payload was read for.
func (e *ValidationError) WithTimestamp(ts float64) *ValidationError {
	e.Timestamp = ts
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
	if e.Timestamp != 0 {
		parts = append(parts, fmt.Sprintf("shot=%.3f", e.Timestamp))
	}
	return e.format("validation error", parts)
}

// Is checks if this error matches the target.
func (e *ValidationError) Is(target error) bool {
	if _, ok := target.(*ValidationError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// OptimizerError
// -----------------------------------------------------------------------------

// OptimizerError reports a failed suggestion call.
type OptimizerError struct {
	baseError
	Coefficient  string
	Observations int
}

// NewOptimizerError creates a new OptimizerError.
func NewOptimizerError(message string, cause error) *OptimizerError {
	return &OptimizerError{
		baseError: baseError{
			message:  message,
			cause:    cause,
			severity: SeverityWarning,
		},
	}
}

// WithCoefficient sets the coefficient being optimized.
func (e *OptimizerError) WithCoefficient(name string) *OptimizerError {
	e.Coefficient = name
	return e
}

// WithObservations sets how many observations were passed to the optimizer.
func (e *OptimizerError) WithObservations(n int) *OptimizerError {
	e.Observations = n
	return e
}

// Error returns the formatted error message.
func (e *OptimizerError) Error() string {
	var parts []string
	if e.Coefficient != "" {
		parts = append(parts, fmt.Sprintf("coefficient=%s", e.Coefficient))
	}
	if e.Observations > 0 {
		parts = append(parts, fmt.Sprintf("observations=%d", e.Observations))
	}
	return e.format("optimizer error", parts)
}

// Is checks if this error matches the target.
func (e *OptimizerError) Is(target error) bool {
	if _, ok := target.(*OptimizerError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// ConfigurationError
// -----------------------------------------------------------------------------

// ConfigurationError reports invalid startup configuration. It is the only
// fatal error kind.
type ConfigurationError struct {
	baseError
	Coefficient string
	Field       string
}

// NewConfigurationError creates a new ConfigurationError.
func NewConfigurationError(message string, cause error) *ConfigurationError {
	return &ConfigurationError{
		baseError: baseError{
			message:  message,
			cause:    cause,
			severity: SeverityCritical,
		},
	}
}

// WithCoefficient sets the coefficient the problem was found on.
func (e *ConfigurationError) WithCoefficient(name string) *ConfigurationError {
	e.Coefficient = name
	return e
}

// WithField sets the config field path.
func (e *ConfigurationError) WithField(field string) *ConfigurationError {
	e.Field = field
	return e
}

// Error returns the formatted error message.
func (e *ConfigurationError) Error() string {
	var parts []string
	if e.Coefficient != "" {
		parts = append(parts, fmt.Sprintf("coefficient=%s", e.Coefficient))
	}
	if e.Field != "" {
		parts = append(parts, fmt.Sprintf("field=%s", e.Field))
	}
	return e.format("configuration error", parts)
}

// Is checks if this error matches the target.
func (e *ConfigurationError) Is(target error) bool {
	if _, ok := target.(*ConfigurationError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// Severity Helper
// -----------------------------------------------------------------------------

// GetSeverity returns the severity of err, defaulting to SeverityError for
// errors outside the taxonomy.
func GetSeverity(err error) Severity {
	if err == nil {
		return SeverityDebug
	}

	var tunerErr TunerError
	if As(err, &tunerErr) {
		return tunerErr.Severity()
	}

	return SeverityError
}
