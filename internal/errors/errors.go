package errors

import (
	stderrors "errors"
	"fmt"
	"runtime"
	"sort"
	"strings"
)

// ErrorType represents the category of error
type ErrorType int

const (
	// A required input column or value is absent
	ErrorTypeMissingField ErrorType = iota
	// A value could not be normalized (e.g. an unparseable amount)
	ErrorTypeDataFormat
	// The input file or persisted table does not exist
	ErrorTypeInputNotFound
	// Invalid caller-supplied parameters
	ErrorTypeValidation
	// Missing or invalid configuration
	ErrorTypeConfig
	// Database or table store failures
	ErrorTypeStorage
	// File I/O failures
	ErrorTypeFileSystem
	// External service failures (neo4j, redis)
	ErrorTypeExternal
	// Unexpected internal state
	ErrorTypeInternal
)

// Severity represents how critical an error is
type Severity int

const (
	// SeverityLow - can continue with degraded functionality
	SeverityLow Severity = iota
	// SeverityMedium - should be addressed but not fatal
	SeverityMedium
	// SeverityHigh - significant issue, caller may retry with corrected input
	SeverityHigh
	// SeverityCritical - must be addressed, stops execution
	SeverityCritical
)

// Error represents a structured error with context
type Error struct {
	Type       ErrorType
	Severity   Severity
	Message    string
	Cause      error
	Context    map[string]interface{}
	StackTrace string
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying cause
func (e *Error) Unwrap() error {
	return e.Cause
}

// WithContext adds context to the error
func (e *Error) WithContext(key string, value interface{}) *Error {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// Is checks if this error matches the target error type
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Type == t.Type
}

// IsFatal returns true if this error should stop execution
func (e *Error) IsFatal() bool {
	return e.Severity == SeverityCritical
}

// DetailedString returns a detailed error message with context
func (e *Error) DetailedString() string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("[%s] [%s] %s\n",
		severityString(e.Severity),
		typeString(e.Type),
		e.Message))

	if e.Cause != nil {
		sb.WriteString(fmt.Sprintf("Caused by: %v\n", e.Cause))
	}

	if len(e.Context) > 0 {
		keys := make([]string, 0, len(e.Context))
		for k := range e.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		sb.WriteString("Context:\n")
		for _, k := range keys {
			sb.WriteString(fmt.Sprintf("  %s: %v\n", k, e.Context[k]))
		}
	}

	if e.StackTrace != "" {
		sb.WriteString(fmt.Sprintf("Stack trace:\n%s\n", e.StackTrace))
	}

	return sb.String()
}

// String returns the name of the error type, e.g. "VALIDATION"
func (t ErrorType) String() string {
	return typeString(t)
}

func typeString(t ErrorType) string {
	switch t {
	case ErrorTypeMissingField:
		return "MISSING_FIELD"
	case ErrorTypeDataFormat:
		return "DATA_FORMAT"
	case ErrorTypeInputNotFound:
		return "INPUT_NOT_FOUND"
	case ErrorTypeValidation:
		return "VALIDATION"
	case ErrorTypeConfig:
		return "CONFIG"
	case ErrorTypeStorage:
		return "STORAGE"
	case ErrorTypeFileSystem:
		return "FILESYSTEM"
	case ErrorTypeExternal:
		return "EXTERNAL"
	case ErrorTypeInternal:
		return "INTERNAL"
	default:
		return "UNKNOWN"
	}
}

func severityString(s Severity) string {
	switch s {
	case SeverityLow:
		return "LOW"
	case SeverityMedium:
		return "MEDIUM"
	case SeverityHigh:
		return "HIGH"
	case SeverityCritical:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

// captureStackTrace captures the current stack trace
func captureStackTrace(skip int) string {
	var sb strings.Builder
	for i := skip; i < skip+10; i++ {
		pc, file, line, ok := runtime.Caller(i)
		if !ok {
			break
		}
		fn := runtime.FuncForPC(pc)
		if fn == nil {
			break
		}
		sb.WriteString(fmt.Sprintf("  %s:%d %s\n", file, line, fn.Name()))
	}
	return sb.String()
}

// New creates a new error with the given type, severity, and message
func New(errType ErrorType, severity Severity, message string) *Error {
	return &Error{
		Type:       errType,
		Severity:   severity,
		Message:    message,
		Context:    make(map[string]interface{}),
		StackTrace: captureStackTrace(3),
	}
}

// Wrap wraps an existing error with additional context
func Wrap(err error, errType ErrorType, severity Severity, message string) *Error {
	if err == nil {
		return nil
	}

	return &Error{
		Type:       errType,
		Severity:   severity,
		Message:    message,
		Cause:      err,
		Context:    make(map[string]interface{}),
		StackTrace: captureStackTrace(3),
	}
}

// MissingFieldError reports an absent required column
func MissingFieldError(column string) *Error {
	return New(ErrorTypeMissingField, SeverityCritical,
		fmt.Sprintf("missing required column %q", column)).
		WithContext("column", column)
}

// MissingValueError reports an empty required value on one row
func MissingValueError(row int, column string) *Error {
	return New(ErrorTypeMissingField, SeverityCritical,
		fmt.Sprintf("row %d: missing required value for column %q", row, column)).
		WithContext("row", row).
		WithContext("column", column)
}

// DataFormatError reports a value that could not be normalized
func DataFormatError(row int, column, value string, cause error) *Error {
	msg := fmt.Sprintf("row %d: cannot parse %q in column %q", row, value, column)
	var e *Error
	if cause != nil {
		e = Wrap(cause, ErrorTypeDataFormat, SeverityCritical, msg)
	} else {
		e = New(ErrorTypeDataFormat, SeverityCritical, msg)
	}
	return e.WithContext("row", row).
		WithContext("column", column).
		WithContext("value", value)
}

// InputNotFoundError reports a missing input file or table
func InputNotFoundError(path, hint string) *Error {
	msg := fmt.Sprintf("input not found: %s", path)
	if hint != "" {
		msg = fmt.Sprintf("%s (%s)", msg, hint)
	}
	return New(ErrorTypeInputNotFound, SeverityCritical, msg).
		WithContext("path", path)
}

// ValidationError creates a validation error
func ValidationError(message string) *Error {
	return New(ErrorTypeValidation, SeverityHigh, message)
}

// ValidationErrorf creates a validation error with formatting
func ValidationErrorf(format string, args ...interface{}) *Error {
	return New(ErrorTypeValidation, SeverityHigh, fmt.Sprintf(format, args...))
}

// ConfigErrorf creates a configuration error with formatting
func ConfigErrorf(format string, args ...interface{}) *Error {
	return New(ErrorTypeConfig, SeverityCritical, fmt.Sprintf(format, args...))
}

// StorageError wraps a database or table store error
func StorageError(err error, message string) *Error {
	return Wrap(err, ErrorTypeStorage, SeverityCritical, message)
}

// StorageErrorf wraps a storage error with formatting
func StorageErrorf(err error, format string, args ...interface{}) *Error {
	return Wrap(err, ErrorTypeStorage, SeverityCritical, fmt.Sprintf(format, args...))
}

// FileSystemErrorf wraps a filesystem error with formatting
func FileSystemErrorf(err error, format string, args ...interface{}) *Error {
	return Wrap(err, ErrorTypeFileSystem, SeverityHigh, fmt.Sprintf(format, args...))
}

// ExternalErrorf wraps an external service error with formatting
func ExternalErrorf(err error, format string, args ...interface{}) *Error {
	return Wrap(err, ErrorTypeExternal, SeverityMedium, fmt.Sprintf(format, args...))
}

// InternalErrorf creates an internal error with formatting
func InternalErrorf(format string, args ...interface{}) *Error {
	return New(ErrorTypeInternal, SeverityCritical, fmt.Sprintf(format, args...))
}

// IsFatal checks if an error is fatal (should stop execution)
func IsFatal(err error) bool {
	var e *Error
	if stderrors.As(err, &e) {
		return e.IsFatal()
	}
	return false
}

// GetType returns the type of an error
func GetType(err error) ErrorType {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Type
	}
	return ErrorTypeInternal
}

// hasType walks the whole chain so a storage error wrapping a
// not-found error still reports as not-found.
func hasType(err error, t ErrorType) bool {
	for err != nil {
		if e, ok := err.(*Error); ok && e.Type == t {
			return true
		}
		err = stderrors.Unwrap(err)
	}
	return false
}

// IsMissingField reports whether err (or anything it wraps) is a missing field error
func IsMissingField(err error) bool { return hasType(err, ErrorTypeMissingField) }

// IsDataFormat reports whether err is a data format error
func IsDataFormat(err error) bool { return hasType(err, ErrorTypeDataFormat) }

// IsInputNotFound reports whether err is an input-not-found error
func IsInputNotFound(err error) bool { return hasType(err, ErrorTypeInputNotFound) }

// IsValidation reports whether err is a validation error
func IsValidation(err error) bool { return hasType(err, ErrorTypeValidation) }
