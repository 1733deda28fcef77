// Package errors provides the structured error type (DocBuilderError) used across
// the build orchestrator. Every error carries a category for exit-code mapping and a
// Kind that separates infrastructure failures from skips and tolerated failures.
package errors

import (
	stdErrors "errors"
	"fmt"
)

// ErrorCategory represents the subsystem an error originated from.
type ErrorCategory string

const (
	CategoryConfig     ErrorCategory = "config"
	CategoryValidation ErrorCategory = "validation"

	// External collaborators
	CategoryNetwork  ErrorCategory = "network"
	CategoryRegistry ErrorCategory = "registry"
	CategoryDatabase ErrorCategory = "database"
	CategoryStorage  ErrorCategory = "storage"

	// Build orchestration
	CategorySandbox    ErrorCategory = "sandbox"
	CategoryToolchain  ErrorCategory = "toolchain"
	CategoryBuild      ErrorCategory = "build"
	CategoryFileSystem ErrorCategory = "filesystem"

	CategoryInternal ErrorCategory = "internal"
)

// ErrorSeverity indicates how critical an error is.
type ErrorSeverity string

const (
	SeverityFatal   ErrorSeverity = "fatal"   // Stops the current operation
	SeverityError   ErrorSeverity = "error"   // Error, but not fatal
	SeverityWarning ErrorSeverity = "warning" // Continues with degraded functionality
	SeverityInfo    ErrorSeverity = "info"    // Informational, no impact
)

// Kind classifies how callers must react to an error.
type Kind string

const (
	// KindInfrastructure unwinds to the caller. The batch driver logs it per package.
	KindInfrastructure Kind = "infrastructure"
	// KindBuildFailure describes a build that ran and failed. It is reported, never propagated.
	KindBuildFailure Kind = "build_failure"
	// KindTolerated is logged and ignored; the pipeline continues with defaults.
	KindTolerated Kind = "tolerated"
	// KindSkip short-circuits without side effects.
	KindSkip Kind = "skip"
)

// DocBuilderError is a structured error with category, kind, severity and context.
type DocBuilderError struct {
	Category  ErrorCategory `json:"category"`
	Kind      Kind          `json:"kind"`
	Severity  ErrorSeverity `json:"severity"`
	Message   string        `json:"message"`
	Cause     error         `json:"cause,omitempty"`
	Retryable bool          `json:"retryable"`
	Context   ContextFields `json:"context,omitempty"`
}

// ContextFields carries structured context for DocBuilderError
type ContextFields map[string]any

// Error implements the error interface
func (e *DocBuilderError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s (%s): %s: %v", e.Category, e.Severity, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s (%s): %s", e.Category, e.Severity, e.Message)
}

// Unwrap implements error unwrapping for Go 1.13+ error handling
func (e *DocBuilderError) Unwrap() error {
	return e.Cause
}

// WithContext adds context information to the error
func (e *DocBuilderError) WithContext(key string, value any) *DocBuilderError {
	if e.Context == nil {
		e.Context = make(ContextFields)
	}
	e.Context[key] = value
	return e
}

// AsKind returns the error with its kind replaced.
func (e *DocBuilderError) AsKind(kind Kind) *DocBuilderError {
	e.Kind = kind
	return e
}

// New creates a new infrastructure DocBuilderError
func New(category ErrorCategory, severity ErrorSeverity, message string) *DocBuilderError {
	return &DocBuilderError{
		Category: category,
		Kind:     KindInfrastructure,
		Severity: severity,
		Message:  message,
	}
}

// Wrap creates a new infrastructure DocBuilderError that wraps an existing error
func Wrap(err error, category ErrorCategory, severity ErrorSeverity, message string) *DocBuilderError {
	return &DocBuilderError{
		Category: category,
		Kind:     KindInfrastructure,
		Severity: severity,
		Message:  message,
		Cause:    err,
	}
}

// WrapRetryable creates a new retryable DocBuilderError that wraps an existing error
func WrapRetryable(err error, category ErrorCategory, severity ErrorSeverity, message string) *DocBuilderError {
	e := Wrap(err, category, severity, message)
	e.Retryable = true
	return e
}

func as(err error) (*DocBuilderError, bool) {
	var dbe *DocBuilderError
	if stdErrors.As(err, &dbe) {
		return dbe, true
	}
	return nil, false
}

// IsCategory checks if an error belongs to a specific category
func IsCategory(err error, category ErrorCategory) bool {
	if dbe, ok := as(err); ok {
		return dbe.Category == category
	}
	return false
}

// IsRetryable checks if an error is retryable
func IsRetryable(err error) bool {
	if dbe, ok := as(err); ok {
		return dbe.Retryable
	}
	return false
}

// GetCategory extracts the category from an error, or returns CategoryInternal if not a DocBuilderError
func GetCategory(err error) ErrorCategory {
	if dbe, ok := as(err); ok {
		return dbe.Category
	}
	return CategoryInternal
}

// KindOf reports the kind of err. Plain errors are infrastructure failures.
func KindOf(err error) Kind {
	if dbe, ok := as(err); ok && dbe.Kind != "" {
		return dbe.Kind
	}
	return KindInfrastructure
}

// IsSkip reports whether err is a skip condition.
func IsSkip(err error) bool { return err != nil && KindOf(err) == KindSkip }

// IsTolerated reports whether err may be logged and ignored.
func IsTolerated(err error) bool { return err != nil && KindOf(err) == KindTolerated }
