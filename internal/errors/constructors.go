package errors

import "errors"

// Sentinel causes that callers match with errors.Is.
var (
	ErrNotInstalled         = errors.New("toolchain is not installed")
	ErrInvalidVersionOutput = errors.New("invalid toolchain version output")
	ErrEssentialFileMissing = errors.New("essential file missing from documentation output")
	ErrDummyBuildFailed     = errors.New("reference package failed to build")
	ErrBlacklisted          = errors.New("package is blacklisted")
	ErrAlreadyBuilt         = errors.New("release was already built")
	ErrCommandTimeout       = errors.New("command timed out")
)

// Config errors

func ConfigNotFound(path string) *DocBuilderError {
	return New(CategoryConfig, SeverityFatal, "configuration file not found").
		WithContext("path", path)
}

func ConfigInvalid(field, reason string) *DocBuilderError {
	return New(CategoryConfig, SeverityFatal, "invalid configuration").
		WithContext("field", field).
		WithContext("reason", reason)
}

func ValidationFailed(field, reason string) *DocBuilderError {
	return New(CategoryValidation, SeverityFatal, "validation failed").
		WithContext("field", field).
		WithContext("reason", reason)
}

// Skip conditions

func Skipped(name, version string, cause error) *DocBuilderError {
	return Wrap(cause, CategoryBuild, SeverityInfo, "build skipped").
		AsKind(KindSkip).
		WithContext("package", name).
		WithContext("version", version)
}

// Tolerated failures

func Tolerated(category ErrorCategory, message string, cause error) *DocBuilderError {
	return Wrap(cause, category, SeverityWarning, message).AsKind(KindTolerated)
}

// Infrastructure errors

func ToolchainError(operation string, cause error) *DocBuilderError {
	return Wrap(cause, CategoryToolchain, SeverityFatal, "toolchain operation failed").
		WithContext("operation", operation)
}

func SandboxError(operation string, cause error) *DocBuilderError {
	return Wrap(cause, CategorySandbox, SeverityFatal, "sandbox operation failed").
		WithContext("operation", operation)
}

func WorkspaceError(operation string, cause error) *DocBuilderError {
	return Wrap(cause, CategoryFileSystem, SeverityFatal, "workspace operation failed").
		WithContext("operation", operation)
}

func StorageError(operation string, cause error) *DocBuilderError {
	return Wrap(cause, CategoryStorage, SeverityFatal, "artifact store operation failed").
		WithContext("operation", operation)
}

func DatabaseError(operation string, cause error) *DocBuilderError {
	return Wrap(cause, CategoryDatabase, SeverityFatal, "database operation failed").
		WithContext("operation", operation)
}

func RegistryError(url string, cause error) *DocBuilderError {
	return Wrap(cause, CategoryRegistry, SeverityError, "registry request failed").
		WithContext("url", url)
}

// NetworkTimeout marks a transient network failure.
func NetworkTimeout(url string, cause error) *DocBuilderError {
	return WrapRetryable(cause, CategoryNetwork, SeverityWarning, "network timeout").
		WithContext("url", url)
}

func InternalError(message string, cause error) *DocBuilderError {
	return Wrap(cause, CategoryInternal, SeverityFatal, message)
}
