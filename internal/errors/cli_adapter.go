package errors

import (
	"fmt"
	"log/slog"
)

// CLIErrorAdapter handles error presentation and exit code determination for the CLI.
type CLIErrorAdapter struct {
	verbose bool
	logger  *slog.Logger
}

// NewCLIErrorAdapter creates a new CLI error adapter.
func NewCLIErrorAdapter(verbose bool, logger *slog.Logger) *CLIErrorAdapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &CLIErrorAdapter{verbose: verbose, logger: logger}
}

// ExitCodeFor determines the appropriate exit code for an error.
func (a *CLIErrorAdapter) ExitCodeFor(err error) int {
	if err == nil || IsSkip(err) {
		return 0
	}
	dbe, ok := as(err)
	if !ok {
		return 1
	}
	switch dbe.Category {
	case CategoryValidation:
		return 2
	case CategoryConfig:
		return 7
	case CategoryNetwork, CategoryRegistry:
		return 8
	case CategoryDatabase, CategoryStorage:
		return 9
	case CategoryInternal:
		return 10
	case CategoryBuild, CategoryToolchain, CategorySandbox, CategoryFileSystem:
		return 11
	default:
		return 1
	}
}

// FormatError formats an error for display.
func (a *CLIErrorAdapter) FormatError(err error) string {
	if err == nil {
		return ""
	}
	dbe, ok := as(err)
	if !ok || a.verbose {
		return fmt.Sprintf("Error: %v", err)
	}
	if dbe.Cause != nil {
		return fmt.Sprintf("Error: %s: %v", dbe.Message, dbe.Cause)
	}
	return "Error: " + dbe.Message
}

// HandleError logs err with its structured context and returns the exit code.
func (a *CLIErrorAdapter) HandleError(err error) int {
	if err == nil {
		return 0
	}
	attrs := []any{"error", err}
	if dbe, ok := as(err); ok {
		attrs = append(attrs, "category", dbe.Category, "kind", dbe.Kind)
		for k, v := range dbe.Context {
			attrs = append(attrs, k, v)
		}
	}
	if IsSkip(err) {
		a.logger.Info(a.FormatError(err), attrs...)
	} else {
		a.logger.Error(a.FormatError(err), attrs...)
	}
	return a.ExitCodeFor(err)
}
