package errors

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorCode represents a unique error identifier
type ErrorCode string

// Error categories
const (
	// Schema errors (SCHEMA-001 to SCHEMA-099)
	ErrCodeSchemaInvalid     ErrorCode = "SCHEMA-001"
	ErrCodeSchemaUnknownKey  ErrorCode = "SCHEMA-002"
	ErrCodeSchemaBadStatus   ErrorCode = "SCHEMA-003"
	ErrCodeSchemaDanglingRef ErrorCode = "SCHEMA-004"

	// Graph errors (CYCLE-001 to CYCLE-099)
	ErrCodeCycleDetected ErrorCode = "CYCLE-001"

	// Dependency errors (DEP-001 to DEP-099)
	ErrCodeDependencyUnsatisfied ErrorCode = "DEP-001"
	ErrCodeTaskNotFound          ErrorCode = "DEP-002"
	ErrCodeTaskNotPending        ErrorCode = "DEP-003"

	// Gate errors (GATE-001 to GATE-099)
	ErrCodeValidationPending    ErrorCode = "GATE-001"
	ErrCodeInvalidTransition    ErrorCode = "GATE-002"
	ErrCodeMilestoneNotFound    ErrorCode = "GATE-003"
	ErrCodeMilestoneNotComplete ErrorCode = "GATE-004"

	// Scope errors (SCOPE-001 to SCOPE-099)
	ErrCodeScopeViolation  ErrorCode = "SCOPE-001"
	ErrCodeScopeFileBudget ErrorCode = "SCOPE-002"

	// Technology errors (TECH-001 to TECH-099)
	ErrCodeTechNonCompliance ErrorCode = "TECH-001"

	// Lock errors (LOCK-001 to LOCK-099)
	ErrCodeLockContention ErrorCode = "LOCK-001"

	// State errors (STATE-001 to STATE-099)
	ErrCodeStateCorruption    ErrorCode = "STATE-001"
	ErrCodeBackupNotFound     ErrorCode = "STATE-002"
	ErrCodeBackupHashMismatch ErrorCode = "STATE-003"

	// Capacity errors (CAP-001 to CAP-099)
	ErrCodeCapacityExceeded ErrorCode = "CAP-001"

	// File I/O errors (IO-001 to IO-099)
	ErrCodeFileNotFound    ErrorCode = "IO-001"
	ErrCodeFileReadFailed  ErrorCode = "IO-002"
	ErrCodeFileWriteFailed ErrorCode = "IO-003"
	ErrCodeDirectoryFailed ErrorCode = "IO-004"
	ErrCodeFileUnmarshal   ErrorCode = "IO-005"
	ErrCodeFileMarshal     ErrorCode = "IO-006"
)

// SprintError represents an enhanced error with code, details, and suggestions.
// Details carry the precise unmet conditions (missing dependency ids, offending
// files or patterns), one per entry, so callers never see a generic failure.
type SprintError struct {
	Code        ErrorCode
	Message     string
	Details     []string
	Suggestions []string
	Cause       error
}

// Error implements the error interface
func (e *SprintError) Error() string {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("[%s] %s", e.Code, e.Message))

	if e.Cause != nil {
		b.WriteString(fmt.Sprintf(": %v", e.Cause))
	}

	for _, detail := range e.Details {
		b.WriteString(fmt.Sprintf("\n  - %s", detail))
	}

	if len(e.Suggestions) > 0 {
		b.WriteString("\n\nSuggestions:")
		for _, suggestion := range e.Suggestions {
			b.WriteString(fmt.Sprintf("\n  • %s", suggestion))
		}
	}

	return b.String()
}

// Unwrap implements error unwrapping for errors.Is and errors.As
func (e *SprintError) Unwrap() error {
	return e.Cause
}

// New creates a new SprintError
func New(code ErrorCode, message string) *SprintError {
	return &SprintError{
		Code:    code,
		Message: message,
	}
}

// Wrap creates a new SprintError wrapping a cause
func Wrap(code ErrorCode, message string, cause error) *SprintError {
	return &SprintError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// WithDetails returns the error with the given detail lines attached
func (e *SprintError) WithDetails(details ...string) *SprintError {
	e.Details = append(e.Details, details...)
	return e
}

// WithSuggestions returns the error with recovery suggestions attached
func (e *SprintError) WithSuggestions(suggestions ...string) *SprintError {
	e.Suggestions = append(e.Suggestions, suggestions...)
	return e
}

// AsSprintError reports whether err carries a SprintError and stores it in
// target when it does.
func AsSprintError(err error, target **SprintError) bool {
	return errors.As(err, target)
}

// CodeOf extracts the ErrorCode from err, or "" if err carries none.
func CodeOf(err error) ErrorCode {
	var se *SprintError
	if errors.As(err, &se) {
		return se.Code
	}
	return ""
}

// Is reports whether err carries the given error code anywhere in its chain.
func Is(err error, code ErrorCode) bool {
	return CodeOf(err) == code
}
