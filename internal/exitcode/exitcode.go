package exitcode

import (
	"os"
	"strings"

	"github.com/felixgeelhaar/sprintctl/internal/errors"
)

// Exit codes for consistent error handling across the CLI.
// Every blocking condition maps to a distinct non-zero code so surrounding
// tooling can branch on the outcome without parsing messages.
const (
	// Success indicates successful execution
	Success = 0

	// GeneralError indicates a general error condition
	GeneralError = 1

	// UsageError indicates invalid command usage (bad flags, missing args, etc.)
	UsageError = 2

	// ValidationPending indicates a milestone is complete but unvalidated
	ValidationPending = 3

	// DependencyBlocked indicates an unsatisfied dependency or no eligible task
	DependencyBlocked = 4

	// ScopeViolation indicates a scope boundary or technology compliance failure
	ScopeViolation = 5

	// LockContention indicates the state directory lock could not be acquired
	LockContention = 6

	// StateCorruption indicates schema corruption, a cycle, or a failed write
	StateCorruption = 7

	// Interrupted indicates the user cancelled the operation (Ctrl+C)
	Interrupted = 130
)

// Exit terminates the program with the given exit code
func Exit(code int) {
	os.Exit(code)
}

// ExitWithError exits with an appropriate code based on error type
func ExitWithError(err error) {
	Exit(DetermineExitCode(err))
}

// DetermineExitCode analyzes an error and returns the appropriate exit code
func DetermineExitCode(err error) int {
	if err == nil {
		return Success
	}

	switch errors.CodeOf(err) {
	case "":
		// Code-less errors come from flag and argument parsing.
		if isUsageError(err) {
			return UsageError
		}
		return GeneralError
	case errors.ErrCodeValidationPending:
		return ValidationPending
	case errors.ErrCodeDependencyUnsatisfied, errors.ErrCodeTaskNotFound, errors.ErrCodeTaskNotPending:
		return DependencyBlocked
	case errors.ErrCodeScopeViolation, errors.ErrCodeScopeFileBudget, errors.ErrCodeTechNonCompliance:
		return ScopeViolation
	case errors.ErrCodeLockContention:
		return LockContention
	case errors.ErrCodeSchemaInvalid, errors.ErrCodeSchemaUnknownKey, errors.ErrCodeSchemaBadStatus,
		errors.ErrCodeSchemaDanglingRef, errors.ErrCodeCycleDetected, errors.ErrCodeStateCorruption,
		errors.ErrCodeBackupHashMismatch:
		return StateCorruption
	default:
		return GeneralError
	}
}

// isUsageError matches cobra's flag and argument parse failures
func isUsageError(err error) bool {
	msg := strings.ToLower(err.Error())
	markers := []string{
		"unknown flag",
		"unknown shorthand flag",
		"unknown command",
		"invalid argument",
		"required flag",
		"arg(s)",
	}
	for _, marker := range markers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
