package errors

import (
	"fmt"
	"strings"
	"testing"
)

func TestSprintError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *SprintError
		want []string
	}{
		{
			name: "code and message",
			err:  New(ErrCodeCycleDetected, "dependency cycle detected"),
			want: []string{"[CYCLE-001]", "dependency cycle detected"},
		},
		{
			name: "with cause",
			err:  Wrap(ErrCodeFileReadFailed, "read task graph", fmt.Errorf("permission denied")),
			want: []string{"[IO-002]", "read task graph", "permission denied"},
		},
		{
			name: "with details",
			err: New(ErrCodeDependencyUnsatisfied, "task task-c is not eligible").
				WithDetails("dependency task-b has status pending"),
			want: []string{"[DEP-001]", "dependency task-b has status pending"},
		},
		{
			name: "with suggestions",
			err: New(ErrCodeValidationPending, "milestone m1 awaits validation").
				WithSuggestions("run 'sprintctl milestone validate m1 --result passed'"),
			want: []string{"Suggestions:", "milestone validate"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.err.Error()
			for _, want := range tt.want {
				if !strings.Contains(got, want) {
					t.Errorf("Error() = %q, want it to contain %q", got, want)
				}
			}
		})
	}
}

func TestSprintError_Unwrap(t *testing.T) {
	cause := fmt.Errorf("disk full")
	err := Wrap(ErrCodeStateCorruption, "write failed", cause)

	if err.Unwrap() != cause {
		t.Errorf("Unwrap() = %v, want %v", err.Unwrap(), cause)
	}
}

func TestCodeOf(t *testing.T) {
	err := New(ErrCodeLockContention, "state directory is locked")
	wrapped := fmt.Errorf("acquiring lock: %w", err)

	if got := CodeOf(wrapped); got != ErrCodeLockContention {
		t.Errorf("CodeOf() = %q, want %q", got, ErrCodeLockContention)
	}

	if got := CodeOf(fmt.Errorf("plain")); got != "" {
		t.Errorf("CodeOf(plain error) = %q, want empty", got)
	}
}

func TestIs(t *testing.T) {
	err := fmt.Errorf("outer: %w", New(ErrCodeScopeViolation, "too many files"))

	if !Is(err, ErrCodeScopeViolation) {
		t.Error("Is() = false, want true for matching code")
	}
	if Is(err, ErrCodeLockContention) {
		t.Error("Is() = true, want false for non-matching code")
	}
}
