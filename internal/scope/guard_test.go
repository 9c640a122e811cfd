package scope

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/sprintctl/internal/config"
	"github.com/felixgeelhaar/sprintctl/internal/errors"
	"github.com/felixgeelhaar/sprintctl/internal/graph"
)

func newGuard(t *testing.T) *Guard {
	t.Helper()
	g, err := New(config.DefaultGuardrails())
	require.NoError(t, err)
	return g
}

func boundedTask() *graph.Task {
	return &graph.Task{
		ID:   "task-1",
		Type: graph.TypeWork,
		Scope: graph.Boundary{
			MustImplement:    []string{"internal/auth/login.go"},
			MustNotImplement: []string{"*.sql", "internal/billing"},
			MaxFileChanges:   3,
			Technologies:     []graph.TechRef{{Name: "go", Version: "1.24.6"}},
		},
	}
}

func TestNew_RejectsBadPattern(t *testing.T) {
	_, err := New(&config.Guardrails{ForbiddenPatterns: []string{"(unclosed"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "(unclosed")
}

func TestPreCheck_SurfacesBoundary(t *testing.T) {
	guard := newGuard(t)
	report := guard.PreCheck(boundedTask())

	assert.Equal(t, "task-1", report.TaskID)
	assert.Equal(t, 3, report.MaxFileChanges)
	assert.Contains(t, report.MustNotImplement, "*.sql")
	assert.NotEmpty(t, report.ForbiddenPatterns)
}

func TestPreCheck_DefaultBudget(t *testing.T) {
	guard := newGuard(t)
	report := guard.PreCheck(&graph.Task{ID: "task-2"})
	assert.Equal(t, 10, report.MaxFileChanges, "tasks without a declared budget use the guardrail default")
}

func TestPostCheck_WithinBoundary(t *testing.T) {
	guard := newGuard(t)
	err := guard.PostCheck(boundedTask(), []string{
		"internal/auth/login.go",
		"internal/auth/login_test.go",
	})
	assert.NoError(t, err)
}

func TestPostCheck_FileBudgetNamesExcessFile(t *testing.T) {
	guard := newGuard(t)
	changed := []string{
		"internal/auth/login.go",
		"internal/auth/session.go",
		"internal/auth/login_test.go",
		"internal/auth/middleware.go",
	}

	err := guard.PostCheck(boundedTask(), changed)
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeScopeFileBudget, errors.CodeOf(err))
	assert.Contains(t, err.Error(), "changed 4 files but the budget is 3")
	assert.Contains(t, err.Error(), "internal/auth/middleware.go", "the 4th file must be named")
}

func TestPostCheck_MustNotImplementMarker(t *testing.T) {
	guard := newGuard(t)

	tests := []struct {
		name string
		file string
	}{
		{"glob marker", "migrations/001_init.sql"},
		{"substring marker", "internal/billing/invoice.go"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := guard.PostCheck(boundedTask(), []string{tt.file})
			require.Error(t, err)
			assert.Equal(t, errors.ErrCodeScopeViolation, errors.CodeOf(err))
			assert.Contains(t, err.Error(), tt.file)
		})
	}
}

func TestPostCheck_ForbiddenPrereleasePattern(t *testing.T) {
	guard := newGuard(t)
	task := boundedTask()
	task.Scope.Technologies = append(task.Scope.Technologies, graph.TechRef{Name: "redis", Version: "8.0.0-rc.1"})

	err := guard.PostCheck(task, []string{"internal/cache/redis.go"})
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeScopeViolation, errors.CodeOf(err))
	assert.Contains(t, err.Error(), "redis@8.0.0-rc.1")
}

func TestPostCheck_CollectsAllViolations(t *testing.T) {
	guard := newGuard(t)
	changed := []string{
		"migrations/001_init.sql",
		"internal/billing/invoice.go",
		"internal/auth/login.go",
		"internal/auth/session.go",
	}

	err := guard.PostCheck(boundedTask(), changed)
	require.Error(t, err)

	se := err.(*errors.SprintError)
	var markerHits int
	for _, d := range se.Details {
		if strings.Contains(d, "must_not_implement") {
			markerHits++
		}
	}
	assert.Equal(t, 2, markerHits, "both marker violations reported, details: %v", se.Details)
	assert.Contains(t, err.Error(), "budget", "budget overflow reported alongside marker violations")
}

func TestTechCompliance(t *testing.T) {
	guard := newGuard(t)
	stack := config.Stack{"go": "1.24.6", "postgres": "16.4"}

	t.Run("compliant", func(t *testing.T) {
		assert.NoError(t, guard.TechCompliance(boundedTask(), stack))
	})

	t.Run("unregistered technology", func(t *testing.T) {
		task := boundedTask()
		task.Scope.Technologies = []graph.TechRef{{Name: "redis", Version: "7.2"}}

		err := guard.TechCompliance(task, stack)
		require.Error(t, err)
		assert.Equal(t, errors.ErrCodeTechNonCompliance, errors.CodeOf(err))
		assert.Contains(t, err.Error(), `"redis" is not in the approved stack`)
	})

	t.Run("version mismatch is exact, no ranges", func(t *testing.T) {
		task := boundedTask()
		task.Scope.Technologies = []graph.TechRef{{Name: "postgres", Version: "16"}}

		err := guard.TechCompliance(task, stack)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "does not match approved version 16.4")
	})
}
