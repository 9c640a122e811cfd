// Package scope validates a task's declared boundaries against actual or
// proposed changes: file budget, forbidden markers and patterns, and exact
// technology compliance.
package scope

import (
	"fmt"
	"path"
	"regexp"
	"strings"

	"github.com/felixgeelhaar/sprintctl/internal/config"
	"github.com/felixgeelhaar/sprintctl/internal/errors"
	"github.com/felixgeelhaar/sprintctl/internal/graph"
)

// Guard checks scope boundaries using the sprint's guardrail configuration
type Guard struct {
	guardrails *config.Guardrails
	forbidden  []*regexp.Regexp
}

// New compiles the guardrails' forbidden patterns into a guard
func New(guardrails *config.Guardrails) (*Guard, error) {
	g := &Guard{guardrails: guardrails}
	for _, pattern := range guardrails.ForbiddenPatterns {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeSchemaInvalid,
				fmt.Sprintf("guardrails forbidden pattern %q is not a valid regular expression", pattern), err)
		}
		g.forbidden = append(g.forbidden, re)
	}
	return g, nil
}

// Report surfaces a task's declared boundary for the execution collaborator
// to honor before work begins.
type Report struct {
	TaskID            string          `json:"task_id"`
	MustImplement     []string        `json:"must_implement,omitempty"`
	MustNotImplement  []string        `json:"must_not_implement,omitempty"`
	MaxFileChanges    int             `json:"max_file_changes"`
	Technologies      []graph.TechRef `json:"technologies,omitempty"`
	ForbiddenPatterns []string        `json:"forbidden_patterns,omitempty"`
}

// PreCheck returns the boundary the task's executor must stay inside
func (g *Guard) PreCheck(t *graph.Task) *Report {
	return &Report{
		TaskID:            t.ID,
		MustImplement:     t.Scope.MustImplement,
		MustNotImplement:  t.Scope.MustNotImplement,
		MaxFileChanges:    g.fileBudget(t),
		Technologies:      t.Scope.Technologies,
		ForbiddenPatterns: g.guardrails.ForbiddenPatterns,
	}
}

// fileBudget is the task's declared budget, falling back to the guardrail
// default.
func (g *Guard) fileBudget(t *graph.Task) int {
	if t.Scope.MaxFileChanges > 0 {
		return t.Scope.MaxFileChanges
	}
	return g.guardrails.DefaultMaxFileChanges
}

// PostCheck validates the actually changed files against the task's
// boundary. Every violation is reported precisely, naming the offending
// file and marker or pattern; nothing is silently auto-corrected.
func (g *Guard) PostCheck(t *graph.Task, changedFiles []string) error {
	var budgetDetails, scopeDetails []string

	budget := g.fileBudget(t)
	if len(changedFiles) > budget {
		budgetDetails = append(budgetDetails,
			fmt.Sprintf("changed %d files but the budget is %d", len(changedFiles), budget))
		for i := budget; i < len(changedFiles); i++ {
			budgetDetails = append(budgetDetails,
				fmt.Sprintf("file %d exceeds the budget: %s", i+1, changedFiles[i]))
		}
	}

	for _, file := range changedFiles {
		for _, marker := range t.Scope.MustNotImplement {
			if matchesMarker(file, marker) {
				scopeDetails = append(scopeDetails,
					fmt.Sprintf("%s matches must_not_implement marker %q", file, marker))
			}
		}
		for i, re := range g.forbidden {
			if re.MatchString(file) {
				scopeDetails = append(scopeDetails,
					fmt.Sprintf("%s matches forbidden pattern %q", file, g.guardrails.ForbiddenPatterns[i]))
			}
		}
	}

	// Forbidden patterns also police the declared technology versions, so
	// a prerelease qualifier never slips in through the task boundary.
	for _, tech := range t.Scope.Technologies {
		for i, re := range g.forbidden {
			if re.MatchString(tech.Version) {
				scopeDetails = append(scopeDetails,
					fmt.Sprintf("technology %s matches forbidden pattern %q", tech, g.guardrails.ForbiddenPatterns[i]))
			}
		}
	}

	switch {
	case len(scopeDetails) > 0:
		all := append(scopeDetails, budgetDetails...)
		return errors.New(errors.ErrCodeScopeViolation,
			fmt.Sprintf("task %q violated its scope boundary", t.ID)).
			WithDetails(all...)
	case len(budgetDetails) > 0:
		return errors.New(errors.ErrCodeScopeFileBudget,
			fmt.Sprintf("task %q exceeded its file-change budget", t.ID)).
			WithDetails(budgetDetails...)
	default:
		return nil
	}
}

// TechCompliance verifies every referenced technology against the approved
// stack. Compliance is exact version equality; there is no range matching.
func (g *Guard) TechCompliance(t *graph.Task, stack config.Stack) error {
	var details []string

	for _, tech := range t.Scope.Technologies {
		if !stack.Has(tech.Name) {
			details = append(details,
				fmt.Sprintf("technology %q is not in the approved stack", tech.Name))
			continue
		}
		if !stack.Approved(tech.Name, tech.Version) {
			details = append(details,
				fmt.Sprintf("technology %q version %s does not match approved version %s", tech.Name, tech.Version, stack[tech.Name]))
		}
	}

	if len(details) > 0 {
		return errors.New(errors.ErrCodeTechNonCompliance,
			fmt.Sprintf("task %q references unapproved technologies", t.ID)).
			WithDetails(details...)
	}
	return nil
}

// matchesMarker matches a changed file against a must_not_implement marker:
// a path glob, a base-name glob, or a plain substring.
func matchesMarker(file, marker string) bool {
	if ok, err := path.Match(marker, file); err == nil && ok {
		return true
	}
	if ok, err := path.Match(marker, path.Base(file)); err == nil && ok {
		return true
	}
	return strings.Contains(file, marker)
}
