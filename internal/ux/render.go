package ux

import (
	"fmt"
	"strings"

	"github.com/felixgeelhaar/sprintctl/internal/errors"
	"github.com/felixgeelhaar/sprintctl/internal/graph"
)

// StatusSymbol returns a one-character marker for a task or milestone
// status. Tasks and milestones share the in_progress value.
func StatusSymbol(status string) string {
	switch status {
	case string(graph.TaskCompleted), string(graph.MilestoneValidated):
		return "✓"
	case string(graph.TaskInProgress):
		return "▶"
	case string(graph.MilestoneComplete):
		return "◆"
	default:
		return "○"
	}
}

// StatusStyle picks the style matching a status string
func StatusStyle(styles Styles, status string) func(...string) string {
	switch status {
	case string(graph.TaskCompleted), string(graph.MilestoneValidated):
		return styles.Success.Render
	case string(graph.TaskInProgress):
		return styles.Status.Render
	case string(graph.MilestoneComplete):
		return styles.Warning.Render
	default:
		return styles.Muted.Render
	}
}

// RenderError renders a command error for humans. Sprint errors keep their
// code, detail lines, and suggestions; anything else prints as-is.
func RenderError(styles Styles, err error) string {
	var b strings.Builder

	var se *errors.SprintError
	if !errors.AsSprintError(err, &se) {
		b.WriteString(styles.Error.Render("Error:"))
		b.WriteString(" ")
		b.WriteString(err.Error())
		return b.String()
	}

	b.WriteString(styles.Error.Render(fmt.Sprintf("Error [%s]:", se.Code)))
	b.WriteString(" ")
	b.WriteString(se.Message)
	if se.Cause != nil {
		b.WriteString(fmt.Sprintf(": %v", se.Cause))
	}

	for _, detail := range se.Details {
		b.WriteString("\n  ")
		b.WriteString(styles.Muted.Render("- " + detail))
	}

	if len(se.Suggestions) > 0 {
		b.WriteString("\n\n")
		b.WriteString(styles.Warning.Render("Suggestions:"))
		for _, suggestion := range se.Suggestions {
			b.WriteString("\n  • ")
			b.WriteString(suggestion)
		}
	}

	return b.String()
}

// KV renders an aligned "key: value" line
func KV(styles Styles, key, value string) string {
	return fmt.Sprintf("%s %s", styles.Key.Render(key+":"), value)
}
