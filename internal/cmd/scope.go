package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/sprintctl/internal/errors"
	"github.com/felixgeelhaar/sprintctl/internal/scope"
	"github.com/felixgeelhaar/sprintctl/internal/ux"
)

var scopeCmd = &cobra.Command{
	Use:   "scope",
	Short: "Check work against a task's declared boundary",
}

var scopeCheckCmd = &cobra.Command{
	Use:   "check <task-id>",
	Short: "Check changed files against a task's scope boundary",
	Long: `Check a set of changed files against a task's boundary without
transitioning the task: the file budget, must-not-implement markers,
guardrail forbidden patterns, and exact technology compliance.

Run it with no --changed-file flags to print the boundary the executor
must stay inside before work begins.

Examples:
  sprintctl scope check task-7
  sprintctl scope check task-7 --changed-file src/api.go --changed-file vendor/dep.go
`,
	Args: cobra.ExactArgs(1),
	RunE: runScopeCheck,
}

// scopeReport wraps the boundary report for text output
type scopeReport struct {
	*scope.Report
	CheckedFiles int  `json:"checked_files"`
	Clean        bool `json:"clean"`
}

// RenderText renders the boundary for humans
func (r *scopeReport) RenderText(styles ux.Styles) string {
	var b strings.Builder
	b.WriteString(ux.KV(styles, "Task", r.TaskID))
	b.WriteString("\n")
	b.WriteString(ux.KV(styles, "File budget", fmt.Sprintf("%d", r.MaxFileChanges)))
	if len(r.MustImplement) > 0 {
		b.WriteString("\n")
		b.WriteString(ux.KV(styles, "Must implement", strings.Join(r.MustImplement, ", ")))
	}
	if len(r.MustNotImplement) > 0 {
		b.WriteString("\n")
		b.WriteString(ux.KV(styles, "Must not implement", strings.Join(r.MustNotImplement, ", ")))
	}
	if len(r.ForbiddenPatterns) > 0 {
		b.WriteString("\n")
		b.WriteString(ux.KV(styles, "Forbidden patterns", strings.Join(r.ForbiddenPatterns, ", ")))
	}
	if r.CheckedFiles > 0 {
		b.WriteString("\n")
		b.WriteString(styles.Success.Render(fmt.Sprintf("%d changed files are within scope", r.CheckedFiles)))
	}
	return b.String()
}

func runScopeCheck(cmd *cobra.Command, args []string) error {
	cmdCtx, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}

	changedFiles, err := cmd.Flags().GetStringArray("changed-file")
	if err != nil {
		return err
	}

	s, err := cmdCtx.OpenStore()
	if err != nil {
		return err
	}

	st, err := s.Load()
	if err != nil {
		return err
	}

	t, ok := st.Graph.Task(args[0])
	if !ok {
		return errors.New(errors.ErrCodeTaskNotFound, fmt.Sprintf("task %q does not exist", args[0]))
	}

	guard, err := scope.New(s.Guardrails())
	if err != nil {
		return err
	}

	stack, err := s.Stack()
	if err != nil {
		return err
	}
	if err := guard.TechCompliance(t, stack); err != nil {
		return err
	}

	if len(changedFiles) > 0 {
		if err := guard.PostCheck(t, changedFiles); err != nil {
			return err
		}
	}

	return cmdCtx.Emit(&scopeReport{
		Report:       guard.PreCheck(t),
		CheckedFiles: len(changedFiles),
		Clean:        true,
	})
}

func init() {
	scopeCheckCmd.Flags().StringArray("changed-file", nil, "file to check against the boundary (repeatable)")

	scopeCmd.AddCommand(scopeCheckCmd)
	rootCmd.AddCommand(scopeCmd)
}
