package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/sprintctl/internal/errors"
	"github.com/felixgeelhaar/sprintctl/internal/resolver"
	"github.com/felixgeelhaar/sprintctl/internal/ux"
)

var depsCmd = &cobra.Command{
	Use:   "deps",
	Short: "Inspect the dependency graph",
}

var depsValidateCmd = &cobra.Command{
	Use:   "validate <task-id>",
	Short: "Check whether a task's dependency chain is satisfied",
	Long: `Report each dependency of a task as satisfied or unmet. The command
exits non-zero when the chain is incomplete, so it can gate automation:

  sprintctl deps validate task-7 && run-the-task
`,
	Args: cobra.ExactArgs(1),
	RunE: runDepsValidate,
}

// depsReport wraps the dependency report for text output
type depsReport struct {
	*resolver.DependencyReport
}

// RenderText renders the report for humans
func (r *depsReport) RenderText(styles ux.Styles) string {
	var b strings.Builder
	b.WriteString(ux.KV(styles, "Task", r.TaskID))

	for _, dep := range r.Satisfied {
		b.WriteString("\n  " + styles.Success.Render("✓ "+dep))
	}
	for _, dep := range r.Unmet {
		b.WriteString("\n  " + styles.Error.Render("✗ "+dep))
	}

	b.WriteString("\n")
	if r.Eligible {
		b.WriteString(styles.Success.Render("Eligible to run"))
	} else {
		b.WriteString(styles.Warning.Render("Not eligible"))
	}
	return b.String()
}

func init() {
	depsCmd.AddCommand(depsValidateCmd)
	rootCmd.AddCommand(depsCmd)
}

func runDepsValidate(cmd *cobra.Command, args []string) error {
	cmdCtx, err := NewCommandContext(cmd)
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

	report, err := resolver.New(st.Graph, st.Progress).ValidateDependencies(args[0])
	if err != nil {
		return err
	}

	if len(report.Unmet) > 0 {
		details := make([]string, len(report.Unmet))
		for i, dep := range report.Unmet {
			details[i] = fmt.Sprintf("dependency %s is not completed", dep)
		}
		return errors.New(errors.ErrCodeDependencyUnsatisfied,
			fmt.Sprintf("task %q has %d unmet dependencies", report.TaskID, len(report.Unmet))).
			WithDetails(details...)
	}

	return cmdCtx.Emit(&depsReport{report})
}
