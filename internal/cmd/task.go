package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/sprintctl/internal/errors"
	"github.com/felixgeelhaar/sprintctl/internal/graph"
	"github.com/felixgeelhaar/sprintctl/internal/milestone"
	"github.com/felixgeelhaar/sprintctl/internal/resolver"
	"github.com/felixgeelhaar/sprintctl/internal/scope"
	"github.com/felixgeelhaar/sprintctl/internal/store"
	"github.com/felixgeelhaar/sprintctl/internal/ux"
)

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Select, inspect, and transition sprint tasks",
}

var taskNextCmd = &cobra.Command{
	Use:   "next [task-id]",
	Short: "Resolve the next runnable task",
	Long: `Select the next runnable task, or diagnose a concrete one.

Without an argument the current milestone's eligible tasks are preferred,
ties broken by declared order. With a task id the command explains exactly
why that task can or cannot run: missing dependencies are named one by one,
and tasks behind an unvalidated milestone are refused until the gate clears.

Examples:
  sprintctl task next
  sprintctl task next task-7 --format json
`,
	Args: cobra.MaximumNArgs(1),
	RunE: runTaskNext,
}

var taskShowCmd = &cobra.Command{
	Use:   "show <task-id>",
	Short: "Show a task with its dependencies and scope boundary",
	Args:  cobra.ExactArgs(1),
	RunE:  runTaskShow,
}

var taskStartCmd = &cobra.Command{
	Use:   "start <task-id>",
	Short: "Mark an eligible task as in progress",
	Args:  cobra.ExactArgs(1),
	RunE:  runTaskStart,
}

var taskCompleteCmd = &cobra.Command{
	Use:   "complete <task-id>",
	Short: "Complete an in-progress task after checking its scope",
	Long: `Record a task as completed. The changed files are checked against the
task's file budget, its must-not-implement markers, and the guardrail
forbidden patterns before any state is written. A violation rejects the
whole transition and leaves the state directory untouched.

Examples:
  sprintctl task complete task-7 --changed-file src/api.go --changed-file src/api_test.go
`,
	Args: cobra.ExactArgs(1),
	RunE: runTaskComplete,
}

// NextReport wraps a selection for output
type NextReport struct {
	Task *graph.Task `json:"task"`
}

// RenderText renders the selected task for humans
func (r *NextReport) RenderText(styles ux.Styles) string {
	var b strings.Builder
	b.WriteString(styles.Success.Render("Next task"))
	b.WriteString("\n")
	b.WriteString(renderTaskLines(styles, r.Task))
	return b.String()
}

// TaskDetail is the full view of one task
type TaskDetail struct {
	Task         *graph.Task                `json:"task"`
	Dependencies *resolver.DependencyReport `json:"dependencies"`
	Boundary     *scope.Report              `json:"boundary"`
}

// RenderText renders the task detail for humans
func (d *TaskDetail) RenderText(styles ux.Styles) string {
	var b strings.Builder
	b.WriteString(renderTaskLines(styles, d.Task))

	b.WriteString("\n")
	b.WriteString(styles.Key.Render("Dependencies:"))
	if len(d.Dependencies.Satisfied) == 0 && len(d.Dependencies.Unmet) == 0 {
		b.WriteString(" " + styles.Muted.Render("none"))
	}
	for _, dep := range d.Dependencies.Satisfied {
		b.WriteString("\n  " + styles.Success.Render("✓ "+dep))
	}
	for _, dep := range d.Dependencies.Unmet {
		b.WriteString("\n  " + styles.Error.Render("✗ "+dep))
	}

	b.WriteString("\n")
	b.WriteString(ux.KV(styles, "File budget", fmt.Sprintf("%d", d.Boundary.MaxFileChanges)))
	if len(d.Boundary.MustImplement) > 0 {
		b.WriteString("\n")
		b.WriteString(ux.KV(styles, "Must implement", strings.Join(d.Boundary.MustImplement, ", ")))
	}
	if len(d.Boundary.MustNotImplement) > 0 {
		b.WriteString("\n")
		b.WriteString(ux.KV(styles, "Must not implement", strings.Join(d.Boundary.MustNotImplement, ", ")))
	}
	if len(d.Boundary.Technologies) > 0 {
		techs := make([]string, len(d.Boundary.Technologies))
		for i, tech := range d.Boundary.Technologies {
			techs[i] = tech.String()
		}
		b.WriteString("\n")
		b.WriteString(ux.KV(styles, "Technologies", strings.Join(techs, ", ")))
	}

	return b.String()
}

// TransitionReport is the outcome of a task start or complete
type TransitionReport struct {
	TaskID            string `json:"task_id"`
	Status            string `json:"status"`
	MilestoneID       string `json:"milestone_id"`
	MilestoneStatus   string `json:"milestone_status"`
	ValidationPending bool   `json:"validation_pending"`
}

// RenderText renders the transition outcome for humans
func (r *TransitionReport) RenderText(styles ux.Styles) string {
	var b strings.Builder
	b.WriteString(styles.Success.Render(fmt.Sprintf("Task %s is now %s", r.TaskID, r.Status)))
	b.WriteString("\n")
	b.WriteString(ux.KV(styles, "Milestone", fmt.Sprintf("%s (%s)", r.MilestoneID, r.MilestoneStatus)))
	if r.ValidationPending {
		b.WriteString("\n")
		b.WriteString(styles.Warning.Render(
			fmt.Sprintf("Milestone %s is complete: report the external validation via 'sprintctl milestone validate %s'",
				r.MilestoneID, r.MilestoneID)))
	}
	return b.String()
}

func renderTaskLines(styles ux.Styles, t *graph.Task) string {
	var b strings.Builder
	b.WriteString(ux.KV(styles, "Task", fmt.Sprintf("%s  %s", t.ID, t.Title)))
	b.WriteString("\n")
	b.WriteString(ux.KV(styles, "Status", fmt.Sprintf("%s %s", ux.StatusSymbol(string(t.Status)), t.Status)))
	b.WriteString("\n")
	b.WriteString(ux.KV(styles, "Milestone", t.MilestoneID))
	if t.Enhancement != nil {
		b.WriteString("\n")
		b.WriteString(ux.KV(styles, "Enhancement", t.Enhancement.Description))
	}
	return b.String()
}

func runTaskNext(cmd *cobra.Command, args []string) error {
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

	requested := ""
	if len(args) > 0 {
		requested = args[0]
	}

	sel, err := resolver.New(st.Graph, st.Progress).NextTask(requested)
	if err != nil {
		return err
	}
	if sel.Blocked {
		return blockedError(st.Progress, sel.Reason)
	}

	return cmdCtx.Emit(&NextReport{Task: sel.Task})
}

// blockedError maps a blocked selection onto the failure that names it
func blockedError(p *graph.Progress, reason string) error {
	if p.ValidationPending {
		return errors.New(errors.ErrCodeValidationPending, reason).
			WithSuggestions(fmt.Sprintf("report the external result via 'sprintctl milestone validate %s --result passed|failed'", p.CurrentMilestoneID))
	}
	return errors.New(errors.ErrCodeDependencyUnsatisfied, reason)
}

func runTaskShow(cmd *cobra.Command, args []string) error {
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

	t, ok := st.Graph.Task(args[0])
	if !ok {
		return errors.New(errors.ErrCodeTaskNotFound, fmt.Sprintf("task %q does not exist", args[0]))
	}

	deps, err := resolver.New(st.Graph, st.Progress).ValidateDependencies(t.ID)
	if err != nil {
		return err
	}

	guard, err := scope.New(s.Guardrails())
	if err != nil {
		return err
	}

	return cmdCtx.Emit(&TaskDetail{
		Task:         t,
		Dependencies: deps,
		Boundary:     guard.PreCheck(t),
	})
}

func runTaskStart(cmd *cobra.Command, args []string) error {
	cmdCtx, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}

	s, err := cmdCtx.OpenStore()
	if err != nil {
		return err
	}

	var report *TransitionReport
	err = s.AtomicUpdate(cmd.Context(), func(st *store.State) error {
		// Resolution names the precise unmet condition: a missing
		// dependency, the validation gate, or a non-pending status.
		sel, err := resolver.New(st.Graph, st.Progress).NextTask(args[0])
		if err != nil {
			return err
		}

		t := sel.Task
		if err := milestone.New(st.Graph, st.Progress).OnTaskStarted(t); err != nil {
			return err
		}
		t.Status = graph.TaskInProgress
		st.Progress.AppendHistory(graph.EventTaskStarted, t.ID, t.MilestoneID, "")

		report = transitionReport(st, t)
		return nil
	})
	if err != nil {
		return err
	}

	return cmdCtx.Emit(report)
}

func runTaskComplete(cmd *cobra.Command, args []string) error {
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

	guard, err := scope.New(s.Guardrails())
	if err != nil {
		return err
	}

	stack, err := s.Stack()
	if err != nil {
		return err
	}

	var report *TransitionReport
	err = s.AtomicUpdate(cmd.Context(), func(st *store.State) error {
		t, ok := st.Graph.Task(args[0])
		if !ok {
			return errors.New(errors.ErrCodeTaskNotFound, fmt.Sprintf("task %q does not exist", args[0]))
		}
		if t.Status != graph.TaskInProgress {
			e := errors.New(errors.ErrCodeTaskNotPending,
				fmt.Sprintf("task %q is %s, not in_progress", t.ID, t.Status))
			if t.Status == graph.TaskPending {
				e = e.WithSuggestions(fmt.Sprintf("start it first: sprintctl task start %s", t.ID))
			}
			return e
		}

		if err := guard.TechCompliance(t, stack); err != nil {
			return err
		}
		if err := guard.PostCheck(t, changedFiles); err != nil {
			return err
		}

		t.Status = graph.TaskCompleted
		st.Progress.AppendHistory(graph.EventTaskCompleted, t.ID, t.MilestoneID,
			fmt.Sprintf("%d files changed", len(changedFiles)))
		if err := milestone.New(st.Graph, st.Progress).OnTaskCompleted(t); err != nil {
			return err
		}

		report = transitionReport(st, t)
		return nil
	})
	if err != nil {
		return err
	}

	return cmdCtx.Emit(report)
}

func transitionReport(st *store.State, t *graph.Task) *TransitionReport {
	report := &TransitionReport{
		TaskID:            t.ID,
		Status:            string(t.Status),
		MilestoneID:       t.MilestoneID,
		ValidationPending: st.Progress.ValidationPending,
	}
	if ms, ok := st.Graph.Milestone(t.MilestoneID); ok {
		report.MilestoneStatus = string(ms.Status)
	}
	return report
}

func init() {
	taskCompleteCmd.Flags().StringArray("changed-file", nil, "file changed while executing the task (repeatable)")

	taskCmd.AddCommand(taskNextCmd)
	taskCmd.AddCommand(taskShowCmd)
	taskCmd.AddCommand(taskStartCmd)
	taskCmd.AddCommand(taskCompleteCmd)
	rootCmd.AddCommand(taskCmd)
}
