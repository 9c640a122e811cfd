package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/sprintctl/internal/errors"
	"github.com/felixgeelhaar/sprintctl/internal/graph"
	"github.com/felixgeelhaar/sprintctl/internal/milestone"
	"github.com/felixgeelhaar/sprintctl/internal/store"
	"github.com/felixgeelhaar/sprintctl/internal/ux"
)

var milestoneCmd = &cobra.Command{
	Use:   "milestone",
	Short: "Inspect milestones and record validation results",
}

var milestoneStatusCmd = &cobra.Command{
	Use:   "status [milestone-id]",
	Short: "Show a milestone with its tasks and validation history",
	Long: `Show one milestone's tasks, status, and recorded validation verdicts.
Without an argument the tracker's current milestone is shown.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runMilestoneStatus,
}

var milestoneValidateCmd = &cobra.Command{
	Use:   "validate <milestone-id>",
	Short: "Record an external validation verdict for a complete milestone",
	Long: `Record the external validator's verdict for a COMPLETE milestone.

A passed verdict seals the milestone (VALIDATED is terminal), completes its
trailing validation task, and advances the tracker to the next milestone. A
failed verdict reopens the milestone for remediation; the reported issues are
kept in the validation record either way.

Examples:
  sprintctl milestone validate m2 --result passed
  sprintctl milestone validate m2 --result failed --issue "login flow broken" --issue "missing tests"
`,
	Args: cobra.ExactArgs(1),
	RunE: runMilestoneValidate,
}

// MilestoneDetail is the full view of one milestone
type MilestoneDetail struct {
	ID          string                   `json:"id"`
	Title       string                   `json:"title"`
	Status      string                   `json:"status"`
	Tasks       []MilestoneTask          `json:"tasks"`
	Validations []graph.ValidationRecord `json:"validations,omitempty"`
}

// MilestoneTask is one task line inside a milestone view
type MilestoneTask struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	Type   string `json:"type"`
	Status string `json:"status"`
}

// RenderText renders the milestone for humans
func (d *MilestoneDetail) RenderText(styles ux.Styles) string {
	var b strings.Builder
	b.WriteString(styles.Title.Render(fmt.Sprintf("Milestone %s  %s", d.ID, d.Title)))
	b.WriteString("\n")
	b.WriteString(ux.KV(styles, "Status", fmt.Sprintf("%s %s", ux.StatusSymbol(d.Status), d.Status)))

	b.WriteString("\n\n")
	b.WriteString(styles.Key.Render("Tasks:"))
	for _, t := range d.Tasks {
		line := fmt.Sprintf("\n  %s %s  %s", ux.StatusSymbol(t.Status), t.ID, t.Title)
		if t.Type == string(graph.TypeValidation) {
			line += styles.Muted.Render(" [validation]")
		}
		b.WriteString(line)
	}

	if len(d.Validations) > 0 {
		b.WriteString("\n\n")
		b.WriteString(styles.Key.Render("Validation history:"))
		for _, v := range d.Validations {
			verdict := styles.Success.Render(string(v.Status))
			if v.Status == graph.ValidationFailed {
				verdict = styles.Error.Render(string(v.Status))
			}
			b.WriteString(fmt.Sprintf("\n  %s  %s", v.Timestamp.Format("2006-01-02 15:04"), verdict))
			for _, issue := range v.Issues {
				b.WriteString("\n    - " + issue)
			}
		}
	}

	return b.String()
}

// ValidationOutcome is the result of recording a verdict
type ValidationOutcome struct {
	MilestoneID        string `json:"milestone_id"`
	Result             string `json:"result"`
	MilestoneStatus    string `json:"milestone_status"`
	CurrentMilestoneID string `json:"current_milestone_id"`
	SprintStatus       string `json:"sprint_status"`
}

// RenderText renders the outcome for humans
func (o *ValidationOutcome) RenderText(styles ux.Styles) string {
	var b strings.Builder
	if o.Result == string(graph.ValidationPassed) {
		b.WriteString(styles.Success.Render(fmt.Sprintf("Milestone %s validated", o.MilestoneID)))
	} else {
		b.WriteString(styles.Warning.Render(fmt.Sprintf("Milestone %s reopened for remediation", o.MilestoneID)))
	}
	b.WriteString("\n")
	b.WriteString(ux.KV(styles, "Current milestone", o.CurrentMilestoneID))
	if o.SprintStatus == "complete" {
		b.WriteString("\n")
		b.WriteString(styles.Success.Render("Sprint complete"))
	}
	return b.String()
}

func runMilestoneStatus(cmd *cobra.Command, args []string) error {
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

	id := st.Progress.CurrentMilestoneID
	if len(args) > 0 {
		id = args[0]
	}

	ms, ok := st.Graph.Milestone(id)
	if !ok {
		return errors.New(errors.ErrCodeMilestoneNotFound, fmt.Sprintf("milestone %q does not exist", id))
	}

	detail := &MilestoneDetail{
		ID:     ms.ID,
		Title:  ms.Title,
		Status: string(ms.Status),
	}
	for _, taskID := range ms.TaskIDs {
		if t, ok := st.Graph.Task(taskID); ok {
			detail.Tasks = append(detail.Tasks, MilestoneTask{
				ID:     t.ID,
				Title:  t.Title,
				Type:   string(t.Type),
				Status: string(t.Status),
			})
		}
	}
	for _, v := range st.Progress.Validations {
		if v.MilestoneID == ms.ID {
			detail.Validations = append(detail.Validations, v)
		}
	}

	return cmdCtx.Emit(detail)
}

func runMilestoneValidate(cmd *cobra.Command, args []string) error {
	cmdCtx, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}

	result, err := cmd.Flags().GetString("result")
	if err != nil {
		return err
	}
	issues, err := cmd.Flags().GetStringArray("issue")
	if err != nil {
		return err
	}

	var status graph.ValidationStatus
	switch result {
	case string(graph.ValidationPassed):
		status = graph.ValidationPassed
	case string(graph.ValidationFailed):
		status = graph.ValidationFailed
	default:
		return fmt.Errorf("invalid --result %q (expected passed or failed)", result)
	}

	s, err := cmdCtx.OpenStore()
	if err != nil {
		return err
	}

	var outcome *ValidationOutcome
	err = s.AtomicUpdate(cmd.Context(), func(st *store.State) error {
		if err := milestone.New(st.Graph, st.Progress).RecordValidation(args[0], status, issues); err != nil {
			return err
		}

		outcome = &ValidationOutcome{
			MilestoneID:        args[0],
			Result:             result,
			CurrentMilestoneID: st.Progress.CurrentMilestoneID,
			SprintStatus:       st.Progress.Status,
		}
		if ms, ok := st.Graph.Milestone(args[0]); ok {
			outcome.MilestoneStatus = string(ms.Status)
		}
		return nil
	})
	if err != nil {
		return err
	}

	return cmdCtx.Emit(outcome)
}

func init() {
	milestoneValidateCmd.Flags().String("result", "", "validation verdict: passed or failed")
	milestoneValidateCmd.Flags().StringArray("issue", nil, "issue found during validation (repeatable)")
	_ = milestoneValidateCmd.MarkFlagRequired("result")

	milestoneCmd.AddCommand(milestoneStatusCmd)
	milestoneCmd.AddCommand(milestoneValidateCmd)
	rootCmd.AddCommand(milestoneCmd)
}
