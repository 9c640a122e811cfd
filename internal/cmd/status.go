package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/sprintctl/internal/graph"
	"github.com/felixgeelhaar/sprintctl/internal/resolver"
	"github.com/felixgeelhaar/sprintctl/internal/ux"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show sprint progress and the current milestone",
	Long: `Display the sprint tracker: per-milestone completion, the validation
gate, deferred features, and the next runnable task.

Examples:
  # Human-readable overview
  sprintctl status

  # Stable JSON for scripting; identical state yields identical bytes
  sprintctl status --format json
`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

// StatusReport is the full sprint overview
type StatusReport struct {
	SprintID           string                  `json:"sprint_id"`
	Status             string                  `json:"status"`
	CurrentMilestoneID string                  `json:"current_milestone_id"`
	ValidationPending  bool                    `json:"validation_pending"`
	Completed          int                     `json:"completed"`
	Total              int                     `json:"total"`
	Milestones         []MilestoneSummary      `json:"milestones"`
	Next               *resolver.Selection     `json:"next,omitempty"`
	Deferred           []graph.DeferredFeature `json:"deferred,omitempty"`
}

// MilestoneSummary is one milestone's completion line
type MilestoneSummary struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Status    string `json:"status"`
	Completed int    `json:"completed"`
	Total     int    `json:"total"`
}

func runStatus(cmd *cobra.Command, args []string) error {
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

	report := buildStatusReport(st.Graph, st.Progress, st.Deferred)
	return cmdCtx.Emit(report)
}

func buildStatusReport(g *graph.TaskGraph, p *graph.Progress, deferred []graph.DeferredFeature) *StatusReport {
	report := &StatusReport{
		SprintID:           p.SprintID,
		Status:             p.Status,
		CurrentMilestoneID: p.CurrentMilestoneID,
		ValidationPending:  p.ValidationPending,
		Completed:          p.Completed,
		Total:              p.Total,
		Deferred:           deferred,
	}

	for i := range g.Milestones {
		ms := &g.Milestones[i]
		summary := MilestoneSummary{
			ID:     ms.ID,
			Title:  ms.Title,
			Status: string(ms.Status),
			Total:  len(ms.TaskIDs),
		}
		for _, id := range ms.TaskIDs {
			if t, ok := g.Task(id); ok && t.Status == graph.TaskCompleted {
				summary.Completed++
			}
		}
		report.Milestones = append(report.Milestones, summary)
	}

	// Selection errors cannot happen without a requested id
	if sel, err := resolver.New(g, p).NextTask(""); err == nil {
		report.Next = sel
	}

	return report
}

// RenderText renders the report for humans
func (r *StatusReport) RenderText(styles ux.Styles) string {
	var b strings.Builder

	b.WriteString(styles.Title.Render(fmt.Sprintf("Sprint %s", r.SprintID)))
	b.WriteString("\n")
	b.WriteString(ux.KV(styles, "Status", r.Status))
	b.WriteString("\n")
	b.WriteString(ux.KV(styles, "Progress", fmt.Sprintf("%d/%d tasks completed", r.Completed, r.Total)))
	b.WriteString("\n")
	b.WriteString(ux.KV(styles, "Current milestone", r.CurrentMilestoneID))
	if r.ValidationPending {
		b.WriteString("\n")
		b.WriteString(styles.Warning.Render("Validation pending: run 'sprintctl milestone validate' with the external result"))
	}

	b.WriteString("\n\n")
	b.WriteString(styles.Key.Render("Milestones:"))
	for _, ms := range r.Milestones {
		line := fmt.Sprintf("\n  %s %s  %s (%d/%d)",
			ux.StatusSymbol(ms.Status), ms.ID, ms.Title, ms.Completed, ms.Total)
		b.WriteString(ux.StatusStyle(styles, ms.Status)(line))
	}

	if r.Next != nil {
		b.WriteString("\n\n")
		if r.Next.Task != nil {
			b.WriteString(ux.KV(styles, "Next", fmt.Sprintf("%s  %s", r.Next.Task.ID, r.Next.Task.Title)))
		} else {
			b.WriteString(ux.KV(styles, "Next", styles.Muted.Render("blocked: "+r.Next.Reason)))
		}
	}

	if len(r.Deferred) > 0 {
		b.WriteString("\n\n")
		b.WriteString(styles.Key.Render("Deferred:"))
		for _, d := range r.Deferred {
			b.WriteString(fmt.Sprintf("\n  - %s", d.Description))
			if d.Reason != "" {
				b.WriteString(styles.Muted.Render(" (" + d.Reason + ")"))
			}
		}
	}

	return b.String()
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
