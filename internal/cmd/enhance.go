package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/felixgeelhaar/sprintctl/internal/enhance"
	"github.com/felixgeelhaar/sprintctl/internal/errors"
	"github.com/felixgeelhaar/sprintctl/internal/graph"
	"github.com/felixgeelhaar/sprintctl/internal/ux"
)

var enhanceCmd = &cobra.Command{
	Use:   "enhance",
	Short: "Insert or defer mid-sprint feature enhancements",
}

var enhanceApplyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Atomically insert a feature's tasks into the sprint",
	Long: `Insert a new feature's tasks into the running sprint. Placement picks
the earliest milestone that can absorb them: all dependencies satisfiable at
or before it, capacity left under its task maximum, and not yet sealed by
validation. When no milestone fits, a new one is synthesized at the end of
the sprint with its own validation task.

The whole insertion is one atomic update: if the resulting graph violates any
invariant, nothing is written.

The feature file holds a task array (json or yaml):
  [{"id": "task-9", "title": "Add rate limiting", "milestone_id": "",
    "depends_on": ["task-3"], "status": "pending", "scope": {...}}]

Examples:
  sprintctl enhance apply --file feature.json --description "rate limiting"
`,
	Args: cobra.NoArgs,
	RunE: runEnhanceApply,
}

var enhanceDeferCmd = &cobra.Command{
	Use:   "defer",
	Short: "Record a feature for a later sprint instead of inserting it",
	Args:  cobra.NoArgs,
	RunE:  runEnhanceDefer,
}

// PlanReport is the applied placement
type PlanReport struct {
	MilestoneID  string   `json:"milestone_id"`
	NewMilestone bool     `json:"new_milestone"`
	TaskIDs      []string `json:"task_ids"`
	Description  string   `json:"description"`
}

// RenderText renders the placement for humans
func (r *PlanReport) RenderText(styles ux.Styles) string {
	var b strings.Builder
	if r.NewMilestone {
		b.WriteString(styles.Success.Render(
			fmt.Sprintf("Inserted %d tasks into new milestone %s", len(r.TaskIDs), r.MilestoneID)))
	} else {
		b.WriteString(styles.Success.Render(
			fmt.Sprintf("Inserted %d tasks into milestone %s", len(r.TaskIDs), r.MilestoneID)))
	}
	b.WriteString("\n")
	b.WriteString(ux.KV(styles, "Tasks", strings.Join(r.TaskIDs, ", ")))
	return b.String()
}

// DeferReport is the recorded deferral
type DeferReport struct {
	*graph.DeferredFeature
}

// RenderText renders the deferral for humans
func (r *DeferReport) RenderText(styles ux.Styles) string {
	out := styles.Success.Render("Feature deferred") + "\n" +
		ux.KV(styles, "Description", r.Description)
	if r.Reason != "" {
		out += "\n" + ux.KV(styles, "Reason", r.Reason)
	}
	return out
}

func runEnhanceApply(cmd *cobra.Command, args []string) error {
	cmdCtx, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}

	file, err := cmd.Flags().GetString("file")
	if err != nil {
		return err
	}
	description, err := cmd.Flags().GetString("description")
	if err != nil {
		return err
	}

	feature, err := loadFeatureFile(file)
	if err != nil {
		return err
	}

	s, err := cmdCtx.OpenStore()
	if err != nil {
		return err
	}

	plan, err := enhance.NewPlanner(s).Apply(cmd.Context(), feature, description)
	if err != nil {
		return err
	}

	return cmdCtx.Emit(&PlanReport{
		MilestoneID:  plan.MilestoneID,
		NewMilestone: plan.NewMilestone,
		TaskIDs:      plan.TaskIDs,
		Description:  description,
	})
}

func runEnhanceDefer(cmd *cobra.Command, args []string) error {
	cmdCtx, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}

	description, err := cmd.Flags().GetString("description")
	if err != nil {
		return err
	}
	reason, err := cmd.Flags().GetString("reason")
	if err != nil {
		return err
	}

	s, err := cmdCtx.OpenStore()
	if err != nil {
		return err
	}

	deferred, err := enhance.NewPlanner(s).Defer(cmd.Context(), description, reason)
	if err != nil {
		return err
	}

	return cmdCtx.Emit(&DeferReport{deferred})
}

// loadFeatureFile reads a task array from a json or yaml file. yaml goes
// through a json round-trip so the same strict decoding and enum checks
// apply to both formats.
func loadFeatureFile(path string) ([]graph.Task, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeFileNotFound,
			fmt.Sprintf("cannot read feature file %q", path), err)
	}

	switch ext := filepath.Ext(path); ext {
	case ".yaml", ".yml":
		var raw interface{}
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, errors.Wrap(errors.ErrCodeSchemaInvalid,
				fmt.Sprintf("feature file %q is not valid yaml", path), err)
		}
		data, err = json.Marshal(raw)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeSchemaInvalid,
				fmt.Sprintf("feature file %q cannot be converted", path), err)
		}
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var feature []graph.Task
	if err := dec.Decode(&feature); err != nil {
		return nil, errors.Wrap(errors.ErrCodeSchemaInvalid,
			fmt.Sprintf("feature file %q does not hold a task array", path), err)
	}
	if len(feature) == 0 {
		return nil, errors.New(errors.ErrCodeSchemaInvalid,
			fmt.Sprintf("feature file %q holds no tasks", path))
	}

	return feature, nil
}

func init() {
	enhanceApplyCmd.Flags().String("file", "", "feature task file (json or yaml)")
	enhanceApplyCmd.Flags().String("description", "", "one-line feature description")
	_ = enhanceApplyCmd.MarkFlagRequired("file")
	_ = enhanceApplyCmd.MarkFlagRequired("description")

	enhanceDeferCmd.Flags().String("description", "", "one-line feature description")
	enhanceDeferCmd.Flags().String("reason", "", "why the feature is deferred")
	_ = enhanceDeferCmd.MarkFlagRequired("description")

	enhanceCmd.AddCommand(enhanceApplyCmd)
	enhanceCmd.AddCommand(enhanceDeferCmd)
	rootCmd.AddCommand(enhanceCmd)
}
