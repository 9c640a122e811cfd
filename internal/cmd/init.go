package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/sprintctl/internal/errors"
	"github.com/felixgeelhaar/sprintctl/internal/graph"
	"github.com/felixgeelhaar/sprintctl/internal/ux"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Seed a state directory from a task graph",
	Long: `Create the sprint state directory from a planned task graph: the graph
itself, a fresh progress tracker pointing at the first milestone, an empty
deferred list, and default guardrail and approved-stack files ready for
editing.

The graph is fully validated first (schema, acyclicity, milestone shape);
an existing sprint in the directory is never overwritten.

Examples:
  sprintctl init --file sprint-plan.json
  sprintctl init --file sprint-plan.json --state-dir .sprint
`,
	Args: cobra.NoArgs,
	RunE: runInit,
}

// InitReport summarizes the seeded sprint
type InitReport struct {
	SprintID   string `json:"sprint_id"`
	StateDir   string `json:"state_dir"`
	Tasks      int    `json:"tasks"`
	Milestones int    `json:"milestones"`
}

// RenderText renders the seeding outcome for humans
func (r *InitReport) RenderText(styles ux.Styles) string {
	return styles.Success.Render(fmt.Sprintf("Sprint %s initialized", r.SprintID)) + "\n" +
		ux.KV(styles, "State dir", r.StateDir) + "\n" +
		ux.KV(styles, "Tasks", fmt.Sprintf("%d in %d milestones", r.Tasks, r.Milestones))
}

func runInit(cmd *cobra.Command, args []string) error {
	cmdCtx, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}

	file, err := cmd.Flags().GetString("file")
	if err != nil {
		return err
	}

	data, err := os.ReadFile(file)
	if err != nil {
		return errors.Wrap(errors.ErrCodeFileNotFound,
			fmt.Sprintf("cannot read task graph %q", file), err)
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var g graph.TaskGraph
	if err := dec.Decode(&g); err != nil {
		return errors.Wrap(errors.ErrCodeSchemaInvalid,
			fmt.Sprintf("task graph %q is malformed", file), err)
	}

	s, err := cmdCtx.OpenStore()
	if err != nil {
		return err
	}

	if err := s.Init(cmd.Context(), &g); err != nil {
		return err
	}

	return cmdCtx.Emit(&InitReport{
		SprintID:   g.SprintID,
		StateDir:   s.Dir(),
		Tasks:      len(g.Tasks),
		Milestones: len(g.Milestones),
	})
}

func init() {
	initCmd.Flags().String("file", "", "planned task graph (json)")
	_ = initCmd.MarkFlagRequired("file")

	rootCmd.AddCommand(initCmd)
}
