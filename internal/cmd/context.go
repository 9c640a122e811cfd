package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/sprintctl/internal/store"
	"github.com/felixgeelhaar/sprintctl/internal/ux"
)

// CommandContext holds the resolved persistent flags for one invocation.
// Commands call NewCommandContext in their RunE instead of reading globals,
// so tests can run commands concurrently without flag state bleeding over.
type CommandContext struct {
	StateDir string
	Format   string
	Verbose  bool
	NoColor  bool
}

// NewCommandContext extracts the persistent flags from a cobra command
func NewCommandContext(cmd *cobra.Command) (*CommandContext, error) {
	stateDir, err := cmd.Flags().GetString("state-dir")
	if err != nil {
		return nil, err
	}

	format, err := cmd.Flags().GetString("format")
	if err != nil {
		return nil, err
	}

	verbose, err := cmd.Flags().GetBool("verbose")
	if err != nil {
		return nil, err
	}

	noColor, err := cmd.Flags().GetBool("no-color")
	if err != nil {
		return nil, err
	}

	return &CommandContext{
		StateDir: stateDir,
		Format:   format,
		Verbose:  verbose,
		NoColor:  noColor,
	}, nil
}

// OpenStore opens the state directory named by --state-dir
func (c *CommandContext) OpenStore() (*store.Store, error) {
	return store.Open(c.StateDir)
}

// Emit writes a command result to stdout in the requested format. json and
// yaml results are wrapped in the success envelope; text results render
// themselves through the resolved styles.
func (c *CommandContext) Emit(data interface{}) error {
	f, err := ux.NewFormatter(c.Format, &ux.FormatterOptions{
		Writer:  os.Stdout,
		NoColor: c.NoColor,
	})
	if err != nil {
		return err
	}

	switch c.Format {
	case "json", "yaml":
		return f.Format(success(data))
	default:
		return f.Format(data)
	}
}
