package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/sprintctl/internal/log"
	"github.com/felixgeelhaar/sprintctl/internal/ux"
)

var rootCmd = &cobra.Command{
	Use:   "sprintctl",
	Short: "Sprint task orchestration and validation gate enforcement",
	Long: `sprintctl tracks a sprint's task graph on disk and answers scheduling
questions about it: which task is runnable next, whether a dependency chain is
satisfied, and whether a milestone may proceed past its validation gate.

All state lives in a single directory (task graph, progress tracker, deferred
features, guardrails). Every mutation is atomic: a backup snapshot is taken
first, the full invariant set is re-checked, and a failed write rolls the
directory back.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
			log.SetDefaultLogger(log.Verbose())
		}
	},
}

// ExecuteContext runs the root command and renders any failure in the
// requested output format before handing the error back for exit-code
// mapping.
func ExecuteContext(ctx context.Context) error {
	err := rootCmd.ExecuteContext(ctx)
	if err != nil && ctx.Err() == nil {
		renderCommandError(err)
	}
	return err
}

// renderCommandError prints the failure the same way results are printed:
// a structured envelope for json/yaml, styled text otherwise. Structured
// output goes to stdout so scripted callers always get exactly one document.
func renderCommandError(err error) {
	format, _ := rootCmd.PersistentFlags().GetString("format")
	noColor, _ := rootCmd.PersistentFlags().GetBool("no-color")

	switch format {
	case "json", "yaml":
		f, ferr := ux.NewFormatter(format, nil)
		if ferr != nil {
			break
		}
		if f.Format(failure(err)) == nil {
			return
		}
	}

	styles := ux.DefaultStyles()
	if noColor {
		styles = ux.PlainStyles()
	}
	fmt.Fprintln(os.Stderr, ux.RenderError(styles, err))
}

func init() {
	rootCmd.PersistentFlags().String("state-dir", ".sprint", "sprint state directory")
	rootCmd.PersistentFlags().String("format", "text", "output format (text, json, yaml)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "enable verbose logging")
	rootCmd.PersistentFlags().Bool("no-color", false, "disable colored output")
}
