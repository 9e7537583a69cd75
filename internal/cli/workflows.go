package cli

import (
	"fmt"
	"io"

	"github.com/ploston/dael/internal/style"
	"github.com/ploston/dael/internal/workflow"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// workflowsCmd is the `workflows list` subcommand spec.md §6 names. New
// command tree grounded on the same workflow.Registry the engine loads at
// buildRuntime time (internal/cli/runtime.go), reading it rather than
// executing against it.
var workflowsCmd = &cobra.Command{
	Use:   "workflows",
	Short: "Inspect the loaded workflow registry",
}

var workflowsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every workflow loaded from workflows.directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := buildRuntime(cmd.Context())
		if err != nil {
			style.Error(cmd.OutOrStderr(), fmt.Sprintf("failed to initialize runtime: %v", err))
			return err
		}

		workflows := rt.workflows.List()
		w := cmd.OutOrStdout()
		switch viper.GetString("output") {
		case "json":
			style.PrintJSON(w, workflows)
		case "yaml":
			style.PrintYAML(w, workflows)
		default:
			printWorkflowList(w, workflows)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(workflowsCmd)
	workflowsCmd.AddCommand(workflowsListCmd)
}

func printWorkflowList(w io.Writer, workflows []*workflow.Workflow) {
	if len(workflows) == 0 {
		style.Warning(w, "no workflows loaded")
		return
	}
	for _, wf := range workflows {
		fmt.Fprintf(w, "  %s %s %s\n", style.SuccessIcon(), style.FileStyle.Render(wf.Name), style.MutedStyle.Render("v"+wf.Version))
		if wf.Description != "" {
			fmt.Fprintf(w, "      %s\n", wf.Description)
		}
		fmt.Fprintf(w, "      %d step(s), %d input(s)\n", len(wf.Steps), len(wf.Inputs))
	}
}
