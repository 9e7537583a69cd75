package cli

import (
	"fmt"
	"io"

	"github.com/ploston/dael/internal/style"
	"github.com/ploston/dael/internal/tooling"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// toolsCmd groups the registry-inspection subcommands spec.md §6 names:
// `tools list|show|refresh`. New command tree (the teacher has no
// equivalent — its CLI only ever talks to one provider at a time); grounded
// on the same buildRuntime/tooling.Registry wiring validate.go and
// schema.go already use, applied to listing instead of schema generation.
var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "Inspect the federated tool registry",
}

var toolsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every tool visible in the current mode",
	Long: `List every tool the registry currently resolves: built-ins, workflows
exposed as "workflow:<name>" tools, and tools discovered from configured
MCP backends. In configuration mode (no config file loaded) only the
built-ins are listed: python_exec and the config_* tools. Workflow and
MCP tools are hidden in that mode.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := buildRuntime(cmd.Context())
		if err != nil {
			style.Error(cmd.OutOrStderr(), fmt.Sprintf("failed to initialize runtime: %v", err))
			return err
		}

		descs := rt.tools.List()
		w := cmd.OutOrStdout()
		switch viper.GetString("output") {
		case "json":
			style.PrintJSON(w, descs)
		case "yaml":
			style.PrintYAML(w, descs)
		default:
			printToolList(w, string(rt.tools.Mode()), descs)
		}
		return nil
	},
}

var toolsShowCmd = &cobra.Command{
	Use:   "show <name>",
	Short: "Show the full schema for one tool",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := buildRuntime(cmd.Context())
		if err != nil {
			style.Error(cmd.OutOrStderr(), fmt.Sprintf("failed to initialize runtime: %v", err))
			return err
		}

		desc, ok := rt.tools.Lookup(args[0])
		if !ok {
			err := fmt.Errorf("tool %q not found (mode: %s)", args[0], rt.tools.Mode())
			style.Error(cmd.OutOrStderr(), err.Error())
			return err
		}

		w := cmd.OutOrStdout()
		switch viper.GetString("output") {
		case "yaml":
			style.PrintYAML(w, desc)
		default:
			style.PrintJSON(w, desc)
		}
		return nil
	},
}

var toolsRefreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Re-discover tools from every configured MCP backend",
	Long: `Re-run discovery against every configured MCP backend and reprint the
resulting tool count. Intended for interactive use against a long-running
serve process's backends before they are next refreshed automatically;
this process's own registry is rebuilt from scratch either way, since the
CLI does not share memory with a running "dael serve" (spec.md §4.5's
atomic-replace guarantee applies within one process, not across them).`,
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := buildRuntime(cmd.Context())
		if err != nil {
			style.Error(cmd.OutOrStderr(), fmt.Sprintf("failed to initialize runtime: %v", err))
			return err
		}
		if err := rt.tools.Refresh(cmd.Context()); err != nil {
			style.Error(cmd.OutOrStderr(), fmt.Sprintf("refresh failed: %v", err))
			return err
		}
		style.Success(cmd.OutOrStdout(), fmt.Sprintf("refreshed: %d tool(s) visible in %s mode", len(rt.tools.List()), rt.tools.Mode()))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(toolsCmd)
	toolsCmd.AddCommand(toolsListCmd)
	toolsCmd.AddCommand(toolsShowCmd)
	toolsCmd.AddCommand(toolsRefreshCmd)
}

func printToolList(w io.Writer, mode string, descs []tooling.Descriptor) {
	if len(descs) == 0 {
		style.Warning(w, fmt.Sprintf("no tools visible (mode: %s)", mode))
		return
	}
	fmt.Fprintf(w, "mode: %s\n\n", mode)
	for _, d := range descs {
		source := string(d.Source)
		if d.BackendID != "" {
			source = fmt.Sprintf("%s:%s", source, d.BackendID)
		}
		fmt.Fprintf(w, "  %s %s %s\n", style.SuccessIcon(), style.FileStyle.Render(d.Name), style.MutedStyle.Render("("+source+")"))
		if d.Description != "" {
			fmt.Fprintf(w, "      %s\n", d.Description)
		}
	}
}
