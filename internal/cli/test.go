package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/ploston/dael/internal/engine"
	"github.com/ploston/dael/internal/style"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	testInputs    []string
	testInputJSON string
)

// testCmd replaces the teacher's LLM-backed `run` command (internal/cli/run.go)
// with a single, in-memory workflow execution, the deterministic one-shot
// model this execution layer builds on: there is no provider/agent loop to
// run, just Engine.Execute against the loaded configuration.
var testCmd = &cobra.Command{
	Use:   "test <workflow> [flags]",
	Short: "Run a workflow once against the loaded tool registry",
	Long: `Run a single workflow execution in memory and print the resulting
ExecutionResult (spec.md §4.7): per-step status, attempts, duration, and the
workflow's declared outputs.

Examples:
  dael test greet --input name=Ada           # Run "greet" with one input
  dael test greet --input name=Ada --input loud=true
  dael test greet --input-json '{"name":"Ada"}'`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runWorkflowTest(cmd, args[0])
	},
}

func init() {
	rootCmd.AddCommand(testCmd)

	testCmd.Flags().StringArrayVar(&testInputs, "input", nil, "workflow input as key=value (repeatable)")
	testCmd.Flags().StringVar(&testInputJSON, "input-json", "", "workflow inputs as a JSON object")
}

func runWorkflowTest(cmd *cobra.Command, workflowName string) error {
	inputs, err := buildTestInputs()
	if err != nil {
		style.Error(cmd.OutOrStderr(), fmt.Sprintf("invalid inputs: %v", err))
		return err
	}

	rt, err := buildRuntime(cmd.Context())
	if err != nil {
		style.Error(cmd.OutOrStderr(), fmt.Sprintf("failed to initialize runtime: %v", err))
		return err
	}

	sp := style.NewSpinnerManager(cmd.OutOrStderr()).Start()
	sp.SetSuffix(fmt.Sprintf(" running %s...", workflowName))
	result, err := rt.engine.Execute(cmd.Context(), workflowName, inputs)
	sp.SetFinalMSG("")
	sp.Stop()
	if err != nil {
		style.Error(cmd.OutOrStderr(), fmt.Sprintf("execution failed: %v", err))
		return err
	}

	w := cmd.OutOrStdout()
	switch viper.GetString("output") {
	case "json":
		style.PrintJSON(w, result)
	case "yaml":
		style.PrintYAML(w, result)
	default:
		printExecutionSummary(w, result)
	}

	if result.Status == "failed" {
		return fmt.Errorf("workflow %q failed", workflowName)
	}
	return nil
}

// buildTestInputs merges --input key=value pairs with --input-json, with
// --input taking precedence on key collisions since flags read left to
// right on the command line are the more explicit source.
func buildTestInputs() (map[string]interface{}, error) {
	inputs := make(map[string]interface{})

	if testInputJSON != "" {
		if err := parseJSONInto(testInputJSON, &inputs); err != nil {
			return nil, fmt.Errorf("parsing --input-json: %w", err)
		}
	}

	for _, kv := range testInputs {
		key, value, ok := strings.Cut(kv, "=")
		if !ok {
			return nil, fmt.Errorf("--input %q must be in key=value form", kv)
		}
		inputs[key] = coerceInputValue(value)
	}

	return inputs, nil
}

// coerceInputValue converts a raw --input value to bool/number when it
// unambiguously parses as one, since workflow inputs are typed (spec.md
// §4.2) and a CLI flag is always a string otherwise.
func coerceInputValue(raw string) interface{} {
	if b, err := strconv.ParseBool(raw); err == nil {
		return b
	}
	if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return f
	}
	return raw
}

func parseJSONInto(raw string, into *map[string]interface{}) error {
	return json.Unmarshal([]byte(raw), into)
}

// printExecutionSummary renders the same information the JSON/YAML output
// carries, as the text-mode summary: overall status and duration, then one
// line per step.
func printExecutionSummary(w io.Writer, result *engine.ExecutionResult) {
	fmt.Fprintln(w)
	if result.Status == engine.StatusCompleted {
		style.Success(w, fmt.Sprintf("%s completed in %s", result.Workflow, formatDuration(result.DurationMs)))
	} else {
		style.Error(w, fmt.Sprintf("%s failed after %s", result.Workflow, formatDuration(result.DurationMs)))
		if result.Err != nil {
			fmt.Fprintf(w, "  %s\n", result.Err.Error())
		}
	}

	for _, step := range result.Steps {
		icon := style.SuccessIcon()
		if step.Status != "completed" {
			icon = style.ErrorIcon()
		}
		fmt.Fprintf(w, "  %s %s (%s, %d attempt(s), %s)\n", icon, step.StepID, step.Status, step.Attempts, formatDuration(step.DurationMs))
		if step.Error != "" {
			fmt.Fprintf(w, "      %s\n", step.Error)
		}
	}

	if result.Outputs != nil {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "outputs:")
		style.PrintYAML(w, result.Outputs)
	} else if result.Output != nil {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "output:")
		style.PrintYAML(w, result.Output)
	}
}

func formatDuration(ms int64) string {
	return time.Duration(ms * int64(time.Millisecond)).String()
}
