package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/ploston/dael/internal/workflow"
	"github.com/spf13/cobra"
)

// SchemaOutput is the combined dump of the workflow DSL's JSON Schema and
// the tools currently reachable through the configured registry,
// repurposed from the teacher's DSL-schema-plus-model-catalog dump
// (internal/cli/schema.go) to DAEL's DSL-schema-plus-tool-catalog: there
// is no LLM provider/model catalog in a tool-calling execution layer, so
// ToolCatalog takes the model-provider list's place.
type SchemaOutput struct {
	Schema      json.RawMessage `json:"schema"`
	ToolCatalog []ToolSummary   `json:"tool_catalog"`
}

// ToolSummary is one entry of the tool catalog: enough to write a workflow
// step against the tool without re-reading the registry's full schema.
type ToolSummary struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Source      string      `json:"source"`
	Schema      interface{} `json:"schema,omitempty"`
}

// schemaCmd represents the schema command
var schemaCmd = &cobra.Command{
	Use:    "schema",
	Short:  "Output the workflow JSON schema and the current tool catalog",
	Long:   `Output the workflow DSL's JSON Schema alongside the tool catalog built from the loaded configuration (builtins, workflows, and configured MCP backends).`,
	Hidden: true,
	Run: func(cmd *cobra.Command, args []string) {
		schemaBytes, err := json.Marshal(workflow.JSONSchema())
		if err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "error generating schema: %v\n", err)
			os.Exit(1)
		}

		var catalog []ToolSummary
		rt, err := buildRuntime(cmd.Context())
		if err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "warning: could not build runtime to list tools: %v\n", err)
		} else {
			for _, desc := range rt.tools.List() {
				catalog = append(catalog, ToolSummary{
					Name:        desc.Name,
					Description: desc.Description,
					Source:      string(desc.Source),
					Schema:      desc.Schema,
				})
			}
		}

		output := SchemaOutput{
			Schema:      schemaBytes,
			ToolCatalog: catalog,
		}

		outputBytes, err := json.MarshalIndent(output, "", "  ")
		if err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "error marshaling output: %v\n", err)
			os.Exit(1)
		}

		fmt.Fprintln(cmd.OutOrStdout(), string(outputBytes))
	},
}

func init() {
	rootCmd.AddCommand(schemaCmd)
}
