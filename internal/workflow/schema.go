package workflow

import "github.com/invopop/jsonschema"

// JSONSchema returns the JSON Schema for the workflow YAML document shape,
// reflected off the Workflow struct tree, for the CLI's `schema` command
// and editor tooling.
func JSONSchema() *jsonschema.Schema {
	reflector := &jsonschema.Reflector{
		ExpandedStruct: true,
		DoNotReference: true,
	}
	return reflector.Reflect(&Workflow{})
}
