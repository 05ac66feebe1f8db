package mcpserver

import (
	"encoding/json"

	"github.com/google/jsonschema-go/jsonschema"
)

// buildInputSchema unmarshals a discovered tool's raw input schema and
// strips hideParameters from its top-level properties/required list
// (spec.md §4.A hideParameters, §4.H "parameters stripped per
// hideParameters"). Nested schemas are left untouched: hideParameters
// names top-level argument keys only.
func buildInputSchema(raw json.RawMessage, hide []string) (*jsonschema.Schema, error) {
	if len(raw) == 0 {
		return nil, nil
	}

	var schema jsonschema.Schema
	if err := json.Unmarshal(raw, &schema); err != nil {
		return nil, err
	}
	if len(hide) == 0 {
		return &schema, nil
	}

	hidden := make(map[string]struct{}, len(hide))
	for _, h := range hide {
		hidden[h] = struct{}{}
	}

	if schema.Properties != nil {
		for name := range hidden {
			delete(schema.Properties, name)
		}
	}
	if len(schema.Required) > 0 {
		filtered := make([]string, 0, len(schema.Required))
		for _, name := range schema.Required {
			if _, ok := hidden[name]; !ok {
				filtered = append(filtered, name)
			}
		}
		schema.Required = filtered
	}

	return &schema, nil
}
