package agent

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/invopop/jsonschema"
)

// SchemaFromStruct reflects a Go struct type into the ToolSchema's
// Parameters list, so a Tool implementation can derive Schema() from its
// argument struct's `json`/`jsonschema` tags instead of hand-listing
// ParameterDef entries. Grounded on the teacher's
// pkg/tool/functiontool.generateSchema[T], generalized from "return a raw
// JSON-schema map for an LLM's tool-calling API" down to the core's
// structured ParameterDef shape.
//
// Supported jsonschema tags mirror the teacher's: "required",
// "description=...", "default=...".
func SchemaFromStruct[T any](name, description string) (ToolSchema, error) {
	reflector := &jsonschema.Reflector{
		RequiredFromJSONSchemaTags: true,
		ExpandedStruct:             true,
		DoNotReference:             true,
	}

	schema := reflector.Reflect(new(T))

	data, err := json.Marshal(schema)
	if err != nil {
		return ToolSchema{}, fmt.Errorf("agent: marshal reflected schema: %w", err)
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return ToolSchema{}, fmt.Errorf("agent: unmarshal reflected schema: %w", err)
	}

	required := map[string]bool{}
	if reqList, ok := raw["required"].([]any); ok {
		for _, r := range reqList {
			if s, ok := r.(string); ok {
				required[s] = true
			}
		}
	}

	props, _ := raw["properties"].(map[string]any)
	names := make([]string, 0, len(props))
	for n := range props {
		names = append(names, n)
	}
	sort.Strings(names)

	params := make([]ParameterDef, 0, len(names))
	for _, n := range names {
		p, _ := props[n].(map[string]any)
		def := ParameterDef{
			Name:     n,
			Required: required[n],
		}
		if t, ok := p["type"].(string); ok {
			def.Type = t
		}
		if d, ok := p["description"].(string); ok {
			def.Description = d
		}
		if dv, ok := p["default"]; ok {
			def.Default = dv
		}
		params = append(params, def)
	}

	return ToolSchema{
		Name:        name,
		Description: description,
		Parameters:  params,
	}, nil
}
