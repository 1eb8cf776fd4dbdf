package toolexec

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/delta-run/delta/internal/agentconfig"
)

// validateArgs checks the LLM-supplied argument payload against a JSON
// Schema derived from def's parameters before binding, so a malformed or
// missing-required-field call is rejected with a schema error instead of
// whatever renderParamValue's type switch happens to report first.
func validateArgs(def *agentconfig.ToolDefinition, args json.RawMessage) error {
	if len(args) == 0 {
		args = json.RawMessage("{}")
	}

	schema, err := compileParameterSchema(def)
	if err != nil {
		return fmt.Errorf("compile schema for tool %q: %w", def.Name, err)
	}

	var decoded any
	if err := json.Unmarshal(args, &decoded); err != nil {
		return fmt.Errorf("decode tool arguments: %w", err)
	}

	if err := schema.Validate(decoded); err != nil {
		return fmt.Errorf("tool %q arguments: %w", def.Name, err)
	}
	return nil
}

var schemaCache sync.Map // map[string]*jsonschema.Schema, keyed by tool name + parameter shape

// compileParameterSchema builds a JSON Schema object with one property per
// parameter (typed string/number/boolean) and a required list matching
// ToolParameter.Required, compiling it once per distinct tool shape.
func compileParameterSchema(def *agentconfig.ToolDefinition) (*jsonschema.Schema, error) {
	key := def.Name + ":" + schemaFingerprint(def)
	if cached, ok := schemaCache.Load(key); ok {
		return cached.(*jsonschema.Schema), nil
	}

	doc := map[string]any{
		"type":                 "object",
		"properties":           map[string]any{},
		"additionalProperties": true,
	}
	properties := doc["properties"].(map[string]any)
	var required []string

	for _, p := range def.Parameters {
		properties[p.Name] = map[string]any{"type": jsonSchemaType(p.Type)}
		if p.Required {
			required = append(required, p.Name)
		}
	}
	if len(required) > 0 {
		doc["required"] = required
	}

	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("marshal generated schema: %w", err)
	}

	resourceName := "tool:" + key + ".json"
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(resourceName, bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	compiled, err := compiler.Compile(resourceName)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}

	schemaCache.Store(key, compiled)
	return compiled, nil
}

func jsonSchemaType(t agentconfig.ParamType) string {
	switch t {
	case agentconfig.ParamString:
		return "string"
	case agentconfig.ParamNumber:
		return "number"
	case agentconfig.ParamBoolean:
		return "boolean"
	default:
		return "string"
	}
}

// schemaFingerprint distinguishes tool shapes sharing a name (there
// shouldn't be any within one agent config, but a fresh process loading a
// different config must not reuse another agent's cached schema).
func schemaFingerprint(def *agentconfig.ToolDefinition) string {
	data, err := json.Marshal(def.Parameters)
	if err != nil {
		return def.Name
	}
	return string(data)
}
