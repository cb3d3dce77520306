package schema

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
)

// Validator checks payloads against a resolved schema.
type Validator struct {
	schema   *jsonschema.Schema
	resolved *jsonschema.Resolved
}

// New resolves s into a Validator.
func New(s *jsonschema.Schema) (*Validator, error) {
	resolved, err := s.Resolve(nil)
	if err != nil {
		return nil, fmt.Errorf("resolve schema: %w", err)
	}

	return &Validator{schema: s, resolved: resolved}, nil
}

// For infers a schema from T and resolves it.
func For[T any]() (*Validator, error) {
	s, err := jsonschema.For[T](nil)
	if err != nil {
		return nil, fmt.Errorf("infer schema: %w", err)
	}

	return New(s)
}

// Schema returns the schema the validator was built from.
func (v *Validator) Schema() *jsonschema.Schema {
	return v.schema
}

// Validate checks a raw JSON payload. An absent payload is validated as null.
func (v *Validator) Validate(raw json.RawMessage) error {
	var instance any

	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &instance); err != nil {
			return fmt.Errorf("payload is not valid JSON: %w", err)
		}
	}

	if err := v.resolved.Validate(instance); err != nil {
		return fmt.Errorf("payload does not match schema: %w", err)
	}

	return nil
}

// SimpleSchema creates an object schema from a simple type map.
//
// Input format: {"a": "float64", "b": "string"}. Every property is required.
func SimpleSchema(props map[string]string) *jsonschema.Schema {
	properties := make(map[string]*jsonschema.Schema, len(props))

	for name, goType := range props {
		properties[name] = goTypeToJSONSchema(goType)
	}

	return &jsonschema.Schema{
		Type:       "object",
		Properties: properties,
		Required:   slices.Sorted(maps.Keys(props)),
	}
}

// goTypeToJSONSchema converts a Go type string to a JSON Schema type.
func goTypeToJSONSchema(goType string) *jsonschema.Schema {
	switch goType {
	case "string":
		return &jsonschema.Schema{Type: "string"}
	case "int", "int8", "int16", "int32", "int64", "uint", "uint8", "uint16", "uint32", "uint64":
		return &jsonschema.Schema{Type: "integer"}
	case "float32", "float64", "float", "number":
		return &jsonschema.Schema{Type: "number"}
	case "bool", "boolean":
		return &jsonschema.Schema{Type: "boolean"}
	case "any", "object", "map[string]any":
		return &jsonschema.Schema{Type: "object"}
	}

	if itemType, ok := strings.CutPrefix(goType, "[]"); ok && itemType != "" {
		return &jsonschema.Schema{
			Type:  "array",
			Items: goTypeToJSONSchema(itemType),
		}
	}

	// Default to string
	return &jsonschema.Schema{Type: "string"}
}
