package relay

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
	"github.com/stoewer/go-strcase"
)

// emptyObjectSchema declares a callable that takes no arguments.
var emptyObjectSchema = json.RawMessage(`{"type":"object","properties":{},"additionalProperties":false}`)

// reflectSchema derives a JSON schema for v's type. Field names become
// snake_case; fields without an omitempty tag are required; additional
// properties are rejected.
func reflectSchema(v any) (schema json.RawMessage, err error) {
	// With ExpandedStruct set the reflector resolves the root by type
	// name, and panics on unnamed struct types. Surface that as an
	// error so callers fall back to the empty-object schema.
	defer func() {
		if r := recover(); r != nil {
			schema, err = nil, fmt.Errorf("reflect schema for %T: %v", v, r)
		}
	}()
	r := &jsonschema.Reflector{
		Anonymous:      true,
		DoNotReference: true,
		ExpandedStruct: true,
		KeyNamer:       strcase.SnakeCase,
	}
	s := r.Reflect(v)
	if s == nil {
		return nil, fmt.Errorf("reflect schema: unsupported type %T", v)
	}
	b, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	return b, nil
}

// SchemaValidator validates raw call arguments against a parameter schema
// before a tool handler runs. Validation failures surface as
// *ErrModelBehavior: the model, not the integrator, produced the bad input.
type SchemaValidator interface {
	Validate(schema, raw json.RawMessage) (json.RawMessage, error)
}

// strictValidator is the default SchemaValidator: arguments must be a JSON
// object, every required property must be present, and unknown properties
// are rejected unless the schema allows additional ones.
type strictValidator struct{}

func (strictValidator) Validate(schema, raw json.RawMessage) (json.RawMessage, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		raw = json.RawMessage(`{}`)
	}
	var args map[string]json.RawMessage
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, fmt.Errorf("arguments are not a JSON object: %w", err)
	}
	if len(schema) == 0 {
		return raw, nil
	}

	var s struct {
		Required             []string                   `json:"required"`
		Properties           map[string]json.RawMessage `json:"properties"`
		AdditionalProperties json.RawMessage            `json:"additionalProperties"`
	}
	if err := json.Unmarshal(schema, &s); err != nil {
		return nil, fmt.Errorf("invalid parameter schema: %w", err)
	}

	for _, key := range s.Required {
		if _, ok := args[key]; !ok {
			return nil, fmt.Errorf("missing required argument %q", key)
		}
	}
	if s.Properties != nil && !allowsAdditional(s.AdditionalProperties) {
		for key := range args {
			if _, ok := s.Properties[key]; !ok {
				return nil, fmt.Errorf("unknown argument %q", key)
			}
		}
	}
	return raw, nil
}

func allowsAdditional(v json.RawMessage) bool {
	t := string(bytes.TrimSpace(v))
	return t != "" && t != "false"
}
