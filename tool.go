package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
)

// Tool is a capability an agent can invoke mid-turn. Implementations form
// a closed set dispatched exhaustively by the tool invoker: FunctionTool,
// StreamingTool, ComputerTool, and HostedTool. Names must be unique
// within an agent's combined tool and hand-off set.
type Tool interface {
	Name() string
	Description() string
	ParamsSchema() json.RawMessage
}

// FunctionTool wraps a plain handler. Arguments are validated against the
// parameter schema and decoded before the handler runs; the return value
// becomes the tool-output item appended to history.
type FunctionTool struct {
	name        string
	description string
	schema      json.RawMessage
	noResult    bool
	invoke      func(ctx context.Context, rc *RunContext, args json.RawMessage) (any, error)
}

// FunctionToolOption configures a FunctionTool.
type FunctionToolOption func(*FunctionTool)

// WithSchema overrides the reflected parameter schema.
func WithSchema(schema json.RawMessage) FunctionToolOption {
	return func(t *FunctionTool) { t.schema = schema }
}

// WithNoResult declares that the tool produces no output. A handler that
// returns a non-empty value anyway is reported as *ErrUser at invocation:
// the declaration and the implementation disagree.
func WithNoResult() FunctionToolOption {
	return func(t *FunctionTool) { t.noResult = true }
}

// NewFunctionTool builds a function tool from a typed handler. The
// parameter schema is reflected from I (snake_case keys, non-omitempty
// fields required) unless WithSchema overrides it. A handler returning
// (nil, nil) yields an empty tool output.
func NewFunctionTool[I any](name, description string, fn func(ctx context.Context, rc *RunContext, input I) (any, error), opts ...FunctionToolOption) *FunctionTool {
	t := &FunctionTool{
		name:        name,
		description: description,
		invoke: func(ctx context.Context, rc *RunContext, args json.RawMessage) (any, error) {
			var input I
			if len(bytes.TrimSpace(args)) > 0 {
				if err := json.Unmarshal(args, &input); err != nil {
					return nil, &ErrModelBehavior{Message: fmt.Sprintf("tool %s: cannot decode arguments: %v", name, err)}
				}
			}
			return fn(ctx, rc, input)
		},
	}
	var zero I
	if schema, err := reflectSchema(&zero); err == nil {
		t.schema = schema
	} else {
		t.schema = emptyObjectSchema
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// NewRawFunctionTool builds a function tool whose handler receives the
// validated argument JSON as-is. Useful when the schema is hand-written.
func NewRawFunctionTool(name, description string, schema json.RawMessage, fn func(ctx context.Context, rc *RunContext, args json.RawMessage) (any, error), opts ...FunctionToolOption) *FunctionTool {
	t := &FunctionTool{
		name:        name,
		description: description,
		schema:      schema,
		invoke:      fn,
	}
	if len(t.schema) == 0 {
		t.schema = emptyObjectSchema
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *FunctionTool) Name() string                 { return t.name }
func (t *FunctionTool) Description() string          { return t.description }
func (t *FunctionTool) ParamsSchema() json.RawMessage { return t.schema }

// HostedTool declares a capability executed by the model provider itself
// (a built-in search or retrieval surface). It is declaration-only: the
// invoker never runs it, and a model that addresses a call to one is
// violating the contract.
type HostedTool struct {
	name        string
	description string
	config      json.RawMessage
}

// NewHostedTool declares a provider-executed tool. config is an opaque
// provider payload forwarded with the declaration.
func NewHostedTool(name, description string, config json.RawMessage) *HostedTool {
	return &HostedTool{name: name, description: description, config: config}
}

func (t *HostedTool) Name() string                 { return t.name }
func (t *HostedTool) Description() string          { return t.description }
func (t *HostedTool) ParamsSchema() json.RawMessage { return t.config }

// stringifyToolOutput renders a handler return value as the tool-output
// text entering history. Strings pass through; everything else is JSON.
func stringifyToolOutput(v any) (string, error) {
	switch out := v.(type) {
	case nil:
		return "", nil
	case string:
		return out, nil
	case []byte:
		return string(out), nil
	case json.RawMessage:
		return string(out), nil
	default:
		b, err := json.Marshal(out)
		if err != nil {
			return "", fmt.Errorf("encode tool output: %w", err)
		}
		return string(b), nil
	}
}
