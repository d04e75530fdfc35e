package relay

import (
	"context"
	"encoding/json"
)

// ToolDefinition is the model-facing declaration of a callable: a tool or
// a hand-off pseudo-tool. Parameters is a JSON schema object.
type ToolDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

// ToolCall is a single model-issued invocation request. Name may address
// a tool or a hand-off; the turn executor classifies it.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// ModelSettings carries per-call tuning knobs. Zero values mean
// "provider default".
type ModelSettings struct {
	Temperature *float64
	TopP        *float64
	MaxTokens   int
}

// OutputSpec is the model-facing declaration of a structured final
// output: providers translate it to their native schema-enforcement
// mechanism. Strict asks the provider to enforce the schema exactly
// rather than treat it as guidance.
type OutputSpec struct {
	Name   string
	Schema json.RawMessage
	Strict bool
}

// ModelRequest is one turn's worth of input to the model capability.
type ModelRequest struct {
	// Instructions is the effective system prompt for this turn, after
	// lazy evaluation of the agent's instructions function.
	Instructions string
	// History is the full transcript presented to the model.
	History []Item
	// Tools declares the agent's tools and its enabled hand-offs.
	Tools []ToolDefinition
	// Output constrains the final output shape when the agent declares
	// an output type; nil means plain text.
	Output *OutputSpec
	// Settings are the agent's model settings.
	Settings ModelSettings
}

// ModelResponse is the model's reply for one turn. Empty ToolCalls means
// Content is the candidate final output; otherwise each call is executed
// or resolved as a hand-off before the next turn.
type ModelResponse struct {
	Content   string
	Reasoning string
	ToolCalls []ToolCall
	Usage     Usage
}

// DeltaKind tags an incremental fragment in a streamed model response.
type DeltaKind string

const (
	// DeltaText is a fragment of the assistant message.
	DeltaText DeltaKind = "text"
	// DeltaReasoning is a fragment of the reasoning summary.
	DeltaReasoning DeltaKind = "reasoning"
	// DeltaToolArguments is a fragment of a tool call's argument JSON.
	DeltaToolArguments DeltaKind = "tool-arguments"
)

// ModelDelta is one incremental fragment of a streamed response. Index
// identifies which response item the fragment belongs to: fragments of
// one item arrive in order, ordering across items is unspecified.
type ModelDelta struct {
	Index int
	Kind  DeltaKind
	Text  string
}

// Model is the language-model capability the run loop drives. The
// toolkit ships no provider adapters; integrators bring an
// implementation and may wrap it with WithRetry or WithRateLimit.
//
// RespondStream writes incremental fragments to ch, closes ch, and then
// returns the complete response: the terminal classification of a turn
// is withheld until the stream ends. Implementations must honor ctx on
// every send.
type Model interface {
	Name() string
	Respond(ctx context.Context, req ModelRequest) (*ModelResponse, error)
	RespondStream(ctx context.Context, req ModelRequest, ch chan<- ModelDelta) (*ModelResponse, error)
}
