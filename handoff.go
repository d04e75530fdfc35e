package relay

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/stoewer/go-strcase"
)

// Handoff is a declared transfer target: when the model calls the
// hand-off's pseudo-tool, active-agent status moves to the target agent.
// Targets are plain references resolved one hop at a time, so agent
// graphs may contain cycles without being materialized.
type Handoff struct {
	agent           *Agent
	toolName        string
	toolDescription string
	inputSchema     json.RawMessage
	onHandoff       func(ctx context.Context, rc *RunContext, input json.RawMessage) error
	inputFilter     InputFilter
	enabled         func(ctx context.Context, rc *RunContext) bool
}

// InputFilter restructures the transcript forwarded to a hand-off target.
// It must be pure: the returned data replaces the model-facing transcript,
// while the run's audit items stay untouched.
type InputFilter func(HandoffInputData) HandoffInputData

// HandoffInputData is the transcript as seen at the moment of transfer.
type HandoffInputData struct {
	// InputHistory is what the run started from: session items plus the
	// original input.
	InputHistory []Item
	// PreHandoffItems are the items generated before the current turn.
	PreHandoffItems []Item
	// NewItems are the current turn's items, including the hand-off call
	// and any tool outputs produced alongside it.
	NewItems []Item
}

// RemoveAllTools is a built-in InputFilter that strips tool and hand-off
// plumbing from the forwarded transcript, leaving only messages.
func RemoveAllTools(d HandoffInputData) HandoffInputData {
	return HandoffInputData{
		InputHistory:    removeToolItems(d.InputHistory),
		PreHandoffItems: removeToolItems(d.PreHandoffItems),
		NewItems:        removeToolItems(d.NewItems),
	}
}

func removeToolItems(items []Item) []Item {
	out := make([]Item, 0, len(items))
	for _, it := range items {
		switch it.(type) {
		case ToolCallItem, ToolOutputItem, HandoffCallItem, HandoffOutputItem:
			continue
		default:
			out = append(out, it)
		}
	}
	return out
}

// HandoffOption configures a Handoff.
type HandoffOption func(*Handoff)

// WithHandoffToolName overrides the default pseudo-tool name
// transfer_to_<agent_name>.
func WithHandoffToolName(name string) HandoffOption {
	return func(h *Handoff) { h.toolName = name }
}

// WithHandoffDescription overrides the default pseudo-tool description.
func WithHandoffDescription(description string) HandoffOption {
	return func(h *Handoff) { h.toolDescription = description }
}

// WithHandoffInputSchema declares a structured payload the model must
// supply when requesting this hand-off. The payload is validated before
// OnHandoff runs.
func WithHandoffInputSchema(schema json.RawMessage) HandoffOption {
	return func(h *Handoff) { h.inputSchema = schema }
}

// WithOnHandoff registers a callback invoked when the hand-off is
// honored, receiving the validated input payload.
func WithOnHandoff(fn func(ctx context.Context, rc *RunContext, input json.RawMessage) error) HandoffOption {
	return func(h *Handoff) { h.onHandoff = fn }
}

// WithInputFilter restructures the transcript forwarded to the target.
// Absent, the transcript is forwarded unchanged.
func WithInputFilter(filter InputFilter) HandoffOption {
	return func(h *Handoff) { h.inputFilter = filter }
}

// WithHandoffEnabled gates whether the hand-off is declared to the model
// for a given turn. A disabled hand-off is invisible, not an error.
func WithHandoffEnabled(fn func(ctx context.Context, rc *RunContext) bool) HandoffOption {
	return func(h *Handoff) { h.enabled = fn }
}

// NewHandoff declares agent as a transfer target.
func NewHandoff(agent *Agent, opts ...HandoffOption) *Handoff {
	h := &Handoff{agent: agent}
	for _, opt := range opts {
		opt(h)
	}
	if h.toolName == "" {
		h.toolName = DefaultHandoffToolName(agent)
	}
	if h.toolDescription == "" {
		h.toolDescription = DefaultHandoffToolDescription(agent)
	}
	return h
}

// DefaultHandoffToolName is transfer_to_<snake_case_agent_name>.
func DefaultHandoffToolName(agent *Agent) string {
	return "transfer_to_" + strcase.SnakeCase(agent.Name())
}

// DefaultHandoffToolDescription describes the transfer to the model.
func DefaultHandoffToolDescription(agent *Agent) string {
	return fmt.Sprintf("Handoff to the %s agent to handle the request.", agent.Name())
}

// Agent returns the transfer target.
func (h *Handoff) Agent() *Agent { return h.agent }

// ToolName returns the pseudo-tool name the model calls.
func (h *Handoff) ToolName() string { return h.toolName }

func (h *Handoff) handoffTarget() *Handoff { return h }

func (h *Handoff) isEnabled(ctx context.Context, rc *RunContext) bool {
	if h.enabled == nil {
		return true
	}
	return h.enabled(ctx, rc)
}

func (h *Handoff) definition() ToolDefinition {
	schema := h.inputSchema
	if len(schema) == 0 {
		schema = emptyObjectSchema
	}
	return ToolDefinition{
		Name:        h.toolName,
		Description: h.toolDescription,
		Parameters:  schema,
	}
}

// transferMessage is the acknowledgement payload recorded in the
// hand-off output item.
func transferMessage(target *Agent) string {
	b, _ := json.Marshal(map[string]string{"assistant": target.Name()})
	return string(b)
}

// HandoffTarget is anything WithHandoffs accepts: a *Handoff, or a plain
// *Agent which gets default transfer settings.
type HandoffTarget interface {
	handoffTarget() *Handoff
}
