package relay

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Item is one entry in a run's conversation history. The concrete types
// form a closed set so the turn executor can classify a transcript with
// an exhaustive type switch:
//
//	UserMessage, AssistantMessage, ReasoningItem,
//	ToolCallItem, ToolOutputItem, HandoffCallItem, HandoffOutputItem.
//
// Items are append-only within a run and persisted to a Session between
// runs via MarshalItem/UnmarshalItem.
type Item interface {
	itemType() string
}

// UserMessage is input text supplied by the caller.
type UserMessage struct {
	Content string `json:"content"`
}

// AssistantMessage is text produced by the model. A turn whose response
// carries no tool calls ends with one of these as the final output.
type AssistantMessage struct {
	Content string `json:"content"`
}

// ReasoningItem records a model's reasoning summary for a turn.
type ReasoningItem struct {
	Content string `json:"content"`
}

// ToolCallItem records a model-issued request addressed to a tool.
type ToolCallItem struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// ToolOutputItem records a completed tool call's result. Output ordering
// in history follows the order calls were requested, not completion order.
type ToolOutputItem struct {
	CallID string `json:"call_id"`
	Name   string `json:"name"`
	Output string `json:"output"`
}

// HandoffCallItem records a model-issued request addressed to a hand-off.
type HandoffCallItem struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// HandoffOutputItem records a completed transfer of active-agent status.
// Output holds the transfer acknowledgement payload sent back to the
// model, `{"assistant":"<target>"}`.
type HandoffOutputItem struct {
	CallID      string `json:"call_id"`
	SourceAgent string `json:"source_agent"`
	TargetAgent string `json:"target_agent"`
	Output      string `json:"output"`
}

func (UserMessage) itemType() string       { return "user_message" }
func (AssistantMessage) itemType() string  { return "assistant_message" }
func (ReasoningItem) itemType() string     { return "reasoning" }
func (ToolCallItem) itemType() string      { return "tool_call" }
func (ToolOutputItem) itemType() string    { return "tool_output" }
func (HandoffCallItem) itemType() string   { return "handoff_call" }
func (HandoffOutputItem) itemType() string { return "handoff_output" }

// --- serialization ---

type itemEnvelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// MarshalItem encodes an item as a type-tagged JSON envelope.
func MarshalItem(it Item) ([]byte, error) {
	data, err := json.Marshal(it)
	if err != nil {
		return nil, fmt.Errorf("marshal %s item: %w", it.itemType(), err)
	}
	return json.Marshal(itemEnvelope{Type: it.itemType(), Data: data})
}

// UnmarshalItem decodes a type-tagged JSON envelope produced by MarshalItem.
func UnmarshalItem(b []byte) (Item, error) {
	var env itemEnvelope
	if err := json.Unmarshal(b, &env); err != nil {
		return nil, fmt.Errorf("unmarshal item envelope: %w", err)
	}
	var it Item
	switch env.Type {
	case "user_message":
		it = &UserMessage{}
	case "assistant_message":
		it = &AssistantMessage{}
	case "reasoning":
		it = &ReasoningItem{}
	case "tool_call":
		it = &ToolCallItem{}
	case "tool_output":
		it = &ToolOutputItem{}
	case "handoff_call":
		it = &HandoffCallItem{}
	case "handoff_output":
		it = &HandoffOutputItem{}
	default:
		return nil, fmt.Errorf("unknown item type %q", env.Type)
	}
	if err := json.Unmarshal(env.Data, it); err != nil {
		return nil, fmt.Errorf("unmarshal %s item: %w", env.Type, err)
	}
	return deref(it), nil
}

// deref converts the pointer used for decoding back to the value form
// items are handled in everywhere else.
func deref(it Item) Item {
	switch v := it.(type) {
	case *UserMessage:
		return *v
	case *AssistantMessage:
		return *v
	case *ReasoningItem:
		return *v
	case *ToolCallItem:
		return *v
	case *ToolOutputItem:
		return *v
	case *HandoffCallItem:
		return *v
	case *HandoffOutputItem:
		return *v
	}
	return it
}

// --- helpers ---

// ItemsText concatenates the text of all assistant messages in items,
// separated by newlines. Useful for presenting a transcript's visible
// output without tool plumbing.
func ItemsText(items []Item) string {
	var parts []string
	for _, it := range items {
		if m, ok := it.(AssistantMessage); ok && m.Content != "" {
			parts = append(parts, m.Content)
		}
	}
	return strings.Join(parts, "\n")
}

// cloneItems returns a fresh slice over the same items, with raw argument
// bytes copied so a snapshot cannot be mutated through the original.
func cloneItems(items []Item) []Item {
	out := make([]Item, len(items))
	for i, it := range items {
		switch v := it.(type) {
		case ToolCallItem:
			v.Arguments = append(json.RawMessage(nil), v.Arguments...)
			out[i] = v
		case HandoffCallItem:
			v.Arguments = append(json.RawMessage(nil), v.Arguments...)
			out[i] = v
		default:
			out[i] = it
		}
	}
	return out
}
