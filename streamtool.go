package relay

import (
	"context"
	"encoding/json"
)

// ToolStreamKind tags an element of a streaming tool's output sequence.
type ToolStreamKind int

const (
	// ToolStreamNotification is a process-visible progress event. It is
	// surfaced to live subscribers and never enters conversation history.
	ToolStreamNotification ToolStreamKind = iota
	// ToolStreamTerminal is the tool's result. Exactly one is required
	// per invocation; it becomes the tool-output item in history.
	ToolStreamTerminal
)

// ToolStreamItem is one element of a streaming tool's output sequence:
// zero or more notifications followed by exactly one terminal. The
// invoker enforces the terminal count; producers that emit none, or more
// than one, are misconfigured (*ErrUser).
type ToolStreamItem struct {
	Kind ToolStreamKind
	Text string
	// Delta marks a notification as an incremental fragment of a larger
	// message rather than a standalone event.
	Delta bool
}

// Notification builds a standalone progress event.
func Notification(text string) ToolStreamItem {
	return ToolStreamItem{Kind: ToolStreamNotification, Text: text}
}

// NotificationDelta builds an incremental progress fragment.
func NotificationDelta(text string) ToolStreamItem {
	return ToolStreamItem{Kind: ToolStreamNotification, Text: text, Delta: true}
}

// Terminal builds the sequence's final element.
func Terminal(text string) ToolStreamItem {
	return ToolStreamItem{Kind: ToolStreamTerminal, Text: text}
}

// StreamingFunc produces a streaming tool's output sequence. The sequence
// is finite, single-pass, and not restartable. Sends must go through
// EmitToolStream (or an equivalent ctx-aware select) so a cancelled run
// does not strand the producer; the runner closes out after the producer
// returns.
type StreamingFunc func(ctx context.Context, rc *RunContext, args json.RawMessage, out chan<- ToolStreamItem) error

// StreamingTool is a tool whose execution emits incremental notifications
// before its result. Consumption is pull-paced: out is unbuffered, so the
// producer suspends between elements until the invoker takes the next one.
type StreamingTool struct {
	name        string
	description string
	schema      json.RawMessage
	run         StreamingFunc
}

// NewStreamingTool builds a streaming tool. A nil schema declares a
// no-argument tool.
func NewStreamingTool(name, description string, schema json.RawMessage, run StreamingFunc) *StreamingTool {
	if len(schema) == 0 {
		schema = emptyObjectSchema
	}
	return &StreamingTool{name: name, description: description, schema: schema, run: run}
}

func (t *StreamingTool) Name() string                 { return t.name }
func (t *StreamingTool) Description() string          { return t.description }
func (t *StreamingTool) ParamsSchema() json.RawMessage { return t.schema }

// EmitToolStream sends one element of a streaming tool's sequence,
// honoring cancellation between elements.
func EmitToolStream(ctx context.Context, out chan<- ToolStreamItem, item ToolStreamItem) error {
	select {
	case out <- item:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
