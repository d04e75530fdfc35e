package relay

import "encoding/json"

// StreamEventType identifies the kind of streaming event.
type StreamEventType string

const (
	// EventAgentUpdated signals which agent is active: once at run start
	// and after every honored hand-off.
	EventAgentUpdated StreamEventType = "agent-updated"
	// EventTextDelta carries an incremental chunk of the assistant message.
	EventTextDelta StreamEventType = "text-delta"
	// EventReasoningDelta carries an incremental chunk of the reasoning
	// summary.
	EventReasoningDelta StreamEventType = "reasoning-delta"
	// EventMessageOutput signals a completed assistant message item.
	EventMessageOutput StreamEventType = "message-output"
	// EventToolCallStart signals a tool is about to be invoked.
	EventToolCallStart StreamEventType = "tool-call-start"
	// EventToolCallResult carries the result of a completed tool call.
	EventToolCallResult StreamEventType = "tool-call-result"
	// EventToolNotification carries a streaming tool's progress event.
	// Notifications are process-visible only and never enter history.
	EventToolNotification StreamEventType = "tool-notification"
	// EventHandoffRequested signals the model asked for a transfer.
	EventHandoffRequested StreamEventType = "handoff-requested"
	// EventHandoffOccurred signals the transfer completed and names the
	// new active agent.
	EventHandoffOccurred StreamEventType = "handoff-occurred"
	// EventRunFinished is the last event of a successful run.
	EventRunFinished StreamEventType = "run-finished"
	// EventRunError is the last event of a failed run.
	EventRunError StreamEventType = "run-error"
)

// StreamEvent is a typed event emitted during a streamed run. Events
// arrive in run order; delta events within one response item are ordered,
// notification ordering across parallel tool calls is not.
type StreamEvent struct {
	// Type identifies the event kind.
	Type StreamEventType `json:"type"`
	// Agent is the active agent's name.
	Agent string `json:"agent,omitempty"`
	// Name is the tool, hand-off, or guardrail involved, if any.
	Name string `json:"name,omitempty"`
	// Content carries the delta text, tool output, notification text, or
	// error message, depending on Type.
	Content string `json:"content,omitempty"`
	// Args carries tool-call arguments (tool-call-start, handoff-requested).
	Args json.RawMessage `json:"args,omitempty"`
	// Delta marks a tool notification as an incremental fragment.
	Delta bool `json:"delta,omitempty"`
	// Item is the completed conversation item for item-level events.
	Item Item `json:"-"`
}
