package relay

import (
	"context"
	"encoding/json"
	"sync"
)

// scriptModel is a test Model that returns canned responses in order.
// RespondStream emits the response content one rune at a time so tests
// can count and interrupt delta events deterministically.
type scriptModel struct {
	name      string
	responses []*ModelResponse

	mu       sync.Mutex
	calls    int
	requests []ModelRequest
}

func (m *scriptModel) Name() string {
	if m.name == "" {
		return "script"
	}
	return m.name
}

func (m *scriptModel) next(req ModelRequest) *ModelResponse {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)
	if m.calls >= len(m.responses) {
		m.calls++
		return &ModelResponse{Content: "script exhausted"}
	}
	resp := m.responses[m.calls]
	m.calls++
	return resp
}

func (m *scriptModel) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// request returns the i'th recorded model request.
func (m *scriptModel) request(i int) ModelRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.requests[i]
}

func (m *scriptModel) Respond(_ context.Context, req ModelRequest) (*ModelResponse, error) {
	return m.next(req), nil
}

func (m *scriptModel) RespondStream(ctx context.Context, req ModelRequest, ch chan<- ModelDelta) (*ModelResponse, error) {
	defer close(ch)
	resp := m.next(req)
	for _, r := range resp.Content {
		select {
		case ch <- ModelDelta{Kind: DeltaText, Text: string(r)}:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return resp, nil
}

// text builds a final-output response.
func text(content string) *ModelResponse {
	return &ModelResponse{Content: content}
}

// calls builds a tool-calling response.
func calls(tc ...ToolCall) *ModelResponse {
	return &ModelResponse{ToolCalls: tc}
}

// call builds one tool call with inline JSON arguments.
func call(id, name, args string) ToolCall {
	tc := ToolCall{ID: id, Name: name}
	if args != "" {
		tc.Arguments = json.RawMessage(args)
	}
	return tc
}

// echoTool returns its "text" argument unchanged.
func echoTool(name string) *FunctionTool {
	type args struct {
		Text string `json:"text"`
	}
	return NewFunctionTool(name, "Echo the input text.",
		func(_ context.Context, _ *RunContext, in args) (any, error) {
			return in.Text, nil
		})
}

// itemTypes summarizes a transcript for order assertions.
func itemTypes(items []Item) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.itemType()
	}
	return out
}
