package observer

import (
	"context"
	"errors"
	"testing"

	"github.com/nevindra/relay"
)

// ---------------------------------------------------------------------------
// Mock implementations
// ---------------------------------------------------------------------------

// mockModel for observer tests.
type mockModel struct {
	name string
	resp *relay.ModelResponse
	err  error
}

func (m *mockModel) Name() string { return m.name }

func (m *mockModel) Respond(_ context.Context, _ relay.ModelRequest) (*relay.ModelResponse, error) {
	return m.resp, m.err
}

func (m *mockModel) RespondStream(_ context.Context, _ relay.ModelRequest, ch chan<- relay.ModelDelta) (*relay.ModelResponse, error) {
	ch <- relay.ModelDelta{Kind: relay.DeltaText, Text: "hello"}
	ch <- relay.ModelDelta{Kind: relay.DeltaText, Text: " world"}
	close(ch)
	return m.resp, m.err
}

// testInstruments creates a no-op Instruments using the global OTEL providers
// (which are no-ops by default). This is safe for testing delegation behavior
// without any real OTEL backend.
func testInstruments(t *testing.T) *Instruments {
	t.Helper()
	inst, err := newInstruments(nil)
	if err != nil {
		t.Fatalf("newInstruments: %v", err)
	}
	return inst
}

// ---------------------------------------------------------------------------
// ObservedModel tests
// ---------------------------------------------------------------------------

func TestObservedModelName(t *testing.T) {
	inner := &mockModel{name: "test-model"}
	om := WrapModel(inner, testInstruments(t))

	got := om.Name()
	if got != "test-model" {
		t.Errorf("Name() = %q, want %q", got, "test-model")
	}
}

func TestObservedModelRespond(t *testing.T) {
	want := &relay.ModelResponse{
		Content: "hello from the model",
		Usage:   relay.Usage{InputTokens: 10, OutputTokens: 5},
	}
	inner := &mockModel{name: "m", resp: want}
	om := WrapModel(inner, testInstruments(t))

	got, err := om.Respond(context.Background(), relay.ModelRequest{})
	if err != nil {
		t.Fatalf("Respond returned unexpected error: %v", err)
	}
	if got.Content != want.Content {
		t.Errorf("Content = %q, want %q", got.Content, want.Content)
	}
	if got.Usage != want.Usage {
		t.Errorf("Usage = %+v, want %+v", got.Usage, want.Usage)
	}
}

func TestObservedModelRespondError(t *testing.T) {
	wantErr := errors.New("model unavailable")
	inner := &mockModel{name: "m", err: wantErr}
	om := WrapModel(inner, testInstruments(t))

	_, err := om.Respond(context.Background(), relay.ModelRequest{})
	if !errors.Is(err, wantErr) {
		t.Errorf("Respond error = %v, want %v", err, wantErr)
	}
}

func TestObservedModelRespondWithTools(t *testing.T) {
	want := &relay.ModelResponse{
		ToolCalls: []relay.ToolCall{{ID: "call-1", Name: "search"}},
		Usage:     relay.Usage{InputTokens: 20, OutputTokens: 15},
	}
	inner := &mockModel{name: "m", resp: want}
	om := WrapModel(inner, testInstruments(t))

	req := relay.ModelRequest{
		Tools: []relay.ToolDefinition{{Name: "search", Description: "search things"}},
	}
	got, err := om.Respond(context.Background(), req)
	if err != nil {
		t.Fatalf("Respond returned unexpected error: %v", err)
	}
	if len(got.ToolCalls) != 1 {
		t.Fatalf("ToolCalls length = %d, want 1", len(got.ToolCalls))
	}
	if got.ToolCalls[0].Name != "search" {
		t.Errorf("ToolCalls[0].Name = %q, want %q", got.ToolCalls[0].Name, "search")
	}
}

func TestObservedModelRespondStream(t *testing.T) {
	want := &relay.ModelResponse{
		Content: "hello world",
		Usage:   relay.Usage{InputTokens: 8, OutputTokens: 2},
	}
	inner := &mockModel{name: "m", resp: want}
	om := WrapModel(inner, testInstruments(t))

	ch := make(chan relay.ModelDelta, 10)
	got, err := om.RespondStream(context.Background(), relay.ModelRequest{}, ch)
	if err != nil {
		t.Fatalf("RespondStream returned unexpected error: %v", err)
	}

	// The wrapper's goroutine forwards deltas from the inner wrappedCh to
	// our ch and closes our ch when done. Collect them all.
	var texts []string
	for d := range ch {
		texts = append(texts, d.Text)
	}

	if len(texts) != 2 {
		t.Fatalf("received %d deltas, want 2", len(texts))
	}
	if texts[0] != "hello" || texts[1] != " world" {
		t.Errorf("deltas = %v, want [hello, ' world']", texts)
	}
	if got.Content != want.Content {
		t.Errorf("Content = %q, want %q", got.Content, want.Content)
	}
	if got.Usage != want.Usage {
		t.Errorf("Usage = %+v, want %+v", got.Usage, want.Usage)
	}
}

// ---------------------------------------------------------------------------
// Hooks tests
// ---------------------------------------------------------------------------

func TestHooksNeverFail(t *testing.T) {
	hooks := Hooks(testInstruments(t))
	ctx := context.Background()
	rc := &relay.RunContext{}
	agent := relay.New("Triage")
	target := relay.New("Math")
	tool := relay.NewFunctionTool("noop", "does nothing", func(_ context.Context, _ *relay.RunContext, _ struct{}) (any, error) {
		return "", nil
	})

	if err := hooks.OnAgentStart(ctx, rc, agent); err != nil {
		t.Errorf("OnAgentStart: %v", err)
	}
	if err := hooks.OnHandoff(ctx, rc, agent, target); err != nil {
		t.Errorf("OnHandoff: %v", err)
	}
	if err := hooks.OnToolEnd(ctx, rc, agent, tool, "output"); err != nil {
		t.Errorf("OnToolEnd: %v", err)
	}
	if err := hooks.OnAgentEnd(ctx, rc, agent, "final"); err != nil {
		t.Errorf("OnAgentEnd: %v", err)
	}
}
