package relay

import (
	"context"
	"errors"
	"sync"
	"testing"
)

func TestRunNoToolsSingleTurn(t *testing.T) {
	model := &scriptModel{responses: []*ModelResponse{
		{Content: "Hello! I'm your assistant.", Usage: Usage{InputTokens: 12, OutputTokens: 7, TotalTokens: 19}},
	}}
	agent := New("greeter",
		WithInstructions("You are a friendly greeter."),
		WithModel(model),
	)

	res, err := NewRunner().Run(context.Background(), agent, Text("Hi there"))
	if err != nil {
		t.Fatal(err)
	}
	if got := res.FinalOutputText(); got != "Hello! I'm your assistant." {
		t.Errorf("FinalOutputText() = %q, want %q", got, "Hello! I'm your assistant.")
	}
	// An agent with no tools and no hand-offs always terminates in one turn.
	if model.callCount() != 1 {
		t.Errorf("model calls = %d, want 1", model.callCount())
	}
	if res.Usage.Requests != 1 {
		t.Errorf("Usage.Requests = %d, want 1", res.Usage.Requests)
	}
	if res.Usage.TotalTokens != 19 {
		t.Errorf("Usage.TotalTokens = %d, want 19", res.Usage.TotalTokens)
	}
	if res.LastAgent != agent {
		t.Errorf("LastAgent = %v, want the starting agent", res.LastAgent)
	}
	if got := model.request(0).Instructions; got != "You are a friendly greeter." {
		t.Errorf("Instructions = %q, want the agent's instructions", got)
	}
}

func TestRunNilAgent(t *testing.T) {
	_, err := NewRunner().Run(context.Background(), nil, Text("hi"))
	var ue *ErrUser
	if !errors.As(err, &ue) {
		t.Fatalf("err = %v, want *ErrUser", err)
	}
}

func TestRunNoModel(t *testing.T) {
	agent := New("orphan")
	_, err := NewRunner().Run(context.Background(), agent, Text("hi"))
	var ue *ErrUser
	if !errors.As(err, &ue) {
		t.Fatalf("err = %v, want *ErrUser", err)
	}
}

func TestRunnerDefaultModel(t *testing.T) {
	model := &scriptModel{responses: []*ModelResponse{text("ok")}}
	runner := NewRunner(WithDefaultModel(model))
	res, err := runner.Run(context.Background(), New("plain"), Text("hi"))
	if err != nil {
		t.Fatal(err)
	}
	if res.FinalOutputText() != "ok" {
		t.Errorf("FinalOutputText() = %q, want %q", res.FinalOutputText(), "ok")
	}
}

type weather struct {
	City     string `json:"city"`
	Forecast string `json:"forecast"`
}

func TestRunStructuredOutput(t *testing.T) {
	model := &scriptModel{responses: []*ModelResponse{
		text(`{"city":"Jakarta","forecast":"sunny"}`),
	}}
	agent := New("forecaster",
		WithModel(model),
		WithOutputType(OutputTypeFor[weather]("weather")),
	)

	res, err := NewRunner().Run(context.Background(), agent, Text("Weather in Jakarta?"))
	if err != nil {
		t.Fatal(err)
	}
	out, err := FinalOutputAs[weather](res)
	if err != nil {
		t.Fatal(err)
	}
	if out.City != "Jakarta" || out.Forecast != "sunny" {
		t.Errorf("FinalOutput = %+v, want Jakarta/sunny", out)
	}
	if req := model.request(0); req.Output == nil || req.Output.Name != "weather" {
		t.Errorf("model request Output = %+v, want the declared output spec", model.request(0).Output)
	}
}

func TestRunStructuredOutputParseFailure(t *testing.T) {
	model := &scriptModel{responses: []*ModelResponse{text("not json at all")}}
	agent := New("forecaster",
		WithModel(model),
		WithOutputType(OutputTypeFor[weather]("weather")),
	)

	_, err := NewRunner().Run(context.Background(), agent, Text("Weather?"))
	var mb *ErrModelBehavior
	if !errors.As(err, &mb) {
		t.Fatalf("err = %v, want *ErrModelBehavior", err)
	}
}

// countingSession wraps a Session and counts AddItems calls.
type countingSession struct {
	Session
	mu   sync.Mutex
	adds int
}

func (s *countingSession) AddItems(ctx context.Context, items []Item) error {
	s.mu.Lock()
	s.adds++
	s.mu.Unlock()
	return s.Session.AddItems(ctx, items)
}

func TestRunSessionHistoryAndPersistence(t *testing.T) {
	session := &countingSession{Session: NewMemorySession()}
	prior := []Item{
		UserMessage{Content: "My name is Rio."},
		AssistantMessage{Content: "Nice to meet you, Rio."},
	}
	if err := session.Session.AddItems(context.Background(), prior); err != nil {
		t.Fatal(err)
	}

	model := &scriptModel{responses: []*ModelResponse{text("You said your name is Rio.")}}
	agent := New("assistant", WithModel(model))
	runner := NewRunner(WithSession(session))

	res, err := runner.Run(context.Background(), agent, Text("What's my name?"))
	if err != nil {
		t.Fatal(err)
	}

	// Prior session items reach the model ahead of the new input.
	hist := model.request(0).History
	if len(hist) != 3 {
		t.Fatalf("model history has %d items, want 3", len(hist))
	}
	if m, ok := hist[0].(UserMessage); !ok || m.Content != "My name is Rio." {
		t.Errorf("history[0] = %#v, want the prior user message", hist[0])
	}

	// The run's input and new items are appended exactly once.
	if session.adds != 1 {
		t.Errorf("AddItems calls = %d, want 1", session.adds)
	}
	stored, err := session.Items(context.Background(), 0)
	if err != nil {
		t.Fatal(err)
	}
	want := len(prior) + len(res.Input) + len(res.NewItems)
	if len(stored) != want {
		t.Errorf("stored items = %d, want %d", len(stored), want)
	}
	// Session history read at run start is not duplicated into the result.
	if len(res.Input) != 1 {
		t.Errorf("res.Input has %d items, want 1", len(res.Input))
	}
}

func TestWithRunSessionOverridesRunnerSession(t *testing.T) {
	base := &countingSession{Session: NewMemorySession()}
	override := &countingSession{Session: NewMemorySession()}
	model := &scriptModel{responses: []*ModelResponse{text("hi"), text("again")}}
	agent := New("assistant", WithModel(model))
	runner := NewRunner(WithSession(base))

	if _, err := runner.Run(context.Background(), agent, Text("hello"), WithRunSession(override)); err != nil {
		t.Fatal(err)
	}
	if base.adds != 0 || override.adds != 1 {
		t.Errorf("AddItems: base = %d, override = %d, want 0 and 1", base.adds, override.adds)
	}

	// Passing nil disables the session for the run.
	if _, err := runner.Run(context.Background(), agent, Text("hello"), WithRunSession(nil)); err != nil {
		t.Fatal(err)
	}
	if base.adds != 0 {
		t.Errorf("AddItems on base after nil override = %d, want 0", base.adds)
	}
}

func TestRunChaining(t *testing.T) {
	model := &scriptModel{responses: []*ModelResponse{
		text("The capital of France is Paris."),
		text("Its population is about two million."),
	}}
	agent := New("tutor", WithModel(model))
	runner := NewRunner()

	first, err := runner.Run(context.Background(), agent, Text("Capital of France?"))
	if err != nil {
		t.Fatal(err)
	}

	followUp := append(first.History(), UserMessage{Content: "And its population?"})
	second, err := runner.Run(context.Background(), agent, Items(followUp...))
	if err != nil {
		t.Fatal(err)
	}
	if second.FinalOutputText() != "Its population is about two million." {
		t.Errorf("FinalOutputText() = %q", second.FinalOutputText())
	}
	// The second request carries the whole first exchange.
	hist := model.request(1).History
	if len(hist) != 3 {
		t.Errorf("second model call saw %d items, want 3", len(hist))
	}
}

func TestUsageAccumulatesAcrossTurns(t *testing.T) {
	model := &scriptModel{responses: []*ModelResponse{
		{ToolCalls: []ToolCall{call("1", "echo", `{"text":"hi"}`)}, Usage: Usage{InputTokens: 10, OutputTokens: 5, TotalTokens: 15}},
		{Content: "done", Usage: Usage{InputTokens: 20, OutputTokens: 3, TotalTokens: 23, CachedInputTokens: 8}},
	}}
	agent := New("worker", WithModel(model), WithTools(echoTool("echo")))

	res, err := NewRunner().Run(context.Background(), agent, Text("go"))
	if err != nil {
		t.Fatal(err)
	}
	want := Usage{Requests: 2, InputTokens: 30, OutputTokens: 8, TotalTokens: 38, CachedInputTokens: 8}
	if res.Usage != want {
		t.Errorf("Usage = %+v, want %+v", res.Usage, want)
	}
}

func TestInstructionsFuncResolvedPerTurn(t *testing.T) {
	model := &scriptModel{responses: []*ModelResponse{
		calls(call("1", "echo", `{"text":"x"}`)),
		text("done"),
	}}
	var turns int
	agent := New("dynamic",
		WithModel(model),
		WithTools(echoTool("echo")),
		WithInstructionsFunc(func(_ context.Context, rc *RunContext, _ *Agent) (string, error) {
			turns++
			return "turn-specific instructions", nil
		}),
	)

	if _, err := NewRunner().Run(context.Background(), agent, Text("go")); err != nil {
		t.Fatal(err)
	}
	if turns != 2 {
		t.Errorf("instructions resolved %d times, want once per turn (2)", turns)
	}
	if got := model.request(1).Instructions; got != "turn-specific instructions" {
		t.Errorf("Instructions = %q", got)
	}
}

func TestUserContextReachesTools(t *testing.T) {
	type userInfo struct{ ID string }
	model := &scriptModel{responses: []*ModelResponse{
		calls(call("1", "whoami", `{}`)),
		text("done"),
	}}
	tool := NewFunctionTool("whoami", "Report the calling user.",
		func(_ context.Context, rc *RunContext, _ struct{}) (any, error) {
			return rc.Context.(*userInfo).ID, nil
		})
	agent := New("aware", WithModel(model), WithTools(tool))

	res, err := NewRunner().Run(context.Background(), agent, Text("who am I"),
		WithUserContext(&userInfo{ID: "u-42"}))
	if err != nil {
		t.Fatal(err)
	}
	var out *ToolOutputItem
	for _, it := range res.NewItems {
		if o, ok := it.(ToolOutputItem); ok {
			out = &o
		}
	}
	if out == nil || out.Output != "u-42" {
		t.Errorf("tool output = %+v, want u-42", out)
	}
}

func TestRunHooksFire(t *testing.T) {
	model := &scriptModel{responses: []*ModelResponse{
		calls(call("1", "echo", `{"text":"x"}`)),
		text("done"),
	}}
	agent := New("hooked", WithModel(model), WithTools(echoTool("echo")))

	var events []string
	hooks := RunHooks{
		OnAgentStart: func(_ context.Context, _ *RunContext, a *Agent) error {
			events = append(events, "agent-start:"+a.Name())
			return nil
		},
		OnModelStart: func(_ context.Context, _ *RunContext, _ *Agent) error {
			events = append(events, "model-start")
			return nil
		},
		OnToolEnd: func(_ context.Context, _ *RunContext, _ *Agent, tool Tool, _ string) error {
			events = append(events, "tool-end:"+tool.Name())
			return nil
		},
		OnAgentEnd: func(_ context.Context, _ *RunContext, a *Agent, _ any) error {
			events = append(events, "agent-end:"+a.Name())
			return nil
		},
	}

	if _, err := NewRunner(WithHooks(hooks)).Run(context.Background(), agent, Text("go")); err != nil {
		t.Fatal(err)
	}
	want := []string{"agent-start:hooked", "model-start", "tool-end:echo", "model-start", "agent-end:hooked"}
	if len(events) != len(want) {
		t.Fatalf("events = %v, want %v", events, want)
	}
	for i := range want {
		if events[i] != want[i] {
			t.Errorf("events[%d] = %q, want %q", i, events[i], want[i])
		}
	}
}
