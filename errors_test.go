package relay

import (
	"context"
	"errors"
	"testing"
)

func TestErrorMessages(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{&ErrUser{Message: "duplicate tool name"}, "user error: duplicate tool name"},
		{&ErrModelBehavior{Message: "unknown tool"}, "model behavior error: unknown tool"},
		{&ErrTool{Tool: "fetch", Err: errors.New("timeout")}, "tool fetch: timeout"},
		{&ErrMaxTurns{Turns: 5}, "max turns exceeded after 5 turns"},
		{&ErrHTTP{Status: 429, Body: "too many requests"}, "http 429: too many requests"},
	}
	for _, tt := range tests {
		if got := tt.err.Error(); got != tt.want {
			t.Errorf("Error() = %q, want %q", got, tt.want)
		}
	}
}

// toolLooper always asks for another tool call, so the run only stops
// when the budget does.
func toolLooper(n int) *scriptModel {
	m := &scriptModel{}
	for i := 0; i < n; i++ {
		m.responses = append(m.responses, calls(call(NewID(), "echo", `{"text":"again"}`)))
	}
	return m
}

func TestMaxTurnsExceeded(t *testing.T) {
	model := toolLooper(10)
	agent := New("looper", WithModel(model), WithTools(echoTool("echo")))

	_, err := NewRunner().Run(context.Background(), agent, Text("loop"), WithMaxTurns(2))
	var mt *ErrMaxTurns
	if !errors.As(err, &mt) {
		t.Fatalf("err = %v, want *ErrMaxTurns", err)
	}
	if mt.Turns != 2 {
		t.Errorf("Turns = %d, want 2", mt.Turns)
	}
	if model.callCount() != 2 {
		t.Errorf("model calls = %d, want 2", model.callCount())
	}
	if !mt.Resumable() {
		t.Error("fresh ErrMaxTurns is not resumable")
	}
	if mt.State == nil || mt.State.Agent != agent || mt.State.Turn != 2 {
		t.Errorf("State = %+v, want a snapshot at turn 2", mt.State)
	}
}

func TestResumeContinuesSameRun(t *testing.T) {
	model := &scriptModel{responses: []*ModelResponse{
		{ToolCalls: []ToolCall{call("1", "echo", `{"text":"a"}`)}, Usage: Usage{TotalTokens: 10}},
		{ToolCalls: []ToolCall{call("2", "echo", `{"text":"b"}`)}, Usage: Usage{TotalTokens: 10}},
		{Content: "finally done", Usage: Usage{TotalTokens: 10}},
	}}
	agent := New("worker", WithModel(model), WithTools(echoTool("echo")))

	var contexts []*RunContext
	hooks := RunHooks{
		OnModelStart: func(_ context.Context, rc *RunContext, _ *Agent) error {
			contexts = append(contexts, rc)
			return nil
		},
	}

	_, err := NewRunner(WithHooks(hooks)).Run(context.Background(), agent, Text("go"), WithMaxTurns(2))
	var mt *ErrMaxTurns
	if !errors.As(err, &mt) {
		t.Fatalf("err = %v, want *ErrMaxTurns", err)
	}

	res, err := mt.Resume(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.FinalOutputText() != "finally done" {
		t.Errorf("FinalOutputText() = %q", res.FinalOutputText())
	}

	// Usage is monotonic across the interruption: three model calls total.
	want := Usage{Requests: 3, TotalTokens: 30}
	if res.Usage != want {
		t.Errorf("Usage = %+v, want %+v", res.Usage, want)
	}
	// The same RunContext identity threads through every turn.
	if len(contexts) != 3 {
		t.Fatalf("model starts = %d, want 3", len(contexts))
	}
	if contexts[0] != contexts[1] || contexts[1] != contexts[2] {
		t.Error("RunContext identity changed across resume")
	}
	if contexts[0].RunID() == "" {
		t.Error("run has no ID")
	}
	// The resumed result covers the whole logical run.
	var outputs int
	for _, it := range res.NewItems {
		if _, ok := it.(ToolOutputItem); ok {
			outputs++
		}
	}
	if outputs != 2 {
		t.Errorf("tool outputs in result = %d, want 2 (both halves of the run)", outputs)
	}
}

func TestResumeSingleUse(t *testing.T) {
	agent := New("looper", WithModel(toolLooper(4)), WithTools(echoTool("echo")))

	_, err := NewRunner().Run(context.Background(), agent, Text("loop"), WithMaxTurns(1))
	var mt *ErrMaxTurns
	if !errors.As(err, &mt) {
		t.Fatalf("err = %v, want *ErrMaxTurns", err)
	}

	// First resume consumes the closure (and will itself hit the budget).
	_, err = mt.Resume(context.Background(), ResumeMaxTurns(1))
	if !errors.As(err, new(*ErrMaxTurns)) {
		t.Fatalf("first resume err = %v, want *ErrMaxTurns", err)
	}
	if mt.Resumable() {
		t.Error("consumed ErrMaxTurns still reports resumable")
	}

	_, err = mt.Resume(context.Background())
	var ue *ErrUser
	if !errors.As(err, &ue) {
		t.Fatalf("second resume err = %v, want *ErrUser", err)
	}
}

func TestResumeGrantsFurtherTurns(t *testing.T) {
	model := toolLooper(6)
	agent := New("looper", WithModel(model), WithTools(echoTool("echo")))

	_, err := NewRunner().Run(context.Background(), agent, Text("loop"), WithMaxTurns(2))
	var mt *ErrMaxTurns
	if !errors.As(err, &mt) {
		t.Fatalf("err = %v, want *ErrMaxTurns", err)
	}

	// Three further turns from turn 2: the next interruption is at turn 5.
	_, err = mt.Resume(context.Background(), ResumeMaxTurns(3))
	var again *ErrMaxTurns
	if !errors.As(err, &again) {
		t.Fatalf("resume err = %v, want *ErrMaxTurns", err)
	}
	if again.Turns != 5 {
		t.Errorf("Turns = %d, want 5", again.Turns)
	}
}

func TestResumeInputRecorded(t *testing.T) {
	model := &scriptModel{responses: []*ModelResponse{
		calls(call("1", "echo", `{"text":"first"}`)),
		text("thanks for the details"),
	}}
	agent := New("clarifier", WithModel(model), WithTools(echoTool("echo")))

	_, err := NewRunner().Run(context.Background(), agent, Text("start"), WithMaxTurns(1))
	var mt *ErrMaxTurns
	if !errors.As(err, &mt) {
		t.Fatalf("err = %v, want *ErrMaxTurns", err)
	}

	res, err := mt.Resume(context.Background(),
		ResumeInput(UserMessage{Content: "here is more detail"}))
	if err != nil {
		t.Fatal(err)
	}

	// The injected item reaches the model on the next turn...
	hist := model.request(1).History
	var seen bool
	for _, it := range hist {
		if m, ok := it.(UserMessage); ok && m.Content == "here is more detail" {
			seen = true
		}
	}
	if !seen {
		t.Errorf("resume input missing from model history: %v", itemTypes(hist))
	}
	// ...and is recorded among the run's items.
	seen = false
	for _, it := range res.NewItems {
		if m, ok := it.(UserMessage); ok && m.Content == "here is more detail" {
			seen = true
		}
	}
	if !seen {
		t.Error("resume input missing from NewItems")
	}
}

// A run interrupted by the budget persists nothing; the eventual
// successful resume persists the whole run exactly once.
func TestResumePersistsOnce(t *testing.T) {
	session := &countingSession{Session: NewMemorySession()}
	model := &scriptModel{responses: []*ModelResponse{
		calls(call("1", "echo", `{"text":"x"}`)),
		text("done"),
	}}
	agent := New("worker", WithModel(model), WithTools(echoTool("echo")))
	runner := NewRunner(WithSession(session))

	_, err := runner.Run(context.Background(), agent, Text("go"), WithMaxTurns(1))
	var mt *ErrMaxTurns
	if !errors.As(err, &mt) {
		t.Fatalf("err = %v, want *ErrMaxTurns", err)
	}
	if session.adds != 0 {
		t.Errorf("AddItems calls after interruption = %d, want 0", session.adds)
	}

	if _, err := mt.Resume(context.Background()); err != nil {
		t.Fatal(err)
	}
	if session.adds != 1 {
		t.Errorf("AddItems calls after resume = %d, want 1", session.adds)
	}
}
