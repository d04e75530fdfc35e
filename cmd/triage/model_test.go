package main

import (
	"context"
	"strings"
	"testing"

	"github.com/nevindra/relay"
)

func routerRequest(question string) relay.ModelRequest {
	return relay.ModelRequest{
		History: []relay.Item{relay.UserMessage{Content: question}},
		Tools: []relay.ToolDefinition{
			{Name: "transfer_to_math_tutor"},
			{Name: "transfer_to_history_tutor"},
		},
	}
}

func TestRouterPicksMathTutor(t *testing.T) {
	m := newRouter()
	resp, err := m.Respond(context.Background(), routerRequest("what is 2+2?"))
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.ToolCalls) != 1 {
		t.Fatalf("tool calls = %v", resp.ToolCalls)
	}
	if resp.ToolCalls[0].Name != "transfer_to_math_tutor" {
		t.Errorf("routed to %q", resp.ToolCalls[0].Name)
	}
}

func TestRouterPicksHistoryTutor(t *testing.T) {
	m := newRouter()
	resp, err := m.Respond(context.Background(), routerRequest("tell me about the roman empire"))
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.ToolCalls) != 1 {
		t.Fatalf("tool calls = %v", resp.ToolCalls)
	}
	if resp.ToolCalls[0].Name != "transfer_to_history_tutor" {
		t.Errorf("routed to %q", resp.ToolCalls[0].Name)
	}
}

func TestRouterFallsBack(t *testing.T) {
	m := newRouter()
	resp, err := m.Respond(context.Background(), routerRequest("hows the weather"))
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.ToolCalls) != 0 {
		t.Fatalf("expected direct answer, got calls %v", resp.ToolCalls)
	}
	if resp.Content == "" {
		t.Error("expected fallback content")
	}
}

func TestMathAnswerEvaluates(t *testing.T) {
	tests := []struct {
		question string
		want     string
	}{
		{"what is 2+2?", "= 4"},
		{"solve 12*3", "= 36"},
		{"10 - 4", "= 6"},
		{"what is 9/0", "steps"},
	}
	for _, tt := range tests {
		if got := mathAnswer(tt.question); !strings.Contains(got, tt.want) {
			t.Errorf("mathAnswer(%q) = %q, want substring %q", tt.question, got, tt.want)
		}
	}
}

func TestTutorStreamMatchesResponse(t *testing.T) {
	m := newMathTutor()
	req := relay.ModelRequest{History: []relay.Item{relay.UserMessage{Content: "what is 3+4?"}}}

	ch := make(chan relay.ModelDelta, 64)
	resp, err := m.RespondStream(context.Background(), req, ch)
	if err != nil {
		t.Fatal(err)
	}

	var b strings.Builder
	for d := range ch {
		if d.Kind == relay.DeltaText {
			b.WriteString(d.Text)
		}
	}
	if b.String() != resp.Content {
		t.Errorf("streamed %q, response %q", b.String(), resp.Content)
	}
	if !strings.Contains(resp.Content, "= 7") {
		t.Errorf("content = %q", resp.Content)
	}
}

func TestEndToEndHandoff(t *testing.T) {
	math := relay.New("Math Tutor",
		relay.WithInstructions(mathPrompt()),
		relay.WithModel(newMathTutor()),
	)
	history := relay.New("History Tutor",
		relay.WithInstructions(historyPrompt()),
		relay.WithModel(newHistoryTutor()),
	)
	triage := relay.New("Triage",
		relay.WithInstructions(triagePrompt()),
		relay.WithModel(newRouter()),
		relay.WithHandoffs(math, history),
	)

	runner := relay.NewRunner()
	res, err := runner.Run(context.Background(), triage, relay.Text("what is 6*7?"))
	if err != nil {
		t.Fatal(err)
	}
	if res.LastAgent.Name() != "Math Tutor" {
		t.Errorf("last agent = %q", res.LastAgent.Name())
	}
	if !strings.Contains(res.FinalOutputText(), "= 42") {
		t.Errorf("final output = %q", res.FinalOutputText())
	}
}
