package main

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/nevindra/relay"
)

// streamDelay paces delta output so streaming is visible in a terminal.
const streamDelay = 15 * time.Millisecond

var (
	mathHint    = regexp.MustCompile(`[0-9+*/=^]|\b(math|algebra|equation|fraction|calculate|solve)\b`)
	historyHint = regexp.MustCompile(`\b(history|war|empire|revolution|king|queen|ancient|century|dynasty)\b`)
	arithmetic  = regexp.MustCompile(`(-?\d+)\s*([+*/-])\s*(-?\d+)`)
)

// routerModel is the triage agent's scripted model. It picks the
// hand-off tool whose name matches the question's subject, or answers
// directly when neither tutor fits.
type routerModel struct{}

func newRouter() relay.Model { return &routerModel{} }

func (m *routerModel) Name() string { return "scripted-router" }

func (m *routerModel) Respond(_ context.Context, req relay.ModelRequest) (*relay.ModelResponse, error) {
	question := strings.ToLower(lastUserText(req.History))

	var subject string
	switch {
	case mathHint.MatchString(question):
		subject = "math"
	case historyHint.MatchString(question):
		subject = "history"
	}

	if subject != "" {
		for _, t := range req.Tools {
			if strings.Contains(t.Name, subject) {
				return &relay.ModelResponse{
					ToolCalls: []relay.ToolCall{{ID: relay.NewID(), Name: t.Name}},
					Usage:     scriptedUsage(question, ""),
				}, nil
			}
		}
	}

	content := "I route math and history questions to the right tutor. Try asking one of those!"
	return &relay.ModelResponse{Content: content, Usage: scriptedUsage(question, content)}, nil
}

func (m *routerModel) RespondStream(ctx context.Context, req relay.ModelRequest, ch chan<- relay.ModelDelta) (*relay.ModelResponse, error) {
	return streamRespond(ctx, m.Respond, req, ch)
}

// tutorModel answers every question with its subject's scripted reply.
type tutorModel struct {
	name   string
	answer func(question string) string
}

func newMathTutor() relay.Model {
	return &tutorModel{name: "scripted-math", answer: mathAnswer}
}

func newHistoryTutor() relay.Model {
	return &tutorModel{name: "scripted-history", answer: historyAnswer}
}

func (m *tutorModel) Name() string { return m.name }

func (m *tutorModel) Respond(_ context.Context, req relay.ModelRequest) (*relay.ModelResponse, error) {
	q := lastUserText(req.History)
	content := m.answer(q)
	return &relay.ModelResponse{Content: content, Usage: scriptedUsage(q, content)}, nil
}

func (m *tutorModel) RespondStream(ctx context.Context, req relay.ModelRequest, ch chan<- relay.ModelDelta) (*relay.ModelResponse, error) {
	return streamRespond(ctx, m.Respond, req, ch)
}

// streamRespond adapts a blocking Respond to the streaming contract,
// pacing the content out word by word.
func streamRespond(ctx context.Context, respond func(context.Context, relay.ModelRequest) (*relay.ModelResponse, error), req relay.ModelRequest, ch chan<- relay.ModelDelta) (*relay.ModelResponse, error) {
	defer close(ch)
	resp, err := respond(ctx, req)
	if err != nil || resp.Content == "" {
		return resp, err
	}
	for _, w := range strings.SplitAfter(resp.Content, " ") {
		select {
		case ch <- relay.ModelDelta{Kind: relay.DeltaText, Text: w}:
			time.Sleep(streamDelay)
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return resp, nil
}

// lastUserText returns the newest user message in the transcript.
func lastUserText(history []relay.Item) string {
	for i := len(history) - 1; i >= 0; i-- {
		if m, ok := history[i].(relay.UserMessage); ok {
			return m.Content
		}
	}
	return ""
}

func scriptedUsage(in, out string) relay.Usage {
	u := relay.Usage{
		Requests:     1,
		InputTokens:  len(strings.Fields(in)),
		OutputTokens: len(strings.Fields(out)),
	}
	u.TotalTokens = u.InputTokens + u.OutputTokens
	return u
}

func mathAnswer(question string) string {
	if m := arithmetic.FindStringSubmatch(question); m != nil {
		a, _ := strconv.Atoi(m[1])
		b, _ := strconv.Atoi(m[3])
		ok := true
		var v int
		switch m[2] {
		case "+":
			v = a + b
		case "-":
			v = a - b
		case "*":
			v = a * b
		case "/":
			if b == 0 {
				ok = false
			} else {
				v = a / b
			}
		}
		if ok {
			return fmt.Sprintf("%s %s %s = %d. Check the result by inverting the operation.", m[1], m[2], m[3], v)
		}
	}
	return "Break the problem into steps: name what you know, what you need, and the operation linking them."
}

func historyAnswer(string) string {
	return "Good question. Place it on a timeline first: what came immediately before it, and what changed after. Context explains most of history."
}
