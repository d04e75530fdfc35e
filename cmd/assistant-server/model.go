package main

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/nevindra/relay"
)

// assistantModel is the demo's scripted model. It recognizes two
// commands, "read <url>" and "run <command>", addresses the matching
// tool, and summarizes the tool's output on the following turn.
// Everything else gets a Markdown help reply.
type assistantModel struct{}

func newAssistantModel() relay.Model { return &assistantModel{} }

func (m *assistantModel) Name() string { return "scripted-assistant" }

func (m *assistantModel) Respond(_ context.Context, req relay.ModelRequest) (*relay.ModelResponse, error) {
	history := req.History

	// A tool just ran: summarize its output and finish the run.
	if len(history) > 0 {
		if out, ok := history[len(history)-1].(relay.ToolOutputItem); ok {
			content := "Here is what I got from `" + out.Name + "`:\n\n" + clip(out.Output, 1200)
			return &relay.ModelResponse{Content: content, Usage: scriptedUsage(out.Output, content)}, nil
		}
	}

	msg := strings.TrimSpace(lastUserText(history))

	if url, ok := strings.CutPrefix(msg, "read "); ok && declared(req.Tools, "read_page") {
		args, _ := json.Marshal(map[string]string{"url": strings.TrimSpace(url)})
		return &relay.ModelResponse{
			ToolCalls: []relay.ToolCall{{ID: relay.NewID(), Name: "read_page", Arguments: args}},
			Usage:     scriptedUsage(msg, ""),
		}, nil
	}
	if command, ok := strings.CutPrefix(msg, "run "); ok && declared(req.Tools, "shell_exec") {
		args, _ := json.Marshal(map[string]string{"command": strings.TrimSpace(command)})
		return &relay.ModelResponse{
			ToolCalls: []relay.ToolCall{{ID: relay.NewID(), Name: "shell_exec", Arguments: args}},
			Usage:     scriptedUsage(msg, ""),
		}, nil
	}

	content := "**I can do two things:**\n\n" +
		"- `read <url>` fetches a page and summarizes it\n" +
		"- `run <command>` executes a shell command\n\n" +
		"You said: " + msg
	return &relay.ModelResponse{Content: content, Usage: scriptedUsage(msg, content)}, nil
}

func (m *assistantModel) RespondStream(ctx context.Context, req relay.ModelRequest, ch chan<- relay.ModelDelta) (*relay.ModelResponse, error) {
	defer close(ch)
	resp, err := m.Respond(ctx, req)
	if err != nil || resp.Content == "" {
		return resp, err
	}
	for _, w := range strings.SplitAfter(resp.Content, " ") {
		select {
		case ch <- relay.ModelDelta{Kind: relay.DeltaText, Text: w}:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return resp, nil
}

// declared reports whether a tool of the given name is offered this turn.
func declared(tools []relay.ToolDefinition, name string) bool {
	for _, t := range tools {
		if t.Name == name {
			return true
		}
	}
	return false
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

func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "\n... (truncated)"
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
