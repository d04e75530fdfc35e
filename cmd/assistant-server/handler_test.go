package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nevindra/relay"
	"github.com/nevindra/relay/store/sqlite"
	"github.com/nevindra/relay/tools/shell"
	"github.com/nevindra/relay/tools/web"
)

func newTestServer(t *testing.T, webhook string) *server {
	t.Helper()
	store := sqlite.New(filepath.Join(t.TempDir(), "test.db"))
	t.Cleanup(func() { store.Close() })
	if err := store.Init(context.Background()); err != nil {
		t.Fatal(err)
	}
	assistant := relay.New("Assistant",
		relay.WithInstructions(assistantPrompt()),
		relay.WithModel(newAssistantModel()),
		relay.WithTools(web.NewReadPage(), shell.New(t.TempDir())),
	)
	return newServer(relay.NewRunner(), assistant, store, webhook)
}

func postChat(t *testing.T, s *server, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	switch path {
	case "/chat":
		s.handleChat(rec, req)
	case "/chat/stream":
		s.handleChatStream(rec, req)
	}
	return rec
}

func TestChatEndpoint(t *testing.T) {
	s := newTestServer(t, "")
	rec := postChat(t, s, "/chat", `{"session_id":"chat-1","message":"hello there"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	var resp chatResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Agent != "Assistant" {
		t.Errorf("agent = %q", resp.Agent)
	}
	if !strings.Contains(resp.Output, "You said: hello there") {
		t.Errorf("output = %q", resp.Output)
	}
	if !strings.Contains(resp.HTML, "<strong>") {
		t.Errorf("html should render Markdown bold: %q", resp.HTML)
	}
	if resp.Usage.Requests < 1 {
		t.Errorf("usage.requests = %d", resp.Usage.Requests)
	}
}

func TestChatRunsShellTool(t *testing.T) {
	s := newTestServer(t, "")
	rec := postChat(t, s, "/chat", `{"session_id":"chat-2","message":"run echo hi"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	var resp chatResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(resp.Output, "shell_exec") {
		t.Errorf("output should name the tool: %q", resp.Output)
	}
	if !strings.Contains(resp.Output, "hi") {
		t.Errorf("output should carry the command result: %q", resp.Output)
	}
}

func TestChatMissingMessage(t *testing.T) {
	s := newTestServer(t, "")
	rec := postChat(t, s, "/chat", `{"session_id":"chat-3"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestChatStreamEndpoint(t *testing.T) {
	s := newTestServer(t, "")
	rec := postChat(t, s, "/chat/stream", `{"session_id":"stream-1","message":"hello"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("content type = %q", ct)
	}

	body := rec.Body.String()
	for _, want := range []string{"event: agent-updated", "event: text-delta", "event: run-finished"} {
		if !strings.Contains(body, want) {
			t.Errorf("stream missing %q:\n%s", want, body)
		}
	}
}

func TestWebhookForwarding(t *testing.T) {
	got := make(chan webhookPayload, 1)
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var p webhookPayload
		if err := json.NewDecoder(r.Body).Decode(&p); err == nil {
			got <- p
		}
	}))
	defer hook.Close()

	s := newTestServer(t, hook.URL)
	rec := postChat(t, s, "/chat", `{"session_id":"hook-1","message":"hello"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	select {
	case p := <-got:
		if p.SessionID != "hook-1" {
			t.Errorf("webhook session = %q", p.SessionID)
		}
		if p.Agent != "Assistant" {
			t.Errorf("webhook agent = %q", p.Agent)
		}
		if p.Output == "" {
			t.Error("webhook output empty")
		}
	case <-time.After(3 * time.Second):
		t.Fatal("webhook not called")
	}
}

func TestSessionsEndpoint(t *testing.T) {
	s := newTestServer(t, "")
	postChat(t, s, "/chat", `{"session_id":"list-1","message":"hello"}`)

	req := httptest.NewRequest(http.MethodGet, "/sessions", nil)
	rec := httptest.NewRecorder()
	s.handleSessions(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "list-1") {
		t.Errorf("sessions listing missing session: %s", rec.Body.String())
	}
}

func TestRenderHTML(t *testing.T) {
	html := renderHTML("# Title\n\nSome **bold** text.")
	if !strings.Contains(html, "<h1") {
		t.Errorf("heading not rendered: %q", html)
	}
	if !strings.Contains(html, "<strong>bold</strong>") {
		t.Errorf("bold not rendered: %q", html)
	}
}
