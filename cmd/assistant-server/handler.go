package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/nevindra/relay"
	"github.com/nevindra/relay/store/sqlite"
)

const maxRequestBodyBytes = 1 << 20

// chatRequest is the parsed body of POST /chat and POST /chat/stream.
type chatRequest struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

// chatResponse is the JSON body returned by POST /chat.
type chatResponse struct {
	SessionID string      `json:"session_id"`
	Agent     string      `json:"agent"`
	Output    string      `json:"output"`
	HTML      string      `json:"html,omitempty"`
	Usage     relay.Usage `json:"usage"`
}

// webhookPayload is POSTed to the configured webhook after each
// successful run.
type webhookPayload struct {
	SessionID string `json:"session_id"`
	Agent     string `json:"agent"`
	Output    string `json:"output"`
}

type server struct {
	runner    *relay.Runner
	assistant *relay.Agent
	store     *sqlite.Store
	webhook   string
	client    *http.Client
}

func newServer(runner *relay.Runner, assistant *relay.Agent, store *sqlite.Store, webhook string) *server {
	return &server{
		runner:    runner,
		assistant: assistant,
		store:     store,
		webhook:   webhook,
		client:    &http.Client{Timeout: 10 * time.Second},
	}
}

func (s *server) parseChatRequest(r *http.Request) (chatRequest, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBodyBytes))
	if err != nil {
		return chatRequest{}, fmt.Errorf("failed to read request body")
	}
	var req chatRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return chatRequest{}, fmt.Errorf("invalid JSON: %v", err)
	}
	if req.Message == "" {
		return chatRequest{}, fmt.Errorf("message is required")
	}
	if req.SessionID == "" {
		req.SessionID = relay.NewID()
	}
	return req, nil
}

func (s *server) handleChat(w http.ResponseWriter, r *http.Request) {
	req, err := s.parseChatRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := s.runner.Run(r.Context(), s.assistant, relay.Text(req.Message),
		relay.WithRunSession(s.store.Session(req.SessionID)))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	output := res.FinalOutputText()
	s.forwardWebhook(req.SessionID, res.LastAgent.Name(), output)

	writeJSON(w, http.StatusOK, chatResponse{
		SessionID: req.SessionID,
		Agent:     res.LastAgent.Name(),
		Output:    output,
		HTML:      renderHTML(output),
		Usage:     res.Usage,
	})
}

func (s *server) handleChatStream(w http.ResponseWriter, r *http.Request) {
	req, err := s.parseChatRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	handle, err := s.runner.RunStreamed(r.Context(), s.assistant, relay.Text(req.Message),
		relay.WithRunSession(s.store.Session(req.SessionID)))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // disable nginx buffering

	for ev := range handle.Events() {
		sendSSEEvent(w, flusher, string(ev.Type), ev)
	}

	if res, err := handle.Wait(); err == nil {
		s.forwardWebhook(req.SessionID, res.LastAgent.Name(), res.FinalOutputText())
	}
}

// handleSessions lists stored sessions with item counts.
func (s *server) handleSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	infos, err := s.store.ListSessions(r.Context(), 100)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": infos})
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// forwardWebhook POSTs the final output to the configured webhook.
// Delivery is best effort; failures are logged, never surfaced.
func (s *server) forwardWebhook(sessionID, agent, output string) {
	if s.webhook == "" {
		return
	}
	payload, err := json.Marshal(webhookPayload{SessionID: sessionID, Agent: agent, Output: output})
	if err != nil {
		return
	}
	go func() {
		resp, err := s.client.Post(s.webhook, "application/json", bytes.NewReader(payload))
		if err != nil {
			log.Printf(" [webhook] post failed: %v", err)
			return
		}
		resp.Body.Close()
		if resp.StatusCode >= 400 {
			log.Printf(" [webhook] post returned %d", resp.StatusCode)
		}
	}()
}

// markdown renders assistant output for the html response field.
var markdown = goldmark.New(goldmark.WithExtensions(extension.GFM))

func renderHTML(md string) string {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(md), &buf); err != nil {
		return ""
	}
	return strings.TrimSpace(buf.String())
}

// sendSSEEvent writes one "event: type\ndata: json\n\n" frame and
// flushes it to the client.
func sendSSEEvent(w http.ResponseWriter, flusher http.Flusher, eventType string, data any) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\n", eventType)
	fmt.Fprintf(w, "data: %s\n\n", jsonData)
	flusher.Flush()
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, "marshal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(data)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
