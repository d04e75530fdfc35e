// Package relay is a multi-agent orchestration toolkit for Go.
//
// It runs agents in a turn loop over a pluggable language model: each
// turn presents the transcript and the agent's declared tools, executes
// whatever the model calls, resolves at most one hand-off to another
// agent, and terminates when a turn produces plain output. Guardrails
// veto runs at the boundaries, sessions persist conversations between
// runs, and every terminal outcome is a typed error the caller can
// dispatch on.
//
// # Quick Start
//
// Declare agents, wire them with hand-offs, and run:
//
//	math := relay.New("Math",
//		relay.WithInstructions("Answer math questions."),
//		relay.WithTools(calculator),
//	)
//	history := relay.New("History",
//		relay.WithInstructions("Answer history questions."),
//	)
//	triage := relay.New("Triage",
//		relay.WithInstructions("Route the user to the right specialist."),
//		relay.WithHandoffs(math, history),
//	)
//
//	store := sqlite.New("relay.db")
//	runner := relay.NewRunner(
//		relay.WithDefaultModel(model),
//		relay.WithSession(store.Session("support")),
//	)
//	result, err := runner.Run(ctx, triage, relay.Text("What is 6 times 7?"))
//
// Streamed runs return a handle instead of blocking:
//
//	handle, err := runner.RunStreamed(ctx, triage, relay.Text("Tell me about Rome"))
//	for ev := range handle.Events() {
//		// text deltas, tool calls, hand-offs, notifications
//	}
//	result, err := handle.Wait()
//
// # Core Interfaces
//
// The root package defines the contracts everything else implements:
//
//   - [Model] — the language model capability (blocking and streamed)
//   - [Tool] — agent capability: [FunctionTool], [StreamingTool], [ComputerTool], [HostedTool]
//   - [Session] — persistent conversation log read before and appended after a run
//   - [Item] — one transcript entry; the concrete types form a closed set
//   - [Tracer] — span seam; the observer package provides the OTEL implementation
//
// # Terminal Outcomes
//
// A run ends with a [RunResult] or with exactly one of the typed errors:
// [ErrMaxTurns] (resumable via its single-use Resume), [ErrInputGuardrail],
// [ErrOutputGuardrail], [ErrModelBehavior], [ErrUser], or [ErrTool].
// Match them with errors.As.
//
// # Included Implementations
//
// Sessions: store/sqlite (local), store/postgres (pooled).
// Tools: tools/web (page fetch), tools/document (PDF extraction), tools/shell.
// Observability: observer (OTLP traces, metrics, logs).
//
// See the cmd/triage directory for a complete reference application.
package relay
