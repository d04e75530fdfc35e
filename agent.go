package relay

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/stoewer/go-strcase"
)

// Agent is a declarative bundle of behavior: a name, instructions, a
// model, tools, hand-off routes, guardrails, and an optional output type.
// Agents hold no run state — the same Agent value can serve any number of
// concurrent runs — and referencing another agent as a hand-off target
// does not pull in that agent's own hand-offs, so cyclic agent graphs are
// fine.
type Agent struct {
	name             string
	instructions     string
	instructionsFunc InstructionsFunc
	model            Model
	settings         ModelSettings
	tools            []Tool
	handoffs         []*Handoff
	inputGuardrails  []InputGuardrail
	outputGuardrails []OutputGuardrail
	outputType       *OutputType
}

// InstructionsFunc resolves the system instructions lazily, once per
// turn. It sees the run context, so instructions can depend on caller
// state injected via WithUserContext.
type InstructionsFunc func(ctx context.Context, rc *RunContext, agent *Agent) (string, error)

// Option configures an Agent.
type Option func(*Agent)

// WithInstructions sets static system instructions.
func WithInstructions(s string) Option {
	return func(a *Agent) { a.instructions = s }
}

// WithInstructionsFunc sets per-turn instructions resolution. Overrides
// WithInstructions when both are set.
func WithInstructionsFunc(fn InstructionsFunc) Option {
	return func(a *Agent) { a.instructionsFunc = fn }
}

// WithModel sets the model this agent runs on. Absent, the runner's
// default model is used; a run where neither is set fails with *ErrUser.
func WithModel(m Model) Option {
	return func(a *Agent) { a.model = m }
}

// WithModelSettings sets per-call tuning passed along on every model
// request this agent makes.
func WithModelSettings(s ModelSettings) Option {
	return func(a *Agent) { a.settings = s }
}

// WithTools adds tools to the agent.
func WithTools(tools ...Tool) Option {
	return func(a *Agent) { a.tools = append(a.tools, tools...) }
}

// WithHandoffs adds transfer targets. A plain *Agent gets default
// transfer settings; wrap it in NewHandoff to customize.
func WithHandoffs(targets ...HandoffTarget) Option {
	return func(a *Agent) {
		for _, t := range targets {
			a.handoffs = append(a.handoffs, t.handoffTarget())
		}
	}
}

// WithInputGuardrails adds checks over the run's original input. They run
// before the first model call, in order, first tripwire wins.
func WithInputGuardrails(gs ...InputGuardrail) Option {
	return func(a *Agent) { a.inputGuardrails = append(a.inputGuardrails, gs...) }
}

// WithOutputGuardrails adds checks over the candidate final output.
func WithOutputGuardrails(gs ...OutputGuardrail) Option {
	return func(a *Agent) { a.outputGuardrails = append(a.outputGuardrails, gs...) }
}

// WithOutputType constrains the agent's final output to a structured
// shape. Use OutputTypeFor[T] for reflected schemas.
func WithOutputType(t *OutputType) Option {
	return func(a *Agent) { a.outputType = t }
}

// New builds an agent.
func New(name string, opts ...Option) *Agent {
	a := &Agent{name: name}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Name returns the agent's identifier.
func (a *Agent) Name() string { return a.name }

// Instructions returns the static instructions. When the agent uses
// WithInstructionsFunc the effective instructions are resolved per turn
// and this returns the static fallback.
func (a *Agent) Instructions() string { return a.instructions }

// resolveInstructions produces the effective instructions for one turn:
// the instructions function when set, the static string otherwise.
func (a *Agent) resolveInstructions(ctx context.Context, rc *RunContext) (string, error) {
	if a.instructionsFunc != nil {
		return a.instructionsFunc(ctx, rc, a)
	}
	return a.instructions, nil
}

// Model returns the agent's own model, or nil when it relies on the
// runner's default.
func (a *Agent) Model() Model { return a.model }

// Tools returns the agent's tools. The slice is shared; treat it as
// read-only.
func (a *Agent) Tools() []Tool { return a.tools }

// Handoffs returns the agent's transfer targets. The slice is shared;
// treat it as read-only.
func (a *Agent) Handoffs() []*Handoff { return a.handoffs }

// OutputType returns the agent's output constraint, or nil for plain text.
func (a *Agent) OutputType() *OutputType { return a.outputType }

// Clone returns a copy with fresh option containers, then applies opts on
// top. Containers are fresh: appending tools or hand-offs to the clone
// leaves the original untouched. Elements are shared: the clone holds the
// same Tool and *Handoff values, not deep copies.
func (a *Agent) Clone(opts ...Option) *Agent {
	c := *a
	c.tools = append([]Tool(nil), a.tools...)
	c.handoffs = append([]*Handoff(nil), a.handoffs...)
	c.inputGuardrails = append([]InputGuardrail(nil), a.inputGuardrails...)
	c.outputGuardrails = append([]OutputGuardrail(nil), a.outputGuardrails...)
	for _, opt := range opts {
		opt(&c)
	}
	return &c
}

// handoffTarget lets a plain *Agent appear in WithHandoffs with default
// transfer settings.
func (a *Agent) handoffTarget() *Handoff { return NewHandoff(a) }

// validate checks the agent's declaration before its first turn. Tools
// and hand-off pseudo-tools share one namespace; a collision is the
// integrator's mistake.
func (a *Agent) validate() error {
	if a.name == "" {
		return &ErrUser{Message: "agent has no name"}
	}
	seen := make(map[string]bool, len(a.tools)+len(a.handoffs))
	for _, t := range a.tools {
		if t.Name() == "" {
			return &ErrUser{Message: fmt.Sprintf("agent %s: tool with empty name", a.name)}
		}
		if seen[t.Name()] {
			return &ErrUser{Message: fmt.Sprintf("agent %s: duplicate tool name %q", a.name, t.Name())}
		}
		seen[t.Name()] = true
	}
	for _, h := range a.handoffs {
		if seen[h.ToolName()] {
			return &ErrUser{Message: fmt.Sprintf("agent %s: duplicate tool name %q", a.name, h.ToolName())}
		}
		seen[h.ToolName()] = true
	}
	return nil
}

// declarations assembles the model-facing tool list for one turn and the
// lookup tables the turn executor classifies calls with. Disabled
// hand-offs are omitted entirely.
func (a *Agent) declarations(ctx context.Context, rc *RunContext) ([]ToolDefinition, map[string]Tool, map[string]*Handoff) {
	defs := make([]ToolDefinition, 0, len(a.tools)+len(a.handoffs))
	tools := make(map[string]Tool, len(a.tools))
	handoffs := make(map[string]*Handoff, len(a.handoffs))
	for _, t := range a.tools {
		defs = append(defs, ToolDefinition{Name: t.Name(), Description: t.Description(), Parameters: t.ParamsSchema()})
		tools[t.Name()] = t
	}
	for _, h := range a.handoffs {
		if !h.isEnabled(ctx, rc) {
			continue
		}
		defs = append(defs, h.definition())
		handoffs[h.ToolName()] = h
	}
	return defs, tools, handoffs
}

// --- agent as tool ---

// agentToolArgs is the argument shape of an agent exposed as a tool.
type agentToolArgs struct {
	// Input is the task forwarded to the wrapped agent as a user message.
	Input string `json:"input"`
}

// AgentToolOption configures AsTool and AsStreamingTool.
type AgentToolOption func(*agentToolConfig)

type agentToolConfig struct {
	name        string
	description string
	runner      *Runner
	extract     func(*RunResult) string
}

// AgentToolName overrides the default tool name (the agent's name in
// snake_case).
func AgentToolName(name string) AgentToolOption {
	return func(c *agentToolConfig) { c.name = name }
}

// AgentToolDescription overrides the default tool description.
func AgentToolDescription(description string) AgentToolOption {
	return func(c *agentToolConfig) { c.description = description }
}

// AgentToolRunner sets the runner for the nested run. Defaults to a bare
// NewRunner(), which requires the wrapped agent to carry its own model.
func AgentToolRunner(r *Runner) AgentToolOption {
	return func(c *agentToolConfig) { c.runner = r }
}

// AgentToolOutput replaces the default final-output text with a custom
// extraction over the nested result.
func AgentToolOutput(fn func(*RunResult) string) AgentToolOption {
	return func(c *agentToolConfig) { c.extract = fn }
}

func (a *Agent) agentToolConfig(opts []AgentToolOption) agentToolConfig {
	cfg := agentToolConfig{
		name:        strcase.SnakeCase(a.name),
		description: fmt.Sprintf("Run the %s agent and return its final response.", a.name),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.runner == nil {
		cfg.runner = NewRunner()
	}
	return cfg
}

func (cfg agentToolConfig) output(res *RunResult) string {
	if cfg.extract != nil {
		return cfg.extract(res)
	}
	return res.FinalOutputText()
}

// AsTool wraps the agent as a callable tool of another agent. Unlike a
// hand-off, the caller stays in control: the wrapped agent runs to
// completion on a nested runner with fresh usage, and its final output
// text comes back as the tool output. The caller's user context is
// forwarded; its conversation history is not.
func (a *Agent) AsTool(opts ...AgentToolOption) Tool {
	cfg := a.agentToolConfig(opts)
	return NewFunctionTool(cfg.name, cfg.description,
		func(ctx context.Context, rc *RunContext, in agentToolArgs) (any, error) {
			res, err := cfg.runner.Run(ctx, a, Text(in.Input), nestedRunOptions(rc)...)
			if err != nil {
				return nil, err
			}
			return cfg.output(res), nil
		})
}

// AsStreamingTool is AsTool with live progress: the nested run's text
// deltas are bridged out as notification fragments, and the final output
// becomes the terminal. History sees only the terminal.
func (a *Agent) AsStreamingTool(opts ...AgentToolOption) *StreamingTool {
	cfg := a.agentToolConfig(opts)
	schema, err := reflectSchema(&agentToolArgs{})
	if err != nil {
		schema = emptyObjectSchema
	}
	return NewStreamingTool(cfg.name, cfg.description, schema,
		func(ctx context.Context, rc *RunContext, args json.RawMessage, out chan<- ToolStreamItem) error {
			var in agentToolArgs
			if err := json.Unmarshal(args, &in); err != nil {
				return &ErrModelBehavior{Message: fmt.Sprintf("tool %s: cannot decode arguments: %v", cfg.name, err)}
			}
			handle, err := cfg.runner.RunStreamed(ctx, a, Text(in.Input), nestedRunOptions(rc)...)
			if err != nil {
				return err
			}
			for ev := range handle.Events() {
				if ev.Type != EventTextDelta {
					continue
				}
				if err := EmitToolStream(ctx, out, NotificationDelta(ev.Content)); err != nil {
					return err
				}
			}
			res, err := handle.Wait()
			if err != nil {
				return err
			}
			return EmitToolStream(ctx, out, Terminal(cfg.output(res)))
		})
}

// nestedRunOptions forwards the caller's user context into a nested run.
func nestedRunOptions(rc *RunContext) []RunOption {
	if rc == nil || rc.Context == nil {
		return nil
	}
	return []RunOption{WithUserContext(rc.Context)}
}
