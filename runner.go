package relay

import (
	"context"
	"log/slog"
)

// DefaultMaxTurns bounds a run when neither the runner nor the call sets
// a turn budget.
const DefaultMaxTurns = 10

// RunContext carries caller state and live accounting through one logical
// run. Its identity is stable: hand-offs and resume continue with the
// same RunContext, so tools and hooks can use it as a per-run anchor.
// The model never sees it.
type RunContext struct {
	// Context is arbitrary caller state, visible to tools, guardrails,
	// instruction functions, and hooks. Set via WithUserContext.
	Context any

	runID string
	usage *Usage
}

// RunID returns the run's unique identifier, assigned at run start and
// unchanged across hand-offs and resume.
func (rc *RunContext) RunID() string { return rc.runID }

// Usage returns a snapshot of the usage accumulated so far. Counters only
// grow; reading between turns observes the running total.
func (rc *RunContext) Usage() Usage {
	if rc.usage == nil {
		return Usage{}
	}
	return *rc.usage
}

// Runner executes agents. A zero-configured NewRunner() works when every
// agent carries its own model; shared concerns (default model, session,
// tracing, logging, hooks) are configured once here and apply to every
// run. Runners are stateless across runs and safe for concurrent use.
type Runner struct {
	model     Model
	maxTurns  int
	session   Session
	tracer    Tracer
	logger    *slog.Logger
	hooks     RunHooks
	validator SchemaValidator
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithDefaultModel sets the model for agents that do not carry their own.
func WithDefaultModel(m Model) RunnerOption {
	return func(r *Runner) { r.model = m }
}

// WithDefaultMaxTurns sets the turn budget for runs that do not set one.
func WithDefaultMaxTurns(n int) RunnerOption {
	return func(r *Runner) { r.maxTurns = n }
}

// WithSession attaches a persistent conversation log. Runs read prior
// history from it before turn one and append their input and new items
// exactly once on successful completion.
func WithSession(s Session) RunnerOption {
	return func(r *Runner) { r.session = s }
}

// WithTracer sets the tracer for run, turn, and tool spans. Use
// observer.NewTracer() for an OTEL-backed implementation. Absent, spans
// are no-ops.
func WithTracer(t Tracer) RunnerOption {
	return func(r *Runner) { r.tracer = t }
}

// WithLogger sets the structured logger. Absent, output is discarded.
func WithLogger(l *slog.Logger) RunnerOption {
	return func(r *Runner) { r.logger = l }
}

// WithHooks attaches lifecycle callbacks to every run.
func WithHooks(h RunHooks) RunnerOption {
	return func(r *Runner) { r.hooks = h }
}

// WithValidator replaces the argument validator applied before each tool
// invocation. The default rejects non-object arguments, missing required
// properties, and unknown properties.
func WithValidator(v SchemaValidator) RunnerOption {
	return func(r *Runner) { r.validator = v }
}

// NewRunner builds a runner.
func NewRunner(opts ...RunnerOption) *Runner {
	r := &Runner{
		maxTurns:  DefaultMaxTurns,
		tracer:    nopTracer{},
		logger:    nopLogger,
		validator: strictValidator{},
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.maxTurns <= 0 {
		r.maxTurns = DefaultMaxTurns
	}
	if r.tracer == nil {
		r.tracer = nopTracer{}
	}
	if r.logger == nil {
		r.logger = nopLogger
	}
	if r.validator == nil {
		r.validator = strictValidator{}
	}
	return r
}

// RunOption adjusts a single run.
type RunOption func(*runConfig)

type runConfig struct {
	maxTurns        int
	userContext     any
	session         Session
	hooks           *RunHooks
	tracingDisabled bool
}

// WithMaxTurns overrides the runner's turn budget for this run.
func WithMaxTurns(n int) RunOption {
	return func(c *runConfig) { c.maxTurns = n }
}

// WithUserContext injects caller state reachable as RunContext.Context.
func WithUserContext(v any) RunOption {
	return func(c *runConfig) { c.userContext = v }
}

// WithRunSession overrides the runner's session for this run. Pass nil to
// run without one.
func WithRunSession(s Session) RunOption {
	return func(c *runConfig) { c.session = s }
}

// WithRunHooks replaces the runner's hooks for this run.
func WithRunHooks(h RunHooks) RunOption {
	return func(c *runConfig) { c.hooks = &h }
}

// WithTracingDisabled suppresses spans for this run.
func WithTracingDisabled() RunOption {
	return func(c *runConfig) { c.tracingDisabled = true }
}

// Run executes agent on input until a final output, blocking the caller.
// The terminal outcome is exactly one of: a result, *ErrMaxTurns
// (resumable), *ErrInputGuardrail, *ErrOutputGuardrail,
// *ErrModelBehavior, *ErrUser, *ErrTool, or the context's error.
func (r *Runner) Run(ctx context.Context, agent *Agent, input Input, opts ...RunOption) (*RunResult, error) {
	st, err := r.newRunState(ctx, agent, input, opts)
	if err != nil {
		return nil, err
	}
	ctx, span := st.tracer.Start(ctx, "run",
		StringAttr("agent", agent.Name()),
		StringAttr("run_id", st.rc.runID))
	defer span.End()
	res, err := r.loop(ctx, st, nil)
	if err != nil {
		span.Error(err)
		return nil, err
	}
	return res, nil
}

// RunStreamed executes agent on input in the background and returns a
// handle. Setup failures (bad configuration, unreadable session) are
// returned directly; everything after the first turn starts surfaces
// through the handle. Consume Events() until closed, then Wait() for the
// terminal outcome. Cancel() stops the run between events.
func (r *Runner) RunStreamed(ctx context.Context, agent *Agent, input Input, opts ...RunOption) (*RunHandle, error) {
	h := newRunHandle(ctx)
	st, err := r.newRunState(h.ctx, agent, input, opts)
	if err != nil {
		h.cancel()
		return nil, err
	}
	go func() {
		runCtx, span := st.tracer.Start(h.ctx,
			"run",
			StringAttr("agent", agent.Name()),
			StringAttr("run_id", st.rc.runID),
			BoolAttr("streamed", true))
		h.markRunning()
		res, err := r.loop(runCtx, st, h.emitFunc())
		if err != nil {
			span.Error(err)
		}
		span.End()
		if err != nil {
			h.finish(nil, err)
			// Best effort: a consumer that cancelled may be gone already.
			h.tryEmit(StreamEvent{Type: EventRunError, Agent: st.agent.Name(), Content: err.Error()})
		} else {
			h.finish(res, nil)
			h.tryEmit(StreamEvent{Type: EventRunFinished, Agent: res.LastAgent.Name(), Content: res.FinalOutputText()})
		}
		close(h.events)
	}()
	return h, nil
}

// newRunState resolves per-run configuration, reads session history, and
// builds the mutable state the loop advances.
func (r *Runner) newRunState(ctx context.Context, agent *Agent, input Input, opts []RunOption) (*runState, error) {
	if agent == nil {
		return nil, &ErrUser{Message: "run started with nil agent"}
	}
	cfg := runConfig{maxTurns: r.maxTurns, session: r.session}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.maxTurns <= 0 {
		cfg.maxTurns = r.maxTurns
	}
	hooks := r.hooks
	if cfg.hooks != nil {
		hooks = *cfg.hooks
	}
	tracer := r.tracer
	if cfg.tracingDisabled {
		tracer = nopTracer{}
	}

	original := input.runItems()
	var sessionItems []Item
	if cfg.session != nil {
		items, err := cfg.session.Items(ctx, 0)
		if err != nil {
			return nil, err
		}
		sessionItems = items
	}

	st := &runState{
		agent:         agent,
		originalInput: original,
		inputHistory:  append(append([]Item(nil), sessionItems...), original...),
		turn:          0,
		turnGrant:     cfg.maxTurns,
		maxTurns:      cfg.maxTurns,
		rc:            &RunContext{Context: cfg.userContext, runID: NewID(), usage: &Usage{}},
		session:       cfg.session,
		hooks:         hooks,
		tracer:        tracer,
		logger:        r.logger,
		pendingStart:  true,
	}
	return st, nil
}

// nopLogger discards all output. Used when WithLogger is not set.
var nopLogger = slog.New(discardHandler{})

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }
