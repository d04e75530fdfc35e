package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// emitFunc is the loop's event sink. nil means a blocking run: no events
// are produced and notifications are discarded. A non-nil sink returns an
// error when the run is cancelled, which aborts the loop at the next
// event boundary.
type emitFunc func(StreamEvent) error

// runState is the mutable state of one logical run. It survives
// hand-offs (the active agent changes) and resume (the loop re-enters
// with a raised budget), so everything identity-bearing lives here rather
// than in loop locals.
//
// The transcript is tracked twice. inputHistory and generated are the
// model-facing view, which a hand-off input filter may restructure.
// newItems is the append-only record of everything the run produced; it
// feeds the result, the session, and ErrMaxTurns snapshots, and no filter
// touches it.
type runState struct {
	agent         *Agent
	originalInput []Item
	inputHistory  []Item
	generated     []Item
	newItems      []Item
	turn          int
	turnGrant     int
	maxTurns      int
	rc            *RunContext
	session       Session
	hooks         RunHooks
	tracer        Tracer
	logger        *slog.Logger
	responses     []*ModelResponse
	inputResults  []InputGuardrailResult
	outputResults []OutputGuardrailResult
	guardrailsRan bool
	pendingStart  bool
}

// history assembles the model-facing transcript for one request.
func (st *runState) history() []Item {
	out := make([]Item, 0, len(st.inputHistory)+len(st.generated))
	out = append(out, st.inputHistory...)
	out = append(out, st.generated...)
	return out
}

// record appends a generated item to both transcript views.
func (st *runState) record(it Item) {
	st.generated = append(st.generated, it)
	st.newItems = append(st.newItems, it)
}

// loop advances the run until a terminal outcome. Each iteration is one
// turn; between turns it enforces cancellation and the turn budget.
func (r *Runner) loop(ctx context.Context, st *runState, emit emitFunc) (*RunResult, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if st.turn >= st.maxTurns {
			st.logger.Warn("turn budget exhausted", "agent", st.agent.Name(), "turns", st.turn, "run_id", st.rc.runID)
			return nil, r.maxTurnsErr(st)
		}
		st.turn++

		final, output, err := r.executeTurn(ctx, st, emit)
		if err != nil {
			return nil, err
		}
		if !final {
			continue
		}

		res := &RunResult{
			Input:                  st.originalInput,
			NewItems:               st.newItems,
			FinalOutput:            output,
			Usage:                  *st.rc.usage,
			LastAgent:              st.agent,
			InputGuardrailResults:  st.inputResults,
			OutputGuardrailResults: st.outputResults,
		}
		if st.session != nil {
			items := make([]Item, 0, len(st.originalInput)+len(st.newItems))
			items = append(items, st.originalInput...)
			items = append(items, st.newItems...)
			if err := st.session.AddItems(ctx, items); err != nil {
				return nil, err
			}
		}
		return res, nil
	}
}

// executeTurn runs one turn of the active agent: resolve the agent's
// declaration, call the model, then either finalize (no tool calls) or
// execute the calls and resolve at most one hand-off.
func (r *Runner) executeTurn(ctx context.Context, st *runState, emit emitFunc) (final bool, output any, err error) {
	ctx, span := st.tracer.Start(ctx, "run.turn",
		IntAttr("turn", st.turn),
		StringAttr("agent", st.agent.Name()))
	defer span.End()
	defer func() {
		if err != nil {
			span.Error(err)
		}
	}()

	agent := st.agent
	turnStart := len(st.generated)
	st.logger.Debug("turn start", "agent", agent.Name(), "turn", st.turn, "run_id", st.rc.runID)

	// An agent takes over at run start and after each honored hand-off.
	if st.pendingStart {
		st.pendingStart = false
		if err := agent.validate(); err != nil {
			return false, nil, err
		}
		if err := st.hooks.agentStart(ctx, st.rc, agent); err != nil {
			return false, nil, err
		}
		if emit != nil {
			if err := emit(StreamEvent{Type: EventAgentUpdated, Agent: agent.Name()}); err != nil {
				return false, nil, err
			}
		}
	}

	// Input guardrails judge the original input once per run, before the
	// first model call. A resumed run does not re-run them.
	if !st.guardrailsRan {
		st.guardrailsRan = true
		for _, g := range agent.inputGuardrails {
			out, gerr := g.Check(ctx, st.rc, agent, st.originalInput)
			if gerr != nil {
				return false, nil, gerr
			}
			res := InputGuardrailResult{Guardrail: g, Output: out}
			st.inputResults = append(st.inputResults, res)
			if out.TripwireTriggered {
				return false, nil, &ErrInputGuardrail{Result: res}
			}
		}
	}

	instructions, err := agent.resolveInstructions(ctx, st.rc)
	if err != nil {
		return false, nil, err
	}
	defs, toolsByName, handoffsByName := agent.declarations(ctx, st.rc)

	var outputSpec *OutputSpec
	if ot := agent.outputType; ot != nil {
		outputSpec = &OutputSpec{Name: ot.Name, Schema: ot.Schema, Strict: ot.Strict}
	}
	req := ModelRequest{
		Instructions: instructions,
		History:      st.history(),
		Tools:        defs,
		Output:       outputSpec,
		Settings:     agent.settings,
	}

	model := agent.model
	if model == nil {
		model = r.model
	}
	if model == nil {
		return false, nil, &ErrUser{Message: fmt.Sprintf("agent %s has no model and the runner has no default", agent.Name())}
	}

	if err := st.hooks.modelStart(ctx, st.rc, agent); err != nil {
		return false, nil, err
	}
	resp, err := r.callModel(ctx, st, model, req, emit)
	if err != nil {
		return false, nil, err
	}
	usage := resp.Usage
	usage.Requests = 1
	st.rc.usage.Add(usage)
	st.responses = append(st.responses, resp)
	if err := st.hooks.modelEnd(ctx, st.rc, agent, resp); err != nil {
		return false, nil, err
	}

	if resp.Content != "" {
		item := AssistantMessage{Content: resp.Content}
		st.record(item)
		if emit != nil {
			if err := emit(StreamEvent{Type: EventMessageOutput, Agent: agent.Name(), Content: resp.Content, Item: item}); err != nil {
				return false, nil, err
			}
		}
	}
	if resp.Reasoning != "" {
		st.record(ReasoningItem{Content: resp.Reasoning})
	}

	// A response without calls terminates the run.
	if len(resp.ToolCalls) == 0 {
		out, err := r.finalizeTurn(ctx, st, resp.Content)
		if err != nil {
			return false, nil, err
		}
		return true, out, nil
	}

	// Classify calls in model order. Unknown names are the model's fault.
	var toolRuns []toolInvocation
	var handoffRuns []handoffInvocation
	for _, call := range resp.ToolCalls {
		if h, ok := handoffsByName[call.Name]; ok {
			item := HandoffCallItem{ID: call.ID, Name: call.Name, Arguments: call.Arguments}
			st.record(item)
			if emit != nil {
				if err := emit(StreamEvent{Type: EventHandoffRequested, Agent: agent.Name(), Name: call.Name, Args: call.Arguments, Item: item}); err != nil {
					return false, nil, err
				}
			}
			handoffRuns = append(handoffRuns, handoffInvocation{call: call, handoff: h})
			continue
		}
		t, ok := toolsByName[call.Name]
		if !ok {
			return false, nil, &ErrModelBehavior{Message: fmt.Sprintf("model called unknown tool %q", call.Name)}
		}
		item := ToolCallItem{ID: call.ID, Name: call.Name, Arguments: call.Arguments}
		st.record(item)
		if emit != nil {
			if err := emit(StreamEvent{Type: EventToolCallStart, Agent: agent.Name(), Name: call.Name, Args: call.Arguments, Item: item}); err != nil {
				return false, nil, err
			}
		}
		toolRuns = append(toolRuns, toolInvocation{call: call, tool: t})
	}

	// Tool calls issued alongside a hand-off still execute, and their
	// outputs land before the transfer is recorded.
	if len(toolRuns) > 0 {
		if err := r.invokeTools(ctx, st, toolRuns, emit); err != nil {
			return false, nil, err
		}
	}
	if len(handoffRuns) > 0 {
		if err := r.resolveHandoff(ctx, st, handoffRuns, turnStart, emit); err != nil {
			return false, nil, err
		}
	}
	return false, nil, nil
}

// finalizeTurn turns the closing response's content into the run's final
// output: parse it against the agent's output type, then let the output
// guardrails judge it.
func (r *Runner) finalizeTurn(ctx context.Context, st *runState, content string) (any, error) {
	agent := st.agent
	var output any = content
	if agent.outputType != nil {
		parsed, err := agent.outputType.parse(content)
		if err != nil {
			return nil, &ErrModelBehavior{Message: fmt.Sprintf("final output does not parse as %s: %v", agent.outputType.Name, err)}
		}
		output = parsed
	}
	for _, g := range agent.outputGuardrails {
		out, err := g.Check(ctx, st.rc, agent, output)
		if err != nil {
			return nil, err
		}
		res := OutputGuardrailResult{Guardrail: g, Agent: agent, AgentOutput: output, Output: out}
		st.outputResults = append(st.outputResults, res)
		if out.TripwireTriggered {
			return nil, &ErrOutputGuardrail{Result: res}
		}
	}
	if err := st.hooks.agentEnd(ctx, st.rc, agent, output); err != nil {
		return nil, err
	}
	return output, nil
}

// callModel performs one model invocation. In streaming mode a pump
// goroutine forwards deltas to the event sink while RespondStream runs;
// the complete response is returned only after the delta channel closes,
// so delta events always precede the turn's item events.
func (r *Runner) callModel(ctx context.Context, st *runState, model Model, req ModelRequest, emit emitFunc) (*ModelResponse, error) {
	if emit == nil {
		return model.Respond(ctx, req)
	}
	agentName := st.agent.Name()
	deltas := make(chan ModelDelta)
	pumpDone := make(chan error, 1)
	go func() {
		var emitErr error
		for d := range deltas {
			if emitErr != nil {
				continue
			}
			switch d.Kind {
			case DeltaText:
				emitErr = emit(StreamEvent{Type: EventTextDelta, Agent: agentName, Content: d.Text})
			case DeltaReasoning:
				emitErr = emit(StreamEvent{Type: EventReasoningDelta, Agent: agentName, Content: d.Text})
			}
			// Tool-argument fragments are not surfaced; the assembled
			// call arrives with tool-call-start.
		}
		pumpDone <- emitErr
	}()
	resp, err := model.RespondStream(ctx, req, deltas)
	emitErr := <-pumpDone
	if err != nil {
		return nil, err
	}
	if emitErr != nil {
		return nil, emitErr
	}
	return resp, nil
}

// --- tool execution ---

type toolInvocation struct {
	call ToolCall
	tool Tool
}

type handoffInvocation struct {
	call    ToolCall
	handoff *Handoff
}

type toolOutcome struct {
	output string
	err    error
}

// maxParallelTools caps concurrent tool handlers per turn so a large
// fan-out cannot overwhelm external services.
const maxParallelTools = 10

// invokeTools executes a turn's tool calls concurrently and rejoins the
// outputs in request order: history and events reflect the order the
// model asked, not completion order. The first failing call (again in
// request order) aborts the run.
func (r *Runner) invokeTools(ctx context.Context, st *runState, runs []toolInvocation, emit emitFunc) error {
	agent := st.agent
	for _, inv := range runs {
		if err := st.hooks.toolStart(ctx, st.rc, agent, inv.tool); err != nil {
			return err
		}
	}

	outcomes := make([]toolOutcome, len(runs))
	if len(runs) == 1 {
		out, err := r.invokeOne(ctx, st, runs[0], emit)
		outcomes[0] = toolOutcome{output: out, err: err}
	} else {
		jobs := make(chan int, len(runs))
		for i := range runs {
			jobs <- i
		}
		close(jobs)
		var wg sync.WaitGroup
		workers := min(len(runs), maxParallelTools)
		wg.Add(workers)
		for range workers {
			go func() {
				defer wg.Done()
				for i := range jobs {
					if err := ctx.Err(); err != nil {
						outcomes[i] = toolOutcome{err: err}
						continue
					}
					out, err := r.invokeOne(ctx, st, runs[i], emit)
					outcomes[i] = toolOutcome{output: out, err: err}
				}
			}()
		}
		wg.Wait()
	}

	for i, inv := range runs {
		if err := outcomes[i].err; err != nil {
			return wrapToolErr(inv.tool.Name(), err)
		}
		item := ToolOutputItem{CallID: inv.call.ID, Name: inv.call.Name, Output: outcomes[i].output}
		st.record(item)
		if err := st.hooks.toolEnd(ctx, st.rc, agent, inv.tool, outcomes[i].output); err != nil {
			return err
		}
		if emit != nil {
			if err := emit(StreamEvent{Type: EventToolCallResult, Agent: agent.Name(), Name: inv.call.Name, Content: outcomes[i].output, Item: item}); err != nil {
				return err
			}
		}
	}
	return nil
}

func (r *Runner) invokeOne(ctx context.Context, st *runState, inv toolInvocation, emit emitFunc) (string, error) {
	ctx, span := st.tracer.Start(ctx, "run.tool", StringAttr("tool", inv.tool.Name()))
	defer span.End()
	st.logger.Debug("tool call", "tool", inv.tool.Name(), "run_id", st.rc.runID)
	out, err := r.dispatchTool(ctx, st, inv, emit)
	if err != nil {
		span.Error(err)
	}
	return out, err
}

// dispatchTool runs one call against its tool variant. The Tool set is
// closed; anything else is an integration mistake.
func (r *Runner) dispatchTool(ctx context.Context, st *runState, inv toolInvocation, emit emitFunc) (string, error) {
	switch t := inv.tool.(type) {
	case *FunctionTool:
		args, err := r.validator.Validate(t.schema, inv.call.Arguments)
		if err != nil {
			return "", &ErrModelBehavior{Message: fmt.Sprintf("tool %s: %v", t.name, err)}
		}
		v, err := t.invoke(ctx, st.rc, args)
		if err != nil {
			return "", err
		}
		out, err := stringifyToolOutput(v)
		if err != nil {
			return "", err
		}
		if t.noResult && out != "" {
			return "", &ErrUser{Message: fmt.Sprintf("tool %s declares no result but returned %q", t.name, out)}
		}
		return out, nil
	case *StreamingTool:
		args, err := r.validator.Validate(t.schema, inv.call.Arguments)
		if err != nil {
			return "", &ErrModelBehavior{Message: fmt.Sprintf("tool %s: %v", t.name, err)}
		}
		return r.streamTool(ctx, st, t, args, emit)
	case *ComputerTool:
		var action ComputerAction
		if err := json.Unmarshal(inv.call.Arguments, &action); err != nil {
			return "", &ErrModelBehavior{Message: fmt.Sprintf("tool %s: cannot decode action: %v", t.name, err)}
		}
		if err := t.perform(ctx, action); err != nil {
			return "", err
		}
		png, err := t.computer.Screenshot(ctx)
		if err != nil {
			return "", err
		}
		return t.store.Put(ctx, png)
	case *HostedTool:
		return "", &ErrModelBehavior{Message: fmt.Sprintf("model addressed a call to provider-executed tool %q", t.name)}
	default:
		return "", &ErrUser{Message: fmt.Sprintf("unsupported tool type %T", inv.tool)}
	}
}

// streamTool drives a streaming tool's producer over an unbuffered
// channel, forwarding notifications as events and keeping the single
// terminal as the tool output. The sequence is drained fully even after
// an emit failure so the producer is never stranded mid-send.
func (r *Runner) streamTool(ctx context.Context, st *runState, t *StreamingTool, args json.RawMessage, emit emitFunc) (string, error) {
	out := make(chan ToolStreamItem)
	errc := make(chan error, 1)
	go func() {
		defer close(out)
		errc <- t.run(ctx, st.rc, args, out)
	}()

	var terminal string
	terminals := 0
	var emitErr error
	for item := range out {
		switch item.Kind {
		case ToolStreamTerminal:
			terminals++
			if terminals == 1 {
				terminal = item.Text
			}
		case ToolStreamNotification:
			if emit == nil || emitErr != nil {
				continue
			}
			emitErr = emit(StreamEvent{Type: EventToolNotification, Agent: st.agent.Name(), Name: t.name, Content: item.Text, Delta: item.Delta})
		}
	}
	if err := <-errc; err != nil {
		return "", err
	}
	if emitErr != nil {
		return "", emitErr
	}
	if terminals != 1 {
		return "", &ErrUser{Message: fmt.Sprintf("streaming tool %s emitted %d terminal items, want exactly 1", t.name, terminals)}
	}
	return terminal, nil
}

// wrapToolErr attaches the failing tool's identity to handler errors.
// Contract violations keep their type: bad arguments are the model's
// fault and misdeclarations the integrator's, not the tool's. Context
// errors pass through so cancellation stays recognizable.
func wrapToolErr(name string, err error) error {
	var ue *ErrUser
	var mb *ErrModelBehavior
	var te *ErrTool
	if errors.As(err, &ue) || errors.As(err, &mb) || errors.As(err, &te) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return &ErrTool{Tool: name, Err: err}
}

// --- hand-off resolution ---

// rejectedHandoffOutput is the acknowledgement recorded for hand-off
// requests beyond the first in a single turn.
const rejectedHandoffOutput = "Multiple handoffs detected, ignoring this one."

// resolveHandoff honors the first requested hand-off and rejects the
// rest. The honored transfer validates its payload, runs the OnHandoff
// callback, records the transfer acknowledgement, applies the input
// filter to the model-facing transcript, and makes the target the active
// agent for the next turn.
func (r *Runner) resolveHandoff(ctx context.Context, st *runState, runs []handoffInvocation, turnStart int, emit emitFunc) error {
	chosen := runs[0]
	for _, rejected := range runs[1:] {
		item := ToolOutputItem{CallID: rejected.call.ID, Name: rejected.call.Name, Output: rejectedHandoffOutput}
		st.record(item)
		if emit != nil {
			if err := emit(StreamEvent{Type: EventToolCallResult, Agent: st.agent.Name(), Name: rejected.call.Name, Content: rejectedHandoffOutput, Item: item}); err != nil {
				return err
			}
		}
	}

	h := chosen.handoff
	source := st.agent
	target := h.agent

	args := chosen.call.Arguments
	if len(h.inputSchema) > 0 {
		validated, err := r.validator.Validate(h.inputSchema, args)
		if err != nil {
			return &ErrModelBehavior{Message: fmt.Sprintf("handoff %s: %v", h.toolName, err)}
		}
		args = validated
	}
	if h.onHandoff != nil {
		if err := h.onHandoff(ctx, st.rc, args); err != nil {
			return err
		}
	}

	ack := transferMessage(target)
	item := HandoffOutputItem{CallID: chosen.call.ID, SourceAgent: source.Name(), TargetAgent: target.Name(), Output: ack}
	st.record(item)

	// The filter restructures only the model-facing transcript; the
	// run's audit trail keeps every item.
	if h.inputFilter != nil {
		data := h.inputFilter(HandoffInputData{
			InputHistory:    append([]Item(nil), st.inputHistory...),
			PreHandoffItems: cloneItems(st.generated[:turnStart]),
			NewItems:        cloneItems(st.generated[turnStart:]),
		})
		st.inputHistory = data.InputHistory
		st.generated = append(append([]Item(nil), data.PreHandoffItems...), data.NewItems...)
	}

	st.agent = target
	st.pendingStart = true
	st.logger.Debug("handoff", "from", source.Name(), "to", target.Name(), "run_id", st.rc.runID)
	if err := st.hooks.handoff(ctx, st.rc, source, target); err != nil {
		return err
	}
	if emit != nil {
		if err := emit(StreamEvent{Type: EventHandoffOccurred, Agent: target.Name(), Name: h.toolName, Content: ack, Item: item}); err != nil {
			return err
		}
	}
	return nil
}

// --- budget exhaustion ---

// maxTurnsErr snapshots the interrupted run and arms the single-use
// resume closure. The closure reuses the live runState: same RunContext,
// same transcript, monotonic turn counter and usage, with the budget cap
// raised relative to the turn the run stopped at.
func (r *Runner) maxTurnsErr(st *runState) *ErrMaxTurns {
	e := &ErrMaxTurns{
		Turns: st.turn,
		State: &RunState{
			Agent:     st.agent,
			Input:     cloneItems(st.originalInput),
			Items:     cloneItems(st.newItems),
			History:   cloneItems(st.history()),
			Turn:      st.turn,
			MaxTurns:  st.maxTurns,
			Context:   st.rc,
			Responses: append([]*ModelResponse(nil), st.responses...),
		},
	}
	e.resume = func(ctx context.Context, opts ...ResumeOption) (*RunResult, error) {
		cfg := resumeConfig{maxTurns: st.turnGrant}
		for _, opt := range opts {
			opt(&cfg)
		}
		if cfg.maxTurns <= 0 {
			cfg.maxTurns = st.turnGrant
		}
		st.maxTurns = st.turn + cfg.maxTurns
		for _, it := range cfg.input {
			st.record(it)
		}
		return r.loop(ctx, st, nil)
	}
	return e
}
