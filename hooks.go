package relay

import "context"

// RunHooks receives lifecycle callbacks as a run progresses. All fields
// are optional; a nil field is skipped. Hooks observe, they do not steer:
// an error from any hook aborts the run. Use guardrails to express
// policy, hooks for audit, metrics, and side bookkeeping.
type RunHooks struct {
	// OnAgentStart fires when an agent takes its first turn: at run start
	// and again after each honored hand-off.
	OnAgentStart func(ctx context.Context, rc *RunContext, agent *Agent) error
	// OnAgentEnd fires when an agent produces the run's final output.
	OnAgentEnd func(ctx context.Context, rc *RunContext, agent *Agent, output any) error
	// OnHandoff fires after a transfer completes, before the target's
	// first turn.
	OnHandoff func(ctx context.Context, rc *RunContext, from, to *Agent) error
	// OnModelStart fires before each model invocation.
	OnModelStart func(ctx context.Context, rc *RunContext, agent *Agent) error
	// OnModelEnd fires after each model invocation with the response.
	OnModelEnd func(ctx context.Context, rc *RunContext, agent *Agent, resp *ModelResponse) error
	// OnToolStart fires before each tool invocation.
	OnToolStart func(ctx context.Context, rc *RunContext, agent *Agent, tool Tool) error
	// OnToolEnd fires after each tool invocation with the output text.
	OnToolEnd func(ctx context.Context, rc *RunContext, agent *Agent, tool Tool, output string) error
}

func (h RunHooks) agentStart(ctx context.Context, rc *RunContext, agent *Agent) error {
	if h.OnAgentStart == nil {
		return nil
	}
	return h.OnAgentStart(ctx, rc, agent)
}

func (h RunHooks) agentEnd(ctx context.Context, rc *RunContext, agent *Agent, output any) error {
	if h.OnAgentEnd == nil {
		return nil
	}
	return h.OnAgentEnd(ctx, rc, agent, output)
}

func (h RunHooks) handoff(ctx context.Context, rc *RunContext, from, to *Agent) error {
	if h.OnHandoff == nil {
		return nil
	}
	return h.OnHandoff(ctx, rc, from, to)
}

func (h RunHooks) modelStart(ctx context.Context, rc *RunContext, agent *Agent) error {
	if h.OnModelStart == nil {
		return nil
	}
	return h.OnModelStart(ctx, rc, agent)
}

func (h RunHooks) modelEnd(ctx context.Context, rc *RunContext, agent *Agent, resp *ModelResponse) error {
	if h.OnModelEnd == nil {
		return nil
	}
	return h.OnModelEnd(ctx, rc, agent, resp)
}

func (h RunHooks) toolStart(ctx context.Context, rc *RunContext, agent *Agent, tool Tool) error {
	if h.OnToolStart == nil {
		return nil
	}
	return h.OnToolStart(ctx, rc, agent, tool)
}

func (h RunHooks) toolEnd(ctx context.Context, rc *RunContext, agent *Agent, tool Tool, output string) error {
	if h.OnToolEnd == nil {
		return nil
	}
	return h.OnToolEnd(ctx, rc, agent, tool, output)
}
