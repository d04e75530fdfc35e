package observer

import (
	"context"

	"github.com/nevindra/relay"

	otellog "go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/metric"
)

// Hooks returns relay.RunHooks that record agent, hand-off, and tool
// metrics from run lifecycle callbacks. Pass the result to
// relay.WithHooks or relay.WithRunHooks.
//
// Model-level telemetry (tokens, cost, latency) comes from WrapModel;
// the two instrument disjoint boundaries and can be combined without
// double counting.
func Hooks(inst *Instruments) relay.RunHooks {
	return relay.RunHooks{
		OnAgentStart: func(ctx context.Context, rc *relay.RunContext, agent *relay.Agent) error {
			inst.AgentActivations.Add(ctx, 1, metric.WithAttributes(
				AttrAgentName.String(agent.Name()),
			))
			return nil
		},
		OnHandoff: func(ctx context.Context, rc *relay.RunContext, from, to *relay.Agent) error {
			inst.AgentHandoffs.Add(ctx, 1, metric.WithAttributes(
				AttrHandoffFrom.String(from.Name()),
				AttrHandoffTo.String(to.Name()),
			))
			return nil
		},
		OnToolEnd: func(ctx context.Context, rc *relay.RunContext, agent *relay.Agent, tool relay.Tool, output string) error {
			inst.ToolExecutions.Add(ctx, 1, metric.WithAttributes(
				AttrToolName.String(tool.Name()),
			))

			var rec otellog.Record
			rec.SetSeverity(otellog.SeverityInfo)
			rec.SetBody(otellog.StringValue("tool executed"))
			rec.AddAttributes(
				otellog.String("tool.name", tool.Name()),
				otellog.String("agent.name", agent.Name()),
				otellog.String("run.id", rc.RunID()),
				otellog.Int("tool.result_length", len(output)),
			)
			inst.Logger.Emit(ctx, rec)
			return nil
		},
		OnAgentEnd: func(ctx context.Context, rc *relay.RunContext, agent *relay.Agent, output any) error {
			inst.RunCompletions.Add(ctx, 1, metric.WithAttributes(
				AttrAgentName.String(agent.Name()),
			))

			usage := rc.Usage()
			var rec otellog.Record
			rec.SetSeverity(otellog.SeverityInfo)
			rec.SetBody(otellog.StringValue("run completed"))
			rec.AddAttributes(
				otellog.String("agent.name", agent.Name()),
				otellog.String("run.id", rc.RunID()),
				otellog.Int("llm.requests", usage.Requests),
				otellog.Int("llm.tokens.input", usage.InputTokens),
				otellog.Int("llm.tokens.output", usage.OutputTokens),
			)
			inst.Logger.Emit(ctx, rec)
			return nil
		},
	}
}
