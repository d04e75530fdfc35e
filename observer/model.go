package observer

import (
	"context"
	"time"

	"github.com/nevindra/relay"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	otellog "go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// ObservedModel wraps a relay.Model with OTEL instrumentation. Each call
// emits an llm.respond span, token and cost counters, a duration
// histogram, and a structured log record.
type ObservedModel struct {
	inner relay.Model
	inst  *Instruments
}

// WrapModel returns an instrumented model that emits traces, metrics, and logs.
func WrapModel(inner relay.Model, inst *Instruments) *ObservedModel {
	return &ObservedModel{inner: inner, inst: inst}
}

func (o *ObservedModel) Name() string { return o.inner.Name() }

func (o *ObservedModel) Respond(ctx context.Context, req relay.ModelRequest) (*relay.ModelResponse, error) {
	spanAttrs := []trace.SpanStartOption{
		trace.WithAttributes(AttrModel.String(o.inner.Name())),
	}
	if len(req.Tools) > 0 {
		toolNames := make([]string, len(req.Tools))
		for i, t := range req.Tools {
			toolNames[i] = t.Name
		}
		spanAttrs = append(spanAttrs, trace.WithAttributes(
			AttrToolCount.Int(len(req.Tools)),
			AttrToolNames.StringSlice(toolNames),
		))
	}

	ctx, span := o.inst.Tracer.Start(ctx, "llm.respond", spanAttrs...)
	defer span.End()
	start := time.Now()

	resp, err := o.inner.Respond(ctx, req)

	durationMs := float64(time.Since(start).Milliseconds())
	status := "ok"
	if err != nil {
		status = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	var usage relay.Usage
	if resp != nil {
		usage = resp.Usage
	}
	o.record(ctx, span, "respond", status, durationMs, usage)
	return resp, err
}

func (o *ObservedModel) RespondStream(ctx context.Context, req relay.ModelRequest, ch chan<- relay.ModelDelta) (*relay.ModelResponse, error) {
	ctx, span := o.inst.Tracer.Start(ctx, "llm.respond_stream", trace.WithAttributes(
		AttrModel.String(o.inner.Name()),
	))
	defer span.End()
	start := time.Now()

	// Wrap the channel to count chunks. The goroutine forwards deltas
	// from wrappedCh to the caller's ch and closes ch when the inner
	// model closes wrappedCh. Buffer wrappedCh generously so the inner
	// model never blocks on send while nobody reads ch before
	// RespondStream returns.
	bufSize := max(cap(ch), 64)
	wrappedCh := make(chan relay.ModelDelta, bufSize)
	chunks := 0
	done := make(chan struct{})
	go func() {
		defer close(ch)
		defer close(done)
		for d := range wrappedCh {
			chunks++
			select {
			case ch <- d:
			case <-ctx.Done():
				return
			}
		}
	}()

	resp, err := o.inner.RespondStream(ctx, req, wrappedCh)
	<-done // wait for goroutine to finish before reading chunks

	durationMs := float64(time.Since(start).Milliseconds())
	status := "ok"
	if err != nil {
		status = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	span.SetAttributes(AttrStreamChunks.Int(chunks))
	var usage relay.Usage
	if resp != nil {
		usage = resp.Usage
	}
	o.record(ctx, span, "respond_stream", status, durationMs, usage)
	return resp, err
}

func (o *ObservedModel) record(ctx context.Context, span trace.Span, method, status string, durationMs float64, usage relay.Usage) {
	model := o.inner.Name()
	cost := o.inst.Cost.Calculate(model, usage.InputTokens, usage.OutputTokens)

	attrs := metric.WithAttributes(
		AttrModel.String(model),
		AttrModelMethod.String(method),
	)

	span.SetAttributes(
		AttrTokensInput.Int(usage.InputTokens),
		AttrTokensOutput.Int(usage.OutputTokens),
		AttrCostUSD.Float64(cost),
	)

	o.inst.TokenUsage.Add(ctx, int64(usage.InputTokens), metric.WithAttributes(
		AttrModel.String(model),
		attribute.String("direction", "input"),
	))
	o.inst.TokenUsage.Add(ctx, int64(usage.OutputTokens), metric.WithAttributes(
		AttrModel.String(model),
		attribute.String("direction", "output"),
	))
	o.inst.CostTotal.Add(ctx, cost, attrs)
	o.inst.ModelRequests.Add(ctx, 1, metric.WithAttributes(
		AttrModel.String(model),
		AttrModelMethod.String(method),
		attribute.String("status", status),
	))
	o.inst.ModelDuration.Record(ctx, durationMs, attrs)

	// Structured log
	var rec otellog.Record
	rec.SetSeverity(otellog.SeverityInfo)
	rec.SetBody(otellog.StringValue("model call completed"))
	rec.AddAttributes(
		otellog.String("llm.model", model),
		otellog.String("llm.method", method),
		otellog.Int("llm.tokens.input", usage.InputTokens),
		otellog.Int("llm.tokens.output", usage.OutputTokens),
		otellog.Float64("llm.cost_usd", cost),
		otellog.Float64("llm.duration_ms", durationMs),
		otellog.String("status", status),
	)
	o.inst.Logger.Emit(ctx, rec)
}

// compile-time check
var _ relay.Model = (*ObservedModel)(nil)
