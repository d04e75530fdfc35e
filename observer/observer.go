// Package observer provides OTEL-based observability for relay runs.
//
// It supplies an OTEL-backed relay.Tracer, an instrumented relay.Model
// wrapper, and relay.RunHooks that record run-level metrics. Users export
// to any OTEL-compatible backend by setting standard OTEL env vars.
package observer

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	otellog "go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/log/global"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const scopeName = "github.com/nevindra/relay/observer"

// Instruments holds all OTEL instruments used by the observer wrappers.
type Instruments struct {
	Tracer trace.Tracer
	Meter  metric.Meter
	Logger otellog.Logger

	// Counters
	TokenUsage       metric.Int64Counter
	CostTotal        metric.Float64Counter
	ModelRequests    metric.Int64Counter
	ToolExecutions   metric.Int64Counter
	AgentActivations metric.Int64Counter
	AgentHandoffs    metric.Int64Counter
	RunCompletions   metric.Int64Counter

	// Histograms
	ModelDuration metric.Float64Histogram

	Cost *CostCalculator
}

// Init sets up OTEL trace, metric, and log providers with OTLP HTTP exporters.
// Configuration comes from standard OTEL env vars (OTEL_EXPORTER_OTLP_ENDPOINT, etc.).
// Returns a shutdown function that must be called on application exit.
func Init(ctx context.Context, service string, pricing map[string]ModelPricing) (*Instruments, func(context.Context) error, error) {
	if service == "" {
		service = "relay"
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceName(service)),
		resource.WithFromEnv(),
	)
	if err != nil {
		return nil, nil, err
	}

	// Trace provider
	traceExp, err := otlptracehttp.New(ctx)
	if err != nil {
		return nil, nil, err
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExp),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	// Metric provider
	metricExp, err := otlpmetrichttp.New(ctx)
	if err != nil {
		_ = tp.Shutdown(ctx)
		return nil, nil, err
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExp)),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(mp)

	// Log provider
	logExp, err := otlploghttp.New(ctx)
	if err != nil {
		_ = tp.Shutdown(ctx)
		_ = mp.Shutdown(ctx)
		return nil, nil, err
	}
	lp := sdklog.NewLoggerProvider(
		sdklog.WithProcessor(sdklog.NewBatchProcessor(logExp)),
		sdklog.WithResource(res),
	)
	global.SetLoggerProvider(lp)

	inst, err := newInstruments(pricing)
	if err != nil {
		_ = tp.Shutdown(ctx)
		_ = mp.Shutdown(ctx)
		_ = lp.Shutdown(ctx)
		return nil, nil, err
	}

	shutdown := func(ctx context.Context) error {
		return errors.Join(
			tp.Shutdown(ctx),
			mp.Shutdown(ctx),
			lp.Shutdown(ctx),
		)
	}

	return inst, shutdown, nil
}

func newInstruments(pricing map[string]ModelPricing) (*Instruments, error) {
	tracer := otel.Tracer(scopeName)
	meter := otel.Meter(scopeName)
	logger := global.GetLoggerProvider().Logger(scopeName)

	tokenUsage, err := meter.Int64Counter("llm.token.usage",
		metric.WithDescription("Total tokens consumed"),
		metric.WithUnit("{token}"))
	if err != nil {
		return nil, err
	}

	costTotal, err := meter.Float64Counter("llm.cost.total",
		metric.WithDescription("Cumulative LLM cost in USD"),
		metric.WithUnit("USD"))
	if err != nil {
		return nil, err
	}

	modelRequests, err := meter.Int64Counter("llm.requests",
		metric.WithDescription("Model request count"),
		metric.WithUnit("{request}"))
	if err != nil {
		return nil, err
	}

	toolExecutions, err := meter.Int64Counter("tool.executions",
		metric.WithDescription("Tool execution count"),
		metric.WithUnit("{execution}"))
	if err != nil {
		return nil, err
	}

	agentActivations, err := meter.Int64Counter("agent.activations",
		metric.WithDescription("Agent activation count (run starts and honored hand-offs)"),
		metric.WithUnit("{activation}"))
	if err != nil {
		return nil, err
	}

	agentHandoffs, err := meter.Int64Counter("agent.handoffs",
		metric.WithDescription("Honored hand-off count"),
		metric.WithUnit("{handoff}"))
	if err != nil {
		return nil, err
	}

	runCompletions, err := meter.Int64Counter("run.completions",
		metric.WithDescription("Completed run count"),
		metric.WithUnit("{run}"))
	if err != nil {
		return nil, err
	}

	modelDuration, err := meter.Float64Histogram("llm.duration",
		metric.WithDescription("Model call duration"),
		metric.WithUnit("ms"))
	if err != nil {
		return nil, err
	}

	return &Instruments{
		Tracer:           tracer,
		Meter:            meter,
		Logger:           logger,
		TokenUsage:       tokenUsage,
		CostTotal:        costTotal,
		ModelRequests:    modelRequests,
		ToolExecutions:   toolExecutions,
		AgentActivations: agentActivations,
		AgentHandoffs:    agentHandoffs,
		RunCompletions:   runCompletions,
		ModelDuration:    modelDuration,
		Cost:             NewCostCalculator(pricing),
	}, nil
}
