package observer

import "go.opentelemetry.io/otel/attribute"

// Attribute keys for relay observability spans and metrics.
var (
	AttrModel       = attribute.Key("llm.model")
	AttrModelMethod = attribute.Key("llm.method")

	AttrTokensInput  = attribute.Key("llm.tokens.input")
	AttrTokensOutput = attribute.Key("llm.tokens.output")
	AttrCostUSD      = attribute.Key("llm.cost_usd")

	AttrToolCount = attribute.Key("llm.tool_count")
	AttrToolNames = attribute.Key("llm.tool_names")

	AttrStreamChunks = attribute.Key("llm.stream_chunks")

	AttrToolName         = attribute.Key("tool.name")
	AttrToolResultLength = attribute.Key("tool.result_length")

	AttrAgentName   = attribute.Key("agent.name")
	AttrHandoffFrom = attribute.Key("handoff.from")
	AttrHandoffTo   = attribute.Key("handoff.to")

	AttrRunID = attribute.Key("run.id")
)
