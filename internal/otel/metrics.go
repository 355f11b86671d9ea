package otel

import "go.opentelemetry.io/otel/metric"

// Instruments records outbound call latency for the agent and tool server.
type Instruments struct {
	LLMCallDuration  metric.Float64Histogram
	ToolCallDuration metric.Float64Histogram
	ToolCallErrors   metric.Int64Counter
	MCPSessionErrors metric.Int64Counter
}

// NewInstruments creates the instruments from meter.
func NewInstruments(meter metric.Meter) (*Instruments, error) {
	m := &Instruments{}
	var err error

	m.LLMCallDuration, err = meter.Float64Histogram("shopscout.llm.duration",
		metric.WithDescription("Agent generate call duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	m.ToolCallDuration, err = meter.Float64Histogram("shopscout.tool.duration",
		metric.WithDescription("MCP tool call duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	m.ToolCallErrors, err = meter.Int64Counter("shopscout.tool.errors",
		metric.WithDescription("MCP tool calls that failed or returned an error result"),
	)
	if err != nil {
		return nil, err
	}

	m.MCPSessionErrors, err = meter.Int64Counter("shopscout.mcp.session_errors",
		metric.WithDescription("MCP sessions that failed to start or list tools"),
	)
	if err != nil {
		return nil, err
	}

	return m, nil
}
