// Package engine runs one product search end to end: it opens a session
// with the scraping tool server, hands its tools to the agent, and decodes
// the agent's answer.
package engine

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/basket/shopscout/internal/mcp"
	"github.com/basket/shopscout/internal/otel"
	"github.com/basket/shopscout/internal/safety"
	"github.com/basket/shopscout/internal/search"
	"github.com/basket/shopscout/internal/shared"
	"github.com/basket/shopscout/internal/telemetry"
)

// Config wires a Bridge. Everything here is process-wide and read-only.
type Config struct {
	// CheckSecrets returns a *search.ConfigurationError when credentials
	// are missing. Nil means always configured.
	CheckSecrets func() error
	ToolServer   mcp.ServerConfig
	Dialer       mcp.Dialer
	Generator    Generator
	Decoder      *search.Decoder
	MaxTurns     int

	Logger      *slog.Logger
	Tracer      trace.Tracer
	Instruments *otel.Instruments
	Metrics     *telemetry.Metrics
}

// Bridge is the agent invocation bridge. It keeps no per-search state, so
// concurrent searches are independent.
type Bridge struct {
	checkSecrets func() error
	toolServer   mcp.ServerConfig
	dialer       mcp.Dialer
	generator    Generator
	decoder      *search.Decoder
	maxTurns     int

	logger      *slog.Logger
	tracer      trace.Tracer
	instruments *otel.Instruments
	metrics     *telemetry.Metrics
}

// NewBridge validates cfg and fills defaults for the optional parts.
func NewBridge(cfg Config) (*Bridge, error) {
	if cfg.Dialer == nil {
		return nil, errors.New("engine: dialer is required")
	}
	if cfg.Generator == nil {
		return nil, errors.New("engine: generator is required")
	}
	if cfg.Decoder == nil {
		return nil, errors.New("engine: decoder is required")
	}
	b := &Bridge{
		checkSecrets: cfg.CheckSecrets,
		toolServer:   cfg.ToolServer,
		dialer:       cfg.Dialer,
		generator:    cfg.Generator,
		decoder:      cfg.Decoder,
		maxTurns:     cfg.MaxTurns,
		logger:       cfg.Logger,
		tracer:       cfg.Tracer,
		instruments:  cfg.Instruments,
		metrics:      cfg.Metrics,
	}
	if b.checkSecrets == nil {
		b.checkSecrets = func() error { return nil }
	}
	if b.logger == nil {
		b.logger = slog.Default()
	}
	if b.tracer == nil || b.instruments == nil {
		noop := otel.Noop()
		if b.tracer == nil {
			b.tracer = noop.Tracer
		}
		if b.instruments == nil {
			inst, err := otel.NewInstruments(noop.Meter)
			if err != nil {
				return nil, err
			}
			b.instruments = inst
		}
	}
	return b, nil
}

// Search validates the input, then makes exactly one attempt against the
// tool server and the agent. Errors are always one of the four search
// error kinds. No retry and no local timeout is applied; ctx is honored.
func (b *Bridge) Search(ctx context.Context, query string, platforms []string) (search.SearchResponse, error) {
	start := time.Now()
	ctx, span := otel.StartSpan(ctx, b.tracer, "search", otel.AttrTraceID.String(shared.TraceID(ctx)))
	logger := b.logger.With("trace_id", shared.TraceID(ctx))

	resp, err := b.search(ctx, logger, query, platforms)

	elapsed := time.Since(start)
	if err != nil {
		kind := search.KindOf(err)
		span.SetAttributes(otel.AttrErrorKind.String(string(kind)))
		level := slog.LevelWarn
		if kind == search.KindValidation {
			level = slog.LevelInfo
		}
		logger.Log(ctx, level, "search failed", "kind", kind, "error", err, "duration_ms", elapsed.Milliseconds())
	} else {
		span.SetAttributes(otel.AttrHitCount.Int(resp.HitCount()))
		logger.Info("search finished",
			"platforms", strings.Join(resp.PlatformNames(), ","),
			"hits", resp.HitCount(),
			"duration_ms", elapsed.Milliseconds(),
		)
	}
	otel.EndSpan(span, err)
	return resp, err
}

func (b *Bridge) search(ctx context.Context, logger *slog.Logger, query string, platforms []string) (search.SearchResponse, error) {
	if err := b.checkSecrets(); err != nil {
		return search.SearchResponse{}, err
	}

	req, err := search.NewRequest(query, platforms)
	if err != nil {
		return search.SearchResponse{}, err
	}
	if v := safety.Screen(req.Query); v.Suspicious() {
		logger.Warn("suspicious query sent", "reason", v.Reason)
	}
	logger.Debug("search started", "query", req.Query, "platforms", strings.Join(req.Platforms, ","))

	session, tools, err := b.openSession(ctx, logger)
	if err != nil {
		return search.SearchResponse{}, err
	}
	defer func() {
		_ = session.Close()
	}()

	text, err := b.generate(ctx, req, tools, b.invoker(session, logger))
	if err != nil {
		return search.SearchResponse{}, err
	}
	if leaks := safety.ScanOutput(text); len(leaks) > 0 {
		logger.Warn("agent output contains credential-like text", "findings", len(leaks), "first_kind", leaks[0].Kind)
	}

	_, span := otel.StartSpan(ctx, b.tracer, "search.decode")
	resp, err := b.decoder.Decode(text, req)
	otel.EndSpan(span, err)
	return resp, err
}

func (b *Bridge) openSession(ctx context.Context, logger *slog.Logger) (mcp.Session, []mcp.Tool, error) {
	ctx, span := otel.StartClientSpan(ctx, b.tracer, "mcp.session", otel.AttrMCPCommand.String(b.toolServer.Command))

	session, err := b.dialer.Dial(ctx, b.toolServer)
	if err != nil {
		err = asConnectionError("start", err)
		b.instruments.MCPSessionErrors.Add(ctx, 1)
		otel.EndSpan(span, err)
		return nil, nil, err
	}

	tools, err := session.ListTools(ctx)
	if err != nil {
		_ = session.Close()
		err = asConnectionError("list tools", err)
		b.instruments.MCPSessionErrors.Add(ctx, 1)
		otel.EndSpan(span, err)
		return nil, nil, err
	}
	span.SetAttributes(otel.AttrToolCount.Int(len(tools)))
	otel.EndSpan(span, nil)
	logger.Debug("mcp tools listed", "count", len(tools))
	return session, tools, nil
}

func asConnectionError(op string, err error) error {
	if search.KindOf(err) == search.KindConnection {
		return err
	}
	return &search.ConnectionError{Op: op, Err: err}
}

func (b *Bridge) generate(ctx context.Context, req search.Request, tools []mcp.Tool, invoke InvokeFunc) (string, error) {
	ctx, span := otel.StartClientSpan(ctx, b.tracer, "llm.generate",
		otel.AttrPlatforms.String(strings.Join(req.Platforms, ",")),
	)
	start := time.Now()
	text, err := b.generator.Generate(ctx, AgentInput{
		System:   SystemPrompt(req),
		Prompt:   req.Prompt(),
		Tools:    tools,
		Invoke:   invoke,
		MaxTurns: b.maxTurns,
	})
	b.instruments.LLMCallDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		err = search.NewUpstreamError("generate", err)
	}
	otel.EndSpan(span, err)
	return text, err
}

// invoker routes agent tool calls to session. Tool-level failures are
// handed back to the model as text so it can pick another tool.
func (b *Bridge) invoker(session mcp.Session, logger *slog.Logger) InvokeFunc {
	return func(ctx context.Context, tool string, args map[string]any) (string, error) {
		ctx, span := otel.StartClientSpan(ctx, b.tracer, "mcp.call_tool", otel.AttrToolName.String(tool))
		start := time.Now()
		res, err := session.CallTool(ctx, tool, args)
		b.instruments.ToolCallDuration.Record(ctx, time.Since(start).Seconds())

		failed := err != nil || res.IsError
		b.metrics.ObserveToolCall(tool, failed)
		if failed {
			b.instruments.ToolCallErrors.Add(ctx, 1)
		}
		otel.EndSpan(span, err)

		if err != nil {
			logger.Warn("mcp tool call failed", "tool", tool, "error", err)
			return "", err
		}
		logger.Debug("mcp tool call", "tool", tool, "is_error", res.IsError, "bytes", len(res.Text))
		if res.IsError {
			return "Tool error: " + res.Text, nil
		}
		return res.Text, nil
	}
}
