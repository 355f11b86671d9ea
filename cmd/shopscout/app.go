package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/basket/shopscout/internal/config"
	"github.com/basket/shopscout/internal/engine"
	"github.com/basket/shopscout/internal/mcp"
	"github.com/basket/shopscout/internal/otel"
	"github.com/basket/shopscout/internal/search"
	"github.com/basket/shopscout/internal/telemetry"
)

// app is the process-wide state shared by serve and search. It is built
// once and only read afterwards.
type app struct {
	cfg     config.Config
	logger  *slog.Logger
	otel    *otel.Provider
	metrics *telemetry.Metrics
	bridge  *engine.Bridge

	logCloser io.Closer
}

func loadConfig(opts *rootOptions) (config.Config, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return cfg, err
	}
	if opts.logLevel != "" {
		cfg.LogLevel = opts.logLevel
	}
	return cfg, nil
}

// newApp wires logging, telemetry and the search bridge. quiet keeps logs
// out of stdout for commands that print results there.
func newApp(ctx context.Context, cfg config.Config, quiet bool) (*app, error) {
	logger, closer, err := telemetry.NewLogger(cfg.HomeDir, cfg.LogLevel, quiet)
	if err != nil {
		return nil, fmt.Errorf("init logging: %w", err)
	}
	slog.SetDefault(logger)

	a := &app{cfg: cfg, logger: logger, logCloser: closer}

	a.otel, err = otel.Init(ctx, cfg.Telemetry)
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("init telemetry: %w", err)
	}
	instruments, err := otel.NewInstruments(a.otel.Meter)
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("init instruments: %w", err)
	}
	a.metrics = telemetry.NewMetrics()

	decoder, err := search.NewDecoder(logger)
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("compile response schema: %w", err)
	}
	generator, err := engine.NewGenkitGenerator(ctx, engine.LLMSettings{
		Provider: cfg.LLM.Provider,
		Model:    cfg.LLM.Model,
		BaseURL:  cfg.LLM.BaseURL,
		APIKey:   cfg.ModelAPIKey(),
	})
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("init agent: %w", err)
	}

	a.bridge, err = engine.NewBridge(engine.Config{
		CheckSecrets: cfg.CheckSecrets,
		ToolServer:   cfg.ToolServer(),
		Dialer:       mcp.StdioDialer{Logger: logger},
		Generator:    generator,
		Decoder:      decoder,
		MaxTurns:     cfg.LLM.MaxTurns,
		Logger:       logger,
		Tracer:       a.otel.Tracer,
		Instruments:  instruments,
		Metrics:      a.metrics,
	})
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	logger.Info("shopscout initialized",
		"version", Version,
		"config", cfg.ConfigPath,
		"fingerprint", cfg.Fingerprint(),
		"provider", cfg.LLM.Provider,
		"model", generator.ModelName(),
		"mcp_command", cfg.MCP.Command,
	)
	return a, nil
}

// Close flushes telemetry and closes the log file.
func (a *app) Close() error {
	if a.otel != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.otel.Shutdown(ctx); err != nil {
			a.logger.Warn("telemetry shutdown", "error", err)
		}
	}
	if a.logCloser != nil {
		return a.logCloser.Close()
	}
	return nil
}
