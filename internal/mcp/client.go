// Package mcp opens per-search sessions with the scraping tool server over
// the Model Context Protocol.
package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/basket/shopscout/internal/search"
)

const (
	clientName    = "shopscout"
	clientVersion = "0.3.0"
)

// Tool is one capability advertised by the server.
type Tool struct {
	Name        string
	Description string
	InputSchema json.RawMessage
}

// ToolResult is the flattened outcome of one tool call.
type ToolResult struct {
	Text    string
	IsError bool
}

// Session is one initialized connection to a tool server.
type Session interface {
	ListTools(ctx context.Context) ([]Tool, error)
	CallTool(ctx context.Context, name string, args map[string]any) (ToolResult, error)
	Close() error
}

// Dialer opens sessions. The bridge dials once per search.
type Dialer interface {
	Dial(ctx context.Context, cfg ServerConfig) (Session, error)
}

// StdioDialer launches the server as a subprocess and speaks MCP over its
// stdin/stdout.
type StdioDialer struct {
	Logger *slog.Logger
}

// Dial starts the subprocess and performs the initialize handshake. Every
// failure is a *search.ConnectionError.
func (d StdioDialer) Dial(ctx context.Context, cfg ServerConfig) (Session, error) {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if strings.TrimSpace(cfg.Command) == "" {
		return nil, &search.ConnectionError{Op: "start", Err: errors.New("no tool server command configured")}
	}

	logger.Debug("starting mcp server", "name", cfg.displayName(), "command", cfg.Command, "args", cfg.Args)
	c, err := client.NewStdioMCPClient(cfg.Command, cfg.Environ(), cfg.Args...)
	if err != nil {
		return nil, &search.ConnectionError{Op: "start", Err: fmt.Errorf("start %q: %w", cfg.Command, err)}
	}
	if stderr, ok := client.GetStderr(c); ok {
		go drainStderr(logger, cfg.displayName(), stderr)
	}

	session, err := Connect(ctx, c, cfg.displayName(), logger)
	if err != nil {
		return nil, err
	}
	return session, nil
}

// Connect initializes an already started client and wraps it as a Session.
// On failure the client is closed.
func Connect(ctx context.Context, c *client.Client, name string, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	req := mcp.InitializeRequest{}
	req.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	req.Params.ClientInfo = mcp.Implementation{Name: clientName, Version: clientVersion}

	res, err := c.Initialize(ctx, req)
	if err != nil {
		_ = c.Close()
		return nil, &search.ConnectionError{Op: "initialize", Err: err}
	}
	logger.Debug("mcp session initialized",
		"name", name,
		"server", res.ServerInfo.Name,
		"server_version", res.ServerInfo.Version,
		"protocol", res.ProtocolVersion,
	)
	return &Client{name: name, c: c, logger: logger}, nil
}

func drainStderr(logger *slog.Logger, name string, r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		logger.Debug("mcp stderr", "server", name, "msg", scanner.Text())
	}
}

// Client is a Session backed by an mcp-go client.
type Client struct {
	name   string
	c      *client.Client
	logger *slog.Logger
}

// ListTools returns every tool the server advertises. A failure, or a
// server with no tools, is a *search.ConnectionError.
func (s *Client) ListTools(ctx context.Context) ([]Tool, error) {
	res, err := s.c.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, &search.ConnectionError{Op: "list tools", Err: err}
	}
	if len(res.Tools) == 0 {
		return nil, &search.ConnectionError{Op: "list tools", Err: errors.New("server advertises no tools")}
	}

	tools := make([]Tool, 0, len(res.Tools))
	for _, t := range res.Tools {
		tools = append(tools, Tool{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: inputSchema(t),
		})
	}
	return tools, nil
}

func inputSchema(t mcp.Tool) json.RawMessage {
	if len(t.RawInputSchema) > 0 {
		return t.RawInputSchema
	}
	raw, err := json.Marshal(t.InputSchema)
	if err != nil {
		return json.RawMessage(`{"type":"object"}`)
	}
	return raw
}

// CallTool invokes one tool. A transport failure is returned as an error;
// a tool-level failure comes back with IsError set so the agent can react.
func (s *Client) CallTool(ctx context.Context, name string, args map[string]any) (ToolResult, error) {
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args

	res, err := s.c.CallTool(ctx, req)
	if err != nil {
		return ToolResult{}, fmt.Errorf("call tool %s: %w", name, err)
	}
	return ToolResult{Text: resultText(res), IsError: res.IsError}, nil
}

func resultText(res *mcp.CallToolResult) string {
	if res == nil {
		return ""
	}
	parts := make([]string, 0, len(res.Content))
	for _, c := range res.Content {
		switch v := c.(type) {
		case mcp.TextContent:
			parts = append(parts, v.Text)
		case mcp.EmbeddedResource:
			if text, ok := v.Resource.(mcp.TextResourceContents); ok {
				parts = append(parts, text.Text)
			}
		}
	}
	if len(parts) == 0 && res.StructuredContent != nil {
		if raw, err := json.Marshal(res.StructuredContent); err == nil {
			parts = append(parts, string(raw))
		}
	}
	return strings.Join(parts, "\n")
}

// Close terminates the session and, for stdio, the subprocess.
func (s *Client) Close() error {
	if err := s.c.Close(); err != nil {
		s.logger.Warn("error stopping mcp client", "server", s.name, "error", err)
		return err
	}
	return nil
}
