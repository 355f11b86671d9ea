package mcp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/basket/shopscout/internal/search"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newScrapingServer mimics the two tools the agent leans on.
func newScrapingServer() *server.MCPServer {
	s := server.NewMCPServer("fake-scraper", "1.0.0", server.WithToolCapabilities(true))
	s.AddTool(mcp.NewTool("search_engine",
		mcp.WithDescription("Scrape search results from Google, Bing or Yandex."),
		mcp.WithString("query", mcp.Required()),
	), func(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		q, err := req.RequireString("query")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("results for %s", q)), nil
	})
	s.AddTool(mcp.NewTool("web_data_amazon_product",
		mcp.WithDescription("Structured Amazon product data for a product URL."),
		mcp.WithString("url", mcp.Required()),
	), func(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return mcp.NewToolResultError("url is not an amazon product page"), nil
	})
	return s
}

func connectInProcess(t *testing.T, s *server.MCPServer) *Client {
	t.Helper()
	c, err := client.NewInProcessClient(s)
	if err != nil {
		t.Fatalf("new in-process client: %v", err)
	}
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	session, err := Connect(context.Background(), c, "fake", quietLogger())
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { _ = session.Close() })
	return session
}

func TestClient_ListTools(t *testing.T) {
	session := connectInProcess(t, newScrapingServer())

	tools, err := session.ListTools(context.Background())
	if err != nil {
		t.Fatalf("ListTools: %v", err)
	}
	if len(tools) != 2 {
		t.Fatalf("expected 2 tools, got %d", len(tools))
	}
	byName := map[string]Tool{}
	for _, tool := range tools {
		byName[tool.Name] = tool
	}
	se, ok := byName["search_engine"]
	if !ok {
		t.Fatalf("expected search_engine tool, got %+v", tools)
	}
	if !strings.Contains(string(se.InputSchema), `"query"`) {
		t.Fatalf("expected input schema to describe query, got %s", se.InputSchema)
	}
}

func TestClient_CallTool(t *testing.T) {
	session := connectInProcess(t, newScrapingServer())

	res, err := session.CallTool(context.Background(), "search_engine", map[string]any{"query": "headphones"})
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	if res.IsError || res.Text != "results for headphones" {
		t.Fatalf("unexpected result %+v", res)
	}

	res, err = session.CallTool(context.Background(), "web_data_amazon_product", map[string]any{"url": "https://example.com"})
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	if !res.IsError || !strings.Contains(res.Text, "not an amazon product page") {
		t.Fatalf("expected tool-level error result, got %+v", res)
	}
}

func TestClient_ListToolsEmptyIsConnectionError(t *testing.T) {
	empty := server.NewMCPServer("empty", "1.0.0", server.WithToolCapabilities(true))
	session := connectInProcess(t, empty)

	_, err := session.ListTools(context.Background())
	var ce *search.ConnectionError
	if !errors.As(err, &ce) {
		t.Fatalf("expected ConnectionError, got %v", err)
	}
}

func TestStdioDialer_MissingCommand(t *testing.T) {
	_, err := StdioDialer{Logger: quietLogger()}.Dial(context.Background(), ServerConfig{})
	if search.KindOf(err) != search.KindConnection {
		t.Fatalf("expected connection error, got %v", err)
	}
}

func TestStdioDialer_CommandNotFound(t *testing.T) {
	cfg := ServerConfig{Name: "brightdata", Command: "/nonexistent/shopscout-mcp-binary"}
	_, err := StdioDialer{Logger: quietLogger()}.Dial(context.Background(), cfg)
	if search.KindOf(err) != search.KindConnection {
		t.Fatalf("expected connection error, got %v", err)
	}
}

func TestServerConfig_Environ(t *testing.T) {
	t.Setenv("HOME", "/home/shop")
	cfg := ServerConfig{Env: map[string]string{
		"WEB_UNLOCKER_ZONE": "unlocker_zone",
		"BROWSER_AUTH":      "brd-customer-x:pa$$w0rd$HOME",
	}}
	got := strings.Join(cfg.Environ(), ";")
	if got != "BROWSER_AUTH=brd-customer-x:pa$$w0rd$HOME;WEB_UNLOCKER_ZONE=unlocker_zone" {
		t.Fatalf("unexpected environ %q", got)
	}
}
