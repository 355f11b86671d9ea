package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/anthropic"
	"github.com/firebase/genkit/go/plugins/compat_oai"
	"github.com/firebase/genkit/go/plugins/googlegenai"

	"github.com/basket/shopscout/internal/mcp"
	"github.com/basket/shopscout/internal/search"
)

// InvokeFunc runs one tool call on the search's MCP session and returns
// the text handed back to the model.
type InvokeFunc func(ctx context.Context, tool string, args map[string]any) (string, error)

// AgentInput is everything one agent turn needs.
type AgentInput struct {
	System   string
	Prompt   string
	Tools    []mcp.Tool
	Invoke   InvokeFunc
	MaxTurns int
}

// Generator runs the agent: the model may call the given tools, then must
// answer with a SearchResponse-shaped JSON document, returned as text.
type Generator interface {
	Generate(ctx context.Context, in AgentInput) (string, error)
}

// LLMSettings selects the genkit provider plugin and model.
type LLMSettings struct {
	Provider string
	Model    string
	BaseURL  string
	APIKey   string
}

// GenkitGenerator is the Generator backed by a process-wide genkit
// instance. Tools are created per call and never registered globally.
type GenkitGenerator struct {
	g         *genkit.Genkit
	modelName string
}

// NewGenkitGenerator initializes genkit with the plugin for s.Provider. An
// empty API key still yields a generator so the server can start; searches
// are refused earlier by the secrets check.
func NewGenkitGenerator(ctx context.Context, s LLMSettings) (*GenkitGenerator, error) {
	provider := strings.ToLower(strings.TrimSpace(s.Provider))
	model := strings.TrimSpace(s.Model)
	if model == "" {
		return nil, errors.New("llm model is required")
	}
	if strings.TrimSpace(s.APIKey) == "" {
		slog.Warn("llm api key missing; searches will fail until it is configured", "provider", provider)
	}

	var g *genkit.Genkit
	switch provider {
	case "openai", "":
		provider = "openai"
		g = genkit.Init(ctx, genkit.WithPlugins(&compat_oai.OpenAICompatible{
			Provider: "openai",
			APIKey:   s.APIKey,
			BaseURL:  s.BaseURL,
		}))
	case "openai_compatible":
		g = genkit.Init(ctx, genkit.WithPlugins(&compat_oai.OpenAICompatible{
			Provider: "compat",
			APIKey:   s.APIKey,
			BaseURL:  s.BaseURL,
		}))
	case "anthropic":
		g = genkit.Init(ctx, genkit.WithPlugins(&anthropic.Anthropic{
			APIKey:  s.APIKey,
			BaseURL: s.BaseURL,
		}))
	case "google":
		g = genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{APIKey: s.APIKey}))
	default:
		return nil, fmt.Errorf("unsupported llm provider %q", provider)
	}

	name := modelNameForProvider(provider, model)
	slog.Info("genkit agent initialized", "provider", provider, "model", name)
	return &GenkitGenerator{g: g, modelName: name}, nil
}

func modelNameForProvider(provider, model string) string {
	switch provider {
	case "anthropic":
		return "anthropic/" + model
	case "openai_compatible":
		return "compat/" + model
	case "google":
		return "googleai/" + model
	default:
		return "openai/" + model
	}
}

// ModelName is the fully qualified genkit model name.
func (gg *GenkitGenerator) ModelName() string {
	return gg.modelName
}

// Generate runs one genkit generate call with the session tools attached
// and the output constrained to SearchResponse.
func (gg *GenkitGenerator) Generate(ctx context.Context, in AgentInput) (string, error) {
	opts := []ai.GenerateOption{
		ai.WithModelName(gg.modelName),
		ai.WithSystem(escapeFormat(in.System)),
		ai.WithPrompt(escapeFormat(in.Prompt)),
		ai.WithOutputType(search.SearchResponse{}),
	}
	if tools := agentTools(in.Tools, in.Invoke); len(tools) > 0 {
		refs := make([]ai.ToolRef, 0, len(tools))
		for _, t := range tools {
			refs = append(refs, t)
		}
		opts = append(opts, ai.WithTools(refs...))
		if in.MaxTurns > 0 {
			opts = append(opts, ai.WithMaxTurns(in.MaxTurns))
		}
	}

	resp, err := genkit.Generate(ctx, gg.g, opts...)
	if err != nil {
		return "", fmt.Errorf("genkit generate: %w", err)
	}
	return resp.Text(), nil
}

// escapeFormat protects literal % in queries such as "20% off" from the
// Sprintf applied by ai.WithSystem and ai.WithPrompt.
func escapeFormat(s string) string {
	return strings.ReplaceAll(s, "%", "%%")
}

// agentTools wraps each MCP tool as an unregistered genkit tool. The MCP
// input schema is appended to the description since the genkit input type
// is a plain map.
func agentTools(tools []mcp.Tool, invoke InvokeFunc) []ai.Tool {
	if invoke == nil {
		return nil
	}
	out := make([]ai.Tool, 0, len(tools))
	for _, tool := range tools {
		name := tool.Name
		out = append(out, ai.NewTool(name, toolDescription(tool),
			func(tc *ai.ToolContext, input map[string]any) (any, error) {
				text, err := invoke(tc.Context, name, input)
				if err != nil {
					return nil, err
				}
				var structured any
				if json.Unmarshal([]byte(text), &structured) == nil {
					return structured, nil
				}
				return text, nil
			},
		))
	}
	return out
}

func toolDescription(tool mcp.Tool) string {
	desc := strings.TrimSpace(tool.Description)
	if len(tool.InputSchema) == 0 {
		return desc
	}
	var schema map[string]any
	if err := json.Unmarshal(tool.InputSchema, &schema); err != nil {
		return desc
	}
	pretty, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return desc
	}
	return fmt.Sprintf("%s\n\nInput Schema:\n%s", desc, pretty)
}
