package config

import (
	"errors"
	"fmt"
	"hash/fnv"
	"os"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/basket/shopscout/internal/mcp"
	"github.com/basket/shopscout/internal/otel"
	"github.com/basket/shopscout/internal/search"
)

// LLMConfig selects the model the agent runs on.
type LLMConfig struct {
	// Provider is one of "openai", "anthropic", "google", "openai_compatible".
	Provider string `yaml:"provider" env:"SHOPSCOUT_LLM_PROVIDER"`
	Model    string `yaml:"model" env:"SHOPSCOUT_LLM_MODEL"`
	// BaseURL is only used by openai_compatible.
	BaseURL string `yaml:"base_url" env:"SHOPSCOUT_LLM_BASE_URL"`
	// MaxTurns caps tool-call round trips inside one generate call.
	MaxTurns int `yaml:"max_turns" env:"SHOPSCOUT_LLM_MAX_TURNS"`
}

// RateLimitConfig is the per-client token bucket on the search endpoints.
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled"`
	RequestsPerMinute int  `yaml:"requests_per_minute" env:"SHOPSCOUT_RATE_LIMIT_RPM"`
	BurstSize         int  `yaml:"burst_size"`
}

// CORSConfig applies to the JSON API only.
type CORSConfig struct {
	Enabled        bool     `yaml:"enabled"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// Secrets are read from the environment only, never from config.yaml.
type Secrets struct {
	OpenAIAPIKey    string `env:"OPENAI_API_KEY"`
	AnthropicAPIKey string `env:"ANTHROPIC_API_KEY"`
	GeminiAPIKey    string `env:"GEMINI_API_KEY"`
	APIToken        string `env:"API_TOKEN"`
	BrowserAuth     string `env:"BROWSER_AUTH"`
	WebUnlockerZone string `env:"WEB_UNLOCKER_ZONE"`
}

// Config is built once at startup and never mutated afterwards.
type Config struct {
	HomeDir    string `yaml:"-"`
	ConfigPath string `yaml:"-"`

	BindAddr        string `yaml:"bind_addr" env:"SHOPSCOUT_BIND_ADDR"`
	LogLevel        string `yaml:"log_level" env:"SHOPSCOUT_LOG_LEVEL"`
	MaxRequestBytes int64  `yaml:"max_request_bytes"`

	LLM       LLMConfig        `yaml:"llm"`
	MCP       mcp.ServerConfig `yaml:"mcp"`
	RateLimit RateLimitConfig  `yaml:"rate_limit"`
	CORS      CORSConfig       `yaml:"cors"`
	Telemetry otel.Config      `yaml:"telemetry"`

	Secrets Secrets `yaml:"-"`
}

var supportedProviders = map[string]bool{
	"openai":            true,
	"anthropic":         true,
	"google":            true,
	"openai_compatible": true,
}

func defaultConfig() Config {
	return Config{
		BindAddr:        "127.0.0.1:8000",
		LogLevel:        "info",
		MaxRequestBytes: 64 << 10,
		LLM: LLMConfig{
			Provider: "openai",
			MaxTurns: 8,
		},
		MCP: mcp.ServerConfig{
			Name:    "brightdata",
			Command: "npx",
			Args:    []string{"@brightdata/mcp"},
		},
		RateLimit: RateLimitConfig{
			Enabled:           true,
			RequestsPerMinute: 6,
			BurstSize:         3,
		},
		Telemetry: otel.Config{
			Exporter:    "otlp-http",
			ServiceName: "shopscout",
			SampleRate:  1.0,
		},
	}
}

// HomeDir is $SHOPSCOUT_HOME or ~/.shopscout.
func HomeDir() string {
	if override := os.Getenv("SHOPSCOUT_HOME"); override != "" {
		return override
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		home = "."
	}
	return filepath.Join(home, ".shopscout")
}

// ConfigPath is the default config.yaml location under homeDir.
func ConfigPath(homeDir string) string {
	return filepath.Join(homeDir, "config.yaml")
}

// Load reads .env files, then config.yaml (path, or the default under the
// home dir), then environment overrides and secrets. A missing config.yaml
// is not an error. Missing secrets are not an error either; see CheckSecrets.
func Load(path string) (Config, error) {
	cfg := defaultConfig()
	cfg.HomeDir = HomeDir()

	if err := LoadDotEnv(".env", filepath.Join(cfg.HomeDir, ".env")); err != nil {
		return cfg, err
	}

	cfg.ConfigPath = path
	if cfg.ConfigPath == "" {
		cfg.ConfigPath = ConfigPath(cfg.HomeDir)
	}
	data, err := os.ReadFile(cfg.ConfigPath)
	switch {
	case err == nil && len(data) > 0:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", cfg.ConfigPath, err)
		}
	case err != nil && !errors.Is(err, os.ErrNotExist):
		return cfg, fmt.Errorf("read %s: %w", cfg.ConfigPath, err)
	case err != nil && path != "":
		return cfg, fmt.Errorf("read %s: %w", cfg.ConfigPath, err)
	}

	// Nested structs are walked too, so this also fills Secrets.
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse environment: %w", err)
	}

	normalize(&cfg)
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LoadDotEnv loads each existing file. Variables already set in the
// process environment win.
func LoadDotEnv(paths ...string) error {
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

func normalize(cfg *Config) {
	def := defaultConfig()
	cfg.LLM.Provider = strings.ToLower(strings.TrimSpace(cfg.LLM.Provider))
	if cfg.LLM.Provider == "" {
		cfg.LLM.Provider = def.LLM.Provider
	}
	if cfg.LLM.Provider == "gemini" {
		cfg.LLM.Provider = "google"
	}
	if strings.TrimSpace(cfg.LLM.Model) == "" {
		cfg.LLM.Model = defaultModelForProvider(cfg.LLM.Provider)
	}
	if cfg.LLM.MaxTurns <= 0 {
		cfg.LLM.MaxTurns = def.LLM.MaxTurns
	}
	if cfg.BindAddr == "" {
		cfg.BindAddr = def.BindAddr
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = def.LogLevel
	}
	if cfg.MaxRequestBytes <= 0 {
		cfg.MaxRequestBytes = def.MaxRequestBytes
	}
	if strings.TrimSpace(cfg.MCP.Command) == "" {
		cfg.MCP.Command = def.MCP.Command
		cfg.MCP.Args = def.MCP.Args
	}
	if cfg.MCP.Name == "" {
		cfg.MCP.Name = def.MCP.Name
	}
	if cfg.RateLimit.RequestsPerMinute <= 0 {
		cfg.RateLimit.RequestsPerMinute = def.RateLimit.RequestsPerMinute
	}
	if cfg.RateLimit.BurstSize <= 0 {
		cfg.RateLimit.BurstSize = def.RateLimit.BurstSize
	}
}

func defaultModelForProvider(provider string) string {
	switch provider {
	case "anthropic":
		return "claude-sonnet-4-5"
	case "google":
		return "gemini-2.5-flash"
	default:
		return "gpt-4o"
	}
}

// Validate rejects settings the server cannot run with.
func (c Config) Validate() error {
	if !supportedProviders[c.LLM.Provider] {
		return fmt.Errorf("llm.provider %q is not supported (openai, anthropic, google, openai_compatible)", c.LLM.Provider)
	}
	if c.LLM.Provider == "openai_compatible" && strings.TrimSpace(c.LLM.BaseURL) == "" {
		return errors.New("llm.base_url is required for provider openai_compatible")
	}
	return nil
}

// ModelKeyEnv names the env var holding the model provider key.
func (c Config) ModelKeyEnv() string {
	switch c.LLM.Provider {
	case "anthropic":
		return "ANTHROPIC_API_KEY"
	case "google":
		return "GEMINI_API_KEY"
	default:
		return "OPENAI_API_KEY"
	}
}

// ModelAPIKey returns the key for the configured provider.
func (c Config) ModelAPIKey() string {
	switch c.LLM.Provider {
	case "anthropic":
		return c.Secrets.AnthropicAPIKey
	case "google":
		return c.Secrets.GeminiAPIKey
	default:
		return c.Secrets.OpenAIAPIKey
	}
}

// MissingSecrets lists the env vars that must be set before a search can
// run, in a stable order.
func (c Config) MissingSecrets() []string {
	var missing []string
	check := func(name, value string) {
		if strings.TrimSpace(value) == "" {
			missing = append(missing, name)
		}
	}
	check(c.ModelKeyEnv(), c.ModelAPIKey())
	check("API_TOKEN", c.Secrets.APIToken)
	check("BROWSER_AUTH", c.Secrets.BrowserAuth)
	check("WEB_UNLOCKER_ZONE", c.Secrets.WebUnlockerZone)
	return missing
}

// CheckSecrets returns a *search.ConfigurationError when any secret is
// missing.
func (c Config) CheckSecrets() error {
	if missing := c.MissingSecrets(); len(missing) > 0 {
		return &search.ConfigurationError{Missing: missing}
	}
	return nil
}

// ToolServer is the MCP launch config with the scraping credentials added
// to its environment. $VARS in mcp.env values from config.yaml are expanded;
// the secrets are set afterwards, verbatim, and win over mcp.env.
func (c Config) ToolServer() mcp.ServerConfig {
	srv := c.MCP
	srv.Args = append([]string(nil), c.MCP.Args...)
	srv.Env = make(map[string]string, len(c.MCP.Env)+3)
	for k, v := range c.MCP.Env {
		srv.Env[k] = os.ExpandEnv(v)
	}
	srv.Env["API_TOKEN"] = c.Secrets.APIToken
	srv.Env["BROWSER_AUTH"] = c.Secrets.BrowserAuth
	srv.Env["WEB_UNLOCKER_ZONE"] = c.Secrets.WebUnlockerZone
	return srv
}

// Fingerprint is a stable hash of the non-secret settings, logged at
// startup so operators can tell configs apart.
func (c Config) Fingerprint() string {
	h := fnv.New64a()
	fmt.Fprintf(h, "bind=%s|log=%s|provider=%s|model=%s|turns=%d|mcp=%s %v|rl=%v/%d/%d",
		c.BindAddr, c.LogLevel, c.LLM.Provider, c.LLM.Model, c.LLM.MaxTurns,
		c.MCP.Command, c.MCP.Args, c.RateLimit.Enabled, c.RateLimit.RequestsPerMinute, c.RateLimit.BurstSize)
	return fmt.Sprintf("cfg-%x", h.Sum64())
}
