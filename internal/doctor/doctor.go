package doctor

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/basket/shopscout/internal/config"
	"github.com/basket/shopscout/internal/mcp"
)

const (
	StatusPass = "PASS"
	StatusWarn = "WARN"
	StatusFail = "FAIL"
	StatusSkip = "SKIP"
)

type CheckResult struct {
	Name    string `json:"name"`
	Status  string `json:"status"` // "PASS", "FAIL", "WARN", "SKIP"
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

type Diagnosis struct {
	Timestamp time.Time     `json:"timestamp"`
	System    SystemInfo    `json:"system"`
	Results   []CheckResult `json:"results"`
}

type SystemInfo struct {
	OS      string `json:"os"`
	Arch    string `json:"arch"`
	Go      string `json:"go_version"`
	Version string `json:"version"`
}

// Failed reports whether any check failed.
func (d Diagnosis) Failed() bool {
	for _, r := range d.Results {
		if r.Status == StatusFail {
			return true
		}
	}
	return false
}

// Options tunes which checks run.
type Options struct {
	// Dialer, when set, enables the tool server handshake probe.
	Dialer      mcp.Dialer
	SkipNetwork bool
}

// Run executes all diagnostic checks. cfg may be nil when loading failed.
func Run(ctx context.Context, cfg *config.Config, version string, opts Options) Diagnosis {
	d := Diagnosis{
		Timestamp: time.Now().UTC(),
		System: SystemInfo{
			OS:      runtime.GOOS,
			Arch:    runtime.GOARCH,
			Go:      runtime.Version(),
			Version: version,
		},
	}

	checks := []func(context.Context, *config.Config) CheckResult{
		checkConfig,
		checkSecrets,
		checkLogDir,
		checkToolCommand,
	}
	if opts.Dialer != nil {
		dialer := opts.Dialer
		checks = append(checks, func(ctx context.Context, cfg *config.Config) CheckResult {
			return checkToolServer(ctx, cfg, dialer)
		})
	}
	if !opts.SkipNetwork {
		checks = append(checks, checkNetwork)
	}

	for _, check := range checks {
		d.Results = append(d.Results, check(ctx, cfg))
	}

	return d
}

func checkConfig(_ context.Context, cfg *config.Config) CheckResult {
	if cfg == nil {
		return CheckResult{Name: "Config", Status: StatusFail, Message: "Configuration not loaded"}
	}
	if err := cfg.Validate(); err != nil {
		return CheckResult{Name: "Config", Status: StatusFail, Message: err.Error()}
	}
	src := cfg.ConfigPath
	if _, err := os.Stat(src); err != nil {
		src = "defaults"
	}
	return CheckResult{
		Name:    "Config",
		Status:  StatusPass,
		Message: fmt.Sprintf("Loaded from %s", src),
		Detail:  fmt.Sprintf("provider=%s model=%s fingerprint=%s", cfg.LLM.Provider, cfg.LLM.Model, cfg.Fingerprint()),
	}
}

func checkSecrets(_ context.Context, cfg *config.Config) CheckResult {
	if cfg == nil {
		return CheckResult{Name: "Secrets", Status: StatusSkip, Message: "Config missing"}
	}
	missing := cfg.MissingSecrets()
	if len(missing) > 0 {
		return CheckResult{
			Name:    "Secrets",
			Status:  StatusFail,
			Message: fmt.Sprintf("Missing %s", strings.Join(missing, ", ")),
			Detail:  "Set them in the environment or in a .env file",
		}
	}
	return CheckResult{Name: "Secrets", Status: StatusPass, Message: fmt.Sprintf("%s and scraping credentials are set", cfg.ModelKeyEnv())}
}

func checkLogDir(_ context.Context, cfg *config.Config) CheckResult {
	if cfg == nil {
		return CheckResult{Name: "Log Directory", Status: StatusSkip, Message: "Config missing"}
	}
	dir := filepath.Join(cfg.HomeDir, "logs")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return CheckResult{Name: "Log Directory", Status: StatusFail, Message: fmt.Sprintf("Cannot create %s: %v", dir, err)}
	}
	testFile := filepath.Join(dir, ".write_test")
	if err := os.WriteFile(testFile, []byte("test"), 0o600); err != nil {
		return CheckResult{Name: "Log Directory", Status: StatusFail, Message: fmt.Sprintf("Log dir unwritable: %v", err)}
	}
	_ = os.Remove(testFile)
	return CheckResult{Name: "Log Directory", Status: StatusPass, Message: fmt.Sprintf("%s writable", dir)}
}

func checkToolCommand(_ context.Context, cfg *config.Config) CheckResult {
	if cfg == nil {
		return CheckResult{Name: "Tool Command", Status: StatusSkip, Message: "Config missing"}
	}
	command := cfg.MCP.Command
	if command == "" {
		return CheckResult{Name: "Tool Command", Status: StatusFail, Message: "mcp.command is empty"}
	}
	path, err := exec.LookPath(command)
	if err != nil {
		return CheckResult{
			Name:    "Tool Command",
			Status:  StatusFail,
			Message: fmt.Sprintf("%s not found on PATH", command),
			Detail:  "Install Node.js so npx can launch the scraping tool server",
		}
	}
	return CheckResult{
		Name:    "Tool Command",
		Status:  StatusPass,
		Message: fmt.Sprintf("%s found", path),
		Detail:  strings.TrimSpace(command + " " + strings.Join(cfg.MCP.Args, " ")),
	}
}

// checkToolServer starts the tool server once and lists its tools.
func checkToolServer(ctx context.Context, cfg *config.Config, dialer mcp.Dialer) CheckResult {
	if cfg == nil {
		return CheckResult{Name: "Tool Server", Status: StatusSkip, Message: "Config missing"}
	}
	start := time.Now()
	session, err := dialer.Dial(ctx, cfg.ToolServer())
	if err != nil {
		return CheckResult{Name: "Tool Server", Status: StatusFail, Message: fmt.Sprintf("Handshake failed: %v", err)}
	}
	defer func() {
		_ = session.Close()
	}()

	tools, err := session.ListTools(ctx)
	latency := time.Since(start)
	if err != nil {
		return CheckResult{Name: "Tool Server", Status: StatusFail, Message: fmt.Sprintf("Listing tools failed: %v", err)}
	}
	names := make([]string, 0, len(tools))
	hasSearch := false
	for _, t := range tools {
		names = append(names, t.Name)
		if t.Name == "search_engine" {
			hasSearch = true
		}
	}
	status := StatusPass
	msg := fmt.Sprintf("%d tools advertised (%dms)", len(tools), latency.Milliseconds())
	if !hasSearch {
		status = StatusWarn
		msg += ", search_engine missing"
	}
	return CheckResult{Name: "Tool Server", Status: status, Message: msg, Detail: strings.Join(names, ", ")}
}

func providerHost(cfg *config.Config) string {
	if cfg.LLM.Provider == "openai_compatible" && cfg.LLM.BaseURL != "" {
		if u, err := url.Parse(cfg.LLM.BaseURL); err == nil && u.Hostname() != "" {
			return u.Hostname()
		}
	}
	endpoints := map[string]string{
		"google":    "generativelanguage.googleapis.com",
		"anthropic": "api.anthropic.com",
		"openai":    "api.openai.com",
	}
	if host, ok := endpoints[strings.ToLower(cfg.LLM.Provider)]; ok {
		return host
	}
	return "api.openai.com"
}

func checkNetwork(ctx context.Context, cfg *config.Config) CheckResult {
	if cfg == nil {
		return CheckResult{Name: "Network", Status: StatusSkip, Message: "Config missing"}
	}

	hosts := []string{providerHost(cfg), "api.brightdata.com"}

	// DNS lookup with timeout.
	lookupCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	start := time.Now()
	var resolved []string
	for _, host := range hosts {
		addrs, err := net.DefaultResolver.LookupHost(lookupCtx, host)
		if err != nil {
			return CheckResult{
				Name:    "Network",
				Status:  StatusFail,
				Message: fmt.Sprintf("DNS lookup failed for %s: %v", host, err),
				Detail:  fmt.Sprintf("provider=%s, latency=%dms", cfg.LLM.Provider, time.Since(start).Milliseconds()),
			}
		}
		resolved = append(resolved, fmt.Sprintf("%s=%d", host, len(addrs)))
	}

	return CheckResult{
		Name:    "Network",
		Status:  StatusPass,
		Message: fmt.Sprintf("DNS resolved %s (%dms)", strings.Join(hosts, ", "), time.Since(start).Milliseconds()),
		Detail:  strings.Join(resolved, ", "),
	}
}
