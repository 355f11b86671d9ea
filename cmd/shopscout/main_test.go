package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/basket/shopscout/internal/doctor"
	"github.com/basket/shopscout/internal/search"
)

var envVars = []string{
	"OPENAI_API_KEY", "ANTHROPIC_API_KEY", "GEMINI_API_KEY",
	"API_TOKEN", "BROWSER_AUTH", "WEB_UNLOCKER_ZONE",
	"SHOPSCOUT_LLM_PROVIDER", "SHOPSCOUT_LLM_MODEL", "SHOPSCOUT_LOG_LEVEL",
}

func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("SHOPSCOUT_HOME", home)
	for _, k := range envVars {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
	t.Chdir(t.TempDir())
	return home
}

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	root := newRootCmd()
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func exitCode(err error) int {
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	if err != nil {
		return 1
	}
	return 0
}

func TestRoot_ListsCommands(t *testing.T) {
	out, _, err := execute(t, "--help")
	if err != nil {
		t.Fatalf("help: %v", err)
	}
	for _, want := range []string{"serve", "search", "doctor"} {
		if !strings.Contains(out, want) {
			t.Errorf("help output missing %q", want)
		}
	}
}

func TestSearch_ValidationFailsBeforeConfig(t *testing.T) {
	isolate(t)
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"empty query", []string{"search", "-p", "Amazon"}, search.MsgEmptyQuery},
		{"no platforms", []string{"search", "usb", "hub"}, search.MsgNoPlatforms},
		{"unknown platform", []string{"search", "usb hub", "-p", "Etsy"}, "Unsupported platform: Etsy."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, stderr, err := execute(t, tt.args...)
			if exitCode(err) != 2 {
				t.Fatalf("expected exit 2, got %v", err)
			}
			if strings.TrimSpace(stderr) != tt.want {
				t.Fatalf("stderr = %q, want %q", stderr, tt.want)
			}
		})
	}
}

func TestSearch_MissingSecrets(t *testing.T) {
	home := isolate(t)

	_, stderr, err := execute(t, "search", "wireless", "bluetooth", "headphones", "-p", "Amazon,Best Buy")

	if exitCode(err) != 1 {
		t.Fatalf("expected exit 1, got %v", err)
	}
	if !strings.Contains(stderr, "not configured") || !strings.Contains(stderr, "OPENAI_API_KEY") {
		t.Fatalf("expected configuration message, got %q", stderr)
	}
	if _, err := os.Stat(home + "/logs/system.jsonl"); err == nil {
		t.Fatal("nothing should be started when secrets are missing")
	}
}

func TestDoctor_JSONReportsMissingSecrets(t *testing.T) {
	isolate(t)

	stdout, _, err := execute(t, "doctor", "--json", "--offline")

	if exitCode(err) != 1 {
		t.Fatalf("expected exit 1, got %v", err)
	}
	var diag doctor.Diagnosis
	if err := json.Unmarshal([]byte(stdout), &diag); err != nil {
		t.Fatalf("decode report: %v\n%s", err, stdout)
	}
	found := false
	for _, r := range diag.Results {
		if r.Name == "Secrets" {
			found = true
			if r.Status != doctor.StatusFail {
				t.Fatalf("expected Secrets FAIL, got %+v", r)
			}
		}
		if r.Name == "Network" {
			t.Fatal("--offline should skip the network check")
		}
	}
	if !found {
		t.Fatal("no Secrets check in report")
	}
}

func TestRenderResults_Plain(t *testing.T) {
	req, err := search.NewRequest("headphones", []string{"Amazon", "Best Buy", "Ebay"})
	if err != nil {
		t.Fatal(err)
	}
	resp := search.SearchResponse{Platforms: []search.PlatformBlock{
		{Platform: "Best Buy", Results: []search.Hit{}},
		{Platform: "Amazon", Results: []search.Hit{
			{URL: "https://www.amazon.com/dp/1", Title: "First", Rating: "4.5 stars"},
			{URL: "https://www.amazon.com/dp/2", Title: "Second", Rating: ""},
		}},
	}}

	var buf bytes.Buffer
	renderResults(&buf, req, resp, false)
	out := buf.String()

	if strings.Index(out, "Best Buy (0)") > strings.Index(out, "Amazon (2)") {
		t.Fatalf("platforms not in returned order:\n%s", out)
	}
	if strings.Index(out, "1. First") > strings.Index(out, "2. Second") {
		t.Fatalf("hits not in returned order:\n%s", out)
	}
	for _, want := range []string{"no results", "4.5 stars", "https://www.amazon.com/dp/2", "No data returned for: Ebay"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "\x1b[") {
		t.Fatal("plain output should not contain ANSI escapes")
	}
}

func TestRenderDiagnosis_Plain(t *testing.T) {
	d := doctor.Diagnosis{
		Timestamp: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		System:    doctor.SystemInfo{OS: "linux", Arch: "amd64", Go: "go1.24", Version: "test"},
		Results: []doctor.CheckResult{
			{Name: "Config", Status: doctor.StatusPass, Message: "Loaded from defaults"},
			{Name: "Secrets", Status: doctor.StatusFail, Message: "Missing API_TOKEN", Detail: "Set them"},
		},
	}
	var buf bytes.Buffer
	renderDiagnosis(&buf, d, false)
	out := buf.String()
	for _, want := range []string{"2026-01-02T03:04:05Z", "PASS Config:", "FAIL Secrets:", "Set them"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestIsTerminal_Buffer(t *testing.T) {
	if isTerminal(&bytes.Buffer{}) {
		t.Fatal("a buffer is not a terminal")
	}
}
