package search

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		err  error
		want Kind
	}{
		{&ValidationError{Field: "query", Reason: MsgEmptyQuery}, KindValidation},
		{&ConfigurationError{Missing: []string{"API_TOKEN"}}, KindConfiguration},
		{&ConnectionError{Op: "initialize", Err: errors.New("broken pipe")}, KindConnection},
		{NewUpstreamError("generate", errors.New("boom")), KindUpstream},
		{fmt.Errorf("search: %w", &ConnectionError{Op: "start", Err: errors.New("exec: npx not found")}), KindConnection},
		{errors.New("something else"), KindUpstream},
	}
	for _, tc := range tests {
		if got := KindOf(tc.err); got != tc.want {
			t.Fatalf("KindOf(%v) = %s, want %s", tc.err, got, tc.want)
		}
	}
}

func TestUserMessage_NonEmptyForEveryKind(t *testing.T) {
	errs := []error{
		&ValidationError{Field: "platforms", Reason: MsgNoPlatforms},
		&ValidationError{Field: "query"},
		&ConfigurationError{Missing: []string{"OPENAI_API_KEY", "BROWSER_AUTH"}},
		&ConfigurationError{},
		&ConnectionError{Op: "initialize", Err: errors.New("EOF")},
		NewUpstreamError("generate", errors.New("")),
		NewUpstreamError("generate", errors.New("status 429 too many requests")),
		errors.New("plain"),
	}
	for _, err := range errs {
		if msg := UserMessage(err); strings.TrimSpace(msg) == "" {
			t.Fatalf("expected non-empty message for %T %v", err, err)
		}
	}
}

func TestUserMessage_Configuration(t *testing.T) {
	msg := UserMessage(&ConfigurationError{Missing: []string{"OPENAI_API_KEY", "API_TOKEN"}})
	if msg != "Search is not configured: missing OPENAI_API_KEY, API_TOKEN." {
		t.Fatalf("unexpected message %q", msg)
	}
}

func TestUserMessage_UpstreamRedactsDetail(t *testing.T) {
	err := NewUpstreamError("generate", errors.New("provider said: bad request for key sk-abcdefghijklmnopqrstuvwxyz"))
	msg := UserMessage(err)
	if !strings.HasPrefix(msg, "Agent error: ") {
		t.Fatalf("expected generic agent error prefix, got %q", msg)
	}
	if strings.Contains(msg, "sk-abcdef") {
		t.Fatalf("expected key redacted, got %q", msg)
	}
}

func TestUserMessage_TruncatesDetail(t *testing.T) {
	msg := UserMessage(errors.New(strings.Repeat("x", 1000)))
	if len(msg) > len("Agent error: ")+maxDetailLen {
		t.Fatalf("expected truncated message, got %d chars", len(msg))
	}
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		err  error
		want ErrorClass
	}{
		{errors.New("401 Unauthorized"), ErrorClassAuth},
		{errors.New("Incorrect API key provided"), ErrorClassAuth},
		{errors.New("429 Too Many Requests"), ErrorClassRateLimit},
		{context.DeadlineExceeded, ErrorClassTimeout},
		{fmt.Errorf("generate: %w", context.DeadlineExceeded), ErrorClassTimeout},
		{errors.New("request timed out"), ErrorClassTimeout},
		{errors.New("billing hard limit reached"), ErrorClassBilling},
		{errors.New("maximum context length is 128000 tokens"), ErrorClassContextOverflow},
		{&MalformedOutputError{Message: "no JSON"}, ErrorClassMalformed},
		{errors.New("mystery"), ErrorClassUnknown},
		{nil, ErrorClassUnknown},
	}
	for _, tc := range tests {
		if got := ClassifyError(tc.err); got != tc.want {
			t.Fatalf("ClassifyError(%v) = %s, want %s", tc.err, got, tc.want)
		}
	}
}
