package otel

import (
	"context"
	"errors"
	"testing"
)

func TestInit_Disabled(t *testing.T) {
	p, err := Init(context.Background(), Config{Enabled: false})
	if err != nil {
		t.Fatalf("Init disabled: %v", err)
	}
	if p.Tracer == nil || p.Meter == nil {
		t.Fatal("expected non-nil noop tracer and meter")
	}
	if err := p.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
}

func TestInit_NoneExporter(t *testing.T) {
	p, err := Init(context.Background(), Config{Enabled: true, Exporter: "none", SampleRate: 0.5})
	if err != nil {
		t.Fatalf("Init with none exporter: %v", err)
	}
	defer p.Shutdown(context.Background())

	if p.TracerProvider == nil {
		t.Fatal("expected non-nil TracerProvider")
	}
	ctx, span := StartClientSpan(context.Background(), p.Tracer, "llm.generate", AttrModel.String("gpt-4o"))
	if !span.SpanContext().IsValid() {
		t.Fatal("expected a recording span with a valid context")
	}
	_, child := StartSpan(ctx, p.Tracer, "search.decode")
	EndSpan(child, errors.New("schema mismatch"))
	EndSpan(span, nil)
}

func TestInit_UnknownExporter(t *testing.T) {
	_, err := Init(context.Background(), Config{Enabled: true, Exporter: "carrier-pigeon"})
	if err == nil {
		t.Fatal("expected error for unknown exporter")
	}
}

func TestCreateMetricReader(t *testing.T) {
	ctx := context.Background()
	for _, exporter := range []string{"", "otlp-http"} {
		r, err := createMetricReader(ctx, Config{Exporter: exporter, Endpoint: "collector:4318"})
		if err != nil {
			t.Fatalf("%q: %v", exporter, err)
		}
		if r == nil {
			t.Fatalf("%q: expected a periodic reader", exporter)
		}
		// Nothing was recorded, so there is nothing to push.
		_ = r.Shutdown(ctx)
	}
	for _, exporter := range []string{"stdout", "none"} {
		r, err := createMetricReader(ctx, Config{Exporter: exporter})
		if err != nil || r != nil {
			t.Fatalf("%q: expected no reader, got %v / %v", exporter, r, err)
		}
	}
}

func TestShutdown_NilProvider(t *testing.T) {
	var p *Provider
	if err := p.Shutdown(context.Background()); err != nil {
		t.Fatalf("nil provider shutdown: %v", err)
	}
}

func TestNewInstruments(t *testing.T) {
	for _, p := range []*Provider{Noop(), mustInit(t)} {
		m, err := NewInstruments(p.Meter)
		if err != nil {
			t.Fatalf("NewInstruments: %v", err)
		}
		if m.LLMCallDuration == nil || m.ToolCallDuration == nil || m.ToolCallErrors == nil || m.MCPSessionErrors == nil {
			t.Fatalf("expected every instrument to be set: %+v", m)
		}
		m.ToolCallDuration.Record(context.Background(), 0.25)
		m.ToolCallErrors.Add(context.Background(), 1)
		_ = p.Shutdown(context.Background())
	}
}

func mustInit(t *testing.T) *Provider {
	t.Helper()
	p, err := Init(context.Background(), Config{Enabled: true, Exporter: "none"})
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	return p
}
