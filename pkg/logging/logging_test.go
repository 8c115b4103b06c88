package logging

import (
	"context"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]LogLevel{
		"debug":   DEBUG,
		"INFO":    INFO,
		" warn ":  WARN,
		"error":   ERROR,
		"":        INFO,
		"verbose": INFO,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestRequestContext(t *testing.T) {
	if got := RequestID(context.Background()); got != "no-request-id" {
		t.Errorf("expected placeholder id, got %q", got)
	}

	ctx, id := NewRequestContext(context.Background())
	if id == "" || RequestID(ctx) != id {
		t.Fatalf("expected request id %q in context, got %q", id, RequestID(ctx))
	}

	core, logs := observer.New(zap.InfoLevel)
	ForContext(ctx, zap.New(core)).Info("flush")

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 log entry, got %d", len(entries))
	}
	if entries[0].ContextMap()["request_id"] != id {
		t.Errorf("expected request_id field %q, got %v", id, entries[0].ContextMap())
	}
}
