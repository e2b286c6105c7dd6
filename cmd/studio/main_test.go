package main

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestNewLoggerAutoUsesJSONForNonTerminal(t *testing.T) {
	var buf bytes.Buffer
	newLogger(&buf, "info", "auto").Info("hello", "component", "test")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected json line, got %q: %v", buf.String(), err)
	}
	if entry["msg"] != "hello" || entry["component"] != "test" {
		t.Fatalf("entry = %v", entry)
	}
}

func TestNewLoggerTextAndLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, "warn", "text")
	logger.Info("dropped")
	logger.Warn("kept")

	out := buf.String()
	if strings.Contains(out, "dropped") || !strings.Contains(out, "msg=kept") {
		t.Fatalf("output = %q", out)
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" INFO ":  slog.LevelInfo,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range tests {
		if got := parseLevel(in).Level(); got != want {
			t.Fatalf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
