package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestNew_JSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Options{Level: "info", Format: "json", Output: &buf})

	logger.Info("session opened", "class", "if4021", "pertemuan", 3)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected JSON output, got %q: %v", buf.String(), err)
	}
	if entry["msg"] != "session opened" {
		t.Errorf("unexpected msg '%v'", entry["msg"])
	}
	if entry["class"] != "if4021" {
		t.Errorf("unexpected class attribute '%v'", entry["class"])
	}
}

func TestNew_ConsoleFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Options{Level: "info", Format: "console", Output: &buf})

	logger.Warn("remote unavailable", "attempt", 2)

	out := buf.String()
	if !strings.Contains(out, "level=WARN") {
		t.Errorf("expected level=WARN in output, got %q", out)
	}
	if !strings.Contains(out, "attempt=2") {
		t.Errorf("expected attempt=2 in output, got %q", out)
	}
}

func TestNew_AutoFormatWithoutTerminal(t *testing.T) {
	// A bytes.Buffer is not a terminal, so auto must pick JSON.
	var buf bytes.Buffer
	logger := New(Options{Level: "info", Format: "auto", Output: &buf})

	logger.Info("ping")

	if !json.Valid(buf.Bytes()) {
		t.Errorf("expected JSON output for non-terminal writer, got %q", buf.String())
	}
}

func TestNew_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Options{Level: "warn", Format: "json", Output: &buf})

	logger.Info("dropped frame")
	if buf.Len() != 0 {
		t.Errorf("info should be filtered at warn level, got %q", buf.String())
	}

	logger.Error("pump stalled")
	if buf.Len() == 0 {
		t.Error("error should pass at warn level")
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"ERROR", slog.LevelError},
		{"  info  ", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
		{"", slog.LevelInfo},
	}

	for _, tc := range tests {
		if got := parseLevel(tc.input); got != tc.want {
			t.Errorf("parseLevel(%q) = %v, want %v", tc.input, got, tc.want)
		}
	}
}

func TestNewNop(t *testing.T) {
	logger := NewNop()
	// Must not panic and must not write anywhere.
	logger.Info("discarded", "key", "value")
	logger.Error("also discarded")
}
