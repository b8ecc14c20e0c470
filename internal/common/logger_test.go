package common

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name     string
		level    LogLevel
		expected slog.Level
	}{
		{"error level", LogLevelError, slog.LevelError},
		{"warn level", LogLevelWarn, slog.LevelWarn},
		{"info level", LogLevelInfo, slog.LevelInfo},
		{"debug level", LogLevelDebug, slog.LevelDebug},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger := NewLogger(tt.level)
			if logger == nil || logger.Logger == nil {
				t.Fatal("expected logger, got nil")
			}
			if tt.level.ToSlogLevel() != tt.expected {
				t.Fatalf("ToSlogLevel() = %v, want %v", tt.level.ToSlogLevel(), tt.expected)
			}
			if logger.Level() != tt.level {
				t.Fatalf("Level() = %v, want %v", logger.Level(), tt.level)
			}
		})
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]LogLevel{
		"debug":   LogLevelDebug,
		" WARN ":  LogLevelWarn,
		"warning": LogLevelWarn,
		"error":   LogLevelError,
		"":        LogLevelInfo,
		"verbose": LogLevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNew_JSONFormatWithContext(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Options{Level: LogLevelDebug, Format: FormatJSON, Output: &buf, Masker: NewMasker()})

	logger.WithComponent("scheduler").WithTarget("hdsky").WithAttempt(1, 3).Info("attempt finished", "cookie", "uid=1")

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("output is not JSON: %v (%s)", err, buf.String())
	}
	if rec["component"] != "scheduler" || rec["target"] != "hdsky" {
		t.Fatalf("missing context attrs: %v", rec)
	}
	if rec["cookie"] != maskedValue {
		t.Fatalf("cookie not masked: %v", rec["cookie"])
	}
}

func TestNew_ColorFormatToBuffer(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Options{Level: LogLevelInfo, Format: FormatColor, Output: &buf})
	logger.WithStep(0, "attendance").Info("step classified", "state", "SUCCEEDED")

	out := buf.String()
	if !strings.Contains(out, "step classified") || !strings.Contains(out, "SUCCEEDED") {
		t.Fatalf("unexpected output: %q", out)
	}
	if strings.Contains(out, "\033[") {
		t.Fatalf("non-terminal output should not carry ANSI codes: %q", out)
	}
}

func TestNew_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Options{Level: LogLevelWarn, Output: &buf})
	logger.Info("hidden")
	logger.Warn("shown")
	if strings.Contains(buf.String(), "hidden") || !strings.Contains(buf.String(), "shown") {
		t.Fatalf("level filtering broken: %q", buf.String())
	}
}

func TestNew_FileSink(t *testing.T) {
	var buf bytes.Buffer
	path := filepath.Join(t.TempDir(), "checkin.log")
	logger := New(Options{Level: LogLevelInfo, Output: &buf, File: &FileOptions{Path: path}})
	logger.WithStore("file").Info("ledger written")
	if !strings.Contains(buf.String(), "ledger written") {
		t.Fatalf("primary output missing record: %q", buf.String())
	}
}

func TestDiscard(t *testing.T) {
	logger := Discard()
	logger.Error("dropped")
	if logger.WithTarget("pt.example").Logger == nil {
		t.Fatal("expected derived logger")
	}
}
