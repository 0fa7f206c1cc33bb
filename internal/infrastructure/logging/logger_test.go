package logging

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"testing"

	"github.com/gophyn/phynbridge/internal/infrastructure/config"
)

func TestLevelFor(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"Warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"bogus", slog.LevelInfo},
		{"", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := levelFor(tt.input); got != tt.want {
			t.Errorf("levelFor(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestWriterFor(t *testing.T) {
	tests := []struct {
		input string
		want  io.Writer
	}{
		{"stderr", os.Stderr},
		{"STDERR", os.Stderr},
		{"discard", io.Discard},
		{"stdout", os.Stdout},
		{"", os.Stdout},
		{"somewhere-else", os.Stdout},
	}
	for _, tt := range tests {
		if got := writerFor(tt.input); got != tt.want {
			t.Errorf("writerFor(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestComponentTagsRecords(t *testing.T) {
	var buf bytes.Buffer
	base := &Logger{Logger: slog.New(slog.NewJSONHandler(&buf, nil))}

	base.Component("bridge").Info("connected", "host", "broker.example.com")

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("log record is not JSON: %v\n%s", err, buf.String())
	}
	if record["component"] != "bridge" {
		t.Errorf("component = %v, want %q", record["component"], "bridge")
	}
	if record["msg"] != "connected" {
		t.Errorf("msg = %v, want %q", record["msg"], "connected")
	}
	if record["host"] != "broker.example.com" {
		t.Errorf("host = %v, want %q", record["host"], "broker.example.com")
	}
}

func TestWithReturnsChild(t *testing.T) {
	base := Discard()
	child := base.With("k", "v")
	if child == nil || child == base {
		t.Errorf("With() = %v, want a distinct child logger", child)
	}
}

func TestNewFormats(t *testing.T) {
	for _, format := range []string{"json", "text", "TEXT", ""} {
		cfg := config.LoggingConfig{Level: "debug", Format: format, Output: "discard"}
		if logger := New(cfg, "1.0.0"); logger == nil {
			t.Errorf("New(format=%q) = nil", format)
		}
	}
}

func TestDiscardDropsRecords(t *testing.T) {
	logger := Discard()
	if logger == nil {
		t.Fatal("Discard() = nil")
	}
	// Must be usable without output or panic at any level.
	logger.Debug("d")
	logger.Info("i")
	logger.Warn("w")
	logger.Error("e")
}
