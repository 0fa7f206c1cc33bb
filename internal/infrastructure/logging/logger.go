package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/gophyn/phynbridge/internal/infrastructure/config"
)

// service is stamped on every record so aggregated logs can be filtered
// down to the bridge.
const service = "phynbridge"

// Logger is the bridge's structured logger. It embeds slog.Logger, so
// call sites use the slog surface (Info, Warn, Error, Debug) while
// constructors and child-logger helpers return the one concrete type
// the rest of the codebase passes around. Safe for concurrent use.
type Logger struct {
	*slog.Logger
}

// New builds a Logger from the logging section of the configuration:
// level filtering, json or text format, and the output destination.
// Every record carries the service name and build version.
func New(cfg config.LoggingConfig, version string) *Logger {
	opts := &slog.HandlerOptions{Level: levelFor(cfg.Level)}

	w := writerFor(cfg.Output)
	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "text") {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}

	handler = handler.WithAttrs([]slog.Attr{
		slog.String("service", service),
		slog.String("version", version),
	})
	return &Logger{Logger: slog.New(handler)}
}

// Default is the logger used before the configuration is loaded: JSON
// to stdout at info level, version "dev".
func Default() *Logger {
	return New(config.LoggingConfig{Format: "json", Output: "stdout"}, "dev")
}

// Discard returns a logger that drops every record. Intended for tests.
func Discard() *Logger {
	return &Logger{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

// With returns a child logger carrying extra default attributes.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}

// Component returns a child logger tagged with the subsystem it serves,
// e.g. Component("bridge") or Component("api"). Each subsystem takes
// its logger through Component so records are attributable without
// per-call tags.
func (l *Logger) Component(name string) *Logger {
	return l.With("component", name)
}

// writerFor maps the configured output name to its writer. Unknown
// names fall back to stdout.
func writerFor(output string) io.Writer {
	switch strings.ToLower(output) {
	case "stderr":
		return os.Stderr
	case "discard":
		return io.Discard
	default:
		return os.Stdout
	}
}

// levelFor parses the configured level through slog's own text form,
// which accepts debug/info/warn/error case-insensitively. "warning" is
// accepted as an alias. Unknown levels fall back to info.
func levelFor(level string) slog.Level {
	if strings.EqualFold(level, "warning") {
		return slog.LevelWarn
	}
	var parsed slog.Level
	if err := parsed.UnmarshalText([]byte(level)); err != nil {
		return slog.LevelInfo
	}
	return parsed
}
