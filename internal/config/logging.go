package config

import (
	"io"
	"log/slog"
	"os"

	slogmulti "github.com/samber/slog-multi"
)

// SetupLogger builds the process logger: human-readable text on stderr,
// JSON appended to logFile for machine parsing. An empty logFile disables
// the file sink. The returned cleanup closes the log file.
func SetupLogger(logFile string, level slog.Level) (*slog.Logger, func() error) {
	opts := &slog.HandlerOptions{Level: level}
	stderrHandler := slog.NewTextHandler(os.Stderr, opts)
	noop := func() error { return nil }

	if logFile == "" {
		return slog.New(stderrHandler), noop
	}

	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		slog.Error("failed to open log file, using stderr only", "error", err, "file", logFile)
		return slog.New(stderrHandler), noop
	}

	logger := slog.New(slogmulti.Fanout(
		stderrHandler,
		slog.NewJSONHandler(file, opts),
	))
	return logger, file.Close
}

// NewFanoutLogger builds a dual-sink logger over arbitrary writers. Used by
// tests that need to inspect both output streams.
func NewFanoutLogger(text, json io.Writer, level slog.Level) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	return slog.New(slogmulti.Fanout(
		slog.NewTextHandler(text, opts),
		slog.NewJSONHandler(json, opts),
	))
}
