// Package main is the entry point of the docsync publisher.
package main

import (
	"log/slog"
	"os"
	"strings"
)

// parseLogLevel maps a DOCSYNC_LOG_LEVEL value to a slog level. Unknown values
// fall back to info.
func parseLogLevel(value string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "debug":
		return slog.LevelDebug
	case "info", "":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		slog.Warn("Invalid log level, using INFO", "value", value)
		return slog.LevelInfo
	}
}

// setupLogger installs a JSON logger on stderr so stdout stays clean for
// command output.
func setupLogger(level string) *slog.Logger {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: parseLogLevel(level)}))
	slog.SetDefault(logger)
	return logger
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
