// Package logging sets up the structured logger shared by the backup
// service's subsystems.
package logging

import (
	"log/slog"
	"os"
	"strings"
)

// Setup builds the root logger, installs it as the slog default, and returns
// it. Output is logfmt on stderr, one line per event, so pg_dump chatter on
// the child processes' stderr never interleaves with it on stdout.
func Setup(level string) *slog.Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: parseLevel(level),
	})
	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// Component derives a child logger tagged with a subsystem name (backup,
// scheduler, websocket, http), keeping the attribute key consistent across
// the codebase.
func Component(logger *slog.Logger, name string) *slog.Logger {
	return logger.With("component", name)
}

// parseLevel accepts debug, info, warn, or error, case-insensitively.
// Anything else, including an empty LOG_LEVEL, means info.
func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
