// Package logger configures the process-wide structured logger. Log
// output goes to stderr; stdout belongs to the viewer window.
package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
)

var globalLogger *slog.Logger

// InitLogger initializes slog with the given level and installs it as the
// process default. Valid levels are debug, info, warn and error.
func InitLogger(level string) error {
	slogLevel, err := parseLevel(level)
	if err != nil {
		return err
	}

	globalLogger = slog.New(newHandler(os.Stderr, slogLevel))
	slog.SetDefault(globalLogger)

	return nil
}

func parseLevel(level string) (slog.Level, error) {
	switch level {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("invalid log level: %s", level)
	}
}

// newHandler builds the text handler. Debug level adds the source
// file and line to every record.
func newHandler(w io.Writer, level slog.Level) slog.Handler {
	return slog.NewTextHandler(w, &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	})
}

// GetLogger returns the global logger, or the slog default when InitLogger
// has not been called yet.
func GetLogger() *slog.Logger {
	if globalLogger == nil {
		return slog.Default()
	}
	return globalLogger
}
