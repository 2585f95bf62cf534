package logging

import (
	"log/slog"
	"os"
	"strings"
	"time"
)

// LevelFromEnv reads IMAGESTORE_LOG_LEVEL, falling back to LOG_LEVEL.
func LevelFromEnv() slog.Level {
	value := os.Getenv("IMAGESTORE_LOG_LEVEL")
	if value == "" {
		value = os.Getenv("LOG_LEVEL")
	}
	return ParseLevel(value, slog.LevelInfo)
}

func ParseLevel(value string, fallback slog.Level) slog.Level {
	switch strings.ToLower(value) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return fallback
	}
}

func CreateLogger(level slog.Level) *slog.Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				a.Value = slog.StringValue(a.Value.Time().Format(time.RFC3339))
			}
			return a
		},
	})
	logger := slog.New(handler)
	return logger
}
