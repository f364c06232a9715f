package logger

import (
	"log/slog"
	"os"

	"github.com/lmittmann/tint"
)

// Configure installs the process-wide slog handler: colorized tint
// output for dev environments, JSON for everything else.
func Configure(levelStr string, env string) {
	level := parseLogLevel(levelStr)
	w := os.Stdout

	var handler slog.Handler
	if env == "dev" || env == "development" {
		handler = tint.NewHandler(w, &tint.Options{Level: level})
	} else {
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	}
	slog.SetDefault(slog.New(handler))
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
