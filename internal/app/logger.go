package app

import (
	"log/slog"
	"os"
)

// NewLogger builds the process logger. Production deployments run JSON for
// log aggregation; development defaults to the text handler. Every subsystem
// receives this logger, so the service name rides on all records.
func NewLogger(cfg *Config) *slog.Logger {
	level := slog.LevelInfo
	if cfg != nil && !cfg.IsProduction() {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level, AddSource: true}

	var handler slog.Handler
	if cfg != nil && cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler).With(slog.String("service", "gardia"))
}
