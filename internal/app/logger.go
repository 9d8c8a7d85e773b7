package app

import (
	"log/slog"
	"os"
)

// NewLogger builds the process-wide slog.Logger: JSON in deployments that
// ask for it, text otherwise. AddSource stays on in both shapes since the
// source position is what makes reconciliation logs traceable.
func NewLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{AddSource: true}
	if cfg != nil && cfg.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
