package app

import (
	"log/slog"
	"os"
)

// NewLogger builds the process-wide logger. LOG_FORMAT=json selects the
// handler log shippers expect; anything else falls back to text for local
// runs. Source locations are attached either way.
func NewLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{AddSource: true}
	var handler slog.Handler = slog.NewTextHandler(os.Stdout, opts)
	if cfg != nil && cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	return slog.New(handler)
}
