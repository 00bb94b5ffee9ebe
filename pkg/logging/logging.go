// Package logging configures the slog handler scrywarden logs through. It
// mirrors the upstream config's "logging" block (version/formatters/
// handlers/root dict passed straight to logging.config.dictConfig) with the
// two knobs that translate to a single slog.Handler: level and format.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Config is the YAML "logging" block.
type Config struct {
	// Level is one of debug, info, warn, error. Defaults to info.
	Level string `yaml:"level"`
	// Format is "text" or "json". Defaults to text.
	Format string `yaml:"format"`
}

// New builds a logger from cfg, writing to w. A nil w defaults to os.Stderr.
func New(cfg Config, w io.Writer) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}

	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "json") {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

// Configure builds a logger from cfg and installs it as slog's package
// default, so the untouched slog.Warn/slog.With call sites elsewhere in the
// codebase pick up the configured level and format too.
func Configure(cfg Config) *slog.Logger {
	logger := New(cfg, os.Stderr)
	slog.SetDefault(logger)
	return logger
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
