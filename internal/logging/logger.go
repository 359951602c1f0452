package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/mattn/go-isatty"

	"github.com/jmullan/gslimp3/internal/config"
)

// New creates and configures the structured logger based on configuration.
// The returned function closes the log file, if one was opened.
func New(cfg config.LoggingConfig) (*slog.Logger, func() error) {
	level := ParseLevel(cfg.Level)

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	output, closer := openOutput(cfg.Output)

	return slog.New(newHandler(cfg.Format, output, opts)), closer
}

// ParseLevel maps a level name onto slog, defaulting to info
func ParseLevel(name string) slog.Level {
	switch name {
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

// Discard returns a logger that drops everything
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func openOutput(name string) (*os.File, func() error) {
	noop := func() error { return nil }

	switch name {
	case "stdout":
		return os.Stdout, noop
	case "stderr", "":
		return os.Stderr, noop
	}

	file, err := os.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open log file %s: %v, falling back to stderr\n", name, err)
		return os.Stderr, noop
	}
	return file, file.Close
}

// newHandler picks the handler for format. "auto" means text on a terminal
// and JSON everywhere else.
func newHandler(format string, output *os.File, opts *slog.HandlerOptions) slog.Handler {
	if format == "auto" || format == "" {
		format = "json"
		if isatty.IsTerminal(output.Fd()) || isatty.IsCygwinTerminal(output.Fd()) {
			format = "text"
		}
	}

	switch format {
	case "json":
		return slog.NewJSONHandler(output, opts)
	default:
		return slog.NewTextHandler(output, opts)
	}
}
