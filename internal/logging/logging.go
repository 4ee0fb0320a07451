// Package logging configures the process-wide slog logger.
package logging

import (
	"io"
	"log/slog"
	"os"
)

// Setup installs a text handler on stderr as the default logger. Verbose
// output includes debug records.
func Setup(verbose bool) *slog.Logger {
	return SetupWriter(os.Stderr, verbose)
}

// SetupWriter is Setup with an explicit destination.
func SetupWriter(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return logger
}

// Discard returns a logger that drops every record.
func Discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}
