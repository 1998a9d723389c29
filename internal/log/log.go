// Package log configures structured logging for meridian-generate using log/slog.
package log

import (
	"fmt"
	"io"
	"log/slog"
)

// Supported handler formats.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// Setup configures the default slog logger based on verbosity flags.
//
//   - quiet mode:   only WARN and ERROR messages
//   - normal mode:  INFO and above
//   - verbose mode: DEBUG and above
//
// Records are written to w with a TextHandler, or a JSONHandler when format is "json".
func Setup(w io.Writer, verbose, quiet bool, format string) error {
	var level slog.Level
	switch {
	case quiet:
		level = slog.LevelWarn
	case verbose:
		level = slog.LevelDebug
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch format {
	case "", FormatText:
		handler = slog.NewTextHandler(w, opts)
	case FormatJSON:
		handler = slog.NewJSONHandler(w, opts)
	default:
		return fmt.Errorf("unknown log format %q (want %s or %s)", format, FormatText, FormatJSON)
	}

	slog.SetDefault(slog.New(handler))
	return nil
}
