// Package logging configures the process-wide zerolog logger.
//
// Sync runs under cron want machine-readable JSON on stderr; humans running
// reports by hand get the console writer. Components take child loggers via
// WithComponent so every line carries its origin.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the global logger instance. It stays a no-op until Init runs, so
// library code can log unconditionally and tests stay quiet.
var Logger = zerolog.Nop()

// Config holds logging configuration.
type Config struct {
	// Level is one of debug, info, warn, error.
	Level string
	// JSON switches from the human console writer to raw JSON lines.
	JSON bool
	// Output defaults to stderr; stdout is reserved for progress and reports.
	Output io.Writer
}

// Init initializes the global logger.
func Init(cfg Config) {
	zerolog.SetGlobalLevel(parseLevel(cfg.Level))

	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}

	if cfg.JSON {
		Logger = zerolog.New(output).With().Timestamp().Logger()
	} else {
		Logger = zerolog.New(zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: time.RFC3339,
		}).With().Timestamp().Logger()
	}
}

func parseLevel(s string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return zerolog.DebugLevel
	case "info", "":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// WithComponent creates a child logger with a component field.
func WithComponent(component string) zerolog.Logger {
	return Logger.With().Str("component", component).Logger()
}

// WithRun creates a child logger carrying the sync run id.
func WithRun(runID int64) zerolog.Logger {
	return Logger.With().Int64("run_id", runID).Logger()
}
