// Package logging configures the process-wide zerolog logger.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Setup configures the global logger from the -v count and the output format
// ("console" or "json") and returns it. Output goes to stderr.
func Setup(verbosity int, format string) zerolog.Logger {
	return SetupWriter(os.Stderr, verbosity, format)
}

// SetupWriter is Setup with an explicit destination.
func SetupWriter(w io.Writer, verbosity int, format string) zerolog.Logger {
	zerolog.SetGlobalLevel(levelFor(verbosity))

	out := w
	if format != "json" {
		out = zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}
	}

	log.Logger = zerolog.New(out).With().Timestamp().Logger()
	if verbosity >= 2 {
		log.Logger = log.Logger.With().Caller().Logger()
	}

	log.Debug().Int("verbosity", verbosity).Str("format", format).Msg("logger initialized")
	return log.Logger
}

func levelFor(verbosity int) zerolog.Level {
	switch {
	case verbosity <= 0:
		return zerolog.InfoLevel
	case verbosity == 1:
		return zerolog.DebugLevel
	default:
		return zerolog.TraceLevel
	}
}

// Component returns the global logger tagged with a component name.
func Component(name string) zerolog.Logger {
	return log.With().Str("component", name).Logger()
}
