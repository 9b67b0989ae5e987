// Package platform holds process-level plumbing: logger setup and
// environment-variable configuration helpers.
package platform

import (
	"os"

	"github.com/rs/zerolog"
)

// NewLogger builds the process logger. Production gets JSON on stdout;
// the development environment gets the human console writer.
func NewLogger(env string) zerolog.Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	if env == "development" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
			With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}
