// Package logging constructs the single zerolog.Logger threaded through
// every component, replacing the teacher's bare log.Printf calls with
// structured fields.
//
// Grounded on sawpanic-cryptorun's pervasive zerolog usage across its
// internal/application packages.
package logging

import (
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// New builds a zerolog.Logger at the given level ("debug", "info", "warn",
// "error"; unrecognized values fall back to info) and format ("console" for
// human-readable output, anything else for newline-delimited JSON).
func New(level, format string) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339

	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		lvl = zerolog.InfoLevel
	}

	var out zerolog.ConsoleWriter
	if strings.EqualFold(format, "console") {
		out = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}
		return zerolog.New(out).Level(lvl).With().Timestamp().Logger()
	}

	return zerolog.New(os.Stderr).Level(lvl).With().Timestamp().Logger()
}
