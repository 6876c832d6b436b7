// Package util holds small helpers shared across the bot.
package util

import (
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// NewLogger builds the process logger. Unknown levels fall back to
// info. With pretty set, output goes through the console writer
// instead of raw JSON.
func NewLogger(level string, pretty bool) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	var w = zerolog.New(os.Stdout)
	if pretty {
		w = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout})
	}
	return w.With().Timestamp().Logger().Level(lvl)
}
