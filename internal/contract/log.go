package contract

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/huangsam/backfill/schema"
	"github.com/rs/zerolog"
)

// DefaultLogLevel is used when no level is configured.
const DefaultLogLevel = "info"

// NewLogger builds the process logger. Console output is human-readable,
// JSON output is one event per line for log shippers.
func NewLogger(level string, format schema.LogFormat, out io.Writer, noColor bool) (zerolog.Logger, error) {
	if level == "" {
		level = DefaultLogLevel
	}
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("invalid log level %q: %w", level, err)
	}

	var w io.Writer = out
	if format != schema.JSONLog {
		w = zerolog.ConsoleWriter{Out: out, TimeFormat: time.Kitchen, NoColor: noColor}
	}
	return zerolog.New(w).Level(lvl).With().Timestamp().Logger(), nil
}

// Component returns a child logger tagged with the component name.
func Component(logger zerolog.Logger, name string) zerolog.Logger {
	return logger.With().Str("component", name).Logger()
}
