// Package logging builds the zerolog logger shared by the relay.
package logging

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// ServiceName is attached to every log entry.
const ServiceName = "relaynet"

// New returns a logger writing to out, human readable in development and
// JSON in production. An empty level means info.
func New(out io.Writer, level string, production bool) (zerolog.Logger, error) {
	lvl := zerolog.InfoLevel
	if level != "" {
		parsed, err := zerolog.ParseLevel(level)
		if err != nil {
			return zerolog.Nop(), fmt.Errorf("logging: %w", err)
		}
		lvl = parsed
	}

	if out == nil {
		out = os.Stdout
	}
	if !production {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.TimeOnly}
	}

	return zerolog.New(out).
		With().
		Str("service", ServiceName).
		Timestamp().
		Logger().
		Level(lvl), nil
}
