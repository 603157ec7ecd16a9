// Package logging builds the zerolog logger shared by the server and the
// mail worker.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/pkgerrors"
)

// New returns a logger writing JSON to stdout, or a console writer when
// pretty is set. An unknown level falls back to info and is reported.
func New(level string, pretty bool) (zerolog.Logger, error) {
	return NewWithWriter(os.Stdout, level, pretty)
}

// NewWithWriter is New with an explicit destination.
func NewWithWriter(w io.Writer, level string, pretty bool) (zerolog.Logger, error) {
	zerolog.ErrorStackMarshaler = pkgerrors.MarshalStack

	lvl, err := parseLevel(level)
	if pretty {
		w = zerolog.ConsoleWriter{Out: w}
	}
	logger := zerolog.New(w).Level(lvl).With().Timestamp().Logger()
	return logger, err
}

func parseLevel(level string) (zerolog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zerolog.DebugLevel, nil
	case "info", "":
		return zerolog.InfoLevel, nil
	case "warn":
		return zerolog.WarnLevel, nil
	case "error":
		return zerolog.ErrorLevel, nil
	default:
		return zerolog.InfoLevel, errors.Errorf("unknown log level: %s", level)
	}
}
