// Package logger provides a thin wrapper around zerolog.Logger for the
// pwsafe CLI.
//
// The Logger type embeds zerolog.Logger so all standard zerolog methods
// (Debug, Info, Warn, Error, etc.) are available directly on *Logger. Library
// packages never log; only the command layer does, and never with secret
// values.
package logger

import (
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
)

// Logger is a thin wrapper around zerolog.Logger.
type Logger struct {
	zerolog.Logger
}

// New constructs a *Logger writing human-readable lines to w at the given
// level ("debug", "info", "warn", "error", "disabled").
func New(w io.Writer, level string) (*Logger, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}
	out := zerolog.ConsoleWriter{Out: w, NoColor: true, TimeFormat: "15:04:05"}
	l := zerolog.New(out).Level(lvl).With().
		Str("role", "cli").
		Timestamp().
		Logger()
	return &Logger{l}, nil
}

// NewStderr constructs a *Logger for the CLI, writing to os.Stderr.
func NewStderr(level string) (*Logger, error) {
	return New(os.Stderr, level)
}

// ParseLevel maps a configuration level name to a zerolog level. The empty
// string means warn.
func ParseLevel(level string) (zerolog.Level, error) {
	if level == "" {
		return zerolog.WarnLevel, nil
	}
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return zerolog.NoLevel, fmt.Errorf("logger: invalid level %q: %w", level, err)
	}
	return lvl, nil
}

// Nop returns a *Logger that discards all log output.
// It is intended for use in tests and other contexts where logging is
// undesirable or would produce noise.
func Nop() *Logger {
	return &Logger{zerolog.Nop()}
}

// WithField returns a child logger carrying an extra string field.
func (l *Logger) WithField(key, value string) *Logger {
	return &Logger{l.Logger.With().Str(key, value).Logger()}
}
