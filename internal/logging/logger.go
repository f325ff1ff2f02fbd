// Package logging builds the zerolog loggers used across logbuf.
//
// Components accept a zerolog.Logger by value and default to a no-op logger,
// so the library stays silent unless the embedding application asks for
// output. The diagnostic echo channel is a separate human-readable console
// logger that mirrors writes and query results while developing.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// New returns a JSON logger writing to w at the given level.
func New(w io.Writer, level zerolog.Level) zerolog.Logger {
	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}

// NewDefault returns an info-level JSON logger on stderr.
func NewDefault() zerolog.Logger {
	return New(os.Stderr, zerolog.InfoLevel)
}

// Nop returns a logger that discards everything.
func Nop() zerolog.Logger {
	return zerolog.Nop()
}

// Echo is the developer-visible diagnostic channel. A disabled Echo drops
// every call without formatting anything.
type Echo struct {
	logger  zerolog.Logger
	enabled bool
}

// NewEcho returns an Echo writing console-formatted lines to w. When enabled
// is false the returned Echo is a no-op.
func NewEcho(w io.Writer, enabled bool) *Echo {
	if !enabled {
		return &Echo{logger: zerolog.Nop()}
	}
	if w == nil {
		w = os.Stderr
	}
	console := zerolog.ConsoleWriter{Out: w, TimeFormat: time.TimeOnly, NoColor: true}
	return &Echo{
		logger:  zerolog.New(console).With().Timestamp().Str("component", "logbuf").Logger(),
		enabled: true,
	}
}

// Enabled reports whether echo output is on.
func (e *Echo) Enabled() bool {
	return e != nil && e.enabled
}

// Print writes msg with the given fields when echo is enabled.
func (e *Echo) Print(msg string, fields map[string]any) {
	if !e.Enabled() {
		return
	}
	e.logger.Debug().Fields(fields).Msg(msg)
}
