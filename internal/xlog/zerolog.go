package xlog

import (
	"os"

	"github.com/rs/zerolog"
)

type zerologLogger struct {
	log zerolog.Logger
}

// New builds the default Logger: a console-formatted zerolog writer to
// stderr with caller information, built once and threaded through
// explicitly rather than referenced as a global.
func New() Logger {
	l := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Caller().Logger()
	return &zerologLogger{log: l}
}

// Wrap adapts an existing zerolog.Logger, e.g. one configured by a host
// application, to the Logger interface.
func Wrap(l zerolog.Logger) Logger {
	return &zerologLogger{log: l}
}

func (z *zerologLogger) Debugf(format string, args ...any) { z.log.Debug().Msgf(format, args...) }
func (z *zerologLogger) Infof(format string, args ...any)  { z.log.Info().Msgf(format, args...) }
func (z *zerologLogger) Warnf(format string, args ...any)  { z.log.Warn().Msgf(format, args...) }
func (z *zerologLogger) Errorf(format string, args ...any) { z.log.Error().Msgf(format, args...) }
