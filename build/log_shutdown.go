package build

import (
	"context"

	"github.com/btcsuite/btclog/v2"
)

// ShutdownLogger wraps an existing logger with a shutdown function which will
// be called on Criticalf and CriticalS to prompt shutdown.
type ShutdownLogger struct {
	btclog.Logger
	shutdown func()
}

// NewShutdownLogger creates a shutdown logger for the log provided. A nil
// shutdown function turns it into a plain logger.
func NewShutdownLogger(logger btclog.Logger, shutdown func()) *ShutdownLogger {
	return &ShutdownLogger{
		Logger:   logger,
		shutdown: shutdown,
	}
}

// Criticalf formats message according to format specifier and writes to
// log with LevelCritical. It will then call the shutdown logger's shutdown
// function to prompt safe shutdown.
//
// NOTE: This is part of the btclog.Logger interface.
func (s *ShutdownLogger) Criticalf(format string, params ...any) {
	s.Logger.Criticalf(format, params...)
	s.requestShutdown()
}

// CriticalS writes a structured log with the given message and key-value
// pair attributes with LevelCritical to the log. It will then call the
// shutdown logger's shutdown function to prompt safe shutdown.
//
// NOTE: This is part of the btclog.Logger interface.
func (s *ShutdownLogger) CriticalS(ctx context.Context, msg string, err error,
	attr ...any) {

	s.Logger.CriticalS(ctx, msg, err, attr...)
	s.requestShutdown()
}

func (s *ShutdownLogger) requestShutdown() {
	if s.shutdown == nil {
		return
	}

	s.Logger.Info("Sending request for shutdown")
	s.shutdown()
}
