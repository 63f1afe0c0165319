package build

import (
	"context"
	"io"
	"log/slog"

	btclogv1 "github.com/btcsuite/btclog"
	"github.com/btcsuite/btclog/v2"
)

// NewDefaultLogHandlers returns the handlers of the enabled loggers: the
// console logger writing to stdout and the file logger writing to the
// rotator.
func NewDefaultLogHandlers(cfg *LogConfig, stdout io.Writer,
	rotator *RotatingLogWriter) []btclog.Handler {

	var handlers []btclog.Handler
	if !cfg.Console.Disable {
		handlers = append(handlers, btclog.NewDefaultHandler(
			stdout, cfg.Console.HandlerOptions()...,
		))
	}

	if !cfg.File.Disable && rotator != nil {
		handlers = append(handlers, btclog.NewDefaultHandler(
			rotator, cfg.File.HandlerOptions()...,
		))
	}

	return handlers
}

// handlerSet is a btclog.Handler that fans every record out to a set of
// handlers that share a single level.
type handlerSet struct {
	level btclogv1.Level
	set   []btclog.Handler
}

// newHandlerSet constructs a handlerSet and applies the level to every
// member.
func newHandlerSet(level btclogv1.Level, set ...btclog.Handler) *handlerSet {
	h := &handlerSet{
		set: set,
	}
	h.SetLevel(level)

	return h
}

// Enabled reports whether any handler of the set handles records at the
// given level.
//
// NOTE: this is part of the slog.Handler interface.
func (h *handlerSet) Enabled(ctx context.Context, level slog.Level) bool {
	for _, handler := range h.set {
		if handler.Enabled(ctx, level) {
			return true
		}
	}

	return false
}

// Handle passes the record to every handler of the set that is enabled for
// its level.
//
// NOTE: this is part of the slog.Handler interface.
func (h *handlerSet) Handle(ctx context.Context, record slog.Record) error {
	for _, handler := range h.set {
		if !handler.Enabled(ctx, record.Level) {
			continue
		}

		if err := handler.Handle(ctx, record.Clone()); err != nil {
			return err
		}
	}

	return nil
}

// WithAttrs returns a new set whose members carry the given attributes.
//
// NOTE: this is part of the slog.Handler interface.
func (h *handlerSet) WithAttrs(attrs []slog.Attr) slog.Handler {
	return h.derive(func(handler btclog.Handler) btclog.Handler {
		return handler.WithAttrs(attrs).(btclog.Handler)
	})
}

// WithGroup returns a new set whose members open the named group.
//
// NOTE: this is part of the slog.Handler interface.
func (h *handlerSet) WithGroup(name string) slog.Handler {
	return h.derive(func(handler btclog.Handler) btclog.Handler {
		return handler.WithGroup(name).(btclog.Handler)
	})
}

// SubSystem returns a new set whose members tag their records with the
// given subsystem.
//
// NOTE: this is part of the btclog.Handler interface.
func (h *handlerSet) SubSystem(tag string) btclog.Handler {
	return h.derive(func(handler btclog.Handler) btclog.Handler {
		return handler.SubSystem(tag)
	})
}

// WithPrefix returns a new set whose members prefix every message with the
// given string.
//
// NOTE: this is part of the btclog.Handler interface.
func (h *handlerSet) WithPrefix(prefix string) btclog.Handler {
	return h.derive(func(handler btclog.Handler) btclog.Handler {
		return handler.WithPrefix(prefix)
	})
}

// SetLevel changes the level of every handler of the set.
//
// NOTE: this is part of the btclog.Handler interface.
func (h *handlerSet) SetLevel(level btclogv1.Level) {
	for _, handler := range h.set {
		handler.SetLevel(level)
	}
	h.level = level
}

// Level returns the level shared by the set.
//
// NOTE: this is part of the btclog.Handler interface.
func (h *handlerSet) Level() btclogv1.Level {
	return h.level
}

// derive builds a new set by transforming every member.
func (h *handlerSet) derive(
	f func(btclog.Handler) btclog.Handler) *handlerSet {

	set := make([]btclog.Handler, len(h.set))
	for i, handler := range h.set {
		set[i] = f(handler)
	}

	return &handlerSet{
		level: h.level,
		set:   set,
	}
}

var _ btclog.Handler = (*handlerSet)(nil)
