package lnutils

import (
	"log/slog"

	"github.com/btcsuite/btclog/v2"
	"github.com/davecgh/go-spew/spew"
	"github.com/romanschejbal/eqlabs/p2pwire"
)

// LogClosure is used to provide a closure over expensive logging operations so
// don't have to be performed when the logging level doesn't warrant it.
type LogClosure func() string

// String invokes the underlying function and returns the result.
func (c LogClosure) String() string {
	return c()
}

// SpewLogClosure takes an interface and returns the string of it created from
// `spew.Sdump` in a LogClosure.
func SpewLogClosure(a any) LogClosure {
	return func() string {
		return spew.Sdump(a)
	}
}

// LogMessage returns the slog attributes describing the envelope of a
// message: its command, payload length and checksum.
func LogMessage(msg p2pwire.Message) []any {
	return []any{
		slog.String("cmd", msg.Command().String()),
		slog.Uint64("len", uint64(msg.Length())),
		btclog.Fmt("checksum", "%08x", msg.Checksum()),
	}
}
