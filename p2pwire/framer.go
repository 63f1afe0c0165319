package p2pwire

import (
	"bytes"
	"errors"

	"github.com/btcsuite/btcd/wire"
	"github.com/lightningnetwork/lnd/fn/v2"
)

// DecodeFrame attempts to take one complete message off the front of an
// append-only buffer.
//
// If the buffer does not yet hold a complete frame, None is returned and the
// buffer is left untouched, so the call can be repeated once more bytes have
// arrived. A FrameError means one frame was consumed but could not be decoded,
// the caller may keep going. Any other error leaves the stream in a state it
// cannot recover from. If net is nonzero, frames for other networks are
// rejected with a FrameError.
func DecodeFrame(buf *bytes.Buffer,
	net wire.BitcoinNet) (fn.Option[Message], error) {

	msg, err := decodeMessage(buf, net)

	var errNeedMore *NotEnoughBytesError
	switch {
	// Only an incomplete frame surfaces a bare NotEnoughBytesError, short
	// payloads inside a complete frame are wrapped in a FrameError.
	case errors.As(err, &errNeedMore) && !IsFrameError(err):
		return fn.None[Message](), nil

	case err != nil:
		return fn.None[Message](), err
	}

	return fn.Some(msg), nil
}

// IsFrameError returns true if the error was caused by a single malformed
// frame and the stream it came from is still usable.
func IsFrameError(err error) bool {
	var frameErr *FrameError
	return errors.As(err, &frameErr)
}

// Framer assembles messages out of byte chunks that may split frames at any
// offset.
type Framer struct {
	net wire.BitcoinNet
	buf bytes.Buffer
}

// NewFramer returns a Framer that only accepts frames for the passed network.
// A zero network accepts every magic.
func NewFramer(net wire.BitcoinNet) *Framer {
	return &Framer{net: net}
}

// Write appends a chunk of stream data to the internal buffer. It never
// fails.
func (f *Framer) Write(p []byte) (int, error) {
	return f.buf.Write(p)
}

// Next returns the next complete message, if any. See DecodeFrame for the
// error semantics.
func (f *Framer) Next() (fn.Option[Message], error) {
	return DecodeFrame(&f.buf, f.net)
}

// Buffered returns the number of bytes waiting to be framed.
func (f *Framer) Buffered() int {
	return f.buf.Len()
}
