package p2pwire

import (
	"bytes"
	"io"

	"github.com/btcsuite/btcd/wire"
)

// readChunkSize is the size of the scratch buffer used for each read from the
// underlying stream.
const readChunkSize = 4096

// Reader reads messages from a byte stream whose reads may return any number
// of bytes.
type Reader struct {
	r      io.Reader
	framer *Framer
	chunk  []byte

	bytesRead uint64
}

// NewReader returns a Reader that frames messages out of r. If net is
// nonzero, frames for other networks are reported as FrameErrors.
func NewReader(r io.Reader, net wire.BitcoinNet) *Reader {
	return &Reader{
		r:      r,
		framer: NewFramer(net),
		chunk:  make([]byte, readChunkSize),
	}
}

// ReadMessage blocks until a complete message is available.
//
// An error for which IsFrameError returns true only affects the frame that
// was skipped, and the next call continues with the following frame. io.EOF
// is returned once the stream ends on a frame boundary, io.ErrUnexpectedEOF
// if it ends in the middle of a frame. Any other error is fatal.
func (r *Reader) ReadMessage() (Message, error) {
	for {
		msg, err := r.framer.Next()
		if err != nil {
			return Message{}, err
		}
		if msg.IsSome() {
			return msg.UnsafeFromSome(), nil
		}

		n, err := r.r.Read(r.chunk)
		if n > 0 {
			r.bytesRead += uint64(n)
			_, _ = r.framer.Write(r.chunk[:n])
		}

		switch {
		// Frame whatever arrived with the error before giving up.
		case err == io.EOF && n > 0:
			continue

		case err == io.EOF && r.framer.Buffered() > 0:
			return Message{}, io.ErrUnexpectedEOF

		case err != nil:
			return Message{}, err
		}
	}
}

// BytesRead returns the total number of bytes read from the stream.
func (r *Reader) BytesRead() uint64 {
	return r.bytesRead
}

// WriteMessage writes the full encoding of the message to w and returns the
// number of bytes written.
func WriteMessage(w io.Writer, msg Message) (int, error) {
	var buf bytes.Buffer
	buf.Grow(msg.EncodedSize())
	msg.Encode(&buf)

	return w.Write(buf.Bytes())
}
