package p2pwire

import (
	"bytes"
	"errors"
	"io"
	"testing"
	"testing/iotest"

	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"
)

// TestReaderOneByteAtATime asserts that the reader frames messages from a
// stream that yields a single byte per read.
func TestReaderOneByteAtATime(t *testing.T) {
	t.Parallel()

	var stream bytes.Buffer
	version, err := NewMessage(wire.MainNet, referenceVersion)
	require.NoError(t, err)
	_, err = WriteMessage(&stream, version)
	require.NoError(t, err)
	_, err = stream.Write(decodeHex(t, referenceVerAckHex))
	require.NoError(t, err)
	total := stream.Len()

	r := NewReader(iotest.OneByteReader(&stream), wire.MainNet)

	msg, err := r.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, version, msg)

	msg, err = r.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, CmdVerAck, msg.Command())

	_, err = r.ReadMessage()
	require.ErrorIs(t, err, io.EOF)
	require.EqualValues(t, total, r.BytesRead())
}

// TestReaderDataWithEOF asserts that bytes delivered together with io.EOF are
// still framed.
func TestReaderDataWithEOF(t *testing.T) {
	t.Parallel()

	frame := decodeHex(t, referenceVerAckHex)
	r := NewReader(iotest.DataErrReader(bytes.NewReader(frame)), 0)

	msg, err := r.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, CmdVerAck, msg.Command())

	_, err = r.ReadMessage()
	require.ErrorIs(t, err, io.EOF)
}

// TestReaderUnexpectedEOF asserts that a stream ending mid frame is reported
// as such.
func TestReaderUnexpectedEOF(t *testing.T) {
	t.Parallel()

	frame := decodeHex(t, referenceVersionHex)
	r := NewReader(bytes.NewReader(frame[:len(frame)-10]), wire.MainNet)

	_, err := r.ReadMessage()
	require.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

// TestReaderSkipsBadFrames asserts that a frame error leaves the reader
// usable.
func TestReaderSkipsBadFrames(t *testing.T) {
	t.Parallel()

	bad := decodeHex(t, referenceVersionHex)
	bad[HeaderSize] ^= 0xff

	var stream bytes.Buffer
	stream.Write(bad)
	stream.Write(decodeHex(t, referenceVerAckHex))

	r := NewReader(&stream, wire.MainNet)

	_, err := r.ReadMessage()
	require.True(t, IsFrameError(err))

	msg, err := r.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, CmdVerAck, msg.Command())
}

// TestReaderIOError asserts that transport errors are passed through.
func TestReaderIOError(t *testing.T) {
	t.Parallel()

	errBroken := errors.New("connection reset")
	r := NewReader(iotest.ErrReader(errBroken), wire.MainNet)

	_, err := r.ReadMessage()
	require.ErrorIs(t, err, errBroken)
}
