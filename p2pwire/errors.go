package p2pwire

import (
	"fmt"

	"github.com/btcsuite/btcd/wire"
)

// NotEnoughBytesError is returned when a value is decoded from a buffer that
// ends before the value does. At the framing boundary it means more input is
// needed, on a direct decode it is fatal to the value being read.
type NotEnoughBytesError struct {
	// Field names the value that could not be read.
	Field string
}

// Error returns a human readable string describing the error.
//
// This is part of the error interface.
func (e *NotEnoughBytesError) Error() string {
	return fmt.Sprintf("not enough bytes to decode %s", e.Field)
}

// UnknownCommandError is returned when a message header carries a command
// name that is not part of the supported command set.
type UnknownCommandError struct {
	// Raw is the command span exactly as it was read from the header.
	Raw [CommandSize]byte
}

// Error returns a human readable string describing the error.
//
// This is part of the error interface.
func (e *UnknownCommandError) Error() string {
	return fmt.Sprintf("unknown command %q", trimCommand(e.Raw))
}

// ChecksumMismatchError is returned when the checksum stored in a message
// header does not match the digest of the payload that followed it.
type ChecksumMismatchError struct {
	Command  Command
	Expected uint32
	Actual   uint32
}

// Error returns a human readable string describing the error.
//
// This is part of the error interface.
func (e *ChecksumMismatchError) Error() string {
	return fmt.Sprintf("checksum mismatch for %v message: header has "+
		"%08x, payload hashes to %08x", e.Command, e.Expected, e.Actual)
}

// PayloadTooLargeError is returned when a header announces a payload that is
// larger than wire.MaxMessagePayload. A stream that produced this error
// cannot be resynchronised.
type PayloadTooLargeError struct {
	Size uint32
}

// Error returns a human readable string describing the error.
//
// This is part of the error interface.
func (e *PayloadTooLargeError) Error() string {
	return fmt.Sprintf("message payload is too large: %d bytes, max %d",
		e.Size, wire.MaxMessagePayload)
}

// UnexpectedNetError is returned when a message is framed for a different
// bitcoin network than the one the decoder was configured for.
type UnexpectedNetError struct {
	Expected wire.BitcoinNet
	Actual   wire.BitcoinNet
}

// Error returns a human readable string describing the error.
//
// This is part of the error interface.
func (e *UnexpectedNetError) Error() string {
	return fmt.Sprintf("message from network %v, expected %v", e.Actual,
		e.Expected)
}

// FrameError wraps a decoding failure that is confined to a single frame. The
// bytes of the offending frame have been consumed, so the stream is still
// aligned on the next header and reading may continue.
type FrameError struct {
	Err error
}

// Error returns a human readable string describing the error.
//
// This is part of the error interface.
func (e *FrameError) Error() string {
	return fmt.Sprintf("invalid frame: %v", e.Err)
}

// Unwrap returns the underlying decoding error.
func (e *FrameError) Unwrap() error {
	return e.Err
}
