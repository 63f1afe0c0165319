package p2pwire

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/btcsuite/btcd/wire"
)

// HeaderSize is the number of bytes in a message header: magic (4),
// command (12), payload length (4) and checksum (4).
const HeaderSize = wire.MessageHeaderSize

const (
	// lengthOffset is the offset of the payload length inside a header.
	lengthOffset = 4 + CommandSize

	// checksumOffset is the offset of the checksum inside a header.
	checksumOffset = lengthOffset + 4
)

// Message is a complete protocol message: the envelope header together with
// its typed payload. A Message is immutable once constructed. Outbound
// messages compute their length and checksum in NewMessage, inbound messages
// carry the values read from the header.
type Message struct {
	net      wire.BitcoinNet
	command  Command
	length   uint32
	checksum uint32
	payload  Payload

	// raw is the encoded payload. It is never handed out.
	raw []byte
}

// NewMessage builds an outbound message for the passed network. The payload
// is encoded once to compute the length and checksum of the envelope.
// Addresses of a version payload are stored in their canonical form so the
// message equals its decoded copy.
func NewMessage(net wire.BitcoinNet, payload Payload) (Message, error) {
	switch version := payload.(type) {
	case MsgVersion:
		payload = version.canonical()

	case *MsgVersion:
		payload = version.canonical()
	}

	var buf bytes.Buffer
	payload.Encode(&buf)

	if buf.Len() > wire.MaxMessagePayload {
		return Message{}, &PayloadTooLargeError{Size: uint32(buf.Len())}
	}

	raw := make([]byte, buf.Len())
	copy(raw, buf.Bytes())

	return Message{
		net:      net,
		command:  payload.Command(),
		length:   uint32(len(raw)),
		checksum: Checksum(raw),
		payload:  payload,
		raw:      raw,
	}, nil
}

// Net returns the network magic of the message.
func (m Message) Net() wire.BitcoinNet {
	return m.net
}

// Command returns the command of the message.
func (m Message) Command() Command {
	return m.command
}

// Length returns the payload length announced by the header.
func (m Message) Length() uint32 {
	return m.length
}

// Checksum returns the payload checksum carried by the header.
func (m Message) Checksum() uint32 {
	return m.checksum
}

// Payload returns the typed payload of the message.
func (m Message) Payload() Payload {
	return m.payload
}

// EncodedSize returns the number of bytes the message occupies on the wire.
func (m Message) EncodedSize() int {
	return HeaderSize + len(m.raw)
}

// String returns a short human readable description of the message.
func (m Message) String() string {
	return fmt.Sprintf("%v(len=%d, net=%v)", m.command, m.length, m.net)
}

// Encode writes the header followed by the payload.
//
// This is part of the Encoder interface.
func (m Message) Encode(w *bytes.Buffer) int {
	n := WriteUint32(w, uint32(m.net))
	n += m.command.Encode(w)
	n += WriteUint32(w, m.length)
	n += WriteUint32(w, m.checksum)
	n += WriteBytes(w, m.raw)

	return n
}

// header is the fixed size prefix of every message.
type header struct {
	net      wire.BitcoinNet
	command  [CommandSize]byte
	length   uint32
	checksum uint32
}

// peekHeader parses the header at the front of b without consuming it.
func peekHeader(b []byte) (header, error) {
	if len(b) < HeaderSize {
		return header{}, &NotEnoughBytesError{Field: "header"}
	}

	return header{
		net: wire.BitcoinNet(binary.LittleEndian.Uint32(b[:4])),
		command: [CommandSize]byte(
			b[4 : 4+CommandSize],
		),
		length: binary.LittleEndian.Uint32(
			b[lengthOffset:checksumOffset],
		),
		checksum: binary.LittleEndian.Uint32(
			b[checksumOffset:HeaderSize],
		),
	}, nil
}

// DecodeMessage reads one message from the front of the buffer, accepting
// any network magic. See decodeMessage for the error semantics.
func DecodeMessage(r *bytes.Buffer) (Message, error) {
	return decodeMessage(r, 0)
}

// decodeMessage reads one message from the front of the buffer.
//
// A NotEnoughBytesError is returned, and nothing consumed, if the buffer does
// not yet hold the complete header and payload. A PayloadTooLargeError is
// returned, and nothing consumed, if the header announces an oversized
// payload. Otherwise the whole frame is consumed and any failure to make
// sense of it is returned wrapped in a FrameError. If net is nonzero, frames
// for other networks are rejected.
func decodeMessage(r *bytes.Buffer, net wire.BitcoinNet) (Message, error) {
	hdr, err := peekHeader(r.Bytes())
	if err != nil {
		return Message{}, err
	}

	if hdr.length > wire.MaxMessagePayload {
		return Message{}, &PayloadTooLargeError{Size: hdr.length}
	}

	frameSize := HeaderSize + int(hdr.length)
	if r.Len() < frameSize {
		return Message{}, &NotEnoughBytesError{Field: "payload"}
	}

	// The frame is complete, consume it in full so that the stream stays
	// aligned whatever happens next.
	frame := r.Next(frameSize)
	raw := make([]byte, hdr.length)
	copy(raw, frame[HeaderSize:])

	cmd, err := ParseCommand(hdr.command)
	if err != nil {
		return Message{}, &FrameError{Err: err}
	}

	if net != 0 && hdr.net != net {
		return Message{}, &FrameError{Err: &UnexpectedNetError{
			Expected: net,
			Actual:   hdr.net,
		}}
	}

	if sum := Checksum(raw); sum != hdr.checksum {
		return Message{}, &FrameError{Err: &ChecksumMismatchError{
			Command:  cmd,
			Expected: hdr.checksum,
			Actual:   sum,
		}}
	}

	payload, err := decodePayload(cmd, bytes.NewBuffer(raw))
	if err != nil {
		return Message{}, &FrameError{
			Err: fmt.Errorf("unable to decode %v payload: %w", cmd,
				err),
		}
	}

	return Message{
		net:      hdr.net,
		command:  cmd,
		length:   hdr.length,
		checksum: hdr.checksum,
		payload:  payload,
		raw:      raw,
	}, nil
}
