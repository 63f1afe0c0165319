package p2pwire

import (
	"bytes"
	"fmt"
	"time"

	"github.com/btcsuite/btcd/wire"
)

// Payload is the typed body of a message.
type Payload interface {
	Encoder

	// Command returns the command that announces this payload on the
	// wire.
	Command() Command
}

// MsgVersion is the first message each side of a connection sends. It
// advertises the protocol version and capabilities of the sender.
type MsgVersion struct {
	// ProtocolVersion is the highest protocol version the sender speaks.
	ProtocolVersion int32

	// Services is the set of services offered by the sender.
	Services wire.ServiceFlag

	// Timestamp is the sender's clock in seconds since the unix epoch.
	Timestamp int64

	// AddrRecv is the address of the receiving peer as seen by the
	// sender.
	AddrRecv NetAddress

	// AddrFrom is the address of the sender.
	AddrFrom NetAddress

	// Nonce is used to detect connections to self.
	Nonce uint64

	// UserAgent identifies the software of the sender.
	UserAgent VarString

	// StartHeight is the height of the sender's best block.
	StartHeight int32

	// Relay signals whether the sender wants transactions announced.
	Relay bool
}

// A compile time check to ensure MsgVersion implements the Payload
// interface.
var _ Payload = MsgVersion{}

// Command returns CmdVersion.
//
// This is part of the Payload interface.
func (m MsgVersion) Command() Command {
	return CmdVersion
}

// Time returns the timestamp of the message as a time.Time.
func (m MsgVersion) Time() time.Time {
	return time.Unix(m.Timestamp, 0)
}

// canonical returns a copy of the message with both addresses in the form
// they take after a round trip over the wire.
func (m MsgVersion) canonical() MsgVersion {
	m.AddrRecv = m.AddrRecv.canonical()
	m.AddrFrom = m.AddrFrom.canonical()

	return m
}

// Encode writes the version message in wire order.
//
// This is part of the Encoder interface.
func (m MsgVersion) Encode(w *bytes.Buffer) int {
	n := WriteInt32(w, m.ProtocolVersion)
	n += WriteUint64(w, uint64(m.Services))
	n += WriteInt64(w, m.Timestamp)
	n += m.AddrRecv.Encode(w)
	n += m.AddrFrom.Encode(w)
	n += WriteUint64(w, m.Nonce)
	n += m.UserAgent.Encode(w)
	n += WriteInt32(w, m.StartHeight)
	n += WriteBool(w, m.Relay)

	return n
}

// Decode reads a version message in wire order.
//
// This is part of the Decoder interface.
func (m *MsgVersion) Decode(r *bytes.Buffer) error {
	var err error
	if m.ProtocolVersion, err = ReadInt32(r, "version"); err != nil {
		return err
	}

	services, err := ReadUint64(r, "services")
	if err != nil {
		return err
	}
	m.Services = wire.ServiceFlag(services)

	if m.Timestamp, err = ReadInt64(r, "timestamp"); err != nil {
		return err
	}
	if err := m.AddrRecv.Decode(r); err != nil {
		return err
	}
	if err := m.AddrFrom.Decode(r); err != nil {
		return err
	}
	if m.Nonce, err = ReadUint64(r, "nonce"); err != nil {
		return err
	}
	if err := m.UserAgent.Decode(r); err != nil {
		return err
	}
	if m.StartHeight, err = ReadInt32(r, "start_height"); err != nil {
		return err
	}
	m.Relay, err = ReadBool(r, "relay")

	return err
}

// MsgVerAck acknowledges a received version message. It has no body.
type MsgVerAck struct{}

// A compile time check to ensure MsgVerAck implements the Payload interface.
var _ Payload = MsgVerAck{}

// Command returns CmdVerAck.
//
// This is part of the Payload interface.
func (MsgVerAck) Command() Command {
	return CmdVerAck
}

// Encode writes nothing.
//
// This is part of the Encoder interface.
func (MsgVerAck) Encode(*bytes.Buffer) int {
	return 0
}

// MsgSendHeaders asks the receiver to announce new blocks with headers
// rather than inventory. It has no body.
type MsgSendHeaders struct{}

// A compile time check to ensure MsgSendHeaders implements the Payload
// interface.
var _ Payload = MsgSendHeaders{}

// Command returns CmdSendHeaders.
//
// This is part of the Payload interface.
func (MsgSendHeaders) Command() Command {
	return CmdSendHeaders
}

// Encode writes nothing.
//
// This is part of the Encoder interface.
func (MsgSendHeaders) Encode(*bytes.Buffer) int {
	return 0
}

// MsgEmpty is the payload of the negotiation commands whose body is not
// interpreted, currently wtxidrelay and sendaddrv2.
type MsgEmpty struct {
	Cmd Command
}

// A compile time check to ensure MsgEmpty implements the Payload interface.
var _ Payload = MsgEmpty{}

// Command returns the command the empty payload was received with.
//
// This is part of the Payload interface.
func (m MsgEmpty) Command() Command {
	return m.Cmd
}

// Encode writes nothing.
//
// This is part of the Encoder interface.
func (MsgEmpty) Encode(*bytes.Buffer) int {
	return 0
}

// decodePayload dispatches payload decoding on the command from the header.
func decodePayload(cmd Command, r *bytes.Buffer) (Payload, error) {
	switch cmd {
	case CmdVersion:
		var msg MsgVersion
		if err := msg.Decode(r); err != nil {
			return nil, err
		}

		return msg, nil

	case CmdVerAck:
		return MsgVerAck{}, nil

	case CmdSendHeaders:
		return MsgSendHeaders{}, nil

	case CmdWtxIdRelay, CmdSendAddrV2:
		return MsgEmpty{Cmd: cmd}, nil

	default:
		return nil, fmt.Errorf("no payload type for %v", cmd)
	}
}
