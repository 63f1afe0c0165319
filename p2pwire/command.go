package p2pwire

import (
	"bytes"
	"fmt"

	"github.com/btcsuite/btcd/wire"
)

// CommandSize is the fixed length of the command field in a message header.
const CommandSize = wire.CommandSize

// Command identifies the kind of payload a message carries.
type Command uint8

// The list of supported commands.
const (
	CmdVersion Command = iota
	CmdVerAck
	CmdSendHeaders
	CmdWtxIdRelay
	CmdSendAddrV2
)

// commandNames maps every supported command to its name on the wire.
var commandNames = map[Command]string{
	CmdVersion:     wire.CmdVersion,
	CmdVerAck:      wire.CmdVerAck,
	CmdSendHeaders: wire.CmdSendHeaders,
	CmdWtxIdRelay:  "wtxidrelay",
	CmdSendAddrV2:  "sendaddrv2",
}

// commandsByName is the reverse of commandNames keyed by the padded wire
// form.
var commandsByName = func() map[[CommandSize]byte]Command {
	m := make(map[[CommandSize]byte]Command, len(commandNames))
	for cmd := range commandNames {
		m[cmd.WireName()] = cmd
	}

	return m
}()

// Commands returns every supported command.
func Commands() []Command {
	return []Command{
		CmdVersion, CmdVerAck, CmdSendHeaders, CmdWtxIdRelay,
		CmdSendAddrV2,
	}
}

// String returns the name of the command as it appears on the wire, without
// padding.
func (c Command) String() string {
	if name, ok := commandNames[c]; ok {
		return name
	}

	return fmt.Sprintf("<unknown cmd %d>", uint8(c))
}

// WireName returns the NUL padded 12 byte wire form of the command.
func (c Command) WireName() [CommandSize]byte {
	var raw [CommandSize]byte
	copy(raw[:], commandNames[c])

	return raw
}

// ParseCommand resolves a raw command span. An UnknownCommandError is
// returned if the span does not exactly match a supported command.
func ParseCommand(raw [CommandSize]byte) (Command, error) {
	cmd, ok := commandsByName[raw]
	if !ok {
		return 0, &UnknownCommandError{Raw: raw}
	}

	return cmd, nil
}

// Encode writes the padded wire form of the command.
//
// This is part of the Encoder interface.
func (c Command) Encode(w *bytes.Buffer) int {
	raw := c.WireName()
	return WriteBytes(w, raw[:])
}

// Decode reads a command span. The 12 bytes are consumed even if the command
// turns out to be unknown.
//
// This is part of the Decoder interface.
func (c *Command) Decode(r *bytes.Buffer) error {
	b, err := readN(r, CommandSize, "command")
	if err != nil {
		return err
	}

	cmd, err := ParseCommand([CommandSize]byte(b))
	if err != nil {
		return err
	}
	*c = cmd

	return nil
}

// trimCommand strips the NUL padding from a raw command span for display.
func trimCommand(raw [CommandSize]byte) string {
	return string(bytes.TrimRight(raw[:], "\x00"))
}
