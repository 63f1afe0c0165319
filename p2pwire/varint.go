package p2pwire

import (
	"bytes"
	"encoding/binary"
	"math"
	"strings"
)

const (
	// varIntPrefix16 marks a VarInt followed by a uint16.
	varIntPrefix16 = 0xfd

	// varIntPrefix32 marks a VarInt followed by a uint32.
	varIntPrefix32 = 0xfe

	// varIntPrefix64 marks a VarInt followed by a uint64.
	varIntPrefix64 = 0xff
)

// VarInt is the compact variable width integer used for lengths and counts
// on the wire. Values below 0xfd take a single byte, larger values are
// prefixed by a marker byte followed by a 2, 4 or 8 byte little endian
// integer.
type VarInt uint64

// VarIntSerializeSize returns the number of bytes the canonical encoding of
// the passed value occupies.
func VarIntSerializeSize(v uint64) int {
	switch {
	case v < varIntPrefix16:
		return 1

	case v <= math.MaxUint16:
		return 3

	case v <= math.MaxUint32:
		return 5

	default:
		return 9
	}
}

// Encode writes the minimal encoding of the integer.
//
// This is part of the Encoder interface.
func (v VarInt) Encode(w *bytes.Buffer) int {
	n := uint64(v)
	switch {
	case n < varIntPrefix16:
		return WriteUint8(w, uint8(n))

	case n <= math.MaxUint16:
		return WriteUint8(w, varIntPrefix16) +
			WriteUint16(w, uint16(n))

	case n <= math.MaxUint32:
		return WriteUint8(w, varIntPrefix32) +
			WriteUint32(w, uint32(n))

	default:
		return WriteUint8(w, varIntPrefix64) + WriteUint64(w, n)
	}
}

// Decode reads a VarInt in any of its four forms. Non-minimal encodings are
// accepted. Nothing is consumed when the buffer is too short.
//
// This is part of the Decoder interface.
func (v *VarInt) Decode(r *bytes.Buffer) error {
	n, size, err := peekVarInt(r.Bytes())
	if err != nil {
		return err
	}
	r.Next(size)
	*v = VarInt(n)

	return nil
}

// peekVarInt parses a VarInt from the front of b without consuming anything.
// It returns the value and the number of bytes its encoding occupies.
func peekVarInt(b []byte) (uint64, int, error) {
	if len(b) < 1 {
		return 0, 0, &NotEnoughBytesError{Field: "varint"}
	}

	var size int
	switch b[0] {
	case varIntPrefix16:
		size = 3
	case varIntPrefix32:
		size = 5
	case varIntPrefix64:
		size = 9
	default:
		return uint64(b[0]), 1, nil
	}

	if len(b) < size {
		return 0, 0, &NotEnoughBytesError{Field: "varint"}
	}

	switch size {
	case 3:
		return uint64(binary.LittleEndian.Uint16(b[1:])), size, nil
	case 5:
		return uint64(binary.LittleEndian.Uint32(b[1:])), size, nil
	default:
		return binary.LittleEndian.Uint64(b[1:]), size, nil
	}
}

// VarString is a string prefixed by its byte length as a VarInt.
type VarString string

// Encode writes the length prefix followed by the raw bytes of the string.
//
// This is part of the Encoder interface.
func (s VarString) Encode(w *bytes.Buffer) int {
	n := VarInt(len(s)).Encode(w)
	n += WriteBytes(w, []byte(s))

	return n
}

// Decode reads a length prefixed string. Invalid UTF-8 sequences are
// replaced with the unicode replacement character rather than rejected.
// Nothing is consumed when the buffer is too short.
//
// This is part of the Decoder interface.
func (s *VarString) Decode(r *bytes.Buffer) error {
	length, prefix, err := peekVarInt(r.Bytes())
	if err != nil {
		return err
	}

	if uint64(r.Len()-prefix) < length {
		return &NotEnoughBytesError{Field: "string"}
	}

	r.Next(prefix)
	raw := r.Next(int(length))
	*s = VarString(strings.ToValidUTF8(string(raw), "\uFFFD"))

	return nil
}
