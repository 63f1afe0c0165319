package p2pwire

import (
	"bytes"
	"encoding/binary"
)

// Encoder is implemented by every value that has a representation on the
// wire.
type Encoder interface {
	// Encode appends the wire form of the value to the passed buffer and
	// returns the number of bytes written.
	Encode(w *bytes.Buffer) int
}

// Decoder is implemented by pointers to values that can be read back from
// their wire form.
type Decoder interface {
	// Decode consumes the wire form of the value from the front of the
	// passed buffer. If the buffer does not hold enough bytes, a
	// NotEnoughBytesError naming the field is returned.
	Decode(r *bytes.Buffer) error
}

// WriteBytes appends the given bytes to the provided buffer.
func WriteBytes(w *bytes.Buffer, b []byte) int {
	n, _ := w.Write(b)
	return n
}

// WriteUint8 appends the uint8 to the provided buffer.
func WriteUint8(w *bytes.Buffer, n uint8) int {
	_ = w.WriteByte(n)
	return 1
}

// WriteUint16 appends the uint16 to the provided buffer. It encodes the
// integer using little endian byte order.
func WriteUint16(w *bytes.Buffer, n uint16) int {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], n)
	return WriteBytes(w, b[:])
}

// WriteUint32 appends the uint32 to the provided buffer. It encodes the
// integer using little endian byte order.
func WriteUint32(w *bytes.Buffer, n uint32) int {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], n)
	return WriteBytes(w, b[:])
}

// WriteUint64 appends the uint64 to the provided buffer. It encodes the
// integer using little endian byte order.
func WriteUint64(w *bytes.Buffer, n uint64) int {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], n)
	return WriteBytes(w, b[:])
}

// WriteInt32 appends the int32 to the provided buffer in its two's
// complement little endian form.
func WriteInt32(w *bytes.Buffer, n int32) int {
	return WriteUint32(w, uint32(n))
}

// WriteInt64 appends the int64 to the provided buffer in its two's
// complement little endian form.
func WriteInt64(w *bytes.Buffer, n int64) int {
	return WriteUint64(w, uint64(n))
}

// WriteBool appends the boolean to the provided buffer as a single byte.
func WriteBool(w *bytes.Buffer, b bool) int {
	if b {
		return WriteUint8(w, 1)
	}

	return WriteUint8(w, 0)
}

// readN removes exactly n bytes from the front of the buffer. Nothing is
// consumed if fewer than n bytes are available.
func readN(r *bytes.Buffer, n int, field string) ([]byte, error) {
	if n < 0 || r.Len() < n {
		return nil, &NotEnoughBytesError{Field: field}
	}

	return r.Next(n), nil
}

// ReadUint8 consumes a single byte from the buffer.
func ReadUint8(r *bytes.Buffer, field string) (uint8, error) {
	b, err := readN(r, 1, field)
	if err != nil {
		return 0, err
	}

	return b[0], nil
}

// ReadUint16 consumes a little endian uint16 from the buffer.
func ReadUint16(r *bytes.Buffer, field string) (uint16, error) {
	b, err := readN(r, 2, field)
	if err != nil {
		return 0, err
	}

	return binary.LittleEndian.Uint16(b), nil
}

// ReadUint32 consumes a little endian uint32 from the buffer.
func ReadUint32(r *bytes.Buffer, field string) (uint32, error) {
	b, err := readN(r, 4, field)
	if err != nil {
		return 0, err
	}

	return binary.LittleEndian.Uint32(b), nil
}

// ReadUint64 consumes a little endian uint64 from the buffer.
func ReadUint64(r *bytes.Buffer, field string) (uint64, error) {
	b, err := readN(r, 8, field)
	if err != nil {
		return 0, err
	}

	return binary.LittleEndian.Uint64(b), nil
}

// ReadInt32 consumes a little endian int32 from the buffer.
func ReadInt32(r *bytes.Buffer, field string) (int32, error) {
	n, err := ReadUint32(r, field)
	return int32(n), err
}

// ReadInt64 consumes a little endian int64 from the buffer.
func ReadInt64(r *bytes.Buffer, field string) (int64, error) {
	n, err := ReadUint64(r, field)
	return int64(n), err
}

// ReadBool consumes a single byte from the buffer. Any nonzero value is read
// as true.
func ReadBool(r *bytes.Buffer, field string) (bool, error) {
	b, err := ReadUint8(r, field)
	return b != 0, err
}
