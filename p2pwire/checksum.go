package p2pwire

import (
	"encoding/binary"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// ChecksumSize is the number of bytes of the payload digest carried in a
// message header.
const ChecksumSize = 4

// Checksum returns the first four bytes of the double SHA-256 digest of the
// payload, read as a little endian uint32.
func Checksum(payload []byte) uint32 {
	digest := chainhash.DoubleHashB(payload)
	return binary.LittleEndian.Uint32(digest[:ChecksumSize])
}
