package p2pwire

import (
	"bytes"
	"encoding/binary"
	"net/netip"
	"time"

	"github.com/btcsuite/btcd/wire"
)

// Port is a TCP port. Unlike every other integer on the wire it is encoded
// in big endian (network) byte order.
type Port uint16

// Encode writes the port in big endian byte order.
//
// This is part of the Encoder interface.
func (p Port) Encode(w *bytes.Buffer) int {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], uint16(p))

	return WriteBytes(w, b[:])
}

// Decode reads a big endian port.
//
// This is part of the Decoder interface.
func (p *Port) Decode(r *bytes.Buffer) error {
	b, err := readN(r, 2, "port")
	if err != nil {
		return err
	}
	*p = Port(binary.BigEndian.Uint16(b))

	return nil
}

// NoTime is the timestamp slot of an address record that is embedded in a
// version message. It occupies no bytes on the wire.
type NoTime struct{}

// Encode writes nothing.
//
// This is part of the Encoder interface.
func (NoTime) Encode(*bytes.Buffer) int {
	return 0
}

// Decode reads nothing.
//
// This is part of the Decoder interface.
func (*NoTime) Decode(*bytes.Buffer) error {
	return nil
}

// Timestamp is the last-seen time of a standalone address table entry, in
// seconds since the unix epoch.
type Timestamp uint32

// NewTimestamp truncates the passed time to a Timestamp.
func NewTimestamp(t time.Time) Timestamp {
	return Timestamp(t.Unix())
}

// Time returns the timestamp as a time.Time.
func (t Timestamp) Time() time.Time {
	return time.Unix(int64(t), 0)
}

// Encode writes the timestamp as a little endian uint32.
//
// This is part of the Encoder interface.
func (t Timestamp) Encode(w *bytes.Buffer) int {
	return WriteUint32(w, uint32(t))
}

// Decode reads a little endian uint32 timestamp.
//
// This is part of the Decoder interface.
func (t *Timestamp) Decode(r *bytes.Buffer) error {
	n, err := ReadUint32(r, "timestamp")
	if err != nil {
		return err
	}
	*t = Timestamp(n)

	return nil
}

// AddressTime constrains the timestamp slot of an Address to either no
// timestamp at all or a real one.
type AddressTime interface {
	NoTime | Timestamp

	Encoder
}

// Address is a peer address record. The same record is used inside version
// messages, where it carries no timestamp, and for standalone address table
// entries, where it is prefixed by a Timestamp.
type Address[T AddressTime] struct {
	// Time is the optional timestamp slot.
	Time T

	// Services is the set of services the address advertises.
	Services wire.ServiceFlag

	// IP is written as 16 bytes. IPv4 addresses are sent in their
	// IPv4-mapped IPv6 form and unmapped again when read. An invalid IP
	// is sent as the unspecified address.
	IP netip.Addr

	// Port is the TCP port of the address.
	Port Port
}

// NetAddress is an address record as it appears in a version message.
type NetAddress = Address[NoTime]

// TimestampedAddress is an address record as it appears in an address table.
type TimestampedAddress = Address[Timestamp]

// NewNetAddress returns an address record for a version message with the IP
// in its canonical form.
func NewNetAddress(services wire.ServiceFlag, ip netip.Addr,
	port Port) NetAddress {

	return NetAddress{
		Services: services,
		IP:       canonicalIP(ip),
		Port:     port,
	}
}

// canonicalIP returns the form an IP takes after it went over the wire:
// IPv4-mapped addresses are unmapped, zones are dropped and the zero Addr
// becomes the unspecified IPv6 address.
func canonicalIP(ip netip.Addr) netip.Addr {
	if !ip.IsValid() {
		return netip.IPv6Unspecified()
	}

	return ip.Unmap().WithZone("")
}

// canonical returns a copy of the record with its IP in canonical form.
func (a Address[T]) canonical() Address[T] {
	a.IP = canonicalIP(a.IP)
	return a
}

// AddrPort returns the IP and port of the record.
func (a Address[T]) AddrPort() netip.AddrPort {
	return netip.AddrPortFrom(a.IP, uint16(a.Port))
}

// Encode writes the fields of the record in wire order.
//
// This is part of the Encoder interface.
func (a Address[T]) Encode(w *bytes.Buffer) int {
	ip := a.IP.As16()

	n := a.Time.Encode(w)
	n += WriteUint64(w, uint64(a.Services))
	n += WriteBytes(w, ip[:])
	n += a.Port.Encode(w)

	return n
}

// Decode reads the fields of the record in wire order.
//
// This is part of the Decoder interface.
func (a *Address[T]) Decode(r *bytes.Buffer) error {
	if d, ok := any(&a.Time).(Decoder); ok {
		if err := d.Decode(r); err != nil {
			return err
		}
	}

	services, err := ReadUint64(r, "services")
	if err != nil {
		return err
	}
	a.Services = wire.ServiceFlag(services)

	ip, err := readN(r, 16, "ip")
	if err != nil {
		return err
	}
	a.IP = canonicalIP(netip.AddrFrom16([16]byte(ip)))

	return a.Port.Decode(r)
}
