package p2pwire

import (
	"bytes"
	"encoding/hex"
	"net/netip"
	"strings"
	"testing"

	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

const (
	// referenceVersionHex is a version message sent by a mainnet
	// Bitcoin Core 23.0 node.
	referenceVersionHex = "f9beb4d976657273696f6e00000000006600000040" +
		"65e2418011010009040000000000000eb12464000000000000000000000000" +
		"2a028308900c5900b59bb5511c2602a8db7e09040000000000000000000000" +
		"0000000000000000000000000053481fe5dc365360102f5361746f7368693a" +
		"32332e302e302fe8f20b0001"

	// referenceVerAckHex is a mainnet verack message.
	referenceVerAckHex = "f9beb4d976657261636b0000000000000000000" +
		"05df6e0e2"
)

// referenceVersion is the decoded form of referenceVersionHex.
var referenceVersion = MsgVersion{
	ProtocolVersion: 70016,
	Services:        1033,
	Timestamp:       1680126222,
	AddrRecv: NetAddress{
		IP: netip.MustParseAddr(
			"2a02:8308:900c:5900:b59b:b551:1c26:2a8",
		),
		Port: 56190,
	},
	AddrFrom: NetAddress{
		Services: 1033,
		IP:       netip.IPv6Unspecified(),
	},
	Nonce:       6940951773072803923,
	UserAgent:   "/Satoshi:23.0.0/",
	StartHeight: 783080,
	Relay:       true,
}

// decodeHex decodes a hex test vector.
func decodeHex(t *testing.T, s string) []byte {
	t.Helper()

	b, err := hex.DecodeString(s)
	require.NoError(t, err)

	return b
}

// encodeMessage returns the wire bytes of a freshly built message.
func encodeMessage(t require.TestingT, payload Payload) []byte {
	msg, err := NewMessage(wire.MainNet, payload)
	require.NoError(t, err)

	var buf bytes.Buffer
	msg.Encode(&buf)

	return buf.Bytes()
}

// genIP draws an address in any of the forms a caller may construct: the
// zero Addr, plain IPv4, IPv4-mapped IPv6, or IPv6 with or without a zone.
func genIP(t *rapid.T) netip.Addr {
	switch rapid.IntRange(0, 4).Draw(t, "ip_form") {
	case 0:
		return netip.Addr{}

	case 1:
		raw := rapid.SliceOfN(rapid.Byte(), 4, 4).Draw(t, "ipv4")
		return netip.AddrFrom4([4]byte(raw))

	case 2:
		raw := rapid.SliceOfN(rapid.Byte(), 4, 4).Draw(t, "ipv4")
		return netip.AddrFrom16(
			netip.AddrFrom4([4]byte(raw)).As16(),
		)

	case 3:
		raw := rapid.SliceOfN(rapid.Byte(), 16, 16).Draw(t, "ipv6")
		return netip.AddrFrom16([16]byte(raw)).WithZone("eth0")

	default:
		raw := rapid.SliceOfN(rapid.Byte(), 16, 16).Draw(t, "ipv6")
		return netip.AddrFrom16([16]byte(raw))
	}
}

// genNetAddress draws an address record without timestamp.
func genNetAddress(t *rapid.T, label string) NetAddress {
	return NetAddress{
		Services: wire.ServiceFlag(
			rapid.Uint64().Draw(t, label+"_services"),
		),
		IP:   genIP(t),
		Port: Port(rapid.Uint16().Draw(t, label+"_port")),
	}
}

// genUserAgent draws either one of the VarInt boundary lengths or an
// arbitrary string.
func genUserAgent(t *rapid.T) VarString {
	if rapid.Bool().Draw(t, "boundary_length") {
		length := rapid.SampledFrom(
			[]int{0, 1, 252, 253, 65535, 65536},
		).Draw(t, "ua_length")

		return VarString(strings.Repeat("u", length))
	}

	return VarString(rapid.String().Draw(t, "user_agent"))
}

// genVersion draws an arbitrary version message.
func genVersion(t *rapid.T) MsgVersion {
	return MsgVersion{
		ProtocolVersion: rapid.Int32().Draw(t, "version"),
		Services: wire.ServiceFlag(
			rapid.Uint64().Draw(t, "services"),
		),
		Timestamp:   rapid.Int64().Draw(t, "timestamp"),
		AddrRecv:    genNetAddress(t, "addr_recv"),
		AddrFrom:    genNetAddress(t, "addr_from"),
		Nonce:       rapid.Uint64().Draw(t, "nonce"),
		UserAgent:   genUserAgent(t),
		StartHeight: rapid.Int32().Draw(t, "start_height"),
		Relay:       rapid.Bool().Draw(t, "relay"),
	}
}

// genPayload draws a payload for any supported command.
func genPayload(t *rapid.T) Payload {
	switch cmd := rapid.SampledFrom(Commands()).Draw(t, "cmd"); cmd {
	case CmdVersion:
		return genVersion(t)
	case CmdVerAck:
		return MsgVerAck{}
	case CmdSendHeaders:
		return MsgSendHeaders{}
	default:
		return MsgEmpty{Cmd: cmd}
	}
}
