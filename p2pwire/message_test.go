package p2pwire

import (
	"bytes"
	"encoding/binary"
	"net"
	"net/netip"
	"strings"
	"testing"
	"time"

	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// TestDecodeReferenceVersion decodes a version message captured from a
// mainnet node and re-encodes it byte for byte.
func TestDecodeReferenceVersion(t *testing.T) {
	t.Parallel()

	encoded := decodeHex(t, referenceVersionHex)

	msg, err := DecodeMessage(bytes.NewBuffer(encoded))
	require.NoError(t, err)
	require.Equal(t, wire.MainNet, msg.Net())
	require.EqualValues(t, 0xd9b4bef9, msg.Net())
	require.Equal(t, CmdVersion, msg.Command())
	require.EqualValues(t, 102, msg.Length())
	require.EqualValues(t, 1105356096, msg.Checksum())
	require.Equal(t, referenceVersion, msg.Payload())

	var buf bytes.Buffer
	require.Equal(t, len(encoded), msg.Encode(&buf))
	require.Equal(t, encoded, buf.Bytes())

	// Building the same payload from scratch must give the same frame.
	require.Equal(t, encoded, encodeMessage(t, referenceVersion))
}

// TestDecodeReferenceVerAck decodes a verack message.
func TestDecodeReferenceVerAck(t *testing.T) {
	t.Parallel()

	encoded := decodeHex(t, referenceVerAckHex)

	msg, err := DecodeMessage(bytes.NewBuffer(encoded))
	require.NoError(t, err)
	require.Equal(t, CmdVerAck, msg.Command())
	require.Equal(t, MsgVerAck{}, msg.Payload())
	require.Zero(t, msg.Length())

	require.Equal(t, encoded, encodeMessage(t, MsgVerAck{}))
}

// TestVersionPayloadLength asserts the encoded size of a version message
// with a user agent long enough to need a three byte length prefix.
func TestVersionPayloadLength(t *testing.T) {
	t.Parallel()

	version := referenceVersion
	version.AddrFrom.IP = netip.MustParseAddr("::192.168.0.1")
	version.UserAgent = VarString(
		strings.Repeat("/Satoshi:23.0.0:Nakamoto/", 29),
	)

	var buf bytes.Buffer
	require.Equal(t, 813, version.Encode(&buf))

	msg, err := NewMessage(wire.MainNet, version)
	require.NoError(t, err)
	require.EqualValues(t, 813, msg.Length())
	require.Equal(t, HeaderSize+813, msg.EncodedSize())

	var decoded MsgVersion
	require.NoError(t, decoded.Decode(&buf))
	require.Equal(t, version, decoded)
}

// TestMessageRoundTrip asserts that every payload survives an encode and
// decode of the full envelope, and that the header fields are computed from
// the payload.
func TestMessageRoundTrip(t *testing.T) {
	t.Parallel()

	rapid.Check(t, func(t *rapid.T) {
		payload := genPayload(t)
		btcnet := wire.BitcoinNet(rapid.Uint32().Draw(t, "net"))

		msg, err := NewMessage(btcnet, payload)
		require.NoError(t, err)

		var raw bytes.Buffer
		payload.Encode(&raw)
		require.EqualValues(t, raw.Len(), msg.Length())
		require.Equal(t, Checksum(raw.Bytes()), msg.Checksum())

		var buf bytes.Buffer
		n := msg.Encode(&buf)
		require.Equal(t, msg.EncodedSize(), n)

		decoded, err := DecodeMessage(&buf)
		require.NoError(t, err)
		require.Equal(t, msg, decoded)
		require.Equal(t, msg.Payload(), decoded.Payload())
		require.Zero(t, buf.Len())
	})
}

// TestNewMessageCanonicalAddresses asserts that version addresses built from
// any netip.Addr form are stored the way they decode.
func TestNewMessageCanonicalAddresses(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name     string
		ip       netip.Addr
		expected netip.Addr
	}{
		{
			name:     "zero addr",
			ip:       netip.Addr{},
			expected: netip.IPv6Unspecified(),
		},
		{
			name:     "ipv4-mapped",
			ip:       netip.MustParseAddr("::ffff:1.2.3.4"),
			expected: netip.MustParseAddr("1.2.3.4"),
		},
		{
			name:     "zoned ipv6",
			ip:       netip.MustParseAddr("fe80::1%eth0"),
			expected: netip.MustParseAddr("fe80::1"),
		},
		{
			name:     "ipv4",
			ip:       netip.MustParseAddr("1.2.3.4"),
			expected: netip.MustParseAddr("1.2.3.4"),
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			version := referenceVersion
			version.AddrRecv = NetAddress{IP: tc.ip, Port: 8333}
			version.AddrFrom = NewNetAddress(
				wire.SFNodeNetwork, tc.ip, 18333,
			)
			require.Equal(t, tc.expected, version.AddrFrom.IP)

			for _, payload := range []Payload{version, &version} {
				msg, err := NewMessage(wire.MainNet, payload)
				require.NoError(t, err)

				stored, ok := msg.Payload().(MsgVersion)
				require.True(t, ok)
				require.Equal(t, tc.expected, stored.AddrRecv.IP)
				require.Equal(t, tc.expected, stored.AddrFrom.IP)

				var buf bytes.Buffer
				msg.Encode(&buf)

				decoded, err := DecodeMessage(&buf)
				require.NoError(t, err)
				require.Equal(t, msg, decoded)
			}

			// The caller's payload is left untouched.
			require.Equal(t, tc.ip, version.AddrRecv.IP)
		})
	}
}

// TestTimestampedAddressRoundTrip asserts that the timestamped address record
// shares the wire layout of the plain record behind its timestamp.
func TestTimestampedAddressRoundTrip(t *testing.T) {
	t.Parallel()

	rapid.Check(t, func(t *rapid.T) {
		plain := genNetAddress(t, "addr")
		stamped := TimestampedAddress{
			Time:     Timestamp(rapid.Uint32().Draw(t, "time")),
			Services: plain.Services,
			IP:       canonicalIP(plain.IP),
			Port:     plain.Port,
		}

		var plainBuf, stampedBuf bytes.Buffer
		require.Equal(t, 26, plain.Encode(&plainBuf))
		require.Equal(t, 30, stamped.Encode(&stampedBuf))
		require.Equal(t, plainBuf.Bytes(), stampedBuf.Bytes()[4:])

		var decoded TimestampedAddress
		require.NoError(t, decoded.Decode(&stampedBuf))
		require.Equal(t, stamped, decoded)
	})
}

// TestAddressIPv4Mapping asserts that IPv4 addresses travel in their mapped
// form and come back unmapped.
func TestAddressIPv4Mapping(t *testing.T) {
	t.Parallel()

	addr := NetAddress{
		IP:   netip.MustParseAddr("203.0.113.7"),
		Port: 8333,
	}

	var buf bytes.Buffer
	addr.Encode(&buf)

	encoded := buf.Bytes()
	require.Equal(t, []byte{
		0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0xff, 0xff, 203, 0, 113, 7,
	}, encoded[8:24])
	require.Equal(t, []byte{0x20, 0x8d}, encoded[24:26])

	var decoded NetAddress
	require.NoError(t, decoded.Decode(&buf))
	require.Equal(t, addr, decoded)
	require.Equal(t, "203.0.113.7:8333", decoded.AddrPort().String())
}

// TestDecodeMessageErrors asserts how malformed frames are reported and how
// much of the buffer they consume.
func TestDecodeMessageErrors(t *testing.T) {
	t.Parallel()

	version := decodeHex(t, referenceVersionHex)
	verack := decodeHex(t, referenceVerAckHex)

	// corrupt returns a copy of the version frame with one byte changed.
	corrupt := func(offset int, value byte) []byte {
		b := bytes.Clone(version)
		b[offset] = value

		return b
	}

	// withLength returns a copy of the version frame with the announced
	// payload length replaced.
	withLength := func(length uint32) []byte {
		b := bytes.Clone(version)
		binary.LittleEndian.PutUint32(b[lengthOffset:], length)

		return b
	}

	// A version header whose payload is cut to the first four bytes,
	// with a matching checksum.
	truncated := func() []byte {
		payload := version[HeaderSize : HeaderSize+4]

		b := bytes.Clone(version[:HeaderSize])
		binary.LittleEndian.PutUint32(b[lengthOffset:], 4)
		binary.LittleEndian.PutUint32(
			b[checksumOffset:], Checksum(payload),
		)

		return append(b, payload...)
	}()

	unknown := bytes.Clone(verack)
	copy(unknown[4:4+CommandSize], "ping\x00\x00\x00\x00\x00\x00\x00\x00")

	tests := []struct {
		name      string
		frame     []byte
		check     func(t *testing.T, err error)
		frameErr  bool
		remaining int
	}{
		{
			name:  "short header",
			frame: version[:HeaderSize-1],
			check: func(t *testing.T, err error) {
				var e *NotEnoughBytesError
				require.ErrorAs(t, err, &e)
				require.Equal(t, "header", e.Field)
			},
			remaining: HeaderSize - 1,
		},
		{
			name:  "short payload",
			frame: version[:len(version)-1],
			check: func(t *testing.T, err error) {
				var e *NotEnoughBytesError
				require.ErrorAs(t, err, &e)
				require.Equal(t, "payload", e.Field)
			},
			remaining: len(version) - 1,
		},
		{
			name:  "payload too large",
			frame: withLength(wire.MaxMessagePayload + 1),
			check: func(t *testing.T, err error) {
				var e *PayloadTooLargeError
				require.ErrorAs(t, err, &e)
			},
			remaining: len(version),
		},
		{
			name:  "checksum mismatch",
			frame: corrupt(HeaderSize, 0x41),
			check: func(t *testing.T, err error) {
				var e *ChecksumMismatchError
				require.ErrorAs(t, err, &e)
				require.Equal(t, CmdVersion, e.Command)
				require.EqualValues(t, 1105356096, e.Expected)
			},
			frameErr: true,
		},
		{
			name:  "unknown command",
			frame: unknown,
			check: func(t *testing.T, err error) {
				var e *UnknownCommandError
				require.ErrorAs(t, err, &e)
				require.Equal(t, "ping", trimCommand(e.Raw))
			},
			frameErr: true,
		},
		{
			name:  "truncated version payload",
			frame: truncated,
			check: func(t *testing.T, err error) {
				var e *NotEnoughBytesError
				require.ErrorAs(t, err, &e)
				require.Equal(t, "services", e.Field)
			},
			frameErr: true,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()

			buf := bytes.NewBuffer(bytes.Clone(test.frame))

			_, err := DecodeMessage(buf)
			require.Error(t, err)
			test.check(t, err)
			require.Equal(t, test.frameErr, IsFrameError(err))
			require.Equal(t, test.remaining, buf.Len())
		})
	}
}

// TestDecodeMessageUnknownCommandSkipsPayload asserts that the payload of a
// frame with an unknown command is skipped so that the following frame can
// still be read.
func TestDecodeMessageUnknownCommandSkipsPayload(t *testing.T) {
	t.Parallel()

	frame := decodeHex(t, referenceVersionHex)
	copy(frame[4:4+CommandSize], "pong\x00\x00\x00\x00\x00\x00\x00\x00")

	buf := bytes.NewBuffer(frame)
	buf.Write(decodeHex(t, referenceVerAckHex))

	_, err := DecodeMessage(buf)
	require.True(t, IsFrameError(err))

	msg, err := DecodeMessage(buf)
	require.NoError(t, err)
	require.Equal(t, CmdVerAck, msg.Command())
	require.Zero(t, buf.Len())
}

// TestDecodeFrameUnexpectedNet asserts that frames for another network are
// skipped when the network is pinned.
func TestDecodeFrameUnexpectedNet(t *testing.T) {
	t.Parallel()

	buf := bytes.NewBuffer(decodeHex(t, referenceVerAckHex))

	msg, err := DecodeFrame(buf, wire.TestNet3)
	require.True(t, msg.IsNone())

	var e *UnexpectedNetError
	require.ErrorAs(t, err, &e)
	require.Equal(t, wire.TestNet3, e.Expected)
	require.Equal(t, wire.MainNet, e.Actual)
	require.True(t, IsFrameError(err))
	require.Zero(t, buf.Len())
}

// TestBtcdDecodesOurMessages asserts that btcd's independent implementation
// of the wire protocol accepts the frames we produce.
func TestBtcdDecodesOurMessages(t *testing.T) {
	t.Parallel()

	version := referenceVersion
	version.ProtocolVersion = int32(wire.ProtocolVersion)
	version.AddrFrom.IP = netip.MustParseAddr("203.0.113.7")
	version.AddrFrom.Port = 8333

	var stream bytes.Buffer
	stream.Write(encodeMessage(t, version))
	stream.Write(encodeMessage(t, MsgVerAck{}))
	stream.Write(encodeMessage(t, MsgSendHeaders{}))

	btcMsg, _, err := wire.ReadMessage(
		&stream, wire.ProtocolVersion, wire.MainNet,
	)
	require.NoError(t, err)
	require.IsType(t, &wire.MsgVersion{}, btcMsg)

	btcVersion := btcMsg.(*wire.MsgVersion)
	require.Equal(t, version.ProtocolVersion, btcVersion.ProtocolVersion)
	require.Equal(t, version.Services, btcVersion.Services)
	require.Equal(t, version.Timestamp, btcVersion.Timestamp.Unix())
	require.True(t, btcVersion.AddrYou.IP.Equal(
		net.IP(version.AddrRecv.IP.AsSlice()),
	))
	require.EqualValues(t, version.AddrRecv.Port, btcVersion.AddrYou.Port)
	require.True(t, btcVersion.AddrMe.IP.Equal(net.ParseIP("203.0.113.7")))
	require.EqualValues(t, 8333, btcVersion.AddrMe.Port)
	require.Equal(t, version.AddrFrom.Services, btcVersion.AddrMe.Services)
	require.Equal(t, version.Nonce, btcVersion.Nonce)
	require.Equal(t, string(version.UserAgent), btcVersion.UserAgent)
	require.Equal(t, version.StartHeight, btcVersion.LastBlock)
	require.Equal(t, !version.Relay, btcVersion.DisableRelayTx)

	btcMsg, _, err = wire.ReadMessage(
		&stream, wire.ProtocolVersion, wire.MainNet,
	)
	require.NoError(t, err)
	require.IsType(t, &wire.MsgVerAck{}, btcMsg)

	btcMsg, _, err = wire.ReadMessage(
		&stream, wire.ProtocolVersion, wire.MainNet,
	)
	require.NoError(t, err)
	require.IsType(t, &wire.MsgSendHeaders{}, btcMsg)
}

// TestDecodeBtcdMessages asserts that frames produced by btcd decode with our
// codec.
func TestDecodeBtcdMessages(t *testing.T) {
	t.Parallel()

	you := wire.NewNetAddressIPPort(
		net.ParseIP("2001:db8::1"), 18333, wire.SFNodeNetwork,
	)
	me := wire.NewNetAddressIPPort(net.ParseIP("198.51.100.2"), 18444, 0)

	btcVersion := wire.NewMsgVersion(me, you, 42, 800000)
	btcVersion.Timestamp = time.Unix(1680126222, 0)
	btcVersion.Services = wire.SFNodeNetwork | wire.SFNodeWitness

	var stream bytes.Buffer
	for _, m := range []wire.Message{
		btcVersion, wire.NewMsgVerAck(), wire.NewMsgSendHeaders(),
	} {
		err := wire.WriteMessage(
			&stream, m, wire.ProtocolVersion, wire.TestNet3,
		)
		require.NoError(t, err)
	}

	msg, err := DecodeMessage(&stream)
	require.NoError(t, err)
	require.Equal(t, wire.TestNet3, msg.Net())
	require.Equal(t, MsgVersion{
		ProtocolVersion: int32(wire.ProtocolVersion),
		Services:        wire.SFNodeNetwork | wire.SFNodeWitness,
		Timestamp:       1680126222,
		AddrRecv: NetAddress{
			Services: wire.SFNodeNetwork,
			IP:       netip.MustParseAddr("2001:db8::1"),
			Port:     18333,
		},
		AddrFrom: NetAddress{
			IP:   netip.MustParseAddr("198.51.100.2"),
			Port: 18444,
		},
		Nonce:       42,
		UserAgent:   VarString(btcVersion.UserAgent),
		StartHeight: 800000,
		Relay:       true,
	}, msg.Payload())

	msg, err = DecodeMessage(&stream)
	require.NoError(t, err)
	require.Equal(t, CmdVerAck, msg.Command())

	msg, err = DecodeMessage(&stream)
	require.NoError(t, err)
	require.Equal(t, CmdSendHeaders, msg.Command())
	require.Zero(t, stream.Len())
}

// TestTimestampConversions checks the conversions between wire timestamps
// and time.Time.
func TestTimestampConversions(t *testing.T) {
	t.Parallel()

	when := time.Date(2023, 3, 29, 21, 43, 42, 500, time.UTC)

	stamp := NewTimestamp(when)
	require.EqualValues(t, 1680126222, stamp)
	require.True(t, stamp.Time().Equal(when.Truncate(time.Second)))

	require.True(t, referenceVersion.Time().Equal(
		time.Unix(1680126222, 0),
	))

	rapid.Check(t, func(t *rapid.T) {
		stamp := Timestamp(rapid.Uint32().Draw(t, "stamp"))
		require.Equal(t, stamp, NewTimestamp(stamp.Time()))
	})
}
