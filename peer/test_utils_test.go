package peer

import (
	"bytes"
	"context"
	"net"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/btcsuite/btcd/wire"
	"github.com/lightningnetwork/lnd/clock"
	"github.com/romanschejbal/eqlabs/p2pwire"
	"github.com/stretchr/testify/require"
)

var testTime = time.Date(2023, 3, 29, 21, 43, 42, 0, time.UTC)

// mockMetrics records the events reported by a session.
type mockMetrics struct {
	mu         sync.Mutex
	sent       []p2pwire.Command
	received   []p2pwire.Command
	decodeErrs []error
	handshakes int
}

func (m *mockMetrics) MessageSent(cmd p2pwire.Command, _ int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sent = append(m.sent, cmd)
}

func (m *mockMetrics) MessageReceived(cmd p2pwire.Command, _ int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.received = append(m.received, cmd)
}

func (m *mockMetrics) DecodeError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.decodeErrs = append(m.decodeErrs, err)
}

func (m *mockMetrics) HandshakeCompleted(time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.handshakes++
}

func (m *mockMetrics) handshakeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.handshakes
}

func (m *mockMetrics) decodeErrCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.decodeErrs)
}

// testConfig returns a mainnet session config with a test clock and the
// passed metrics sink.
func testConfig(metrics Metrics) Config {
	cfg := DefaultConfig()
	cfg.Clock = clock.NewTestClock(testTime)
	cfg.Metrics = metrics

	return cfg
}

// remotePeer is the far end of a piped connection. It speaks the protocol
// through btcd's independent wire implementation.
type remotePeer struct {
	t    require.TestingT
	conn net.Conn
}

// newPipe returns our end of an in-memory connection together with the
// remote peer on the other end.
func newPipe(t require.TestingT) (net.Conn, *remotePeer) {
	local, remote := net.Pipe()

	return local, &remotePeer{t: t, conn: remote}
}

// readMessage reads the next message we sent.
func (p *remotePeer) readMessage() wire.Message {
	msg, _, err := wire.ReadMessage(
		p.conn, wire.ProtocolVersion, wire.MainNet,
	)
	require.NoError(p.t, err)

	return msg
}

// expectNothing asserts that no message arrives within a short time.
func (p *remotePeer) expectNothing() {
	err := p.conn.SetReadDeadline(time.Now().Add(50 * time.Millisecond))
	require.NoError(p.t, err)

	var b [1]byte
	_, err = p.conn.Read(b[:])
	require.ErrorIs(p.t, err, os.ErrDeadlineExceeded)

	require.NoError(p.t, p.conn.SetReadDeadline(time.Time{}))
}

// sendBtcd writes a message encoded by btcd.
func (p *remotePeer) sendBtcd(msg wire.Message) {
	err := wire.WriteMessage(
		p.conn, msg, wire.ProtocolVersion, wire.MainNet,
	)
	require.NoError(p.t, err)
}

// sendPayload writes a message encoded by our own codec.
func (p *remotePeer) sendPayload(payload p2pwire.Payload) {
	msg, err := p2pwire.NewMessage(wire.MainNet, payload)
	require.NoError(p.t, err)

	_, err = p2pwire.WriteMessage(p.conn, msg)
	require.NoError(p.t, err)
}

// sendRaw writes raw bytes to the connection.
func (p *remotePeer) sendRaw(b []byte) {
	_, err := p.conn.Write(b)
	require.NoError(p.t, err)
}

// sendVersion writes the remote peer's version message.
func (p *remotePeer) sendVersion() {
	you := wire.NewNetAddressIPPort(net.IPv6zero, 0, 0)
	me := wire.NewNetAddressIPPort(
		net.ParseIP("198.51.100.2"), 8333, wire.SFNodeNetwork,
	)

	version := wire.NewMsgVersion(me, you, 7, 800000)
	version.UserAgent = "/Satoshi:27.0.0/"
	version.Services = wire.SFNodeNetwork | wire.SFNodeWitness

	p.sendBtcd(version)
}

// corruptFrame returns an encoded sendheaders frame with a broken checksum.
func corruptFrame(t require.TestingT) []byte {
	msg, err := p2pwire.NewMessage(wire.MainNet, p2pwire.MsgSendHeaders{})
	require.NoError(t, err)

	var buf bytes.Buffer
	msg.Encode(&buf)

	frame := buf.Bytes()
	frame[p2pwire.HeaderSize-1] ^= 0xff

	return frame
}

// connectResult is the outcome of a Connect call run in the background.
type connectResult struct {
	session *Session
	err     error
}

// connectAsync runs Connect in a goroutine.
func connectAsync(ctx context.Context, conn net.Conn,
	cfg Config) <-chan connectResult {

	results := make(chan connectResult, 1)
	go func() {
		s, err := Connect(ctx, conn, cfg)
		results <- connectResult{session: s, err: err}
	}()

	return results
}

// waitResult waits for a background Connect call to return.
func waitResult(t *testing.T, results <-chan connectResult) connectResult {
	t.Helper()

	select {
	case res := <-results:
		return res

	case <-time.After(5 * time.Second):
		t.Fatalf("connect did not return")
		return connectResult{}
	}
}
