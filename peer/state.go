package peer

import "fmt"

// HandshakeState is the progress of the version handshake with a peer.
type HandshakeState uint32

const (
	// StateInit is the state before our version message is queued.
	StateInit HandshakeState = iota

	// StateAwaitingPeerAck means our version message is queued and we
	// are waiting for the peer to acknowledge it.
	StateAwaitingPeerAck

	// StateReady means the peer acknowledged our version and general
	// traffic may flow.
	StateReady
)

// String returns a human readable name for the state.
func (s HandshakeState) String() string {
	switch s {
	case StateInit:
		return "Init"

	case StateAwaitingPeerAck:
		return "AwaitingPeerAck"

	case StateReady:
		return "Ready"

	default:
		return fmt.Sprintf("<unknown state %d>", uint32(s))
	}
}
