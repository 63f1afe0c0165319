package peer

import (
	"errors"
	"fmt"
	"net/netip"
	"time"

	"github.com/btcsuite/btcd/wire"
	"github.com/lightningnetwork/lnd/clock"
	"github.com/romanschejbal/eqlabs/p2pwire"
)

const (
	// DefaultProtocolVersion is the protocol version advertised in our
	// version message.
	DefaultProtocolVersion = 70015

	// DefaultUserAgent is the user agent advertised in our version
	// message.
	DefaultUserAgent = "/ramen/"

	// DefaultOutboundQueueSize is the default number of messages that can
	// be queued for sending before producers are blocked.
	DefaultOutboundQueueSize = 50

	// DefaultInboundQueueSize is the default number of received messages
	// that are buffered for the caller before the read loop blocks.
	DefaultInboundQueueSize = 50
)

var (
	// ErrInvalidQueueSize is returned when a queue is configured without
	// room for at least one message.
	ErrInvalidQueueSize = errors.New("queue size must be at least 1")

	// ErrUnsupportedNet is returned when no network magic is configured.
	ErrUnsupportedNet = errors.New("bitcoin network must be set")
)

// Metrics receives the events of a session that are worth exporting.
type Metrics interface {
	// MessageSent is called after a message has been written to the
	// connection.
	MessageSent(cmd p2pwire.Command, size int)

	// MessageReceived is called for every message read from the
	// connection.
	MessageReceived(cmd p2pwire.Command, size int)

	// DecodeError is called for every frame that was dropped.
	DecodeError(err error)

	// HandshakeCompleted is called once the peer acknowledged our
	// version.
	HandshakeCompleted(latency time.Duration)
}

// Config houses the parameters of a session with a single peer.
type Config struct {
	// Net is the network magic our messages are sent with. Messages
	// received for any other network are dropped.
	Net wire.BitcoinNet

	// ProtocolVersion is the protocol version we advertise.
	ProtocolVersion int32

	// UserAgent is the user agent we advertise.
	UserAgent string

	// Services is the set of services we advertise.
	Services wire.ServiceFlag

	// OutboundQueueSize is the capacity of the outbound message queue.
	OutboundQueueSize int

	// InboundQueueSize is the capacity of the queue that hands received
	// messages to the caller.
	InboundQueueSize int

	// Clock is used to time the handshake.
	Clock clock.Clock

	// Metrics is notified of traffic on the session. It may be nil.
	Metrics Metrics
}

// DefaultConfig returns a mainnet configuration with all defaults applied.
func DefaultConfig() Config {
	return Config{
		Net:               wire.MainNet,
		ProtocolVersion:   DefaultProtocolVersion,
		UserAgent:         DefaultUserAgent,
		OutboundQueueSize: DefaultOutboundQueueSize,
		InboundQueueSize:  DefaultInboundQueueSize,
		Clock:             clock.NewDefaultClock(),
	}
}

// Validate checks the configuration and fills in the optional fields that
// were left unset.
func (c *Config) Validate() error {
	if c.Net == 0 {
		return ErrUnsupportedNet
	}

	if c.OutboundQueueSize < 1 {
		return fmt.Errorf("outbound: %w", ErrInvalidQueueSize)
	}

	if c.InboundQueueSize < 1 {
		return fmt.Errorf("inbound: %w", ErrInvalidQueueSize)
	}

	if c.Clock == nil {
		c.Clock = clock.NewDefaultClock()
	}

	if c.Metrics == nil {
		c.Metrics = noopMetrics{}
	}

	return nil
}

// versionMessage returns the version message that opens the handshake. The
// addresses are left unspecified and the nonce, timestamp and start height
// are zero.
func (c *Config) versionMessage() p2pwire.MsgVersion {
	unspecified := p2pwire.NewNetAddress(0, netip.IPv6Unspecified(), 0)

	return p2pwire.MsgVersion{
		ProtocolVersion: c.ProtocolVersion,
		Services:        c.Services,
		AddrRecv:        unspecified,
		AddrFrom:        unspecified,
		UserAgent:       p2pwire.VarString(c.UserAgent),
	}
}

// noopMetrics discards every event.
type noopMetrics struct{}

func (noopMetrics) MessageSent(p2pwire.Command, int)     {}
func (noopMetrics) MessageReceived(p2pwire.Command, int) {}
func (noopMetrics) DecodeError(error)                    {}
func (noopMetrics) HandshakeCompleted(time.Duration)     {}
