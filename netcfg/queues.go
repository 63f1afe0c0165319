package netcfg

import "fmt"

const (
	// DefaultOutboundQueue is the default number of messages that can be
	// queued for the peer before senders block.
	DefaultOutboundQueue = 50

	// DefaultInboundQueue is the default number of received messages
	// buffered before the connection stops reading.
	DefaultInboundQueue = 50
)

// Queues exposes CLI configuration for the message queues of the peer
// session.
//
//nolint:lll
type Queues struct {
	// Outbound is the capacity of the outbound message queue.
	Outbound int `long:"outbound" description:"Maximum number of messages queued for the peer."`

	// Inbound is the capacity of the inbound message queue.
	Inbound int `long:"inbound" description:"Maximum number of received messages buffered before reading stops."`
}

// DefaultQueues returns the default queue sizes.
func DefaultQueues() *Queues {
	return &Queues{
		Outbound: DefaultOutboundQueue,
		Inbound:  DefaultInboundQueue,
	}
}

// Validate checks the Queues configuration to ensure that the input values
// are sane.
func (q *Queues) Validate() error {
	if q.Outbound <= 0 {
		return fmt.Errorf("outbound queue size must be positive")
	}
	if q.Inbound <= 0 {
		return fmt.Errorf("inbound queue size must be positive")
	}

	return nil
}
