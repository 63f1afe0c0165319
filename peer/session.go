package peer

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/btcsuite/btclog/v2"
	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/romanschejbal/eqlabs/lnutils"
	"github.com/romanschejbal/eqlabs/p2pwire"
)

// Stats is a snapshot of the traffic counters of a session.
type Stats struct {
	// ConnectedAt is when the session was created.
	ConnectedAt time.Time

	// HandshakeLatency is the time between queueing our version message
	// and receiving the peer's verack. It is zero until the handshake
	// completes.
	HandshakeLatency time.Duration

	MessagesSent     uint64
	MessagesReceived uint64
	BytesSent        uint64
	BytesReceived    uint64
	DecodeErrors     uint64
}

// Session is a connection to a single peer. It owns one goroutine per
// direction of the transport: the write handler drains the outbound queue in
// order, the read handler first drives the version handshake and afterwards
// forwards every received message to the inbound queue.
//
// NOTE: A Session MUST be created with Connect.
type Session struct {
	// The following fields are only meant to be used *atomically*.
	state            atomic.Uint32
	messagesSent     atomic.Uint64
	messagesReceived atomic.Uint64
	bytesSent        atomic.Uint64
	bytesReceived    atomic.Uint64
	decodeErrors     atomic.Uint64
	handshakeLatency atomic.Int64

	cfg  Config
	conn net.Conn
	log  btclog.Logger

	connectedAt time.Time

	// outgoing is the bounded FIFO queue drained by the write handler.
	outgoing chan p2pwire.Message

	// incoming is the bounded queue the read handler delivers received
	// messages to once the handshake is done. It is closed when the read
	// handler exits.
	incoming chan p2pwire.Message

	// ready is completed exactly once, either with the handshake latency
	// when the peer acknowledges our version, or with the error that
	// tore the connection down first.
	ready *Promise[time.Duration]

	// remoteVersion is the first version message received from the peer.
	remoteVersion atomic.Pointer[p2pwire.MsgVersion]

	goroutines *fn.GoroutineManager

	// err is the reason the session was torn down. It is written once
	// before quit is closed.
	err        error
	disconnect sync.Once
	quit       chan struct{}
}

// Connect runs the version handshake over an established connection and
// returns the session once the peer has acknowledged our version.
//
// There is no internal timeout, the handshake stays pending until it
// completes, the connection fails or the context is done. In the latter two
// cases the connection is closed, every goroutine of the session is stopped
// and the error is returned. Transport failures are returned as a
// ConnectionError.
func Connect(ctx context.Context, conn net.Conn, cfg Config) (*Session,
	error) {

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid peer config: %w", err)
	}

	s := newSession(conn, cfg)

	// Our version goes into the queue before any goroutine is running, so
	// it is guaranteed to be the first message on the wire. The queue
	// holds at least one message, so this never blocks.
	version, err := p2pwire.NewMessage(cfg.Net, cfg.versionMessage())
	if err != nil {
		s.Close()
		return nil, err
	}
	s.outgoing <- version
	s.setState(StateAwaitingPeerAck)

	s.log.Debugf("Queued version message: protocol_version=%d, "+
		"user_agent=%s", cfg.ProtocolVersion, cfg.UserAgent)

	// The goroutines outlive the context of the connect call.
	goCtx := context.WithoutCancel(ctx)
	if !s.goroutines.Go(goCtx, s.writeHandler) ||
		!s.goroutines.Go(goCtx, s.readHandler) {

		s.Close()
		return nil, ErrSessionClosed
	}

	latency, err := s.ready.Await(ctx).Unpack()
	if err != nil {
		s.log.Debugf("Handshake aborted: %v", err)
		s.Close()

		return nil, err
	}

	s.log.Infof("Handshake completed in %v", latency)

	return s, nil
}

// newSession creates a session over conn without starting it.
func newSession(conn net.Conn, cfg Config) *Session {
	prefix := fmt.Sprintf("Peer(%v):", conn.RemoteAddr())

	return &Session{
		cfg:         cfg,
		conn:        conn,
		log:         log.WithPrefix(prefix),
		connectedAt: cfg.Clock.Now(),
		outgoing:    make(chan p2pwire.Message, cfg.OutboundQueueSize),
		incoming:    make(chan p2pwire.Message, cfg.InboundQueueSize),
		ready:       NewPromise[time.Duration](),
		goroutines:  fn.NewGoroutineManager(),
		quit:        make(chan struct{}),
	}
}

// Outbound returns the sending end of the outbound queue. Messages are
// written to the peer in the order they are queued. A full queue blocks the
// sender.
//
// NOTE: The channel must not be closed by the caller, use Close instead.
func (s *Session) Outbound() chan<- p2pwire.Message {
	return s.outgoing
}

// Inbound returns the channel on which received messages are delivered in
// arrival order. The channel is closed once the connection goes down.
func (s *Session) Inbound() <-chan p2pwire.Message {
	return s.incoming
}

// Send queues a message for the peer. It blocks while the outbound queue is
// full.
func (s *Session) Send(ctx context.Context, msg p2pwire.Message) error {
	select {
	case s.outgoing <- msg:
		return nil

	case <-s.quit:
		return ErrSessionClosed

	case <-ctx.Done():
		return ctx.Err()
	}
}

// SendPayload wraps the payload in a message for the configured network and
// queues it.
func (s *Session) SendPayload(ctx context.Context,
	payload p2pwire.Payload) error {

	msg, err := p2pwire.NewMessage(s.cfg.Net, payload)
	if err != nil {
		return err
	}

	return s.Send(ctx, msg)
}

// State returns the current handshake state.
func (s *Session) State() HandshakeState {
	return HandshakeState(s.state.Load())
}

// RemoteVersion returns the version message the peer opened the handshake
// with, if it has been received.
func (s *Session) RemoteVersion() fn.Option[p2pwire.MsgVersion] {
	return fn.OptionFromPtr(s.remoteVersion.Load())
}

// RemoteAddr returns the address of the peer.
func (s *Session) RemoteAddr() net.Addr {
	return s.conn.RemoteAddr()
}

// Stats returns a snapshot of the traffic counters.
func (s *Session) Stats() Stats {
	return Stats{
		ConnectedAt:      s.connectedAt,
		HandshakeLatency: time.Duration(s.handshakeLatency.Load()),
		MessagesSent:     s.messagesSent.Load(),
		MessagesReceived: s.messagesReceived.Load(),
		BytesSent:        s.bytesSent.Load(),
		BytesReceived:    s.bytesReceived.Load(),
		DecodeErrors:     s.decodeErrors.Load(),
	}
}

// Done returns a channel that is closed once the session is shutting down.
func (s *Session) Done() <-chan struct{} {
	return s.quit
}

// Err returns the reason the session shut down, or nil while it is still
// running. A clean end of stream is reported as io.EOF.
func (s *Session) Err() error {
	select {
	case <-s.quit:
		return s.err
	default:
		return nil
	}
}

// Close tears down the connection and waits for all goroutines of the
// session to exit.
func (s *Session) Close() error {
	s.shutdown(ErrSessionClosed)
	s.goroutines.Stop()

	return nil
}

// shutdown records the reason for the disconnect, signals every goroutine
// to exit and closes the connection. Only the first call has any effect.
func (s *Session) shutdown(reason error) {
	s.disconnect.Do(func() {
		switch {
		case errors.Is(reason, ErrSessionClosed):
			s.log.Debugf("Closing session")

		case errors.Is(reason, io.EOF):
			s.log.Infof("Peer closed the connection")

		default:
			s.log.Errorf("Disconnecting: %v", reason)
		}

		s.err = reason
		close(s.quit)

		if err := s.conn.Close(); err != nil {
			s.log.Debugf("Unable to close connection: %v", err)
		}

		s.ready.Complete(fn.Err[time.Duration](
			&ConnectionError{Err: reason},
		))
	})
}

func (s *Session) setState(state HandshakeState) {
	old := HandshakeState(s.state.Swap(uint32(state)))
	if old != state {
		s.log.Debugf("Handshake state %v -> %v", old, state)
	}
}

// writeHandler drains the outbound queue into the connection. Writes are
// buffered and flushed whenever the queue runs empty.
//
// NOTE: This method MUST be run as a goroutine.
func (s *Session) writeHandler(ctx context.Context) {
	w := bufio.NewWriter(s.conn)

	for {
		select {
		case msg, ok := <-s.outgoing:
			if !ok {
				s.log.Warnf("Outbound queue closed, no more " +
					"messages will be sent")
				_ = w.Flush()

				return
			}

			if err := s.writeMessage(ctx, w, msg); err != nil {
				s.shutdown(fmt.Errorf("unable to write %v: %w",
					msg.Command(), err))
				return
			}

			if len(s.outgoing) > 0 {
				continue
			}

			if err := w.Flush(); err != nil {
				s.shutdown(fmt.Errorf("unable to flush: %w",
					err))
				return
			}

		case <-s.quit:
			return

		case <-ctx.Done():
			return
		}
	}
}

// writeMessage writes a single message to the buffered writer.
func (s *Session) writeMessage(ctx context.Context, w io.Writer,
	msg p2pwire.Message) error {

	n, err := p2pwire.WriteMessage(w, msg)
	if err != nil {
		return err
	}

	s.messagesSent.Add(1)
	s.bytesSent.Add(uint64(n))
	s.cfg.Metrics.MessageSent(msg.Command(), n)

	s.log.TraceS(ctx, "Sent message", lnutils.LogMessage(msg)...)

	return nil
}

// readHandler reads messages from the connection. Until the peer
// acknowledges our version, messages are consumed by the handshake. After
// that every message is forwarded to the inbound queue.
//
// NOTE: This method MUST be run as a goroutine.
func (s *Session) readHandler(ctx context.Context) {
	defer close(s.incoming)

	r := p2pwire.NewReader(s.conn, s.cfg.Net)

	start := s.cfg.Clock.Now()
	if err := s.handshake(ctx, r); err != nil {
		s.shutdown(err)
		return
	}

	latency := s.cfg.Clock.Now().Sub(start)
	s.handshakeLatency.Store(int64(latency))
	s.cfg.Metrics.HandshakeCompleted(latency)
	s.ready.Complete(fn.Ok(latency))

	if err := s.forward(ctx, r); err != nil {
		s.shutdown(err)
	}
}

// readMessage reads the next message, logging and skipping frames that fail
// to decode.
func (s *Session) readMessage(ctx context.Context,
	r *p2pwire.Reader) (p2pwire.Message, error) {

	for {
		before := r.BytesRead()
		msg, err := r.ReadMessage()
		s.bytesReceived.Add(r.BytesRead() - before)

		if p2pwire.IsFrameError(err) {
			s.decodeErrors.Add(1)
			s.cfg.Metrics.DecodeError(err)
			s.log.Warnf("Dropping message: %v", err)

			continue
		}
		if err != nil {
			return p2pwire.Message{}, err
		}

		s.messagesReceived.Add(1)
		s.cfg.Metrics.MessageReceived(msg.Command(), msg.EncodedSize())
		s.log.TraceS(ctx, "Received message",
			lnutils.LogMessage(msg)...)

		return msg, nil
	}
}

// handshake consumes messages until the peer acknowledges our version. The
// peer's version is answered with a verack, other control messages are
// logged and dropped.
func (s *Session) handshake(ctx context.Context, r *p2pwire.Reader) error {
	for {
		msg, err := s.readMessage(ctx, r)
		if err != nil {
			return err
		}

		switch payload := msg.Payload().(type) {
		case p2pwire.MsgVersion:
			if err := s.ackVersion(ctx, payload); err != nil {
				return err
			}

		case p2pwire.MsgVerAck:
			s.setState(StateReady)
			return nil

		default:
			s.log.Debugf("Ignoring %v during handshake",
				msg.Command())
		}
	}
}

// forward delivers every received message to the inbound queue until the
// connection goes down. A version that the peer sends only after its verack
// is still acknowledged.
func (s *Session) forward(ctx context.Context, r *p2pwire.Reader) error {
	for {
		msg, err := s.readMessage(ctx, r)
		if err != nil {
			return err
		}

		if version, ok := msg.Payload().(p2pwire.MsgVersion); ok {
			if err := s.ackVersion(ctx, version); err != nil {
				return err
			}
		}

		select {
		case s.incoming <- msg:

		case <-s.quit:
			return ErrSessionClosed

		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// ackVersion records the first version message of the peer and queues our
// verack in reply. Repeated version messages are not acknowledged again.
func (s *Session) ackVersion(ctx context.Context,
	version p2pwire.MsgVersion) error {

	if !s.remoteVersion.CompareAndSwap(nil, &version) {
		s.log.Warnf("Ignoring duplicate version message")
		return nil
	}

	s.log.Infof("Received version: protocol_version=%d, user_agent=%s, "+
		"start_height=%d, services=%v, time_offset=%v",
		version.ProtocolVersion, version.UserAgent, version.StartHeight,
		version.Services, version.Time().Sub(s.cfg.Clock.Now()))
	s.log.Tracef("Remote version: %v", lnutils.SpewLogClosure(version))

	verack, err := p2pwire.NewMessage(s.cfg.Net, p2pwire.MsgVerAck{})
	if err != nil {
		return err
	}

	select {
	case s.outgoing <- verack:
		return nil

	case <-s.quit:
		return ErrSessionClosed

	case <-ctx.Done():
		return ctx.Err()
	}
}
