package eqlabs

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/lightningnetwork/lnd/ticker"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/romanschejbal/eqlabs/build"
	"github.com/romanschejbal/eqlabs/lnutils"
	"github.com/romanschejbal/eqlabs/monitoring"
	"github.com/romanschejbal/eqlabs/p2pwire"
	"github.com/romanschejbal/eqlabs/peer"
	"github.com/romanschejbal/eqlabs/signal"
	"golang.org/x/sync/errgroup"
)

// ErrPeerDisconnected is returned by Main when the peer closes the connection.
var ErrPeerDisconnected = errors.New("peer disconnected")

// Main is the true entry point for ramen. It dials the configured peer,
// performs the version handshake and then logs the traffic of the connection
// until the peer disconnects or a shutdown is requested through the
// interceptor.
func Main(cfg *Config, interceptor signal.Interceptor) error {
	defer func() {
		ramnLog.Info("Shutdown complete")
		if err := cfg.LogRotator.Close(); err != nil {
			ramnLog.Errorf("Could not close log rotator: %v", err)
		}
	}()

	ramnLog.Infof("Version: %s commit=%s, network=%s", build.Version(),
		build.Commit, cfg.ActiveNetParams.Name)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		select {
		case <-interceptor.ShutdownChannel():
			cancel()
		case <-ctx.Done():
		}
	}()

	registry := prometheus.NewRegistry()
	metrics, err := monitoring.NewPeerMetrics(registry)
	if err != nil {
		return fmt.Errorf("unable to create metrics: %w", err)
	}

	g, gCtx := errgroup.WithContext(ctx)

	if cfg.Prometheus.Enabled() {
		g.Go(func() error {
			return monitoring.Serve(gCtx, cfg.Prometheus, registry)
		})
	}

	g.Go(func() error {
		conn, err := dialPeer(gCtx, cfg)
		if err != nil {
			return err
		}

		return runPeer(gCtx, cfg, conn, metrics)
	})

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}

	return err
}

// dialPeer connects to the peer, through Tor if configured. The dialers of
// the tor package take no context, so a dial that is still running when ctx
// is done is abandoned and its connection closed once it completes.
func dialPeer(ctx context.Context, cfg *Config) (net.Conn, error) {
	ramnLog.Infof("Connecting to %v", cfg.PeerAddress)

	results := make(chan fn.Result[net.Conn], 1)
	go func() {
		conn, err := cfg.Tor.Dial(cfg.PeerAddress, cfg.DialTimeout)
		if err != nil {
			results <- fn.Err[net.Conn](err)
			return
		}

		results <- fn.Ok(conn)
	}()

	select {
	case result := <-results:
		conn, err := result.Unpack()
		if err != nil {
			return nil, fmt.Errorf("unable to connect to %v: %w",
				cfg.PeerAddress, err)
		}

		return conn, nil

	case <-ctx.Done():
		go func() {
			(<-results).WhenOk(func(conn net.Conn) {
				_ = conn.Close()
			})
		}()

		return nil, ctx.Err()
	}
}

// runPeer performs the handshake over conn and then processes the session
// until ctx is done or the peer goes away.
func runPeer(ctx context.Context, cfg *Config, conn net.Conn,
	metrics peer.Metrics) error {

	peerCfg := cfg.peerConfig()
	peerCfg.Metrics = metrics

	handshakeCtx := ctx
	if cfg.HandshakeTimeout > 0 {
		var cancel context.CancelFunc
		handshakeCtx, cancel = context.WithTimeout(
			ctx, cfg.HandshakeTimeout,
		)
		defer cancel()
	}

	session, err := peer.Connect(handshakeCtx, conn, peerCfg)
	if err != nil {
		return fmt.Errorf("handshake with %v failed: %w",
			conn.RemoteAddr(), err)
	}
	defer session.Close()

	session.RemoteVersion().WhenSome(func(v p2pwire.MsgVersion) {
		ramnLog.Infof("Connected to %v: user_agent=%s, "+
			"protocol_version=%d, start_height=%d",
			session.RemoteAddr(), v.UserAgent, v.ProtocolVersion,
			v.StartHeight)
	})

	// A zero interval disables the statistics, the ticker then stays
	// paused and never fires.
	interval := cfg.StatsInterval
	if interval == 0 {
		interval = defaultStatsInterval
	}
	statsTicker := ticker.New(interval)
	if cfg.StatsInterval > 0 {
		statsTicker.Resume()
	}
	defer statsTicker.Stop()

	return processSession(ctx, session, statsTicker)
}

// processSession logs every message received on the session and the
// session's statistics on every tick.
func processSession(ctx context.Context, session *peer.Session,
	statsTicker ticker.Ticker) error {

	for {
		select {
		case msg, ok := <-session.Inbound():
			if !ok {
				return fmt.Errorf("%w: %v", ErrPeerDisconnected,
					session.Err())
			}

			ramnLog.InfoS(ctx, "Received message",
				lnutils.LogMessage(msg)...)

		case <-statsTicker.Ticks():
			logStats(session.Stats())

		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// logStats logs a snapshot of the session counters.
func logStats(stats peer.Stats) {
	ramnLog.Infof("Connection stats: handshake_latency=%v, sent=%d "+
		"msgs (%d bytes), received=%d msgs (%d bytes), "+
		"decode_errors=%d", stats.HandshakeLatency, stats.MessagesSent,
		stats.BytesSent, stats.MessagesReceived, stats.BytesReceived,
		stats.DecodeErrors)
}
