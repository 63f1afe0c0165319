package monitoring

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/romanschejbal/eqlabs/p2pwire"
)

const (
	namespace = "ramen"
	subsystem = "peer"
)

// Decode error kinds used as the value of the kind label.
const (
	kindUnknownCommand = "unknown_command"
	kindChecksum       = "checksum"
	kindNet            = "net"
	kindPayload        = "payload"
)

// PeerMetrics exports the traffic of a peer session to Prometheus. It
// satisfies the metrics hook of the peer package.
type PeerMetrics struct {
	messagesSent     *prometheus.CounterVec
	messagesReceived *prometheus.CounterVec
	bytesSent        prometheus.Counter
	bytesReceived    prometheus.Counter
	decodeErrors     *prometheus.CounterVec
	handshakes       prometheus.Counter
	handshakeLatency prometheus.Histogram
}

// NewPeerMetrics creates the collectors of a peer session and registers them
// with reg.
func NewPeerMetrics(reg prometheus.Registerer) (*PeerMetrics, error) {
	m := &PeerMetrics{
		messagesSent: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "messages_sent_total",
				Help:      "Messages written to the peer.",
			}, []string{"command"},
		),
		messagesReceived: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "messages_received_total",
				Help:      "Messages read from the peer.",
			}, []string{"command"},
		),
		bytesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "bytes_sent_total",
			Help:      "Bytes written to the peer.",
		}),
		bytesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "bytes_received_total",
			Help:      "Bytes of well formed messages read from the peer.",
		}),
		decodeErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "decode_errors_total",
				Help:      "Frames dropped because they failed to decode.",
			}, []string{"kind"},
		),
		handshakes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "handshakes_total",
			Help:      "Completed version handshakes.",
		}),
		handshakeLatency: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "handshake_duration_seconds",
				Help: "Time from sending our version until the " +
					"peer's verack.",
				Buckets: prometheus.ExponentialBuckets(
					0.005, 2, 12,
				),
			},
		),
	}

	collectors := []prometheus.Collector{
		m.messagesSent, m.messagesReceived, m.bytesSent,
		m.bytesReceived, m.decodeErrors, m.handshakes,
		m.handshakeLatency,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}

	return m, nil
}

// MessageSent counts a message written to the peer.
func (m *PeerMetrics) MessageSent(cmd p2pwire.Command, size int) {
	m.messagesSent.WithLabelValues(cmd.String()).Inc()
	m.bytesSent.Add(float64(size))
}

// MessageReceived counts a message read from the peer.
func (m *PeerMetrics) MessageReceived(cmd p2pwire.Command, size int) {
	m.messagesReceived.WithLabelValues(cmd.String()).Inc()
	m.bytesReceived.Add(float64(size))
}

// DecodeError counts a dropped frame by the kind of failure.
func (m *PeerMetrics) DecodeError(err error) {
	m.decodeErrors.WithLabelValues(decodeErrorKind(err)).Inc()
}

// HandshakeCompleted records a completed handshake and its latency.
func (m *PeerMetrics) HandshakeCompleted(latency time.Duration) {
	m.handshakes.Inc()
	m.handshakeLatency.Observe(latency.Seconds())
}

// decodeErrorKind classifies a frame error.
func decodeErrorKind(err error) string {
	var (
		unknownErr  *p2pwire.UnknownCommandError
		checksumErr *p2pwire.ChecksumMismatchError
		netErr      *p2pwire.UnexpectedNetError
	)

	switch {
	case errors.As(err, &unknownErr):
		return kindUnknownCommand

	case errors.As(err, &checksumErr):
		return kindChecksum

	case errors.As(err, &netErr):
		return kindNet

	default:
		return kindPayload
	}
}
