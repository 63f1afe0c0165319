package netcfg

import (
	"fmt"
	"net"
	"time"

	"github.com/lightningnetwork/lnd/tor"
)

const (
	// DefaultTorSOCKSPort is the port Tor's SOCKS5 proxy listens on by
	// default.
	DefaultTorSOCKSPort = 9050

	// DefaultTorDNSPort is the port of the DNS server used for SRV
	// queries through Tor.
	DefaultTorDNSPort = 53
)

// Tor holds the configuration options for the connection to the peer through
// Tor.
//
//nolint:lll
type Tor struct {
	Active            bool   `long:"active" description:"Route the connection to the peer through Tor"`
	SOCKS             string `long:"socks" description:"The host:port that Tor's exposed SOCKS5 proxy is listening on"`
	DNS               string `long:"dns" description:"The DNS server as host:port that Tor will use for SRV queries - NOTE must have TCP resolution enabled"`
	StreamIsolation   bool   `long:"streamisolation" description:"Enable Tor stream isolation by randomizing user credentials for each connection."`
	DirectConnections bool   `long:"directconnections" description:"Allow direct connections to peers that are not onion services."`
}

// DefaultTor returns the default, inactive Tor configuration.
func DefaultTor() *Tor {
	return &Tor{
		SOCKS: fmt.Sprintf("localhost:%d", DefaultTorSOCKSPort),
	}
}

// Validate normalizes the proxy addresses of an active configuration.
func (t *Tor) Validate() error {
	if !t.Active {
		if t.StreamIsolation || t.DirectConnections {
			return fmt.Errorf("tor.streamisolation and " +
				"tor.directconnections require tor.active")
		}

		return nil
	}

	if t.StreamIsolation && t.DirectConnections {
		return fmt.Errorf("tor.streamisolation and " +
			"tor.directconnections are mutually exclusive")
	}

	socks, err := ParsePeerAddress(
		t.SOCKS, fmt.Sprint(DefaultTorSOCKSPort),
	)
	if err != nil {
		return fmt.Errorf("invalid tor.socks: %w", err)
	}
	t.SOCKS = socks

	if t.DNS != "" {
		dns, err := ParsePeerAddress(
			t.DNS, fmt.Sprint(DefaultTorDNSPort),
		)
		if err != nil {
			return fmt.Errorf("invalid tor.dns: %w", err)
		}
		t.DNS = dns
	}

	return nil
}

// Net returns the dialer for the configuration: the clear net, or Tor's SOCKS
// proxy if Tor is active.
func (t *Tor) Net() tor.Net {
	if !t.Active {
		return &tor.ClearNet{}
	}

	return &tor.ProxyNet{
		SOCKS:                       t.SOCKS,
		DNS:                         t.DNS,
		StreamIsolation:             t.StreamIsolation,
		SkipProxyForClearNetTargets: t.DirectConnections,
	}
}

// Dial connects to the address with the dialer of the configuration.
func (t *Tor) Dial(address string, timeout time.Duration) (net.Conn,
	error) {

	return t.Net().Dial("tcp", address, timeout)
}
