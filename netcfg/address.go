package netcfg

import (
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/lightningnetwork/lnd/tor"
)

// ParsePeerAddress normalizes the address of a peer to host:port form. The
// address may carry a tcp:// or tcp: network prefix, may omit the port, in
// which case defaultPort is used, or may consist of only a port, which maps
// to localhost. Onion hosts are accepted as is since they can only be
// resolved through Tor.
func ParsePeerAddress(strAddress, defaultPort string) (string, error) {
	addr := strings.TrimSpace(strAddress)
	if addr == "" {
		return "", fmt.Errorf("empty peer address")
	}

	if network, rest, found := strings.Cut(addr, "://"); found {
		if !isTCPNetwork(network) {
			return "", fmt.Errorf("only TCP peer addresses are "+
				"supported: %s", strAddress)
		}
		addr = rest
	} else if network, rest, found := strings.Cut(addr, ":"); found &&
		isTCPNetwork(network) {

		addr = rest
	}

	addrWithPort := verifyPort(addr, defaultPort)
	host, port, err := net.SplitHostPort(addrWithPort)
	if err != nil {
		return "", fmt.Errorf("invalid peer address %s: %w",
			strAddress, err)
	}

	if host == "" {
		return "", fmt.Errorf("peer address %s has no host",
			strAddress)
	}

	portNum, err := strconv.ParseUint(port, 10, 16)
	if err != nil || portNum == 0 {
		return "", fmt.Errorf("invalid port in peer address %s",
			strAddress)
	}

	return addrWithPort, nil
}

// IsOnion returns true if the host of a host:port address is a Tor onion
// service.
func IsOnion(address string) bool {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		host = address
	}

	return tor.IsOnionHost(host)
}

// IsLoopback returns true if an address describes a loopback interface.
func IsLoopback(host string) bool {
	if strings.Contains(host, "localhost") {
		return true
	}

	rawHost, _, err := net.SplitHostPort(host)
	if err != nil {
		rawHost = host
	}

	addr := net.ParseIP(rawHost)
	if addr == nil {
		return false
	}

	return addr.IsLoopback()
}

func isTCPNetwork(network string) bool {
	switch network {
	case "tcp", "tcp4", "tcp6":
		return true
	}

	return false
}

// verifyPort makes sure that an address string has both a host and a port. If
// there is no port found, the default port is appended. If the address is just
// a port, then we'll assume that the user is using the short cut to specify a
// localhost:port address.
func verifyPort(address string, defaultPort string) string {
	host, port, err := net.SplitHostPort(address)
	if err != nil {
		if _, err := strconv.Atoi(address); err == nil {
			return net.JoinHostPort("localhost", address)
		}

		// A bracketed IPv6 host only needs the port appended.
		if strings.HasPrefix(address, "[") {
			return address + ":" + defaultPort
		}

		return net.JoinHostPort(address, defaultPort)
	}

	if port == "" {
		return net.JoinHostPort(host, defaultPort)
	}

	return address
}
