package eqlabs

import (
	"bytes"
	"os"
	"os/user"
	"path/filepath"
	"testing"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/wire"
	"github.com/lightningnetwork/lnd/tor"
	"github.com/romanschejbal/eqlabs/signal"
	"github.com/stretchr/testify/require"
)

// testConfig returns a default config that connects to a local peer.
func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Connect = "127.0.0.1"

	return cfg
}

// TestValidateConfig checks the validation and normalization of the config.
func TestValidateConfig(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name   string
		modify func(*Config)
		check  func(*testing.T, *Config)
		err    string
	}{
		{
			name:   "defaults",
			modify: func(*Config) {},
			check: func(t *testing.T, cfg *Config) {
				require.Equal(
					t, &chaincfg.MainNetParams,
					cfg.ActiveNetParams,
				)
				require.Equal(t, "127.0.0.1:8333", cfg.PeerAddress)
				require.Equal(t, filepath.Join(
					defaultLogDir, "bitcoin", "mainnet",
				), cfg.LogDir)
			},
		},
		{
			name: "testnet default port",
			modify: func(cfg *Config) {
				cfg.Network = "testnet3"
			},
			check: func(t *testing.T, cfg *Config) {
				require.Equal(
					t, wire.TestNet3, cfg.ActiveNetParams.Net,
				)
				require.Equal(t, "127.0.0.1:18333", cfg.PeerAddress)
			},
		},
		{
			name: "regtest explicit port",
			modify: func(cfg *Config) {
				cfg.Network = "regtest"
				cfg.Connect = "tcp://[::1]:18555"
			},
			check: func(t *testing.T, cfg *Config) {
				require.Equal(t, "[::1]:18555", cfg.PeerAddress)
			},
		},
		{
			name: "custom ramen dir",
			modify: func(cfg *Config) {
				cfg.RamenDir = "/tmp/ramen-test"
			},
			check: func(t *testing.T, cfg *Config) {
				require.Equal(t, filepath.Join(
					"/tmp/ramen-test", "logs", "bitcoin",
					"mainnet",
				), cfg.LogDir)
			},
		},
		{
			name: "unknown network",
			modify: func(cfg *Config) {
				cfg.Network = "litecoin"
			},
			err: "unknown network",
		},
		{
			name: "missing peer",
			modify: func(cfg *Config) {
				cfg.Connect = ""
			},
			err: "--connect",
		},
		{
			name: "invalid peer",
			modify: func(cfg *Config) {
				cfg.Connect = "udp://127.0.0.1:8333"
			},
			err: "only TCP",
		},
		{
			name: "onion without tor",
			modify: func(cfg *Config) {
				cfg.Connect = "3g2upl4pq6kufc4m.onion"
			},
			err: "requires tor.active",
		},
		{
			name: "onion with tor",
			modify: func(cfg *Config) {
				cfg.Connect = "3g2upl4pq6kufc4m.onion"
				cfg.Tor.Active = true
			},
			check: func(t *testing.T, cfg *Config) {
				require.Equal(
					t, "3g2upl4pq6kufc4m.onion:8333",
					cfg.PeerAddress,
				)
				require.Equal(t, "localhost:9050", cfg.Tor.SOCKS)
			},
		},
		{
			name: "loopback through tor",
			modify: func(cfg *Config) {
				cfg.Tor.Active = true
			},
			err: "not reachable through tor",
		},
		{
			name: "loopback with direct connections",
			modify: func(cfg *Config) {
				cfg.Tor.Active = true
				cfg.Tor.DirectConnections = true
			},
			check: func(t *testing.T, cfg *Config) {
				require.Equal(t, "127.0.0.1:8333", cfg.PeerAddress)
				require.True(t, cfg.Tor.Net().(*tor.ProxyNet).
					SkipProxyForClearNetTargets)
			},
		},
		{
			name: "user agent too long",
			modify: func(cfg *Config) {
				cfg.UserAgent = string(
					bytes.Repeat([]byte("a"), 257),
				)
			},
			err: "useragent",
		},
		{
			name: "no dial timeout",
			modify: func(cfg *Config) {
				cfg.DialTimeout = 0
			},
			err: "dialtimeout",
		},
		{
			name: "negative handshake timeout",
			modify: func(cfg *Config) {
				cfg.HandshakeTimeout = -1
			},
			err: "handshaketimeout",
		},
		{
			name: "empty queue",
			modify: func(cfg *Config) {
				cfg.Queues.Inbound = 0
			},
			err: "inbound queue",
		},
		{
			name: "bad compressor",
			modify: func(cfg *Config) {
				cfg.LogConfig.File.Compressor = "lz4"
			},
			err: "invalid log compressor",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			cfg := testConfig()
			tc.modify(&cfg)

			cleanCfg, err := ValidateConfig(cfg)
			if tc.err != "" {
				require.ErrorContains(t, err, tc.err)
				return
			}

			require.NoError(t, err)
			tc.check(t, cleanCfg)
		})
	}
}

// TestPeerConfig checks that the session config follows the options.
func TestPeerConfig(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Network = "signet"
	cfg.UserAgent = "/test:1.0/"
	cfg.Queues.Outbound = 3

	cleanCfg, err := ValidateConfig(cfg)
	require.NoError(t, err)

	peerCfg := cleanCfg.peerConfig()
	require.Equal(t, chaincfg.SigNetParams.Net, peerCfg.Net)
	require.Equal(t, "/test:1.0/", peerCfg.UserAgent)
	require.Equal(t, 3, peerCfg.OutboundQueueSize)
	require.NoError(t, peerCfg.Validate())
}

// TestSetupLogging checks that logging writes to the console and the log
// file and honours the debug level.
func TestSetupLogging(t *testing.T) {
	cfg := testConfig()
	cfg.LogDir = t.TempDir()
	cfg.DebugLevel = "warn,PEER=debug"
	cfg.LogConfig.Console.NoTimestamps = true

	var stdout bytes.Buffer
	require.NoError(t, cfg.setupLogging(&stdout, signal.Interceptor{}))
	t.Cleanup(func() {
		require.NoError(t, cfg.LogRotator.Close())
	})

	require.Equal(
		t, []string{"MNTR", "PEER", "RAMN", "SGNL"},
		cfg.LogMgr.SupportedSubsystems(),
	)

	ramnLog.Infof("filtered")
	ramnLog.Warnf("kept")
	require.NotContains(t, stdout.String(), "filtered")
	require.Contains(t, stdout.String(), "[WRN] RAMN: kept")

	content, err := os.ReadFile(filepath.Join(cfg.LogDir, defaultLogFilename))
	require.NoError(t, err)
	require.Contains(t, string(content), "RAMN: kept")

	cfg.DebugLevel = "NOPE=debug"
	require.Error(t, cfg.setupLogging(&stdout, signal.Interceptor{}))
}

func TestCleanAndExpandPath(t *testing.T) {
	t.Setenv("RAMEN_TEST_DIR", "/var/lib/ramen")

	require.Empty(t, CleanAndExpandPath(""))
	require.Equal(t, "/var/lib/ramen/logs",
		CleanAndExpandPath("$RAMEN_TEST_DIR/./logs/"))

	u, err := user.Current()
	require.NoError(t, err)
	require.Equal(t, filepath.Join(u.HomeDir, ".ramen"),
		CleanAndExpandPath("~/.ramen"))
}
