package eqlabs

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/user"
	"path/filepath"
	"strings"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/wire"
	flags "github.com/jessevdk/go-flags"
	"github.com/romanschejbal/eqlabs/build"
	"github.com/romanschejbal/eqlabs/netcfg"
	"github.com/romanschejbal/eqlabs/peer"
	"github.com/romanschejbal/eqlabs/signal"
)

const (
	defaultConfigFilename = "ramen.conf"
	defaultLogDirname     = "logs"
	defaultLogFilename    = "ramen.log"
	defaultLogLevel       = "info"
	defaultNetwork        = "mainnet"

	defaultDialTimeout      = 10 * time.Second
	defaultHandshakeTimeout = 30 * time.Second
	defaultStatsInterval    = time.Minute
)

var (
	// DefaultRamenDir is the default directory where ramen tries to find
	// its configuration file and store its logs.
	DefaultRamenDir = btcutil.AppDataDir("ramen", false)

	// DefaultConfigFile is the default full path of ramen's configuration
	// file.
	DefaultConfigFile = filepath.Join(DefaultRamenDir, defaultConfigFilename)

	defaultLogDir = filepath.Join(DefaultRamenDir, defaultLogDirname)
)

// networkParams maps the values of the network option to the chain
// parameters that carry the magic and default port of the network.
var networkParams = map[string]*chaincfg.Params{
	"mainnet":  &chaincfg.MainNetParams,
	"testnet3": &chaincfg.TestNet3Params,
	"regtest":  &chaincfg.RegressionNetParams,
	"signet":   &chaincfg.SigNetParams,
	"simnet":   &chaincfg.SimNetParams,
}

// Config defines the configuration options for ramen.
//
// See LoadConfig for further details regarding the configuration
// loading+parsing process.
//
//nolint:lll
type Config struct {
	ShowVersion bool `short:"V" long:"version" description:"Display version information and exit"`

	RamenDir   string `long:"ramendir" description:"The base directory that contains ramen's logs and configuration file."`
	ConfigFile string `short:"C" long:"configfile" description:"Path to configuration file"`
	LogDir     string `long:"logdir" description:"Directory to log output."`
	DebugLevel string `short:"d" long:"debuglevel" description:"Logging level for all subsystems {trace, debug, info, warn, error, critical} -- You may also specify <global-level>,<subsystem>=<level>,<subsystem2>=<level>,... to set the log level for individual subsystems -- Use show to list available subsystems"`

	Connect          string        `long:"connect" description:"The host:port of the peer to perform the handshake with. The default port of the network is used if none is given."`
	Network          string        `long:"network" description:"The bitcoin network the peer is on" choice:"mainnet" choice:"testnet3" choice:"regtest" choice:"signet" choice:"simnet"`
	UserAgent        string        `long:"useragent" description:"The user agent announced in our version message"`
	ProtocolVersion  int32         `long:"protocolversion" description:"The protocol version announced in our version message"`
	DialTimeout      time.Duration `long:"dialtimeout" description:"How long to wait for the TCP connection to the peer to be established"`
	HandshakeTimeout time.Duration `long:"handshaketimeout" description:"How long to wait for the peer to acknowledge our version (0 waits forever)"`
	StatsInterval    time.Duration `long:"statsinterval" description:"How often to log the traffic statistics of the connection (0 disables)"`

	Queues     *netcfg.Queues    `group:"queues" namespace:"queues"`
	Tor        *netcfg.Tor       `group:"Tor" namespace:"tor"`
	Prometheus netcfg.Prometheus `group:"prometheus" namespace:"prometheus"`
	LogConfig  *build.LogConfig  `group:"logging" namespace:"logging"`

	// ActiveNetParams are the parameters of the selected network.
	ActiveNetParams *chaincfg.Params

	// PeerAddress is the normalized host:port of the peer.
	PeerAddress string

	// LogMgr is the root logger that all the subsystem loggers are
	// registered with.
	LogMgr *build.SubLoggerManager

	// LogRotator is the writer of the log file.
	LogRotator *build.RotatingLogWriter
}

// DefaultConfig returns all default values for the Config struct.
func DefaultConfig() Config {
	return Config{
		RamenDir:         DefaultRamenDir,
		ConfigFile:       DefaultConfigFile,
		LogDir:           defaultLogDir,
		DebugLevel:       defaultLogLevel,
		Network:          defaultNetwork,
		UserAgent:        peer.DefaultUserAgent,
		ProtocolVersion:  peer.DefaultProtocolVersion,
		DialTimeout:      defaultDialTimeout,
		HandshakeTimeout: defaultHandshakeTimeout,
		StatsInterval:    defaultStatsInterval,
		Queues:           netcfg.DefaultQueues(),
		Tor:              netcfg.DefaultTor(),
		Prometheus:       netcfg.DefaultPrometheus(),
		LogConfig:        build.DefaultLogConfig(),
		LogRotator:       build.NewRotatingLogWriter(),
	}
}

// LoadConfig initializes and parses the config using a config file and command
// line options.
//
// The configuration proceeds as follows:
//  1. Start with a default config with sane settings
//  2. Pre-parse the command line to check for an alternative config file
//  3. Load configuration file overwriting defaults with any specified options
//  4. Parse CLI options and overwrite/add any specified options
func LoadConfig(interceptor signal.Interceptor) (*Config, error) {
	// Pre-parse the command line options to pick up an alternative config
	// file.
	preCfg := DefaultConfig()
	if _, err := flags.Parse(&preCfg); err != nil {
		return nil, err
	}

	// Show the version and exit if the version flag was specified.
	appName := filepath.Base(os.Args[0])
	appName = strings.TrimSuffix(appName, filepath.Ext(appName))
	usageMessage := fmt.Sprintf("Use %s -h to show usage", appName)
	if preCfg.ShowVersion {
		fmt.Println(appName, "version", build.Version(),
			"commit="+build.Commit)
		os.Exit(0)
	}

	// If the config file path has not been modified by the user, then
	// we'll use the default config file path. However, if the user has
	// modified their ramendir, then we should assume they intend to use
	// the config file within it.
	configFileDir := CleanAndExpandPath(preCfg.RamenDir)
	configFilePath := CleanAndExpandPath(preCfg.ConfigFile)
	if configFileDir != DefaultRamenDir &&
		configFilePath == DefaultConfigFile {

		configFilePath = filepath.Join(
			configFileDir, defaultConfigFilename,
		)
	}

	// Next, load any additional configuration options from the file.
	var configFileError error
	cfg := preCfg
	if err := flags.IniParse(configFilePath, &cfg); err != nil {
		// If it's a parsing related error, then we'll return
		// immediately, otherwise we can proceed as possibly the config
		// file doesn't exist which is OK.
		var iniErr *flags.IniError
		if errors.As(err, &iniErr) {
			return nil, err
		}

		configFileError = err
	}

	// Finally, parse the remaining command line options again to ensure
	// they take precedence.
	if _, err := flags.Parse(&cfg); err != nil {
		return nil, err
	}

	// Special show command to list supported subsystems and exit.
	if cfg.DebugLevel == "show" {
		logMgr := build.NewSubLoggerManager()
		SetupLoggers(logMgr, interceptor)
		fmt.Println("Supported subsystems",
			logMgr.SupportedSubsystems())
		os.Exit(0)
	}

	// Make sure everything we just loaded makes sense.
	cleanCfg, err := ValidateConfig(cfg)
	if err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		_, _ = fmt.Fprintln(os.Stderr, usageMessage)

		return nil, err
	}

	if err := cleanCfg.setupLogging(os.Stdout, interceptor); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		return nil, err
	}

	// Warn about missing config file only after all other configuration is
	// done. This prevents the warning on help messages and invalid
	// options. Note this should go directly before the return.
	if configFileError != nil {
		ramnLog.Warnf("%v", configFileError)
	}

	return cleanCfg, nil
}

// ValidateConfig check the given configuration to be sane. This makes sure no
// illegal values or combination of values are set. All file system paths are
// normalized. The cleaned up config is returned on success.
func ValidateConfig(cfg Config) (*Config, error) {
	// If the provided ramen directory is not the default, we'll modify the
	// path to the log directory that lives within it.
	ramenDir := CleanAndExpandPath(cfg.RamenDir)
	if ramenDir != DefaultRamenDir && cfg.LogDir == defaultLogDir {
		cfg.LogDir = filepath.Join(ramenDir, defaultLogDirname)
	}

	funcName := "ValidateConfig"
	mkErr := func(format string, args ...any) error {
		return fmt.Errorf(funcName+": "+format, args...)
	}

	params, ok := networkParams[cfg.Network]
	if !ok {
		return nil, mkErr("unknown network %q", cfg.Network)
	}
	cfg.ActiveNetParams = params

	// Logs of different networks go to different directories.
	cfg.LogDir = filepath.Join(
		CleanAndExpandPath(cfg.LogDir), "bitcoin", params.Name,
	)

	if cfg.DebugLevel == "" {
		return nil, mkErr("debuglevel must be set")
	}

	if cfg.Connect == "" {
		return nil, mkErr("the address of the peer must be given " +
			"with --connect")
	}

	peerAddr, err := netcfg.ParsePeerAddress(
		cfg.Connect, params.DefaultPort,
	)
	if err != nil {
		return nil, mkErr("%v", err)
	}
	cfg.PeerAddress = peerAddr

	if netcfg.IsOnion(peerAddr) && !cfg.Tor.Active {
		return nil, mkErr("connecting to onion address %v requires "+
			"tor.active", peerAddr)
	}

	if len(cfg.UserAgent) > wire.MaxUserAgentLen {
		return nil, mkErr("useragent is %d bytes long, at most %d "+
			"are allowed", len(cfg.UserAgent), wire.MaxUserAgentLen)
	}

	if cfg.ProtocolVersion <= 0 {
		return nil, mkErr("protocolversion must be positive")
	}

	if cfg.DialTimeout <= 0 {
		return nil, mkErr("dialtimeout must be positive")
	}

	if cfg.HandshakeTimeout < 0 {
		return nil, mkErr("handshaketimeout must not be negative")
	}

	if cfg.StatsInterval < 0 {
		return nil, mkErr("statsinterval must not be negative")
	}

	// Validate the subconfigs for queues, tor, prometheus and logging.
	err = netcfg.Validate(
		cfg.Queues, cfg.Tor, &cfg.Prometheus, cfg.LogConfig,
	)
	if err != nil {
		return nil, mkErr("%v", err)
	}

	// Tor exits cannot reach our own loopback interface.
	if cfg.Tor.Active && !cfg.Tor.DirectConnections &&
		netcfg.IsLoopback(peerAddr) {

		return nil, mkErr("loopback peer %v is not reachable through "+
			"tor, set tor.directconnections", peerAddr)
	}

	return &cfg, nil
}

// peerConfig returns the configuration of the session with the peer.
func (c *Config) peerConfig() peer.Config {
	cfg := peer.DefaultConfig()
	cfg.Net = c.ActiveNetParams.Net
	cfg.ProtocolVersion = c.ProtocolVersion
	cfg.UserAgent = c.UserAgent
	cfg.OutboundQueueSize = c.Queues.Outbound
	cfg.InboundQueueSize = c.Queues.Inbound

	return cfg
}

// setupLogging creates the console and log file handlers, registers every
// subsystem logger and applies the debug levels.
func (c *Config) setupLogging(stdout io.Writer,
	interceptor signal.Interceptor) error {

	if c.LogRotator == nil {
		c.LogRotator = build.NewRotatingLogWriter()
	}

	if !c.LogConfig.File.Disable {
		err := c.LogRotator.InitLogRotator(
			c.LogConfig.File, filepath.Join(c.LogDir, defaultLogFilename),
		)
		if err != nil {
			return fmt.Errorf("log rotation setup failed: %w", err)
		}
	}

	c.LogMgr = build.NewSubLoggerManager(build.NewDefaultLogHandlers(
		c.LogConfig, stdout, c.LogRotator,
	)...)
	SetupLoggers(c.LogMgr, interceptor)

	// Parse, validate, and set debug log level(s).
	return build.ParseAndSetDebugLevels(c.DebugLevel, c.LogMgr)
}

// CleanAndExpandPath expands environment variables and leading ~ in the
// passed path, cleans the result, and returns it.
// This function is taken from https://github.com/btcsuite/btcd
func CleanAndExpandPath(path string) string {
	if path == "" {
		return ""
	}

	// Expand initial ~ to OS specific home directory.
	if strings.HasPrefix(path, "~") {
		var homeDir string
		u, err := user.Current()
		if err == nil {
			homeDir = u.HomeDir
		} else {
			homeDir = os.Getenv("HOME")
		}

		path = strings.Replace(path, "~", homeDir, 1)
	}

	// NOTE: The os.ExpandEnv doesn't work with Windows-style %VARIABLE%,
	// but the variables can still be expanded via POSIX-style $VARIABLE.
	return filepath.Clean(os.ExpandEnv(path))
}
