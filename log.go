package eqlabs

import (
	"github.com/btcsuite/btclog/v2"
	"github.com/romanschejbal/eqlabs/build"
	"github.com/romanschejbal/eqlabs/monitoring"
	"github.com/romanschejbal/eqlabs/peer"
	"github.com/romanschejbal/eqlabs/signal"
)

// Subsystem defines the logging code for the main package.
const Subsystem = "RAMN"

// ramnLog is the logger of the main package. It is disabled until
// SetupLoggers is called.
var ramnLog = build.NewSubLogger(Subsystem, nil)

// genSubLogger creates a logger for a subsystem. Critical logs on the logger
// request a shutdown through the interceptor.
func genSubLogger(root *build.SubLoggerManager,
	interceptor signal.Interceptor) func(string) btclog.Logger {

	return func(tag string) btclog.Logger {
		return root.GenSubLogger(tag, interceptor.RequestShutdown)
	}
}

// SetupLoggers initializes all package-global logger variables.
func SetupLoggers(root *build.SubLoggerManager,
	interceptor signal.Interceptor) {

	genLogger := genSubLogger(root, interceptor)

	ramnLog = build.NewSubLogger(Subsystem, genLogger)
	SetSubLogger(root, Subsystem, ramnLog)

	AddSubLogger(root, peer.Subsystem, interceptor, peer.UseLogger)
	AddSubLogger(
		root, monitoring.Subsystem, interceptor, monitoring.UseLogger,
	)
	AddSubLogger(root, signal.Subsystem, interceptor, signal.UseLogger)
}

// AddSubLogger is a helper method to conveniently create and register the
// logger of one or more sub systems.
func AddSubLogger(root *build.SubLoggerManager, subsystem string,
	interceptor signal.Interceptor, useLoggers ...func(btclog.Logger)) {

	// Create and register just a single logger to prevent them from
	// overwriting each other internally.
	logger := build.NewSubLogger(subsystem, genSubLogger(root, interceptor))
	SetSubLogger(root, subsystem, logger, useLoggers...)
}

// SetSubLogger is a helper method to conveniently register the logger of a
// sub system.
func SetSubLogger(root *build.SubLoggerManager, subsystem string,
	logger btclog.Logger, useLoggers ...func(btclog.Logger)) {

	root.RegisterSubLogger(subsystem, logger)
	for _, useLogger := range useLoggers {
		useLogger(logger)
	}
}
