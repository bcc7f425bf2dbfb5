package main

import (
	"github.com/btcsuite/btclog"
	"github.com/lightningnetwork/txsign/build"
	"github.com/lightningnetwork/txsign/input"
	"github.com/lightningnetwork/txsign/signer"
)

// Loggers per subsystem. A single rotating writer backs all subsystem
// loggers. Its log file is only opened once the flags are parsed, so
// anything logged earlier only reaches stderr.
var (
	logWriter = build.NewRotatingLogWriter()

	log = addSubLogger("TXSN", nil)
)

// Initialize package-global logger variables.
func init() {
	addSubLogger("INPT", input.UseLogger)
	addSubLogger(signer.Subsystem, signer.UseLogger)
}

// addSubLogger creates a logger for the subsystem, registers it with the
// writer and hands it to useLogger if given.
func addSubLogger(subsystem string,
	useLogger func(btclog.Logger)) btclog.Logger {

	logger := build.NewSubLogger(subsystem, logWriter.GenSubLogger)
	logWriter.RegisterSubLogger(subsystem, logger)

	if useLogger != nil {
		useLogger(logger)
	}

	return logger
}
