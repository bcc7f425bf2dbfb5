package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/lightningnetwork/txsign/build"
	"github.com/urfave/cli"
)

const (
	appName = "txsign"

	defaultLogFilename = "txsign.log"
)

// appVersion is set at build time.
var appVersion = "0.1.0"

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "[txsign] %v\n", err)
	os.Exit(1)
}

// networkParams returns the chain parameters selected by the network flag.
func networkParams(ctx *cli.Context) (*chaincfg.Params, error) {
	switch network := ctx.GlobalString("network"); network {
	case "mainnet":
		return &chaincfg.MainNetParams, nil

	case "testnet", "testnet3":
		return &chaincfg.TestNet3Params, nil

	case "regtest":
		return &chaincfg.RegressionNetParams, nil

	case "simnet":
		return &chaincfg.SimNetParams, nil

	default:
		return nil, fmt.Errorf("unknown network: %v", network)
	}
}

// setupLogging applies the logging flags. It returns a function that closes
// the log file.
func setupLogging(ctx *cli.Context) (func(), error) {
	if logDir := ctx.GlobalString("logdir"); logDir != "" {
		cfg := &build.FileLoggerConfig{
			Compressor:     ctx.GlobalString("logcompressor"),
			MaxLogFiles:    ctx.GlobalInt("maxlogfiles"),
			MaxLogFileSize: ctx.GlobalInt("maxlogfilesize"),
		}
		err := logWriter.InitLogRotator(
			cfg, filepath.Join(logDir, defaultLogFilename),
		)
		if err != nil {
			return nil, err
		}
	}

	err := build.ParseAndSetDebugLevels(
		ctx.GlobalString("debuglevel"), logWriter,
	)
	if err != nil {
		_ = logWriter.Close()
		return nil, err
	}

	return func() {
		if err := logWriter.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "unable to close log: %v\n", err)
		}
	}, nil
}

// newApp returns the command line application. Command output is written to
// the app's Writer.
func newApp() *cli.App {
	app := cli.NewApp()
	app.Name = appName
	app.Version = appVersion + " " + build.Info()
	app.Usage = "sign, combine and inspect transaction inputs"
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name: "network, n",
			Usage: "The network keys and addresses belong to, " +
				"e.g. mainnet, testnet, regtest or simnet.",
			Value: "mainnet",
		},
		cli.StringFlag{
			Name: "debuglevel, d",
			Usage: "Logging level for all subsystems, or a " +
				"comma separated list of <subsystem>=<level> " +
				"pairs.",
			Value: build.LogLevel,
		},
		cli.StringFlag{
			Name: "logdir",
			Usage: "Directory to write a rotated log file to. " +
				"Logs only go to stderr if empty.",
			TakesFile: true,
		},
		cli.IntFlag{
			Name:  "maxlogfiles",
			Usage: "Maximum number of rolled log files to keep.",
			Value: build.DefaultMaxLogFiles,
		},
		cli.IntFlag{
			Name:  "maxlogfilesize",
			Usage: "Maximum log file size in MB before rolling.",
			Value: build.DefaultMaxLogFileSize,
		},
		cli.StringFlag{
			Name: "logcompressor",
			Usage: "Compression algorithm for rolled log files, " +
				"gzip or zstd.",
			Value: build.DefaultLogCompressor,
		},
	}
	app.Commands = []cli.Command{
		signRawTransactionCommand,
		combineRawTransactionCommand,
		signPsbtCommand,
		isSolvableCommand,
		decodeScriptCommand,
	}

	return app
}

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fatal(err)
	}
}
