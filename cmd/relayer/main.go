// Package main is the relayer entry point: a daemon that watches an escrow
// contract on an EVM source chain, drives each locked request through a
// durable state machine, executes it against a simulated destination, and
// settles the result back on the source chain.
package main

import (
	"fmt"
	"io"
	"os"
	goruntime "runtime"

	joonix "github.com/joonix/log"
	"github.com/omnichain/relayer/cmd/relayer/flags"
	"github.com/omnichain/relayer/monitoring/prometheus"
	"github.com/omnichain/relayer/node"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"
)

var log = logrus.WithField("prefix", "main")

var appFlags = []cli.Flag{
	flags.SourceRPCFlag,
	flags.DatabasePathFlag,
	flags.MonitoringPortFlag,
	flags.EscrowAddressFlag,
	flags.RelayerKeyFlag,
	flags.PollIntervalFlag,
	flags.AutoStartSimulationFlag,
	flags.FaultInjectionFlag,
	flags.SimulatedSettlementFlag,
	flags.VerbosityFlag,
	flags.LogFormatFlag,
	flags.LogFileName,
	flags.ClearDBFlag,
	flags.ForceClearDBFlag,
}

func startRelayer(cliCtx *cli.Context) error {
	level, err := logrus.ParseLevel(cliCtx.String(flags.VerbosityFlag.Name))
	if err != nil {
		return err
	}
	logrus.SetLevel(level)
	relayer, err := node.New(cliCtx)
	if err != nil {
		return err
	}
	relayer.Start()
	return nil
}

func main() {
	app := cli.App{}
	app.Name = "relayer"
	app.Usage = "bridges escrow requests from an EVM source chain to a simulated destination and settles the results"
	app.Flags = appFlags
	app.Action = startRelayer
	app.Before = func(ctx *cli.Context) error {
		format := ctx.String(flags.LogFormatFlag.Name)
		switch format {
		case "text":
			formatter := new(prefixed.TextFormatter)
			formatter.TimestampFormat = "2006-01-02 15:04:05"
			formatter.FullTimestamp = true
			// ANSI color codes turn into gibberish in persisted log files.
			formatter.DisableColors = ctx.String(flags.LogFileName.Name) != ""
			logrus.SetFormatter(formatter)
		case "fluentd":
			logrus.SetFormatter(joonix.NewFormatter())
		case "json":
			logrus.SetFormatter(&logrus.JSONFormatter{})
		default:
			return fmt.Errorf("unknown log format %s", format)
		}

		logFileName := ctx.String(flags.LogFileName.Name)
		if logFileName != "" {
			if err := configurePersistentLogging(logFileName); err != nil {
				log.WithError(err).Error("Failed to configure logging to disk")
			}
		}
		logrus.AddHook(prometheus.NewLogrusCollector())

		goruntime.GOMAXPROCS(goruntime.NumCPU())
		return nil
	}

	if err := app.Run(os.Args); err != nil {
		log.Error(err.Error())
		os.Exit(1)
	}
}

// configurePersistentLogging tees log output to the given file on top of
// stderr.
func configurePersistentLogging(logFileName string) error {
	f, err := os.OpenFile(logFileName, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return err
	}
	logrus.SetOutput(io.MultiWriter(os.Stderr, f))
	log.WithField("file", logFileName).Info("File logging initialized")
	return nil
}
