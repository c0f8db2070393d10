// Package flags defines the command line flags accepted by the relayer.
// Every operational flag also reads from an environment variable so the
// binary drops into container setups without a wrapper script.
package flags

import (
	"github.com/urfave/cli/v2"
)

var (
	// SourceRPCFlag is the source chain JSON-RPC endpoint.
	SourceRPCFlag = &cli.StringFlag{
		Name:    "source-rpc",
		Usage:   "JSON-RPC endpoint of the source chain",
		Value:   "http://127.0.0.1:8545",
		EnvVars: []string{"SOURCE_RPC_URL"},
	}
	// DatabasePathFlag is the path of the embedded database file.
	DatabasePathFlag = &cli.StringFlag{
		Name:    "db-path",
		Usage:   "Path of the relayer database file",
		Value:   "relayer.db",
		EnvVars: []string{"DATABASE_URL"},
	}
	// MonitoringPortFlag is the port of the metrics and health endpoints.
	MonitoringPortFlag = &cli.IntFlag{
		Name:    "monitoring-port",
		Usage:   "Port of the metrics and health HTTP server",
		Value:   3001,
		EnvVars: []string{"HTTP_PORT"},
	}
	// EscrowAddressFlag is the escrow contract address on the source chain.
	EscrowAddressFlag = &cli.StringFlag{
		Name:    "escrow-address",
		Usage:   "Address of the escrow contract on the source chain",
		Value:   "0x5FbDB2315678afecb367f032d93F642f64180aa3",
		EnvVars: []string{"ESCROW_ADDRESS"},
	}
	// RelayerKeyFlag is the relayer's hex-encoded secp256k1 private key.
	// The default is the first well-known anvil development key and must
	// never be used outside a local devnet.
	RelayerKeyFlag = &cli.StringFlag{
		Name:    "relayer-key",
		Usage:   "Hex-encoded private key used for proof and settlement signatures",
		Value:   "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80",
		EnvVars: []string{"RELAYER_PRIVATE_KEY"},
	}
	// PollIntervalFlag is the source chain poll interval in milliseconds.
	PollIntervalFlag = &cli.IntFlag{
		Name:    "poll-interval",
		Usage:   "Source chain poll interval in milliseconds",
		Value:   500,
		EnvVars: []string{"POLL_INTERVAL_MS"},
	}
	// AutoStartSimulationFlag opens the synthetic traffic window at boot.
	AutoStartSimulationFlag = &cli.BoolFlag{
		Name:    "auto-start-simulation",
		Usage:   "Open the synthetic traffic simulation window at startup",
		EnvVars: []string{"AUTO_START_SIMULATION"},
	}
	// FaultInjectionFlag arms the demo fault injector.
	FaultInjectionFlag = &cli.BoolFlag{
		Name:  "fault-injection",
		Usage: "Randomly fail state transitions to exercise retry and rollback",
	}
	// SimulatedSettlementFlag records a synthetic settlement when the source
	// RPC rejects the settle call instead of retrying it.
	SimulatedSettlementFlag = &cli.BoolFlag{
		Name:  "simulated-settlement",
		Usage: "Record a simulated settlement when the settle call is rejected",
		Value: true,
	}
	// VerbosityFlag sets the global logging level.
	VerbosityFlag = &cli.StringFlag{
		Name:  "verbosity",
		Usage: "Logging verbosity (trace, debug, info, warn, error, fatal, panic)",
		Value: "info",
	}
	// LogFormatFlag picks the log output format.
	LogFormatFlag = &cli.StringFlag{
		Name:  "log-format",
		Usage: "Log format, either text, fluentd or json",
		Value: "text",
	}
	// LogFileName writes logs to the given file in addition to stderr.
	LogFileName = &cli.StringFlag{
		Name:  "log-file",
		Usage: "Write log output to the given file as well",
	}
	// ClearDBFlag requests a database wipe at startup; requires the force
	// flag to actually delete anything.
	ClearDBFlag = &cli.BoolFlag{
		Name:  "clear-db",
		Usage: "Request clearing all stored messages and events at startup",
	}
	// ForceClearDBFlag confirms the wipe without prompting.
	ForceClearDBFlag = &cli.BoolFlag{
		Name:  "force-clear-db",
		Usage: "Clear the database at startup without confirmation",
	}
)
