// Package node assembles the relayer process: it opens the database, dials
// the source chain, wires the processor and monitoring services into a
// registry, and owns the shutdown sequence.
package node

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/omnichain/relayer/cmd/relayer/flags"
	"github.com/omnichain/relayer/control"
	"github.com/omnichain/relayer/db/iface"
	"github.com/omnichain/relayer/db/kv"
	"github.com/omnichain/relayer/monitoring/prometheus"
	"github.com/omnichain/relayer/relaying"
	"github.com/omnichain/relayer/relaying/bus"
	"github.com/omnichain/relayer/relaying/escrow"
	"github.com/omnichain/relayer/relaying/solana"
	"github.com/omnichain/relayer/runtime"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

var log = logrus.WithField("prefix", "node")

// simulationWindow is how long an auto-started simulation stays open.
const simulationWindow = time.Hour

// RelayerNode owns the lifecycle of the whole relayer: database, event bus,
// control flags, and every registered service.
type RelayerNode struct {
	cliCtx   *cli.Context
	ctx      context.Context
	cancel   context.CancelFunc
	lock     sync.RWMutex
	services *runtime.ServiceRegistry
	stop     chan struct{} // Channel to wait for termination notifications.
	db       iface.Database
	bus      *bus.Bus
	ctrl     *control.Flags
}

// New creates the node, opens its database, and registers every required
// service.
func New(cliCtx *cli.Context) (*RelayerNode, error) {
	ctx, cancel := context.WithCancel(cliCtx.Context)
	node := &RelayerNode{
		cliCtx:   cliCtx,
		ctx:      ctx,
		cancel:   cancel,
		services: runtime.NewServiceRegistry(),
		stop:     make(chan struct{}),
		bus:      bus.New(),
		ctrl:     control.New(),
	}

	if err := node.startDB(cliCtx); err != nil {
		cancel()
		return nil, err
	}
	if cliCtx.Bool(flags.AutoStartSimulationFlag.Name) {
		deadline := time.Now().Add(simulationWindow).Unix()
		node.ctrl.StartSimulation(deadline)
		log.WithField("deadline", deadline).Info("Simulation window opened")
	}
	if err := node.registerRelayingService(cliCtx); err != nil {
		cancel()
		return nil, err
	}
	if err := node.registerMonitoringService(cliCtx); err != nil {
		cancel()
		return nil, err
	}
	return node, nil
}

func (n *RelayerNode) startDB(cliCtx *cli.Context) error {
	dbPath := cliCtx.String(flags.DatabasePathFlag.Name)
	log.WithField("path", dbPath).Info("Opening database")
	store, err := kv.NewKVStore(dbPath)
	if err != nil {
		return errors.Wrap(err, "could not open database")
	}
	if cliCtx.Bool(flags.ClearDBFlag.Name) || cliCtx.Bool(flags.ForceClearDBFlag.Name) {
		if !cliCtx.Bool(flags.ForceClearDBFlag.Name) {
			log.Warn("Ignoring --clear-db, pass --force-clear-db to confirm the wipe")
		} else {
			log.Warn("Clearing all stored messages and events")
			if err := store.ClearAll(n.ctx); err != nil {
				return errors.Wrap(err, "could not clear database")
			}
		}
	}
	n.db = store
	return nil
}

func (n *RelayerNode) registerRelayingService(cliCtx *cli.Context) error {
	endpoint := cliCtx.String(flags.SourceRPCFlag.Name)
	source, err := escrow.NewClient(n.ctx, endpoint)
	if err != nil {
		return err
	}
	keyHex := strings.TrimPrefix(cliCtx.String(flags.RelayerKeyFlag.Name), "0x")
	key, err := crypto.HexToECDSA(keyHex)
	if err != nil {
		return errors.Wrap(err, "invalid relayer private key")
	}
	escrowAddr := cliCtx.String(flags.EscrowAddressFlag.Name)
	if !common.IsHexAddress(escrowAddr) {
		return errors.Errorf("invalid escrow address %s", escrowAddr)
	}

	var faults *relaying.FaultInjector
	if cliCtx.Bool(flags.FaultInjectionFlag.Name) {
		log.Warn("Fault injection armed, transitions will randomly fail")
		faults = relaying.NewFaultInjector()
	}

	svc, err := relaying.NewService(n.ctx, &relaying.Config{
		Database:            n.db,
		Bus:                 n.bus,
		Control:             n.ctrl,
		Source:              source,
		Executor:            solana.NewExecutor(),
		EscrowAddress:       common.HexToAddress(escrowAddr),
		RelayerKey:          key,
		PollInterval:        time.Duration(cliCtx.Int(flags.PollIntervalFlag.Name)) * time.Millisecond,
		Faults:              faults,
		SimulatedSettlement: cliCtx.Bool(flags.SimulatedSettlementFlag.Name),
	})
	if err != nil {
		return err
	}
	log.WithFields(logrus.Fields{
		"sourceRpc": endpoint,
		"escrow":    escrowAddr,
		"relayer":   crypto.PubkeyToAddress(key.PublicKey).Hex(),
	}).Info("Registered state machine processor")
	return n.services.RegisterService(svc)
}

func (n *RelayerNode) registerMonitoringService(cliCtx *cli.Context) error {
	addr := fmt.Sprintf(":%d", cliCtx.Int(flags.MonitoringPortFlag.Name))
	return n.services.RegisterService(prometheus.NewService(addr, n.services))
}

// Bus returns the node's lifecycle event bus.
func (n *RelayerNode) Bus() *bus.Bus {
	return n.bus
}

// Control returns the node's operational control flags.
func (n *RelayerNode) Control() *control.Flags {
	return n.ctrl
}

// Start kicks off every registered service and blocks until shutdown.
func (n *RelayerNode) Start() {
	n.lock.Lock()
	n.services.StartAll()
	n.lock.Unlock()

	stop := n.stop
	go func() {
		sigc := make(chan os.Signal, 1)
		signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigc)
		<-sigc
		log.Info("Got interrupt, shutting down...")
		go n.Close()
		for i := 10; i > 0; i-- {
			<-sigc
			if i > 1 {
				log.WithField("times", i-1).Info("Already shutting down, interrupt more to panic")
			}
		}
		panic("Panic closing the relayer node")
	}()

	// Wait for stop channel to be closed.
	<-stop
}

// Close handles graceful shutdown of the system.
func (n *RelayerNode) Close() {
	n.lock.Lock()
	defer n.lock.Unlock()

	log.Info("Stopping relayer node")
	n.services.StopAll()
	n.cancel()
	if err := n.db.Close(); err != nil {
		log.WithError(err).Error("Failed to close database")
	}
	close(n.stop)
}
