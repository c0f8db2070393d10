// Package relaying implements the relayer's core: a single cooperatively
// scheduled processor that observes escrow lock events on the source chain,
// drives every message through its lifecycle with bounded retry and
// deterministic rollback, and signs the settlement callback. All state
// transitions are serialized through this one goroutine; crash-safe resume,
// not graceful shutdown, is the correctness mechanism.
package relaying

import (
	"context"
	"crypto/ecdsa"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	gethTypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/omnichain/relayer/control"
	"github.com/omnichain/relayer/db/iface"
	"github.com/omnichain/relayer/relaying/bus"
	"github.com/omnichain/relayer/relaying/types"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("prefix", "relaying")

// MaxRetries is the retry budget per message: one retry after the initial
// failure, then rollback. The counter counts retries, not attempts, so a
// failing visit with retry_count >= MaxRetries triggers the rollback path.
const MaxRetries = int32(1)

// pauseInterval is how long the processor idles between pause checks.
const pauseInterval = 500 * time.Millisecond

// SourceClient is the source-chain surface the processor needs. Satisfied
// by escrow.Client.
type SourceClient interface {
	BlockNumber(ctx context.Context) (uint64, error)
	RequestLogs(ctx context.Context, contract common.Address, fromBlock uint64) ([]gethTypes.Log, error)
	Settle(ctx context.Context, key *ecdsa.PrivateKey, contract common.Address, nonce uint64, result, signature []byte) (common.Hash, error)
}

// DestinationExecutor runs the deterministic destination computation.
// Satisfied by solana.Executor.
type DestinationExecutor interface {
	Execute(ctx context.Context, nonce, amount uint64, traceID [32]byte, sender common.Address) (string, uint64, error)
}

// Config holds the processor's collaborators and tunables.
type Config struct {
	Database      iface.Database
	Bus           *bus.Bus
	Control       *control.Flags
	Source        SourceClient
	Executor      DestinationExecutor
	EscrowAddress common.Address
	RelayerKey    *ecdsa.PrivateKey
	PollInterval  time.Duration
	// Faults enables the demo fault-injection hooks when non-nil.
	Faults *FaultInjector
	// SimulatedSettlement records a synthetic settlement hash when the
	// source RPC rejects the settle call instead of retrying. Demo policy.
	SimulatedSettlement bool
}

// Service is the state machine processor.
type Service struct {
	ctx       context.Context
	cancel    context.CancelFunc
	cfg       *Config
	lastBlock uint64

	lock     sync.RWMutex
	runError error
}

// NewService validates the configuration and builds the processor.
func NewService(ctx context.Context, cfg *Config) (*Service, error) {
	if cfg.Database == nil {
		return nil, errors.New("database is required")
	}
	if cfg.Source == nil {
		return nil, errors.New("source client is required")
	}
	if cfg.Executor == nil {
		return nil, errors.New("destination executor is required")
	}
	if cfg.RelayerKey == nil {
		return nil, errors.New("relayer key is required")
	}
	if cfg.Bus == nil {
		cfg.Bus = bus.New()
	}
	if cfg.Control == nil {
		cfg.Control = control.New()
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = pauseInterval
	}
	svcCtx, cancel := context.WithCancel(ctx)
	return &Service{ctx: svcCtx, cancel: cancel, cfg: cfg}, nil
}

// Start resumes any in-flight messages and runs the processor loop until
// the service is stopped.
func (s *Service) Start() {
	log.Info("Starting state machine processor")
	if err := s.resumeInFlight(s.ctx); err != nil {
		log.WithError(err).Error("Could not resume in-flight messages")
		s.lock.Lock()
		s.runError = err
		s.lock.Unlock()
		return
	}
	s.run()
}

// Stop cancels the processor loop.
func (s *Service) Stop() error {
	s.cancel()
	return nil
}

// Status returns an error if the processor failed to come up.
func (s *Service) Status() error {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.runError
}

func (s *Service) run() {
	for {
		select {
		case <-s.ctx.Done():
			return
		default:
		}

		if s.cfg.Control.Paused() {
			s.wait(pauseInterval)
			continue
		}
		if s.cfg.Control.ExpireSimulation(time.Now()) {
			log.Info("Simulation deadline reached, stopping synthetic traffic")
		}

		count, err := s.observeRequests(s.ctx)
		switch {
		case err != nil:
			log.WithError(err).Warn("Failed to poll source chain, will retry")
		case count > 0:
			log.WithFields(logrus.Fields{
				"count":     count,
				"lastBlock": s.lastBlock,
			}).Info("Observed new cross-chain requests")
		}

		if err := s.processPending(s.ctx); err != nil {
			log.WithError(err).Error("Error processing messages")
		}

		s.refreshStoreMetrics(s.ctx)
		s.wait(s.cfg.PollInterval)
	}
}

func (s *Service) wait(d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-s.ctx.Done():
	case <-timer.C:
	}
}

// emit persists a lifecycle event and broadcasts it to live subscribers.
// A store failure here is fatal to the containing transition.
func (s *Service) emit(ctx context.Context, ev *types.Event) error {
	if err := s.cfg.Database.SaveEvent(ctx, ev); err != nil {
		return errors.Wrap(err, "could not persist lifecycle event")
	}
	s.cfg.Bus.Send(ev)
	return nil
}
