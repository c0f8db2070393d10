package relaying

import (
	"math/rand"
	"sync"
	"time"

	"github.com/omnichain/relayer/relaying/types"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	// faultProbability is the chance a fault-injected transition trips on
	// its first attempt.
	faultProbability = 0.10
	// retryFaultProbability is the chance the retry of a tripped transition
	// trips again, exhausting the budget and forcing a rollback.
	retryFaultProbability = 0.50
)

// FaultInjector trips state transitions at fixed probabilities to exercise
// the retry and rollback paths during demos. Never enabled in normal runs.
type FaultInjector struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewFaultInjector seeds an injector from the wall clock.
func NewFaultInjector() *FaultInjector {
	return &FaultInjector{rng: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

func (f *FaultInjector) roll(p float64) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rng.Float64() < p
}

// injectedFault returns a synthetic error for this message's current attempt
// when fault injection is armed and the dice say so.
func (s *Service) injectedFault(m *types.Message, op string) error {
	f := s.cfg.Faults
	if f == nil {
		return nil
	}
	if m.RetryCount > 0 {
		if f.roll(retryFaultProbability) {
			log.WithFields(logrus.Fields{
				"nonce": m.Nonce,
				"op":    op,
			}).Warn("Injected fault on retry")
			return errors.Errorf("injected fault: %s failed on retry", op)
		}
		return nil
	}
	if f.roll(faultProbability) {
		log.WithFields(logrus.Fields{
			"nonce": m.Nonce,
			"op":    op,
		}).Warn("Injected fault")
		return errors.Errorf("injected fault: %s timed out", op)
	}
	return nil
}
