package relaying

import (
	"context"

	"github.com/omnichain/relayer/relaying/types"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// resumeStates are the non-terminal states scanned at startup, in forward
// order.
var resumeStates = []types.MessageState{
	types.StateObserved,
	types.StatePersisted,
	types.StateVerified,
	types.StateSentToDest,
	types.StateExecuted,
}

// resumeInFlight surveys the store for messages stranded mid-lifecycle by a
// previous run. Messages in sent_to_dest already carry their destination
// result, so they are promoted straight to executed rather than re-running
// the destination call; everything else is picked up by the normal drive
// pass from wherever it stopped.
func (s *Service) resumeInFlight(ctx context.Context) error {
	for _, state := range resumeStates {
		msgs, err := s.cfg.Database.MessagesByState(ctx, state)
		if err != nil {
			return errors.Wrapf(err, "could not load messages in state %s", state)
		}
		if len(msgs) == 0 {
			continue
		}
		log.WithFields(logrus.Fields{
			"state": state,
			"count": len(msgs),
		}).Info("Resuming in-flight messages")

		if state != types.StateSentToDest {
			continue
		}
		for _, m := range msgs {
			if err := s.cfg.Database.UpdateMessageState(ctx, m.Nonce, types.StateExecuted, nil); err != nil {
				return errors.Wrapf(err, "could not promote message %d", m.Nonce)
			}
			log.WithField("nonce", m.Nonce).Info("Promoted sent_to_dest message, destination result already recorded")
		}
	}
	return nil
}
