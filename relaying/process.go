package relaying

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/omnichain/relayer/relaying/escrow"
	"github.com/omnichain/relayer/relaying/proof"
	"github.com/omnichain/relayer/relaying/types"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// driveOrder is the order non-terminal states are visited each pass.
// Each state is re-queried when its turn comes, so a healthy message
// entering a later state earlier in the pass is picked up again and can
// flow persisted through settled within a single pass.
var driveOrder = []types.MessageState{
	types.StatePersisted,
	types.StateVerified,
	types.StateSentToDest,
	types.StateExecuted,
}

// processPending runs one drive pass over every in-flight message.
func (s *Service) processPending(ctx context.Context) error {
	for _, state := range driveOrder {
		if err := s.processState(ctx, state); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) processState(ctx context.Context, state types.MessageState) error {
	msgs, err := s.cfg.Database.MessagesByState(ctx, state)
	if err != nil {
		return errors.Wrapf(err, "could not load messages in state %s", state)
	}
	for _, m := range msgs {
		if s.cfg.Control.Paused() {
			return nil
		}
		var transitionErr error
		switch state {
		case types.StatePersisted:
			transitionErr = s.advancePersistedToVerified(ctx, m)
		case types.StateVerified:
			transitionErr = s.advanceVerifiedToExecuted(ctx, m)
		case types.StateSentToDest:
			// Only reachable after a crash between the two halves of the
			// execution transition; resume promotes these before the loop
			// starts, so nothing to do here.
		case types.StateExecuted:
			transitionErr = s.advanceExecutedToSettled(ctx, m)
		}
		if transitionErr == nil {
			continue
		}
		// A failing visit with the retry budget already spent is the
		// exhaustion point; otherwise schedule one more attempt.
		if m.RetryCount >= MaxRetries {
			if err := s.rollback(ctx, m, state); err != nil {
				return err
			}
			continue
		}
		if err := s.recordRetry(ctx, m, state, transitionErr); err != nil {
			return err
		}
	}
	return nil
}

// recordRetry bumps the retry counter and journals the failure. The message
// stays in its current state for the next pass.
func (s *Service) recordRetry(ctx context.Context, m *types.Message, state types.MessageState, cause error) error {
	log.WithError(cause).WithFields(logrus.Fields{
		"nonce": m.Nonce,
		"state": state,
	}).Warn("State transition failed, will retry")
	if err := s.cfg.Database.IncrementRetry(ctx, m.Nonce); err != nil {
		return errors.Wrap(err, "could not increment retry count")
	}
	transitionRetriesCount.Inc()
	ev := types.NewEvent(m.TraceID, m.Nonce, types.ActorRelayer, stepForState(state), types.StatusRetry).
		WithDetail("Error: " + cause.Error())
	return s.emit(ctx, ev)
}

// rollback is the terminal failure path: the message moves to rolled_back
// and the escrow refund is recorded. The retry budget is exhausted, so no
// further attempt is ever made for this nonce.
func (s *Service) rollback(ctx context.Context, m *types.Message, state types.MessageState) error {
	log.WithFields(logrus.Fields{
		"nonce":   m.Nonce,
		"state":   state,
		"retries": m.RetryCount,
	}).Warn("Retry budget exhausted, rolling back")

	ev := types.NewEvent(m.TraceID, m.Nonce, types.ActorRelayer, types.StepRollback, types.StatusFailure).
		WithDetail(fmt.Sprintf("Rollback: %s failed after %d retry. Funds will be refunded.", state, m.RetryCount))
	if err := s.emit(ctx, ev); err != nil {
		return err
	}

	errMsg := fmt.Sprintf("Rolled back from %s after retry failure", state)
	upd := &types.StateUpdate{ErrorMessage: types.StrPtr(errMsg)}
	if err := s.cfg.Database.UpdateMessageState(ctx, m.Nonce, types.StateRolledBack, upd); err != nil {
		return errors.Wrap(err, "could not roll back message")
	}

	refunded := types.NewEvent(m.TraceID, m.Nonce, types.ActorSource, types.StepSettled, types.StatusFailure).
		WithDetail("Escrow refunded — rollback complete")
	if err := s.emit(ctx, refunded); err != nil {
		return err
	}
	rollbacksCount.Inc()
	log.WithField("nonce", m.Nonce).Info("Message rolled back, escrow refunded")
	return nil
}

// advancePersistedToVerified builds the proof bundle for the message,
// verifies it, and persists both the proof and the verified state.
func (s *Service) advancePersistedToVerified(ctx context.Context, m *types.Message) error {
	if err := s.injectedFault(m, "light-client verification"); err != nil {
		return err
	}
	bundle, err := proof.Build(m.Nonce, m.BlockNumber, m.TraceID, []byte(m.Payload), s.cfg.RelayerKey)
	if err != nil {
		return err
	}
	if err := proof.Verify(bundle); err != nil {
		return errors.Wrap(err, "proof verification failed")
	}
	bundle.Verified = true
	proofJSON, err := json.Marshal(bundle)
	if err != nil {
		return errors.Wrap(err, "could not encode proof bundle")
	}
	if err := s.cfg.Database.SaveProof(ctx, m.Nonce, string(proofJSON)); err != nil {
		return errors.Wrap(err, "could not save proof")
	}
	if err := s.cfg.Database.UpdateMessageState(ctx, m.Nonce, types.StateVerified, nil); err != nil {
		return errors.Wrap(err, "could not mark message verified")
	}
	ev := types.NewEvent(m.TraceID, m.Nonce, types.ActorRelayer, types.StepVerified, types.StatusSuccess).
		WithDetail("Simulated light-client verification passed")
	if err := s.emit(ctx, ev); err != nil {
		return err
	}
	log.WithField("nonce", m.Nonce).Info("Proof bundle verified")
	return nil
}

// advanceVerifiedToExecuted runs the destination computation. The transition
// is split in two durable steps: sent_to_dest records the execution result
// before the executed state lands, so a crash between the writes is
// recoverable without re-running the destination call.
func (s *Service) advanceVerifiedToExecuted(ctx context.Context, m *types.Message) error {
	if err := s.injectedFault(m, "destination execution"); err != nil {
		return err
	}
	amount, err := strconv.ParseUint(m.Amount, 10, 64)
	if err != nil {
		// Amounts beyond 64 bits execute as zero; the escrow still holds
		// the real value and settlement reports the computed result.
		amount = 0
	}
	sig, result, err := s.cfg.Executor.Execute(ctx, m.Nonce, amount, traceIDBytes(m.TraceID), common.HexToAddress(m.Sender))
	if err != nil {
		return errors.Wrap(err, "destination execution failed")
	}

	upd := &types.StateUpdate{
		Result:        types.StrPtr(strconv.FormatUint(result, 10)),
		DestSignature: types.StrPtr(sig),
	}
	if err := s.cfg.Database.UpdateMessageState(ctx, m.Nonce, types.StateSentToDest, upd); err != nil {
		return errors.Wrap(err, "could not record destination result")
	}
	executed := types.NewEvent(m.TraceID, m.Nonce, types.ActorRelayer, types.StepExecuted, types.StatusSuccess).
		WithDetail(fmt.Sprintf("dest_sig:%s, result:%d", sig, result))
	if err := s.emit(ctx, executed); err != nil {
		return err
	}

	if err := s.cfg.Database.UpdateMessageState(ctx, m.Nonce, types.StateExecuted, nil); err != nil {
		return errors.Wrap(err, "could not mark message executed")
	}
	minted := types.NewEvent(m.TraceID, m.Nonce, types.ActorDestination, types.StepMinted, types.StatusSuccess).
		WithDetail("Simulated receipt token minted")
	if err := s.emit(ctx, minted); err != nil {
		return err
	}
	log.WithFields(logrus.Fields{
		"nonce":  m.Nonce,
		"result": result,
	}).Info("Destination execution complete")
	return nil
}

// advanceExecutedToSettled signs the settlement and calls back into the
// escrow contract. When the RPC rejects the call and simulated settlement is
// enabled, a synthetic settlement is recorded instead of retrying.
func (s *Service) advanceExecutedToSettled(ctx context.Context, m *types.Message) error {
	resultVal, err := strconv.ParseUint(m.Result, 10, 64)
	if err != nil {
		resultVal = 0
	}
	result := escrow.PackResult(resultVal)

	burned := types.NewEvent(m.TraceID, m.Nonce, types.ActorDestination, types.StepBurned, types.StatusSuccess).
		WithDetail("Simulated receipt token burned for settlement")
	if err := s.emit(ctx, burned); err != nil {
		return err
	}

	if err := s.injectedFault(m, "settlement"); err != nil {
		return err
	}
	sig, err := escrow.SignSettlement(s.cfg.RelayerKey, m.Nonce, result)
	if err != nil {
		return err
	}

	txHash, err := s.cfg.Source.Settle(ctx, s.cfg.RelayerKey, s.cfg.EscrowAddress, m.Nonce, result, sig)
	if err != nil {
		if !s.cfg.SimulatedSettlement {
			return errors.Wrap(err, "settlement call failed")
		}
		log.WithError(err).WithField("nonce", m.Nonce).Warn("Settlement call failed, recording simulated settlement")
		fakeTx := fmt.Sprintf("0xsim_settle_%d", m.Nonce)
		upd := &types.StateUpdate{SourceSettleTx: types.StrPtr(fakeTx)}
		if err := s.cfg.Database.UpdateMessageState(ctx, m.Nonce, types.StateSettled, upd); err != nil {
			return errors.Wrap(err, "could not record simulated settlement")
		}
		settled := types.NewEvent(m.TraceID, m.Nonce, types.ActorSource, types.StepSettled, types.StatusSuccess).
			WithDetail("simulated_tx:" + fakeTx)
		if err := s.emit(ctx, settled); err != nil {
			return err
		}
		messagesSettledCount.Inc()
		return nil
	}

	upd := &types.StateUpdate{SourceSettleTx: types.StrPtr(txHash.Hex())}
	if err := s.cfg.Database.UpdateMessageState(ctx, m.Nonce, types.StateSettled, upd); err != nil {
		return errors.Wrap(err, "could not record settlement")
	}
	settled := types.NewEvent(m.TraceID, m.Nonce, types.ActorSource, types.StepSettled, types.StatusSuccess).
		WithDetail("tx:" + txHash.Hex())
	if err := s.emit(ctx, settled); err != nil {
		return err
	}
	messagesSettledCount.Inc()
	log.WithFields(logrus.Fields{
		"nonce":  m.Nonce,
		"txHash": txHash.Hex(),
	}).Info("Message settled on source chain")
	return nil
}

// stepForState maps a message state to the lifecycle step a retry or
// rollback event in that state reports.
func stepForState(state types.MessageState) types.Step {
	switch state {
	case types.StatePersisted:
		return types.StepObserved
	case types.StateVerified:
		return types.StepVerified
	case types.StateSentToDest, types.StateExecuted:
		return types.StepExecuted
	case types.StateRolledBack:
		return types.StepRollback
	default:
		return types.StepSettled
	}
}

// traceIDBytes decodes a 0x-prefixed trace id into the fixed 32-byte form
// the destination expects, left-aligned and zero-padded.
func traceIDBytes(traceID string) [32]byte {
	var out [32]byte
	raw, err := hex.DecodeString(strings.TrimPrefix(traceID, "0x"))
	if err != nil {
		return out
	}
	copy(out[:], raw)
	return out
}
