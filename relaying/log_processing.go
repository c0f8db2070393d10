package relaying

import (
	"context"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/omnichain/relayer/relaying/escrow"
	"github.com/omnichain/relayer/relaying/types"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// observeRequests polls the source chain for escrow logs past the last
// scanned block, inserts a row per new request, and advances each straight
// to persisted. Returns the number of requests ingested this pass.
//
// Ingestion is idempotent on nonce: a log seen again after a crash or a
// re-scan of an already-covered range is skipped without touching the
// existing row or re-emitting its events.
func (s *Service) observeRequests(ctx context.Context) (int, error) {
	start := time.Now()
	current, err := s.cfg.Source.BlockNumber(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "could not fetch chain head")
	}
	if current <= s.lastBlock {
		return 0, nil
	}
	fromBlock := uint64(0)
	if s.lastBlock > 0 {
		fromBlock = s.lastBlock + 1
	}

	logs, err := s.cfg.Source.RequestLogs(ctx, s.cfg.EscrowAddress, fromBlock)
	if err != nil {
		return 0, errors.Wrap(err, "could not fetch escrow logs")
	}

	count := 0
	for _, lg := range logs {
		req, err := escrow.UnpackRequestLog(lg)
		if err != nil {
			log.WithError(err).WithFields(logrus.Fields{
				"block":  lg.BlockNumber,
				"txHash": lg.TxHash.Hex(),
			}).Warn("Could not decode escrow log, skipping")
			continue
		}
		exists, err := s.cfg.Database.HasMessage(ctx, req.Nonce)
		if err != nil {
			return count, err
		}
		if exists {
			continue
		}
		if err := s.ingestRequest(ctx, req); err != nil {
			return count, err
		}
		count++
	}

	s.lastBlock = current
	sourcePollLatency.Observe(float64(time.Since(start).Milliseconds()))
	return count, nil
}

// ingestRequest writes the observed row, records the locked and observed
// lifecycle events, and moves the message to persisted.
func (s *Service) ingestRequest(ctx context.Context, req *escrow.Request) error {
	msg := &types.Message{
		Nonce:       req.Nonce,
		TraceID:     req.TraceID.Hex(),
		Sender:      req.Sender.Hex(),
		Amount:      req.Amount.String(),
		Payload:     hex.EncodeToString(req.Payload),
		Deadline:    req.Deadline.Int64(),
		Description: escrow.ExtractDescription(req.Payload),
		BlockNumber: req.BlockNumber,
		State:       types.StateObserved,
	}
	if err := s.cfg.Database.SaveMessageIfAbsent(ctx, msg); err != nil {
		return errors.Wrap(err, "could not save observed message")
	}
	log.WithFields(logrus.Fields{
		"nonce":   msg.Nonce,
		"traceId": msg.TraceID,
		"amount":  msg.Amount,
		"block":   msg.BlockNumber,
	}).Info("Observed escrow lock")

	locked := types.NewEvent(msg.TraceID, msg.Nonce, types.ActorSource, types.StepLocked, types.StatusSuccess).
		WithDetail("tx:" + req.TxHash.Hex())
	if err := s.emit(ctx, locked); err != nil {
		return err
	}
	observed := types.NewEvent(msg.TraceID, msg.Nonce, types.ActorRelayer, types.StepObserved, types.StatusSuccess).
		WithDetail(fmt.Sprintf("block:%d", msg.BlockNumber))
	if err := s.emit(ctx, observed); err != nil {
		return err
	}

	if err := s.cfg.Database.UpdateMessageState(ctx, msg.Nonce, types.StatePersisted, nil); err != nil {
		return errors.Wrap(err, "could not persist message")
	}
	messagesObservedCount.Inc()
	return nil
}
