package kv

import (
	"bytes"
	"context"
	"encoding/json"
	"time"

	"github.com/omnichain/relayer/relaying/types"
	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"
)

func unmarshalMessage(enc []byte) (*types.Message, error) {
	msg := &types.Message{}
	if err := json.Unmarshal(enc, msg); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal message encoding")
	}
	return msg, nil
}

func putMessage(tx *bolt.Tx, msg *types.Message) error {
	enc, err := json.Marshal(msg)
	if err != nil {
		return errors.Wrap(err, "failed to encode message")
	}
	return tx.Bucket(messagesBucket).Put(encodeNonce(msg.Nonce), enc)
}

// SaveMessageIfAbsent inserts a new message row in state observed. If a row
// already exists for the nonce the call is a no-op, which makes log
// ingestion idempotent when the same log is delivered twice.
func (s *Store) SaveMessageIfAbsent(_ context.Context, msg *types.Message) error {
	return s.update(func(tx *bolt.Tx) error {
		key := encodeNonce(msg.Nonce)
		if tx.Bucket(messagesBucket).Get(key) != nil {
			return nil
		}
		row := *msg
		row.State = types.StateObserved
		row.RetryCount = 0
		now := time.Now().UTC().Format(time.RFC3339)
		row.CreatedAt = now
		row.UpdatedAt = now
		if err := putMessage(tx, &row); err != nil {
			return err
		}
		return tx.Bucket(messageStateIndex).Put(stateIndexKey(row.State.String(), row.Nonce), nil)
	})
}

// UpdateMessageState writes the new state and any non-nil artifact fields
// from upd, leaving nil fields untouched. The state index entry is moved in
// the same transaction. A row already in a terminal state is never updated.
func (s *Store) UpdateMessageState(_ context.Context, nonce uint64, state types.MessageState, upd *types.StateUpdate) error {
	return s.update(func(tx *bolt.Tx) error {
		enc := tx.Bucket(messagesBucket).Get(encodeNonce(nonce))
		if enc == nil {
			return ErrNotFound
		}
		msg, err := unmarshalMessage(enc)
		if err != nil {
			return err
		}
		if msg.State.Terminal() {
			return errors.Wrapf(ErrTerminalState, "nonce %d in state %s", nonce, msg.State)
		}
		prior := msg.State
		msg.State = state
		if upd != nil {
			if upd.Result != nil {
				msg.Result = *upd.Result
			}
			if upd.DestSignature != nil {
				msg.DestSignature = *upd.DestSignature
			}
			if upd.SourceSettleTx != nil {
				msg.SourceSettleTx = *upd.SourceSettleTx
			}
			if upd.ErrorMessage != nil {
				msg.ErrorMessage = *upd.ErrorMessage
			}
		}
		msg.UpdatedAt = time.Now().UTC().Format(time.RFC3339)
		if err := putMessage(tx, msg); err != nil {
			return err
		}
		idx := tx.Bucket(messageStateIndex)
		if err := idx.Delete(stateIndexKey(prior.String(), nonce)); err != nil {
			return err
		}
		return idx.Put(stateIndexKey(state.String(), nonce), nil)
	})
}

// SaveProof stores the serialized proof bundle on the message row.
func (s *Store) SaveProof(_ context.Context, nonce uint64, proofJSON string) error {
	return s.update(func(tx *bolt.Tx) error {
		enc := tx.Bucket(messagesBucket).Get(encodeNonce(nonce))
		if enc == nil {
			return ErrNotFound
		}
		msg, err := unmarshalMessage(enc)
		if err != nil {
			return err
		}
		msg.ProofJSON = proofJSON
		msg.UpdatedAt = time.Now().UTC().Format(time.RFC3339)
		return putMessage(tx, msg)
	})
}

// IncrementRetry adds one to the retry counter of the message row.
func (s *Store) IncrementRetry(_ context.Context, nonce uint64) error {
	return s.update(func(tx *bolt.Tx) error {
		enc := tx.Bucket(messagesBucket).Get(encodeNonce(nonce))
		if enc == nil {
			return ErrNotFound
		}
		msg, err := unmarshalMessage(enc)
		if err != nil {
			return err
		}
		msg.RetryCount++
		msg.UpdatedAt = time.Now().UTC().Format(time.RFC3339)
		return putMessage(tx, msg)
	})
}

// MessagesByState returns every message in the given state ordered by nonce
// ascending, via a cursor prefix scan over the state index.
func (s *Store) MessagesByState(_ context.Context, state types.MessageState) ([]*types.Message, error) {
	var msgs []*types.Message
	err := s.view(func(tx *bolt.Tx) error {
		messages := tx.Bucket(messagesBucket)
		c := tx.Bucket(messageStateIndex).Cursor()
		prefix := stateIndexPrefix(state.String())
		for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Next() {
			enc := messages.Get(k[len(prefix):])
			if enc == nil {
				continue
			}
			msg, err := unmarshalMessage(enc)
			if err != nil {
				return err
			}
			msgs = append(msgs, msg)
		}
		return nil
	})
	return msgs, err
}

// Message returns the row for the nonce, or ErrNotFound.
func (s *Store) Message(_ context.Context, nonce uint64) (*types.Message, error) {
	var msg *types.Message
	err := s.view(func(tx *bolt.Tx) error {
		enc := tx.Bucket(messagesBucket).Get(encodeNonce(nonce))
		if enc == nil {
			return ErrNotFound
		}
		var err error
		msg, err = unmarshalMessage(enc)
		return err
	})
	return msg, err
}

// HasMessage returns true if a row exists for the nonce.
func (s *Store) HasMessage(_ context.Context, nonce uint64) (bool, error) {
	var exists bool
	err := s.view(func(tx *bolt.Tx) error {
		exists = tx.Bucket(messagesBucket).Get(encodeNonce(nonce)) != nil
		return nil
	})
	return exists, err
}

// Metrics aggregates message counts in a single read transaction.
func (s *Store) Metrics(_ context.Context) (*types.StoreMetrics, error) {
	m := &types.StoreMetrics{}
	err := s.view(func(tx *bolt.Tx) error {
		return tx.Bucket(messagesBucket).ForEach(func(_, enc []byte) error {
			msg, err := unmarshalMessage(enc)
			if err != nil {
				return err
			}
			m.Total++
			m.TotalRetries += int64(msg.RetryCount)
			switch {
			case msg.State == types.StateSettled:
				m.Settled++
			case msg.State == types.StateFailed || msg.State == types.StateRolledBack:
				m.Failed++
			default:
				m.Pending++
			}
			return nil
		})
	})
	return m, err
}

// ClearAll deletes every message, index entry and event. Administrative
// reset only; nothing in the processor path calls this.
func (s *Store) ClearAll(_ context.Context) error {
	return s.update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{messagesBucket, messageStateIndex, eventsBucket} {
			if err := tx.DeleteBucket(bucket); err != nil {
				return err
			}
			if _, err := tx.CreateBucket(bucket); err != nil {
				return err
			}
		}
		return nil
	})
}
