package kv

import (
	"bytes"
	"context"
	"encoding/json"

	"github.com/omnichain/relayer/relaying/types"
	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"
)

// SaveEvent appends a lifecycle event to the journal. The store performs no
// dedup; the processor guarantees each transition is driven at most once
// per visit.
func (s *Store) SaveEvent(_ context.Context, ev *types.Event) error {
	enc, err := json.Marshal(ev)
	if err != nil {
		return errors.Wrap(err, "failed to encode event")
	}
	return s.update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(eventsBucket)
		seq, err := bucket.NextSequence()
		if err != nil {
			return err
		}
		return bucket.Put(eventKey(ev.Nonce, seq), enc)
	})
}

// EventsByNonce returns every event for the nonce in insertion order.
func (s *Store) EventsByNonce(_ context.Context, nonce uint64) ([]*types.Event, error) {
	var events []*types.Event
	err := s.view(func(tx *bolt.Tx) error {
		c := tx.Bucket(eventsBucket).Cursor()
		prefix := encodeNonce(nonce)
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			ev := &types.Event{}
			if err := json.Unmarshal(v, ev); err != nil {
				return errors.Wrap(err, "failed to unmarshal event encoding")
			}
			events = append(events, ev)
		}
		return nil
	})
	return events, err
}
