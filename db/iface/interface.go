// Package iface defines the database interface implemented by db/kv. Using
// an interface allows the processor and monitoring surfaces to be tested
// against the real store or lightweight fakes interchangeably.
package iface

import (
	"context"

	"github.com/omnichain/relayer/relaying/types"
)

// MessageStore is the durable per-message row store. The processor is the
// only writer of state transitions; readers may be concurrent.
type MessageStore interface {
	// SaveMessageIfAbsent creates the message in state observed. If a row
	// for the nonce already exists it does nothing (idempotent ingestion).
	SaveMessageIfAbsent(ctx context.Context, msg *types.Message) error
	// UpdateMessageState writes the new state plus any non-nil artifact
	// fields from upd; nil fields leave stored values untouched. Fails with
	// ErrTerminalState if the stored row is already terminal.
	UpdateMessageState(ctx context.Context, nonce uint64, state types.MessageState, upd *types.StateUpdate) error
	SaveProof(ctx context.Context, nonce uint64, proofJSON string) error
	IncrementRetry(ctx context.Context, nonce uint64) error
	// MessagesByState returns all rows in the given state, nonce ascending.
	MessagesByState(ctx context.Context, state types.MessageState) ([]*types.Message, error)
	Message(ctx context.Context, nonce uint64) (*types.Message, error)
	HasMessage(ctx context.Context, nonce uint64) (bool, error)
	Metrics(ctx context.Context) (*types.StoreMetrics, error)
}

// EventStore is the append-only lifecycle journal. Events are never updated
// or deleted outside of ClearAll.
type EventStore interface {
	SaveEvent(ctx context.Context, ev *types.Event) error
	// EventsByNonce returns every event for the nonce in insertion order.
	EventsByNonce(ctx context.Context, nonce uint64) ([]*types.Event, error)
}

// Database is the full store surface owned by the node and shared with the
// processor and monitoring services.
type Database interface {
	MessageStore
	EventStore
	// ClearAll deletes every message and event (administrative reset).
	ClearAll(ctx context.Context) error
	Close() error
	DatabasePath() string
	ClearDB() error
}
