// Package types defines the data model shared by the relayer's stores,
// processor, and event bus: the per-request Message row, its lifecycle
// state enum, and the append-only lifecycle Event record.
package types

// MessageState is the lifecycle state of a cross-chain message. States are
// stored as their lowercase string form so rows stay readable in the
// database file.
type MessageState string

// Lifecycle states, in forward order. Settled, Failed and RolledBack are
// terminal: a message in one of these states is never transitioned again.
const (
	StateObserved   MessageState = "observed"
	StatePersisted  MessageState = "persisted"
	StateVerified   MessageState = "verified"
	StateSentToDest MessageState = "sent_to_dest"
	StateExecuted   MessageState = "executed"
	StateSettled    MessageState = "settled"
	StateFailed     MessageState = "failed"
	StateRolledBack MessageState = "rolled_back"
)

// Terminal returns true for states that admit no further transitions.
func (s MessageState) Terminal() bool {
	return s == StateSettled || s == StateFailed || s == StateRolledBack
}

// String implements fmt.Stringer.
func (s MessageState) String() string {
	return string(s)
}

// Message is the durable row for one cross-chain request, keyed by nonce.
//
// Amount is kept as a decimal string so values above 64 bits survive the
// round trip; Payload and TraceID are hex-encoded at rest. Artifact fields
// (Result, DestSignature, SourceSettleTx, ProofJSON) start empty and are
// filled as the state machine advances.
type Message struct {
	Nonce          uint64       `json:"nonce"`
	TraceID        string       `json:"trace_id"`
	Sender         string       `json:"sender"`
	Amount         string       `json:"amount"`
	Payload        string       `json:"payload"`
	Deadline       int64        `json:"deadline"`
	Description    string       `json:"description,omitempty"`
	BlockNumber    uint64       `json:"block_number"`
	State          MessageState `json:"state"`
	Result         string       `json:"result,omitempty"`
	DestSignature  string       `json:"dest_signature,omitempty"`
	SourceSettleTx string       `json:"source_settle_tx,omitempty"`
	ProofJSON      string       `json:"proof_json,omitempty"`
	RetryCount     int32        `json:"retry_count"`
	ErrorMessage   string       `json:"error_message,omitempty"`
	CreatedAt      string       `json:"created_at"`
	UpdatedAt      string       `json:"updated_at"`
}

// StateUpdate carries the optional artifact fields of an update_state call.
// A nil pointer leaves the stored value untouched, mirroring COALESCE
// semantics in a relational store.
type StateUpdate struct {
	Result         *string
	DestSignature  *string
	SourceSettleTx *string
	ErrorMessage   *string
}

// StoreMetrics is the aggregate returned by the message store's metrics
// operation. Failed counts both failed and rolled-back rows; Pending counts
// every non-terminal row.
type StoreMetrics struct {
	Total        int64
	Settled      int64
	Failed       int64
	Pending      int64
	TotalRetries int64
}

// StrPtr returns a pointer to s, for building StateUpdate values inline.
func StrPtr(s string) *string {
	return &s
}
