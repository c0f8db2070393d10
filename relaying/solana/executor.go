// Package solana simulates the destination program. It performs the same
// deterministic computation the on-chain program would (amount doubled,
// saturating at the 64-bit bound) and keeps the per-nonce receipt records
// the program would hold in PDA accounts, including their idempotency
// behavior: executing the same nonce twice observes the existing receipt.
package solana

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("prefix", "solana")

// ReceiptSize is the serialized size of a receipt record.
const ReceiptSize = 1 + 8 + 8 + 20 + 32 + 8

// Receipt is the per-nonce execution record kept by the destination
// program.
type Receipt struct {
	IsInitialized bool
	Nonce         uint64
	Result        uint64
	Sender        [20]byte
	TraceID       [32]byte
	ExecutedAt    int64
}

// MarshalBinary encodes the receipt into its fixed 77-byte layout,
// little-endian like the program's account data.
func (r *Receipt) MarshalBinary() ([]byte, error) {
	out := make([]byte, ReceiptSize)
	if r.IsInitialized {
		out[0] = 1
	}
	binary.LittleEndian.PutUint64(out[1:9], r.Nonce)
	binary.LittleEndian.PutUint64(out[9:17], r.Result)
	copy(out[17:37], r.Sender[:])
	copy(out[37:69], r.TraceID[:])
	binary.LittleEndian.PutUint64(out[69:77], uint64(r.ExecutedAt))
	return out, nil
}

// UnmarshalBinary decodes a 77-byte receipt record.
func (r *Receipt) UnmarshalBinary(data []byte) error {
	if len(data) != ReceiptSize {
		return fmt.Errorf("wrong receipt size: %d", len(data))
	}
	r.IsInitialized = data[0] == 1
	r.Nonce = binary.LittleEndian.Uint64(data[1:9])
	r.Result = binary.LittleEndian.Uint64(data[9:17])
	copy(r.Sender[:], data[17:37])
	copy(r.TraceID[:], data[37:69])
	r.ExecutedAt = int64(binary.LittleEndian.Uint64(data[69:77]))
	return nil
}

// Executor runs the deterministic destination computation and keeps the
// receipt records.
type Executor struct {
	mu       sync.Mutex
	receipts map[uint64]*Receipt
}

// NewExecutor returns an executor with an empty receipt set.
func NewExecutor() *Executor {
	return &Executor{receipts: make(map[uint64]*Receipt)}
}

// Execute runs the destination computation for a request and returns the
// receipt identifier and the result. Idempotent per nonce: a repeat call
// observes the already-initialized receipt and returns the original values
// without recomputing.
func (e *Executor) Execute(_ context.Context, nonce, amount uint64, traceID [32]byte, sender common.Address) (string, uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if r, ok := e.receipts[nonce]; ok && r.IsInitialized {
		return receiptID(nonce, r.TraceID), r.Result, nil
	}

	result := ComputeResult(amount)
	r := &Receipt{
		IsInitialized: true,
		Nonce:         nonce,
		Result:        result,
		TraceID:       traceID,
		ExecutedAt:    time.Now().Unix(),
	}
	copy(r.Sender[:], sender.Bytes())
	e.receipts[nonce] = r

	sig := receiptID(nonce, traceID)
	log.WithFields(logrus.Fields{
		"nonce":  nonce,
		"sig":    sig,
		"result": result,
	}).Info("Destination execution simulated")
	return sig, result, nil
}

// Receipt returns the stored receipt for a nonce, or nil.
func (e *Executor) Receipt(nonce uint64) *Receipt {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.receipts[nonce]
}

// ComputeResult is the destination program's computation: the amount
// doubled, saturating at the 64-bit maximum instead of overflowing.
func ComputeResult(amount uint64) uint64 {
	if amount > math.MaxUint64/2 {
		return math.MaxUint64
	}
	return amount * 2
}

func receiptID(nonce uint64, traceID [32]byte) string {
	return fmt.Sprintf("sim_%d_%s", nonce, hex.EncodeToString(traceID[:8]))
}
