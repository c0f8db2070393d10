package solana

import (
	"context"
	"math"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/omnichain/relayer/testing/assert"
	"github.com/omnichain/relayer/testing/require"
)

var testTrace = [32]byte{0xde, 0xad, 0xbe, 0xef, 0x01, 0x02, 0x03, 0x04}

func TestComputeResult_Saturates(t *testing.T) {
	assert.Equal(t, uint64(2000), ComputeResult(1000))
	assert.Equal(t, uint64(0), ComputeResult(0))
	assert.Equal(t, uint64(math.MaxUint64-1), ComputeResult(math.MaxUint64/2))
	assert.Equal(t, uint64(math.MaxUint64), ComputeResult(math.MaxUint64/2+1))
	assert.Equal(t, uint64(math.MaxUint64), ComputeResult(math.MaxUint64))
}

func TestExecute_IdempotentPerNonce(t *testing.T) {
	e := NewExecutor()
	ctx := context.Background()
	sender := common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")

	sig, result, err := e.Execute(ctx, 42, 1000, testTrace, sender)
	require.NoError(t, err)
	assert.Equal(t, "sim_42_deadbeef01020304", sig)
	assert.Equal(t, uint64(2000), result)

	// A repeat execution observes the existing receipt, even with a
	// different amount.
	sig2, result2, err := e.Execute(ctx, 42, 9999, testTrace, sender)
	require.NoError(t, err)
	assert.Equal(t, sig, sig2)
	assert.Equal(t, result, result2)

	r := e.Receipt(42)
	require.NotNil(t, r)
	assert.Equal(t, true, r.IsInitialized)
	assert.Equal(t, uint64(42), r.Nonce)
}

func TestReceipt_BinaryRoundTrip(t *testing.T) {
	r := &Receipt{
		IsInitialized: true,
		Nonce:         42,
		Result:        2000,
		TraceID:       testTrace,
		ExecutedAt:    1700000000,
	}
	copy(r.Sender[:], common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266").Bytes())

	enc, err := r.MarshalBinary()
	require.NoError(t, err)
	require.Equal(t, ReceiptSize, len(enc))
	assert.Equal(t, byte(1), enc[0])

	decoded := &Receipt{}
	require.NoError(t, decoded.UnmarshalBinary(enc))
	assert.DeepEqual(t, r, decoded)

	assert.ErrorContains(t, "wrong receipt size", decoded.UnmarshalBinary(enc[:10]))
}
