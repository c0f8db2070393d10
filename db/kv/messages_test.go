package kv

import (
	"context"
	"testing"

	"github.com/omnichain/relayer/relaying/types"
	"github.com/omnichain/relayer/testing/assert"
	"github.com/omnichain/relayer/testing/require"
	"github.com/pkg/errors"
)

func testMessage(nonce uint64) *types.Message {
	return &types.Message{
		Nonce:       nonce,
		TraceID:     "0x1111111111111111111111111111111111111111111111111111111111111111",
		Sender:      "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266",
		Amount:      "1000",
		Payload:     "deadbeef",
		Deadline:    1700000000,
		BlockNumber: 42,
	}
}

func TestSaveMessageIfAbsent_Idempotent(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()

	msg := testMessage(1)
	require.NoError(t, db.SaveMessageIfAbsent(ctx, msg))
	require.NoError(t, db.UpdateMessageState(ctx, 1, types.StateVerified, nil))

	// A second delivery of the same log must not reset the row.
	require.NoError(t, db.SaveMessageIfAbsent(ctx, testMessage(1)))
	stored, err := db.Message(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, types.StateVerified, stored.State)
}

func TestSaveMessageIfAbsent_ForcesObservedState(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()

	msg := testMessage(7)
	msg.State = types.StateSettled
	msg.RetryCount = 3
	require.NoError(t, db.SaveMessageIfAbsent(ctx, msg))

	stored, err := db.Message(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, types.StateObserved, stored.State)
	assert.Equal(t, int32(0), stored.RetryCount)
	assert.NotEqual(t, "", stored.CreatedAt)
}

func TestUpdateMessageState_AppliesArtifacts(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()
	require.NoError(t, db.SaveMessageIfAbsent(ctx, testMessage(2)))

	upd := &types.StateUpdate{
		Result:        types.StrPtr("2000"),
		DestSignature: types.StrPtr("sim_2_abc"),
	}
	require.NoError(t, db.UpdateMessageState(ctx, 2, types.StateSentToDest, upd))

	stored, err := db.Message(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, types.StateSentToDest, stored.State)
	assert.Equal(t, "2000", stored.Result)
	assert.Equal(t, "sim_2_abc", stored.DestSignature)

	// A nil update leaves the artifacts intact.
	require.NoError(t, db.UpdateMessageState(ctx, 2, types.StateExecuted, nil))
	stored, err = db.Message(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, "2000", stored.Result)
	assert.Equal(t, "sim_2_abc", stored.DestSignature)
}

func TestUpdateMessageState_TerminalGuard(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()
	require.NoError(t, db.SaveMessageIfAbsent(ctx, testMessage(3)))
	require.NoError(t, db.UpdateMessageState(ctx, 3, types.StateSettled, nil))

	err := db.UpdateMessageState(ctx, 3, types.StateExecuted, nil)
	require.NotNil(t, err)
	assert.Equal(t, true, errors.Is(err, ErrTerminalState))

	stored, err := db.Message(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, types.StateSettled, stored.State)
}

func TestUpdateMessageState_UnknownNonce(t *testing.T) {
	db := setupDB(t)
	err := db.UpdateMessageState(context.Background(), 99, types.StateVerified, nil)
	assert.Equal(t, true, errors.Is(err, ErrNotFound))
}

func TestSaveProof_SetsProofJSON(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()
	require.NoError(t, db.SaveMessageIfAbsent(ctx, testMessage(4)))
	require.NoError(t, db.SaveProof(ctx, 4, `{"nonce":4}`))

	stored, err := db.Message(ctx, 4)
	require.NoError(t, err)
	assert.Equal(t, `{"nonce":4}`, stored.ProofJSON)
}

func TestIncrementRetry(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()
	require.NoError(t, db.SaveMessageIfAbsent(ctx, testMessage(5)))
	require.NoError(t, db.IncrementRetry(ctx, 5))
	require.NoError(t, db.IncrementRetry(ctx, 5))

	stored, err := db.Message(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, int32(2), stored.RetryCount)
}

func TestMessagesByState_OrderedByNonce(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()
	for _, nonce := range []uint64{30, 10, 20} {
		require.NoError(t, db.SaveMessageIfAbsent(ctx, testMessage(nonce)))
	}
	require.NoError(t, db.UpdateMessageState(ctx, 20, types.StateVerified, nil))

	observed, err := db.MessagesByState(ctx, types.StateObserved)
	require.NoError(t, err)
	require.Equal(t, 2, len(observed))
	assert.Equal(t, uint64(10), observed[0].Nonce)
	assert.Equal(t, uint64(30), observed[1].Nonce)

	verified, err := db.MessagesByState(ctx, types.StateVerified)
	require.NoError(t, err)
	require.Equal(t, 1, len(verified))
	assert.Equal(t, uint64(20), verified[0].Nonce)
}

func TestHasMessage(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()
	require.NoError(t, db.SaveMessageIfAbsent(ctx, testMessage(6)))

	exists, err := db.HasMessage(ctx, 6)
	require.NoError(t, err)
	assert.Equal(t, true, exists)

	exists, err = db.HasMessage(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, false, exists)
}

func TestMetrics_Aggregates(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()
	for nonce := uint64(1); nonce <= 4; nonce++ {
		require.NoError(t, db.SaveMessageIfAbsent(ctx, testMessage(nonce)))
	}
	require.NoError(t, db.UpdateMessageState(ctx, 1, types.StateSettled, nil))
	require.NoError(t, db.UpdateMessageState(ctx, 2, types.StateRolledBack, nil))
	require.NoError(t, db.IncrementRetry(ctx, 3))

	m, err := db.Metrics(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(4), m.Total)
	assert.Equal(t, int64(1), m.Settled)
	assert.Equal(t, int64(1), m.Failed)
	assert.Equal(t, int64(2), m.Pending)
	assert.Equal(t, int64(1), m.TotalRetries)
}

func TestClearAll_EmptiesStore(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()
	require.NoError(t, db.SaveMessageIfAbsent(ctx, testMessage(8)))
	require.NoError(t, db.SaveEvent(ctx, types.NewEvent("0xabc", 8, types.ActorRelayer, types.StepObserved, types.StatusSuccess)))

	require.NoError(t, db.ClearAll(ctx))

	m, err := db.Metrics(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), m.Total)
	events, err := db.EventsByNonce(ctx, 8)
	require.NoError(t, err)
	assert.Equal(t, 0, len(events))
	// The store remains usable after the reset.
	require.NoError(t, db.SaveMessageIfAbsent(ctx, testMessage(9)))
}
