package escrow

import (
	"encoding/binary"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	gethTypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/omnichain/relayer/testing/assert"
	"github.com/omnichain/relayer/testing/require"
)

func requestLogFixture(t *testing.T, nonce uint64, payload []byte) gethTypes.Log {
	sender := common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")
	data, err := PackRequestLogData(sender, big.NewInt(1000), payload, big.NewInt(1700000000))
	require.NoError(t, err)
	return gethTypes.Log{
		Topics: []common.Hash{
			RequestEventSignature,
			common.HexToHash("0x1111111111111111111111111111111111111111111111111111111111111111"),
			common.BigToHash(new(big.Int).SetUint64(nonce)),
		},
		Data:        data,
		BlockNumber: 42,
		TxHash:      common.HexToHash("0x2222222222222222222222222222222222222222222222222222222222222222"),
	}
}

func TestUnpackRequestLog_RoundTrip(t *testing.T) {
	lg := requestLogFixture(t, 7, []byte("payload"))
	req, err := UnpackRequestLog(lg)
	require.NoError(t, err)

	assert.Equal(t, uint64(7), req.Nonce)
	assert.Equal(t, lg.Topics[1], req.TraceID)
	assert.Equal(t, common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"), req.Sender)
	assert.Equal(t, "1000", req.Amount.String())
	assert.DeepEqual(t, []byte("payload"), req.Payload)
	assert.Equal(t, int64(1700000000), req.Deadline.Int64())
	assert.Equal(t, uint64(42), req.BlockNumber)
	assert.Equal(t, lg.TxHash, req.TxHash)
}

func TestUnpackRequestLog_Malformed(t *testing.T) {
	lg := requestLogFixture(t, 7, []byte("payload"))

	short := lg
	short.Topics = lg.Topics[:2]
	_, err := UnpackRequestLog(short)
	assert.ErrorContains(t, "topics", err)

	wrongSig := lg
	wrongSig.Topics = []common.Hash{{}, lg.Topics[1], lg.Topics[2]}
	_, err = UnpackRequestLog(wrongSig)
	assert.ErrorContains(t, "unexpected event signature", err)

	badBody := lg
	badBody.Data = []byte{0x01, 0x02}
	_, err = UnpackRequestLog(badBody)
	assert.ErrorContains(t, "could not unpack log body", err)
}

func TestPackSettleCall_Selector(t *testing.T) {
	calldata, err := PackSettleCall(7, make([]byte, 32), make([]byte, 65))
	require.NoError(t, err)
	assert.DeepEqual(t, settleSelector, calldata[:4])
	// uint64 argument is left-padded into the first word.
	assert.Equal(t, byte(7), calldata[4+31])
}

func descriptionPayload(desc string) []byte {
	payload := make([]byte, descriptionHeaderLen+len(desc))
	binary.BigEndian.PutUint16(payload[16:18], uint16(len(desc)))
	copy(payload[descriptionHeaderLen:], desc)
	return payload
}

func TestExtractDescription(t *testing.T) {
	assert.Equal(t, "hello world", ExtractDescription(descriptionPayload("hello world")))

	// Too short for the header.
	assert.Equal(t, "", ExtractDescription([]byte("short")))

	// Declared length of zero.
	assert.Equal(t, "", ExtractDescription(descriptionPayload("")))

	// Declared length overruns the payload.
	truncated := descriptionPayload("hello world")
	assert.Equal(t, "", ExtractDescription(truncated[:len(truncated)-3]))

	// Invalid UTF-8 bytes.
	invalid := descriptionPayload("ab")
	invalid[descriptionHeaderLen] = 0xff
	invalid[descriptionHeaderLen+1] = 0xfe
	assert.Equal(t, "", ExtractDescription(invalid))
}
