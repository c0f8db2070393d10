// Package escrow is the source-chain client: it finds and decodes
// CrossChainRequest logs emitted by the escrow contract and submits the
// signed settlement callback that releases the locked funds.
package escrow

import (
	"math/big"
	"unicode/utf8"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	gethTypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
)

// RequestEventSignature is topic 0 of every CrossChainRequest log.
var RequestEventSignature = crypto.Keccak256Hash(
	[]byte("CrossChainRequest(bytes32,uint64,address,uint256,bytes,uint256)"),
)

var (
	addressType = mustNewType("address")
	uint256Type = mustNewType("uint256")
	uint64Type  = mustNewType("uint64")
	bytesType   = mustNewType("bytes")

	// Body of the event: the non-indexed fields in declaration order.
	requestBodyArguments = abi.Arguments{
		{Name: "sender", Type: addressType},
		{Name: "amount", Type: uint256Type},
		{Name: "payload", Type: bytesType},
		{Name: "deadline", Type: uint256Type},
	}

	settleArguments = abi.Arguments{
		{Name: "nonce", Type: uint64Type},
		{Name: "result", Type: bytesType},
		{Name: "signature", Type: bytesType},
	}

	settleSelector = crypto.Keccak256([]byte("settle(uint64,bytes,bytes)"))[:4]
)

func mustNewType(t string) abi.Type {
	typ, err := abi.NewType(t, "", nil)
	if err != nil {
		panic(err)
	}
	return typ
}

// Request is a decoded CrossChainRequest event.
type Request struct {
	TraceID     common.Hash
	Nonce       uint64
	Sender      common.Address
	Amount      *big.Int
	Payload     []byte
	Deadline    *big.Int
	BlockNumber uint64
	TxHash      common.Hash
}

// UnpackRequestLog decodes a raw escrow contract log. Topic 1 carries the
// trace id, topic 2 the nonce left-padded to 32 bytes; the body is standard
// ABI encoding of (address, uint256, bytes, uint256).
func UnpackRequestLog(lg gethTypes.Log) (*Request, error) {
	if len(lg.Topics) < 3 {
		return nil, errors.Errorf("log carries %d topics, want 3", len(lg.Topics))
	}
	if lg.Topics[0] != RequestEventSignature {
		return nil, errors.Errorf("unexpected event signature %#x", lg.Topics[0])
	}
	vals, err := requestBodyArguments.Unpack(lg.Data)
	if err != nil {
		return nil, errors.Wrap(err, "could not unpack log body")
	}
	sender, ok := vals[0].(common.Address)
	if !ok {
		return nil, errors.New("malformed sender field")
	}
	amount, ok := vals[1].(*big.Int)
	if !ok {
		return nil, errors.New("malformed amount field")
	}
	payload, ok := vals[2].([]byte)
	if !ok {
		return nil, errors.New("malformed payload field")
	}
	deadline, ok := vals[3].(*big.Int)
	if !ok {
		return nil, errors.New("malformed deadline field")
	}
	return &Request{
		TraceID:     lg.Topics[1],
		Nonce:       new(big.Int).SetBytes(lg.Topics[2].Bytes()).Uint64(),
		Sender:      sender,
		Amount:      amount,
		Payload:     payload,
		Deadline:    deadline,
		BlockNumber: lg.BlockNumber,
		TxHash:      lg.TxHash,
	}, nil
}

// PackRequestLogData ABI-encodes the event body. Used by tests and
// fixtures; the contract performs the same encoding on chain.
func PackRequestLogData(sender common.Address, amount *big.Int, payload []byte, deadline *big.Int) ([]byte, error) {
	return requestBodyArguments.Pack(sender, amount, payload, deadline)
}

// PackSettleCall builds calldata for settle(uint64,bytes,bytes).
func PackSettleCall(nonce uint64, result, signature []byte) ([]byte, error) {
	encoded, err := settleArguments.Pack(nonce, result, signature)
	if err != nil {
		return nil, errors.Wrap(err, "could not pack settle arguments")
	}
	return append(append([]byte{}, settleSelector...), encoded...), nil
}

// descriptionHeaderLen is the payload prefix before the description bytes:
// a 16-byte trace fragment plus a 2-byte big-endian length.
const descriptionHeaderLen = 18

// ExtractDescription pulls the optional human-readable description out of a
// request payload. Returns "" when the payload is too short, the declared
// length overruns the payload, or the bytes are not valid UTF-8.
func ExtractDescription(payload []byte) string {
	if len(payload) < descriptionHeaderLen {
		return ""
	}
	descLen := int(payload[16])<<8 | int(payload[17])
	if descLen == 0 || len(payload) < descriptionHeaderLen+descLen {
		return ""
	}
	desc := payload[descriptionHeaderLen : descriptionHeaderLen+descLen]
	if !utf8.Valid(desc) {
		return ""
	}
	return string(desc)
}
