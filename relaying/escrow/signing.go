package escrow

import (
	"crypto/ecdsa"
	"encoding/binary"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
)

// signedMessagePrefix is the standard personal-message prefix for a 32-byte
// digest on the source chain.
const signedMessagePrefix = "\x19Ethereum Signed Message:\n32"

// PackResult encodes a destination result as the 32-byte value the escrow
// contract expects: the low 8 bytes hold the big-endian result, the high
// 24 bytes are zero.
func PackResult(result uint64) []byte {
	out := make([]byte, 32)
	binary.BigEndian.PutUint64(out[24:], result)
	return out
}

// settlementDigest is the prefixed hash the settlement signature covers:
// keccak256(prefix || keccak256(be64(nonce) || result)).
func settlementDigest(nonce uint64, result []byte) []byte {
	nonceBE := make([]byte, 8)
	binary.BigEndian.PutUint64(nonceBE, nonce)
	inner := crypto.Keccak256(nonceBE, result)
	return crypto.Keccak256([]byte(signedMessagePrefix), inner)
}

// SignSettlement produces the 65-byte signature authorizing settle(nonce,
// result) on the escrow contract. The recovery id uses the chain's 27/28
// convention.
func SignSettlement(key *ecdsa.PrivateKey, nonce uint64, result []byte) ([]byte, error) {
	sig, err := crypto.Sign(settlementDigest(nonce, result), key)
	if err != nil {
		return nil, errors.Wrap(err, "could not sign settlement")
	}
	sig[64] += 27
	return sig, nil
}

// SettlementSigner recovers the address that signed a settlement. Mirrors
// the contract-side ecrecover check.
func SettlementSigner(nonce uint64, result, signature []byte) (common.Address, error) {
	if len(signature) != crypto.SignatureLength {
		return common.Address{}, errors.Errorf("wrong signature length: %d", len(signature))
	}
	sig := append([]byte{}, signature...)
	if sig[64] >= 27 {
		sig[64] -= 27
	}
	pub, err := crypto.SigToPub(settlementDigest(nonce, result), sig)
	if err != nil {
		return common.Address{}, errors.Wrap(err, "could not recover settlement signer")
	}
	return crypto.PubkeyToAddress(*pub), nil
}
