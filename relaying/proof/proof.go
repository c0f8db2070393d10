// Package proof builds and verifies the fixed-shape proof bundle that gates
// destination execution. The bundle carries deterministic SHA-256 hashes of
// the observed event plus one secp256k1 signature over them; verification
// is exactly ECDSA public-key recovery of the signer. This is the
// single-validator-signature model, so the security contract is the secrecy
// of the relayer key.
package proof

import (
	"crypto/ecdsa"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
)

// InclusionProofNodes is the fixed number of sibling hashes carried by a
// bundle.
const InclusionProofNodes = 3

// Bundle is the proof record persisted on the message row once built.
// Verified is set by the verifier, never by the producer.
type Bundle struct {
	BlockHeader        string   `json:"block_header"`
	EventRoot          string   `json:"event_root"`
	InclusionProof     []string `json:"inclusion_proof"`
	ValidatorSignature string   `json:"validator_signature"`
	RelayerAddress     string   `json:"relayer_address"`
	Nonce              uint64   `json:"nonce"`
	Verified           bool     `json:"verified"`
}

// Build constructs a bundle for the given request and signs it with the
// relayer key. All hashes are deterministic in the inputs, so rebuilding
// from the same row yields byte-identical header and root values.
func Build(nonce, blockNumber uint64, txHash string, eventData []byte, key *ecdsa.PrivateKey) (*Bundle, error) {
	blockNum := make([]byte, 8)
	binary.LittleEndian.PutUint64(blockNum, blockNumber)
	header := sha256.New()
	header.Write([]byte("block_header:"))
	header.Write(blockNum)
	header.Write([]byte(txHash))
	blockHeader := hex.EncodeToString(header.Sum(nil))

	root := sha256.New()
	root.Write([]byte("event_root:"))
	root.Write(eventData)
	eventRoot := hex.EncodeToString(root.Sum(nil))

	nonceLE := make([]byte, 8)
	binary.LittleEndian.PutUint64(nonceLE, nonce)
	inclusionProof := make([]string, InclusionProofNodes)
	for i := range inclusionProof {
		node := sha256.New()
		node.Write([]byte("proof_node:"))
		node.Write([]byte(strconv.Itoa(i)))
		node.Write(nonceLE)
		node.Write(eventData)
		inclusionProof[i] = hex.EncodeToString(node.Sum(nil))
	}

	sig, err := crypto.Sign(signingMessage(blockHeader, eventRoot, nonce), key)
	if err != nil {
		return nil, errors.Wrap(err, "could not sign proof bundle")
	}
	// Recovery id on the wire follows the source chain's 27/28 convention.
	sig[64] += 27

	return &Bundle{
		BlockHeader:        blockHeader,
		EventRoot:          eventRoot,
		InclusionProof:     inclusionProof,
		ValidatorSignature: hex.EncodeToString(sig),
		RelayerAddress:     crypto.PubkeyToAddress(key.PublicKey).Hex(),
		Nonce:              nonce,
		Verified:           false,
	}, nil
}

// Verify checks the bundle's shape and recovers the signer from the
// validator signature. A nil return means the recovered address matches the
// claimed relayer address; the caller may then persist Verified = true.
func Verify(b *Bundle) error {
	if b.BlockHeader == "" {
		return errors.New("missing block header")
	}
	if b.EventRoot == "" {
		return errors.New("missing event root")
	}
	if len(b.InclusionProof) == 0 {
		return errors.New("missing inclusion proof")
	}
	if b.ValidatorSignature == "" {
		return errors.New("missing validator signature")
	}
	if b.Nonce == 0 {
		return errors.New("invalid nonce in proof bundle")
	}

	sig, err := hex.DecodeString(b.ValidatorSignature)
	if err != nil {
		return errors.Wrap(err, "malformed validator signature")
	}
	if len(sig) != crypto.SignatureLength {
		return errors.Errorf("wrong signature length: %d", len(sig))
	}
	if sig[64] >= 27 {
		sig = append([]byte{}, sig...)
		sig[64] -= 27
	}
	pub, err := crypto.SigToPub(signingMessage(b.BlockHeader, b.EventRoot, b.Nonce), sig)
	if err != nil {
		return errors.Wrap(err, "could not recover signer")
	}
	recovered := crypto.PubkeyToAddress(*pub).Hex()
	if !strings.EqualFold(recovered, b.RelayerAddress) {
		return errors.Errorf("signature verification failed: recovered %s but expected %s", recovered, b.RelayerAddress)
	}
	return nil
}

// signingMessage is keccak256(blockHeader || eventRoot || be64(nonce)) over
// the hex string forms of the hashes.
func signingMessage(blockHeader, eventRoot string, nonce uint64) []byte {
	nonceBE := make([]byte, 8)
	binary.BigEndian.PutUint64(nonceBE, nonce)
	return crypto.Keccak256([]byte(blockHeader), []byte(eventRoot), nonceBE)
}
