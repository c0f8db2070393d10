package escrow

import (
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/omnichain/relayer/testing/assert"
	"github.com/omnichain/relayer/testing/require"
)

func TestPackResult_Layout(t *testing.T) {
	packed := PackResult(0x0102030405060708)
	require.Equal(t, 32, len(packed))
	for i := 0; i < 24; i++ {
		assert.Equal(t, byte(0), packed[i])
	}
	assert.Equal(t, byte(0x01), packed[24])
	assert.Equal(t, byte(0x08), packed[31])
}

func TestSignSettlement_RecoversSigner(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	result := PackResult(2000)

	sig, err := SignSettlement(key, 7, result)
	require.NoError(t, err)
	require.Equal(t, crypto.SignatureLength, len(sig))
	// Recovery id follows the 27/28 wire convention.
	assert.Equal(t, true, sig[64] == 27 || sig[64] == 28)

	signer, err := SettlementSigner(7, result, sig)
	require.NoError(t, err)
	assert.Equal(t, crypto.PubkeyToAddress(key.PublicKey), signer)
}

func TestSettlementSigner_TamperedResult(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	sig, err := SignSettlement(key, 7, PackResult(2000))
	require.NoError(t, err)

	signer, err := SettlementSigner(7, PackResult(2001), sig)
	if err == nil {
		assert.NotEqual(t, crypto.PubkeyToAddress(key.PublicKey), signer)
	}
}

func TestSettlementSigner_WrongLength(t *testing.T) {
	_, err := SettlementSigner(7, PackResult(1), []byte{0x01})
	assert.ErrorContains(t, "wrong signature length", err)
}
