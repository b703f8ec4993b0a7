package crypto

import (
	"encoding/hex"
	"testing"

	"github.com/ethereum/go-ethereum/accounts"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func personalSign(t *testing.T, message string) (address, sigHex string) {
	t.Helper()
	key, err := ethcrypto.GenerateKey()
	require.NoError(t, err)

	sig, err := ethcrypto.Sign(accounts.TextHash([]byte(message)), key)
	require.NoError(t, err)
	sig[64] += 27

	return ethcrypto.PubkeyToAddress(key.PublicKey).Hex(), "0x" + hex.EncodeToString(sig)
}

func TestWalletVerifier_Valid(t *testing.T) {
	msg := SignedMessage("bet", "0xABC", "25")
	addr, sig := personalSign(t, msg)

	assert.NoError(t, NewWalletVerifier().Verify(addr, msg, sig))
}

func TestWalletVerifier_WrongMessage(t *testing.T) {
	addr, sig := personalSign(t, "ledgerd:bet:0xabc:25")

	err := NewWalletVerifier().Verify(addr, "ledgerd:bet:0xabc:2500", sig)
	assert.ErrorIs(t, err, ErrSignatureMismatch)
}

func TestWalletVerifier_Malformed(t *testing.T) {
	v := NewWalletVerifier()
	assert.Error(t, v.Verify("not-an-address", "m", "0x00"))
	assert.Error(t, v.Verify("0x0000000000000000000000000000000000000001", "m", "zz"))
	assert.Error(t, v.Verify("0x0000000000000000000000000000000000000001", "m", "0x0102"))
}

func TestSignedMessage(t *testing.T) {
	assert.Equal(t, "ledgerd:bid:0xabc:1500", SignedMessage("bid", "0xABC", "1500"))
}
