package crypto

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// ErrSignatureMismatch is returned when a signature does not recover to the
// claimed wallet address.
var ErrSignatureMismatch = errors.New("crypto: signature does not match wallet")

// WalletVerifier checks EIP-191 personal_sign signatures.
type WalletVerifier struct{}

// NewWalletVerifier creates a WalletVerifier.
func NewWalletVerifier() *WalletVerifier {
	return &WalletVerifier{}
}

// Verify recovers the signer of message from the hex-encoded 65-byte
// signature (r || s || v) and compares it with address.
func (v *WalletVerifier) Verify(address, message, signatureHex string) error {
	if !common.IsHexAddress(address) {
		return fmt.Errorf("crypto/wallet: invalid address %q", address)
	}
	sig, err := hex.DecodeString(strings.TrimPrefix(signatureHex, "0x"))
	if err != nil {
		return fmt.Errorf("crypto/wallet: decode signature: %w", err)
	}
	if len(sig) != ethcrypto.SignatureLength {
		return fmt.Errorf("crypto/wallet: signature must be %d bytes, got %d", ethcrypto.SignatureLength, len(sig))
	}

	// Wallets emit v in {27,28}; SigToPub expects {0,1}.
	if sig[64] >= 27 {
		sig[64] -= 27
	}

	pub, err := ethcrypto.SigToPub(accounts.TextHash([]byte(message)), sig)
	if err != nil {
		return fmt.Errorf("crypto/wallet: recover public key: %w", err)
	}
	if ethcrypto.PubkeyToAddress(*pub) != common.HexToAddress(address) {
		return ErrSignatureMismatch
	}
	return nil
}

// SignedMessage is the text a wallet signs to authorize action on the
// ledger, e.g. "ledgerd:bet:0xabc...:25".
func SignedMessage(action, wallet, amount string) string {
	return fmt.Sprintf("ledgerd:%s:%s:%s", action, strings.ToLower(wallet), amount)
}
