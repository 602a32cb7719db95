package security

import (
	"encoding/hex"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
)

// TestWallet is a throwaway secp256k1 key that produces personal_sign signatures.
// For unit tests only.
type TestWallet struct {
	key *secp256k1.PrivateKey
}

// NewTestWallet generates a new random TestWallet.
func NewTestWallet() (*TestWallet, error) {
	key, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return nil, err
	}
	return &TestWallet{key: key}, nil
}

// Address returns the wallet address.
func (w *TestWallet) Address() string {
	return AddressFromPublicKey(w.key.PubKey())
}

// Sign returns a 0x-prefixed r||s||v signature of message with v in {27, 28}.
func (w *TestWallet) Sign(message string) string {
	compact := ecdsa.SignCompact(w.key, PersonalMessageHash(message), false)
	sig := make([]byte, 65)
	copy(sig, compact[1:])
	sig[64] = compact[0]
	return "0x" + hex.EncodeToString(sig)
}
