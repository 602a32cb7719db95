package security

import (
	"encoding/hex"
	"errors"
	"strconv"
	"strings"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"golang.org/x/crypto/sha3"
)

// ErrSignatureInvalid is returned when a wallet signature does not recover to the claimed address.
var ErrSignatureInvalid = errors.New("signature invalid")

// WalletVerifier checks that message was signed by the wallet at address.
type WalletVerifier interface {
	Verify(address, message, signature string) error
}

// PersonalSignVerifier verifies EIP-191 personal_sign signatures (secp256k1, 65-byte r||s||v).
type PersonalSignVerifier struct{}

// Verify recovers the signer of message from signature and compares it with address.
// Returns ErrSignatureInvalid on any malformed input or mismatch.
func (PersonalSignVerifier) Verify(address, message, signature string) error {
	want, err := decodeHex(address)
	if err != nil || len(want) != 20 {
		return ErrSignatureInvalid
	}
	sig, err := decodeHex(signature)
	if err != nil || len(sig) != 65 {
		return ErrSignatureInvalid
	}
	v := sig[64]
	if v >= 27 {
		v -= 27
	}
	if v > 1 {
		return ErrSignatureInvalid
	}
	// decred compact format: recovery byte first, uncompressed key.
	compact := make([]byte, 65)
	compact[0] = 27 + v
	copy(compact[1:], sig[:64])

	pub, _, err := ecdsa.RecoverCompact(compact, PersonalMessageHash(message))
	if err != nil {
		return ErrSignatureInvalid
	}
	if !strings.EqualFold(AddressFromPublicKey(pub), "0x"+hex.EncodeToString(want)) {
		return ErrSignatureInvalid
	}
	return nil
}

// PersonalMessageHash returns keccak256("\x19Ethereum Signed Message:\n" + len(message) + message).
func PersonalMessageHash(message string) []byte {
	prefix := "\x19Ethereum Signed Message:\n" + strconv.Itoa(len(message))
	return keccak256([]byte(prefix), []byte(message))
}

// AddressFromPublicKey returns the lowercase 0x-prefixed wallet address of pub.
func AddressFromPublicKey(pub *secp256k1.PublicKey) string {
	raw := pub.SerializeUncompressed()
	h := keccak256(raw[1:])
	return "0x" + hex.EncodeToString(h[12:])
}

func keccak256(parts ...[]byte) []byte {
	h := sha3.NewLegacyKeccak256()
	for _, p := range parts {
		h.Write(p)
	}
	return h.Sum(nil)
}

func decodeHex(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	return hex.DecodeString(s)
}
