package security

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
)

// APIKeyBytes is the number of random bytes in a device API key (64 hex characters).
const APIKeyBytes = 32

// GenerateAPIKey returns a new hex-encoded device API key from crypto/rand.
func GenerateAPIKey() (string, error) {
	b := make([]byte, APIKeyBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// APIKeyEqual compares a presented key with the stored one in constant time.
// Empty keys never match.
func APIKeyEqual(provided, stored string) bool {
	if provided == "" || stored == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(provided), []byte(stored)) == 1
}
