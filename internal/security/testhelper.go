package security

import "time"

// NewTestTokenProvider returns a TokenProvider backed by a freshly generated ECDSA key.
// For unit tests only.
func NewTestTokenProvider() (*TokenProvider, error) {
	return NewTestTokenProviderWithTTL(time.Hour)
}

// NewTestTokenProviderWithTTL is NewTestTokenProvider with a custom session lifetime.
// A negative ttl yields tokens that are already expired.
func NewTestTokenProviderWithTTL(ttl time.Duration) (*TokenProvider, error) {
	signer, pub, err := GenerateEphemeralKey()
	if err != nil {
		return nil, err
	}
	return NewTokenProvider(signer, pub, "test-issuer", "test-audience", ttl), nil
}
