// Package challenge issues one-time login nonces that a wallet must sign, so a captured
// signature cannot be replayed for a new session.
package challenge

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"
)

// Challenge is a nonce issued to an address together with the message the wallet should sign.
type Challenge struct {
	Address   string
	Nonce     string
	Message   string
	ExpiresAt time.Time
}

// Store issues and consumes login challenges.
type Store interface {
	// Issue creates a new challenge for address, replacing any outstanding one.
	Issue(ctx context.Context, address string) (Challenge, error)
	// Consume returns true and forgets the challenge if nonce is the live nonce for address.
	Consume(ctx context.Context, address, nonce string) bool
}

type entry struct {
	nonce     string
	expiresAt time.Time
}

// MemoryStore is an in-memory Store. Challenges live for ttl and are single use.
type MemoryStore struct {
	mu      sync.Mutex
	m       map[string]entry
	ttl     time.Duration
	appName string
	nowF    func() time.Time
}

// NewMemoryStore returns a new in-memory challenge store. appName appears in the signed message.
func NewMemoryStore(ttl time.Duration, appName string) *MemoryStore {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &MemoryStore{
		m:       make(map[string]entry),
		ttl:     ttl,
		appName: appName,
		nowF:    func() time.Time { return time.Now().UTC() },
	}
}

// Issue creates a challenge for address. Expired challenges of other addresses are swept here.
func (s *MemoryStore) Issue(ctx context.Context, address string) (Challenge, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return Challenge{}, fmt.Errorf("challenge: address is required")
	}
	nonce, err := newNonce()
	if err != nil {
		return Challenge{}, err
	}
	now := s.nowF()
	expiresAt := now.Add(s.ttl)

	s.mu.Lock()
	for k, e := range s.m {
		if !e.expiresAt.After(now) {
			delete(s.m, k)
		}
	}
	s.m[key(address)] = entry{nonce: nonce, expiresAt: expiresAt}
	s.mu.Unlock()

	return Challenge{
		Address:   address,
		Nonce:     nonce,
		Message:   Message(s.appName, address, nonce, now),
		ExpiresAt: expiresAt,
	}, nil
}

// Consume checks nonce against the live challenge for address and deletes it on success.
func (s *MemoryStore) Consume(ctx context.Context, address, nonce string) bool {
	if nonce == "" {
		return false
	}
	k := key(address)
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.m[k]
	if !ok {
		return false
	}
	if !e.expiresAt.After(s.nowF()) {
		delete(s.m, k)
		return false
	}
	if e.nonce != nonce {
		return false
	}
	delete(s.m, k)
	return true
}

// Message renders the text a wallet signs for a challenge.
func Message(appName, address, nonce string, issuedAt time.Time) string {
	return fmt.Sprintf("Sign in to %s\nAddress: %s\nNonce: %s\nIssued At: %s",
		appName, address, nonce, issuedAt.UTC().Format(time.RFC3339))
}

func key(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}

func newNonce() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
