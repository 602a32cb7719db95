package domain

import "time"

// Session is the persisted record behind an issued session token.
// The token itself is never stored; TokenHash is its SHA-256 hex digest.
type Session struct {
	TokenHash string
	UserID    string
	Address   string
	IsAdmin   bool
	ExpiresAt time.Time
	CreatedAt time.Time
}

// IsExpired reports whether the session is past its expiry at now.
func (s *Session) IsExpired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}
