package domain

import (
	"errors"
	"strings"
	"time"
)

// User is a wallet holder known to the control plane. Created on first successful login.
type User struct {
	ID        string
	Address   string // wallet address as presented at first login
	IsAdmin   bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Validate validates the user for persistence. Returns an error describing the first validation failure.
func (u *User) Validate() error {
	if u.ID == "" {
		return errors.New("id is required")
	}
	if strings.TrimSpace(u.Address) == "" {
		return errors.New("address is required")
	}
	return nil
}
