package repository

import (
	"context"
	"errors"

	"fleet-control-plane/internal/user/domain"
)

// ErrDuplicateAddress is returned by Create when a user with the same address (case-insensitive) exists.
var ErrDuplicateAddress = errors.New("user: address already registered")

// Repository defines persistence for users.
type Repository interface {
	GetByID(ctx context.Context, id string) (*domain.User, error)
	// GetByAddress matches case-insensitively. Returns (nil, nil) when not found.
	GetByAddress(ctx context.Context, address string) (*domain.User, error)
	Create(ctx context.Context, u *domain.User) error
	SetAdmin(ctx context.Context, id string, isAdmin bool) error
}
