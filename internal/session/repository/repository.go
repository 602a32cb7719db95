package repository

import (
	"context"

	"fleet-control-plane/internal/session/domain"
)

// Repository defines persistence for session records keyed by token hash.
type Repository interface {
	Create(ctx context.Context, s *domain.Session) error
	// GetByTokenHash returns (nil, nil) when no record exists.
	GetByTokenHash(ctx context.Context, tokenHash string) (*domain.Session, error)
	// Delete removes the record and reports whether one existed.
	Delete(ctx context.Context, tokenHash string) (bool, error)
	// DeleteExpired removes records whose expiry is at or before now and returns how many were removed.
	DeleteExpired(ctx context.Context) (int64, error)
}
