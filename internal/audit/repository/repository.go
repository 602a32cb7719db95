package repository

import (
	"context"

	"fleet-control-plane/internal/audit/domain"
)

// Repository defines persistence for audit logs.
type Repository interface {
	Create(ctx context.Context, a *domain.AuditLog) error
	// List returns the most recent entries first.
	List(ctx context.Context, limit, offset int32) ([]*domain.AuditLog, error)
}
