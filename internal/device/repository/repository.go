package repository

import (
	"context"
	"errors"
	"time"

	"fleet-control-plane/internal/device/domain"
)

// ErrMainExists is returned by Create when a second main device is inserted.
var ErrMainExists = errors.New("main device already exists")

// Repository defines persistence for devices.
type Repository interface {
	// List returns all devices, most recently updated first.
	List(ctx context.Context) ([]*domain.Device, error)
	GetByID(ctx context.Context, id string) (*domain.Device, error)
	GetMain(ctx context.Context) (*domain.Device, error)
	Create(ctx context.Context, d *domain.Device) error
	// UpdateLiveness sets last_seen and updated_at to at and marks the device active in a single
	// statement. Returns false if no device has the id.
	UpdateLiveness(ctx context.Context, id string, at time.Time) (bool, error)
}
