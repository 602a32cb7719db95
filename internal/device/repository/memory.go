package repository

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"fleet-control-plane/internal/device/domain"
)

// MemoryRepository is an in-memory Repository used when no database is configured and in tests.
// Returned devices are copies.
type MemoryRepository struct {
	mu      sync.RWMutex
	devices map[string]*domain.Device
}

// NewMemoryRepository returns an empty in-memory device repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{devices: make(map[string]*domain.Device)}
}

func (r *MemoryRepository) List(ctx context.Context) ([]*domain.Device, error) {
	r.mu.RLock()
	out := make([]*domain.Device, 0, len(r.devices))
	for _, d := range r.devices {
		out = append(out, clone(d))
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.After(out[j].UpdatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r *MemoryRepository) GetByID(ctx context.Context, id string) (*domain.Device, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.devices[id]
	if !ok {
		return nil, nil
	}
	return clone(d), nil
}

func (r *MemoryRepository) GetMain(ctx context.Context) (*domain.Device, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, d := range r.devices {
		if d.IsMain {
			return clone(d), nil
		}
	}
	return nil, nil
}

func (r *MemoryRepository) Create(ctx context.Context, d *domain.Device) error {
	if err := d.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.devices[d.ID]; ok {
		return errors.New("device: duplicate id")
	}
	if d.IsMain {
		for _, existing := range r.devices {
			if existing.IsMain {
				return ErrMainExists
			}
		}
	}
	r.devices[d.ID] = clone(d)
	return nil
}

func (r *MemoryRepository) UpdateLiveness(ctx context.Context, id string, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.devices[id]
	if !ok {
		return false, nil
	}
	seen := at
	d.LastSeen = &seen
	d.IsActive = true
	d.UpdatedAt = at
	return true, nil
}

func clone(d *domain.Device) *domain.Device {
	c := *d
	if d.LastSeen != nil {
		t := *d.LastSeen
		c.LastSeen = &t
	}
	return &c
}
