package repository

import (
	"context"
	"strings"
	"sync"
	"time"

	"fleet-control-plane/internal/user/domain"
)

// MemoryRepository is an in-process Repository used when no DATABASE_URL is configured.
type MemoryRepository struct {
	mu     sync.RWMutex
	byID   map[string]*domain.User
	byAddr map[string]string // lowercased address -> id
}

// NewMemoryRepository returns an empty in-memory user repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		byID:   make(map[string]*domain.User),
		byAddr: make(map[string]string),
	}
}

func (r *MemoryRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.byID[id]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

func (r *MemoryRepository) GetByAddress(ctx context.Context, address string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byAddr[strings.ToLower(address)]
	if !ok {
		return nil, nil
	}
	cp := *r.byID[id]
	return &cp, nil
}

func (r *MemoryRepository) Create(ctx context.Context, u *domain.User) error {
	if err := u.Validate(); err != nil {
		return err
	}
	key := strings.ToLower(u.Address)
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byAddr[key]; exists {
		return ErrDuplicateAddress
	}
	cp := *u
	r.byID[u.ID] = &cp
	r.byAddr[key] = u.ID
	return nil
}

func (r *MemoryRepository) SetAdmin(ctx context.Context, id string, isAdmin bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.byID[id]; ok {
		u.IsAdmin = isAdmin
		u.UpdatedAt = time.Now().UTC()
	}
	return nil
}
