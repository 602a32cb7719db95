package repository

import (
	"context"
	"errors"
	"sync"
	"time"

	"fleet-control-plane/internal/session/domain"
)

// MemoryRepository is an in-process Repository used when no DATABASE_URL is configured.
type MemoryRepository struct {
	mu   sync.Mutex
	m    map[string]*domain.Session
	nowF func() time.Time
}

// NewMemoryRepository returns an empty in-memory session repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{m: make(map[string]*domain.Session), nowF: time.Now}
}

func (r *MemoryRepository) Create(ctx context.Context, s *domain.Session) error {
	if s.TokenHash == "" || s.UserID == "" {
		return errors.New("session: token hash and user id are required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *s
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = r.nowF().UTC()
	}
	r.m[s.TokenHash] = &cp
	return nil
}

func (r *MemoryRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.m[tokenHash]
	if !ok {
		return nil, nil
	}
	cp := *s
	return &cp, nil
}

func (r *MemoryRepository) Delete(ctx context.Context, tokenHash string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.m[tokenHash]
	delete(r.m, tokenHash)
	return ok, nil
}

func (r *MemoryRepository) DeleteExpired(ctx context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.nowF()
	var n int64
	for k, s := range r.m {
		if s.IsExpired(now) {
			delete(r.m, k)
			n++
		}
	}
	return n, nil
}
