package service

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"fleet-control-plane/internal/session/domain"
	sessionrepo "fleet-control-plane/internal/session/repository"
)

type countingDeleter struct {
	inner *sessionrepo.MemoryRepository
	calls atomic.Int32
}

func (c *countingDeleter) DeleteExpired(ctx context.Context) (int64, error) {
	c.calls.Add(1)
	return c.inner.DeleteExpired(ctx)
}

func TestPurgeExpired(t *testing.T) {
	ctx := context.Background()
	repo := sessionrepo.NewMemoryRepository()
	now := time.Now().UTC()
	if err := repo.Create(ctx, &domain.Session{TokenHash: "old", UserID: "u1", ExpiresAt: now.Add(-time.Minute)}); err != nil {
		t.Fatal(err)
	}
	if err := repo.Create(ctx, &domain.Session{TokenHash: "live", UserID: "u1", ExpiresAt: now.Add(time.Hour)}); err != nil {
		t.Fatal(err)
	}
	d := &countingDeleter{inner: repo}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		PurgeExpired(runCtx, d, time.Hour)
		close(done)
	}()
	deadline := time.After(2 * time.Second)
	for d.calls.Load() < 1 {
		select {
		case <-deadline:
			t.Fatal("purge did not run")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	<-done

	if s, _ := repo.GetByTokenHash(ctx, "old"); s != nil {
		t.Error("expired session should be purged")
	}
	if s, _ := repo.GetByTokenHash(ctx, "live"); s == nil {
		t.Error("live session should be kept")
	}
}
