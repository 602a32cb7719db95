package repository

import (
	"context"
	"testing"
	"time"

	"fleet-control-plane/internal/session/domain"
)

func TestMemoryRepository_Lifecycle(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	s := &domain.Session{TokenHash: "h1", UserID: "u1", Address: "0xabc", ExpiresAt: time.Now().Add(time.Hour)}
	if err := repo.Create(ctx, s); err != nil {
		t.Fatalf("Create: %v", err)
	}
	got, err := repo.GetByTokenHash(ctx, "h1")
	if err != nil || got == nil {
		t.Fatalf("GetByTokenHash = %v, %v", got, err)
	}
	if got.CreatedAt.IsZero() {
		t.Error("CreatedAt should be stamped")
	}

	deleted, err := repo.Delete(ctx, "h1")
	if err != nil || !deleted {
		t.Fatalf("Delete = %v, %v; want true, nil", deleted, err)
	}
	deleted, err = repo.Delete(ctx, "h1")
	if err != nil || deleted {
		t.Errorf("second Delete = %v, %v; want false, nil", deleted, err)
	}
	if got, _ := repo.GetByTokenHash(ctx, "h1"); got != nil {
		t.Error("session should be gone after Delete")
	}
}

func TestMemoryRepository_CreateRequiresKeys(t *testing.T) {
	repo := NewMemoryRepository()
	if err := repo.Create(context.Background(), &domain.Session{UserID: "u1"}); err == nil {
		t.Error("Create without token hash should fail")
	}
	if err := repo.Create(context.Background(), &domain.Session{TokenHash: "h"}); err == nil {
		t.Error("Create without user id should fail")
	}
}

func TestMemoryRepository_DeleteExpired(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	repo := NewMemoryRepository()
	repo.nowF = func() time.Time { return now }
	_ = repo.Create(ctx, &domain.Session{TokenHash: "old", UserID: "u1", ExpiresAt: now.Add(-time.Minute)})
	_ = repo.Create(ctx, &domain.Session{TokenHash: "live", UserID: "u1", ExpiresAt: now.Add(time.Minute)})

	n, err := repo.DeleteExpired(ctx)
	if err != nil {
		t.Fatalf("DeleteExpired: %v", err)
	}
	if n != 1 {
		t.Errorf("DeleteExpired removed %d, want 1", n)
	}
	if got, _ := repo.GetByTokenHash(ctx, "live"); got == nil {
		t.Error("live session should survive")
	}
}
