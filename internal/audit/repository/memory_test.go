package repository

import (
	"context"
	"fmt"
	"testing"

	"fleet-control-plane/internal/audit/domain"
)

func TestMemoryRepository_ListNewestFirst(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	for i := 0; i < 5; i++ {
		_ = repo.Create(ctx, &domain.AuditLog{ID: fmt.Sprintf("a%d", i)})
	}

	got, err := repo.List(ctx, 2, 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 2 || got[0].ID != "a4" || got[1].ID != "a3" {
		t.Errorf("List(2,0) = %v", ids(got))
	}
	got, _ = repo.List(ctx, 10, 3)
	if len(got) != 2 || got[0].ID != "a1" || got[1].ID != "a0" {
		t.Errorf("List(10,3) = %v", ids(got))
	}
}

func ids(list []*domain.AuditLog) []string {
	out := make([]string, len(list))
	for i, a := range list {
		out[i] = a.ID
	}
	return out
}
