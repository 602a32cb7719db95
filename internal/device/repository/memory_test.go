package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"fleet-control-plane/internal/device/domain"
)

func newDevice(id string, updated time.Time) *domain.Device {
	return &domain.Device{ID: id, Name: id, IPAddress: "10.0.0.1", Port: 3000, APIKey: "k-" + id, CreatedAt: updated, UpdatedAt: updated}
}

func TestMemoryRepository_ListNewestFirst(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRepository()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		if err := r.Create(ctx, newDevice(id, base.Add(time.Duration(i)*time.Minute))); err != nil {
			t.Fatalf("Create %s: %v", id, err)
		}
	}
	if ok, err := r.UpdateLiveness(ctx, "a", base.Add(time.Hour)); !ok || err != nil {
		t.Fatalf("UpdateLiveness = %v, %v", ok, err)
	}
	list, err := r.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	var got []string
	for _, d := range list {
		got = append(got, d.ID)
	}
	want := []string{"a", "c", "b"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order = %v, want %v", got, want)
		}
	}
	if !list[0].IsActive || list[0].LastSeen == nil {
		t.Errorf("liveness not recorded: %+v", list[0])
	}
}

func TestMemoryRepository_SingleMain(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRepository()
	m1 := newDevice("m1", time.Now())
	m1.IsMain = true
	if err := r.Create(ctx, m1); err != nil {
		t.Fatalf("Create main: %v", err)
	}
	m2 := newDevice("m2", time.Now())
	m2.IsMain = true
	if err := r.Create(ctx, m2); !errors.Is(err, ErrMainExists) {
		t.Errorf("second main err = %v, want ErrMainExists", err)
	}
	got, _ := r.GetMain(ctx)
	if got == nil || got.ID != "m1" {
		t.Errorf("GetMain = %+v", got)
	}
}

func TestMemoryRepository_UnknownDevice(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRepository()
	if d, err := r.GetByID(ctx, "missing"); d != nil || err != nil {
		t.Errorf("GetByID = %+v, %v", d, err)
	}
	if ok, err := r.UpdateLiveness(ctx, "missing", time.Now()); ok || err != nil {
		t.Errorf("UpdateLiveness = %v, %v", ok, err)
	}
}

func TestMemoryRepository_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRepository()
	_ = r.Create(ctx, newDevice("d1", time.Now()))
	d, _ := r.GetByID(ctx, "d1")
	d.APIKey = "tampered"
	again, _ := r.GetByID(ctx, "d1")
	if again.APIKey != "k-d1" {
		t.Errorf("stored device mutated through returned copy")
	}
}
