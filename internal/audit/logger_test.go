package audit

import (
	"context"
	"errors"
	"testing"

	"fleet-control-plane/internal/audit/domain"
)

// mockAuditRepo implements the audit repository interface for tests.
type mockAuditRepo struct {
	entries   []*domain.AuditLog
	createErr error
}

func (m *mockAuditRepo) Create(ctx context.Context, entry *domain.AuditLog) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.entries = append(m.entries, entry)
	return nil
}

func (m *mockAuditRepo) List(ctx context.Context, limit, offset int32) ([]*domain.AuditLog, error) {
	return m.entries, nil
}

func TestLogger_LogEvent_Success(t *testing.T) {
	repo := &mockAuditRepo{}
	logger := NewLogger(repo, func(context.Context) string { return "192.168.1.1" })

	logger.LogEvent(context.Background(), "0xabc", "create", "device", "d1")

	if len(repo.entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(repo.entries))
	}
	entry := repo.entries[0]
	if entry.Actor != "0xabc" || entry.Action != "create" || entry.Resource != "device" || entry.Metadata != "d1" {
		t.Errorf("entry = %+v", entry)
	}
	if entry.IP != "192.168.1.1" {
		t.Errorf("ip = %q, want %q", entry.IP, "192.168.1.1")
	}
	if entry.ID == "" || entry.CreatedAt.IsZero() {
		t.Error("id and created_at should be set")
	}
}

func TestLogger_LogEvent_Defaults(t *testing.T) {
	repo := &mockAuditRepo{}
	logger := NewLogger(repo, nil)

	logger.LogEvent(context.Background(), "", "login_failure", "session", "")

	entry := repo.entries[0]
	if entry.Actor != SentinelActor {
		t.Errorf("actor = %q, want %q", entry.Actor, SentinelActor)
	}
	if entry.IP != "unknown" {
		t.Errorf("ip = %q, want unknown", entry.IP)
	}
}

func TestLogger_LogEvent_CancelledContextStillWrites(t *testing.T) {
	repo := &mockAuditRepo{}
	logger := NewLogger(repo, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	logger.LogEvent(ctx, "0xabc", "logout", "session", "")
	if len(repo.entries) != 1 {
		t.Error("entry should be written even when the request context is cancelled")
	}
}

func TestLogger_LogEvent_RepoError(t *testing.T) {
	repo := &mockAuditRepo{createErr: errors.New("db down")}
	logger := NewLogger(repo, nil)
	// Should not panic
	logger.LogEvent(context.Background(), "0xabc", "create", "device", "")
}

func TestLogger_NilSafe(t *testing.T) {
	var l *Logger
	l.LogEvent(context.Background(), "a", "b", "c", "")
	NewLogger(nil, nil).LogEvent(context.Background(), "a", "b", "c", "")
}
