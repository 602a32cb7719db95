package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"fleet-control-plane/internal/allowlist"
	"fleet-control-plane/internal/audit/domain"
	auditrepo "fleet-control-plane/internal/audit/repository"
	"fleet-control-plane/internal/platform/rbac"
	"fleet-control-plane/internal/policy/engine"
	"fleet-control-plane/internal/server/middleware"
	sessiondomain "fleet-control-plane/internal/session/domain"
	sessionservice "fleet-control-plane/internal/session/service"
)

func newHandler(t *testing.T, n int) *Handler {
	t.Helper()
	authz, err := engine.NewOPAAuthorizer(context.Background(), "")
	if err != nil {
		t.Fatalf("NewOPAAuthorizer: %v", err)
	}
	repo := auditrepo.NewMemoryRepository()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		if err := repo.Create(context.Background(), &domain.AuditLog{
			ID:        fmt.Sprintf("a%d", i),
			Actor:     "0xadmin",
			Action:    "device_create",
			Resource:  "device",
			IP:        "10.0.0.1",
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}); err != nil {
			t.Fatal(err)
		}
	}
	return NewHandler(repo, rbac.NewGuard(authz, allowlist.Parse("0xadmin,0xuser")))
}

func get(h *Handler, target string, p *sessiondomain.Principal) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	ctx := req.Context()
	if p != nil {
		ctx = middleware.WithPrincipal(ctx, *p)
	} else {
		ctx = middleware.WithAuthError(ctx, sessionservice.ErrTokenMissing)
	}
	rec := httptest.NewRecorder()
	h.List(rec, req.WithContext(ctx))
	return rec
}

func TestList(t *testing.T) {
	h := newHandler(t, 5)
	admin := &sessiondomain.Principal{Address: "0xadmin", UserID: "u1", IsAdmin: true, Allowed: true}

	rec := get(h, "/api/audit?limit=2&offset=1", admin)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	var out []Entry
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out) != 2 || out[0].ID != "a3" || out[1].ID != "a2" {
		t.Errorf("entries = %+v, want a3, a2", out)
	}
}

func TestList_Access(t *testing.T) {
	h := newHandler(t, 1)
	tests := []struct {
		name string
		p    *sessiondomain.Principal
		want int
	}{
		{"anonymous", nil, http.StatusUnauthorized},
		{"allowed non-admin", &sessiondomain.Principal{Address: "0xuser", UserID: "u2", Allowed: true}, http.StatusForbidden},
		{"device", &sessiondomain.Principal{DeviceID: "d2", Allowed: true}, http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rec := get(h, "/api/audit", tt.p); rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestList_BadPaging(t *testing.T) {
	h := newHandler(t, 1)
	admin := &sessiondomain.Principal{Address: "0xadmin", UserID: "u1", IsAdmin: true, Allowed: true}
	for _, q := range []string{"limit=0", "limit=abc", "offset=-1"} {
		if rec := get(h, "/api/audit?"+q, admin); rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", q, rec.Code)
		}
	}
}
