package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"

	"fleet-control-plane/internal/allowlist"
	"fleet-control-plane/internal/audit"
	auditrepo "fleet-control-plane/internal/audit/repository"
	devicerepo "fleet-control-plane/internal/device/repository"
	deviceservice "fleet-control-plane/internal/device/service"
	"fleet-control-plane/internal/platform/rbac"
	"fleet-control-plane/internal/policy/engine"
	"fleet-control-plane/internal/server/middleware"
	sessiondomain "fleet-control-plane/internal/session/domain"
	sessionservice "fleet-control-plane/internal/session/service"
)

var (
	admin    = &sessiondomain.Principal{Address: "0xadmin", UserID: "u1", Allowed: true, IsAdmin: true}
	user     = &sessiondomain.Principal{Address: "0xuser", UserID: "u2", Allowed: true}
	outsider = &sessiondomain.Principal{Address: "0xout", UserID: "u3", Allowed: false}
)

type testEnv struct {
	registry  *deviceservice.Registry
	auditRepo *auditrepo.MemoryRepository
	handler   *Handler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	authz, err := engine.NewOPAAuthorizer(context.Background(), "")
	if err != nil {
		t.Fatalf("NewOPAAuthorizer: %v", err)
	}
	reg := deviceservice.NewRegistry(devicerepo.NewMemoryRepository())
	auditRepo := auditrepo.NewMemoryRepository()
	// Public mode: only admins are admin-equivalent.
	h := NewHandler(reg, rbac.NewGuard(authz, allowlist.Parse("")), audit.NewLogger(auditRepo, nil), nil, 2*time.Minute)
	return &testEnv{registry: reg, auditRepo: auditRepo, handler: h}
}

// serve routes one request with p (if non-nil) installed as the request principal.
func (e *testEnv) serve(t *testing.T, method, path string, p *sessiondomain.Principal, body any) *httptest.ResponseRecorder {
	t.Helper()
	r := mux.NewRouter()
	r.HandleFunc("/api/devices/ping", e.handler.Ping).Methods(http.MethodPost)
	protected := r.PathPrefix("/api").Subrouter()
	protected.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			ctx := req.Context()
			if p != nil {
				ctx = middleware.WithPrincipal(ctx, *p)
			} else {
				ctx = middleware.WithAuthError(ctx, sessionservice.ErrTokenMissing)
			}
			next.ServeHTTP(w, req.WithContext(ctx))
		})
	})
	protected.HandleFunc("/devices", e.handler.Create).Methods(http.MethodPost)
	protected.HandleFunc("/devices", e.handler.List).Methods(http.MethodGet)

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(method, path, &buf))
	return rec
}

func errorOf(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var b struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &b); err != nil {
		t.Fatalf("decode error body %q: %v", rec.Body.String(), err)
	}
	return b.Error
}

func TestCreate(t *testing.T) {
	env := newTestEnv(t)
	rec := env.serve(t, http.MethodPost, "/api/devices", admin, map[string]string{"name": "node2", "ipAddress": "10.0.0.5"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
	var out createResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	d := out.Device
	if len(d.APIKey) != 64 || d.Port != 3000 || d.IsMain || d.Name != "node2" || d.IPAddress != "10.0.0.5" {
		t.Errorf("device = %+v", d)
	}
}

func TestCreate_Rejections(t *testing.T) {
	tests := []struct {
		name       string
		p          *sessiondomain.Principal
		body       any
		wantStatus int
		wantError  string
	}{
		{"anonymous", nil, map[string]string{"name": "n", "ipAddress": "1.2.3.4"}, http.StatusUnauthorized, "TOKEN_MISSING"},
		{"outsider", outsider, map[string]string{"name": "n", "ipAddress": "1.2.3.4"}, http.StatusForbidden, "ADDRESS_NOT_ALLOWED"},
		{"non-admin in public mode", user, map[string]string{"name": "n", "ipAddress": "1.2.3.4"}, http.StatusForbidden, "FORBIDDEN"},
		{"missing ip", admin, map[string]string{"name": "n"}, http.StatusBadRequest, deviceservice.ErrMissingField.Error()},
		{"bad port", admin, map[string]any{"name": "n", "ipAddress": "1.2.3.4", "port": 70000}, http.StatusBadRequest, deviceservice.ErrInvalidPort.Error()},
		{"bad body", admin, "nope", http.StatusBadRequest, "invalid request body"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			rec := env.serve(t, http.MethodPost, "/api/devices", tt.p, tt.body)
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d (body %s)", rec.Code, tt.wantStatus, rec.Body.String())
			}
			if got := errorOf(t, rec); got != tt.wantError {
				t.Errorf("error = %q, want %q", got, tt.wantError)
			}
		})
	}
}

func TestList_HidesKeysAndReportsLiveness(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	d1, _ := env.registry.Create(ctx, deviceservice.CreateInput{Name: "one", IPAddress: "10.0.0.1"})
	d2, _ := env.registry.Create(ctx, deviceservice.CreateInput{Name: "two", IPAddress: "10.0.0.2"})
	if err := env.registry.Ping(ctx, d1.ID, d1.APIKey); err != nil {
		t.Fatalf("Ping: %v", err)
	}

	rec := env.serve(t, http.MethodGet, "/api/devices", user, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
	var list []Device
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("len = %d, want 2", len(list))
	}
	if list[0].ID != d1.ID || !list[0].Online || !list[0].IsActive {
		t.Errorf("first = %+v, want pinged device %s online", list[0], d1.ID)
	}
	if list[1].ID != d2.ID || list[1].Online {
		t.Errorf("second = %+v, want %s offline", list[1], d2.ID)
	}
	for _, d := range list {
		if d.APIKey != "" {
			t.Errorf("list leaked api key for %s", d.ID)
		}
	}

	rec = env.serve(t, http.MethodGet, "/api/devices", outsider, nil)
	if rec.Code != http.StatusForbidden {
		t.Errorf("outsider list status = %d, want 403", rec.Code)
	}
}

func TestPing(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	d, _ := env.registry.Create(ctx, deviceservice.CreateInput{Name: "one", IPAddress: "10.0.0.1"})

	rec := env.serve(t, http.MethodPost, "/api/devices/ping", nil, pingRequest{DeviceID: d.ID, APIKey: d.APIKey})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
	var out pingResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil || !out.Success {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestPing_Rejections(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	d, _ := env.registry.Create(ctx, deviceservice.CreateInput{Name: "one", IPAddress: "10.0.0.1"})

	rec := env.serve(t, http.MethodPost, "/api/devices/ping", nil, pingRequest{DeviceID: d.ID, APIKey: "wrong"})
	if rec.Code != http.StatusUnauthorized || errorOf(t, rec) != "Invalid device credentials" {
		t.Errorf("wrong key = %d %s", rec.Code, rec.Body.String())
	}
	got, _ := env.registry.Get(ctx, d.ID)
	if got.IsActive || got.LastSeen != nil {
		t.Errorf("record changed after rejected ping: %+v", got)
	}
	logs, _ := env.auditRepo.List(ctx, 10, 0)
	if len(logs) != 1 || logs[0].Action != "ping_failure" || logs[0].Actor != d.ID {
		t.Errorf("audit = %+v", logs)
	}

	rec = env.serve(t, http.MethodPost, "/api/devices/ping", nil, pingRequest{DeviceID: d.ID})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing key status = %d, want 400", rec.Code)
	}
}
