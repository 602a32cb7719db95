package proxy

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/gorilla/mux"

	"fleet-control-plane/internal/allowlist"
	"fleet-control-plane/internal/device/domain"
	devicerepo "fleet-control-plane/internal/device/repository"
	deviceservice "fleet-control-plane/internal/device/service"
	"fleet-control-plane/internal/platform/rbac"
	"fleet-control-plane/internal/policy/engine"
	"fleet-control-plane/internal/server/middleware"
	sessiondomain "fleet-control-plane/internal/session/domain"
)

var operator = sessiondomain.Principal{Address: "0xop", UserID: "u1", Allowed: true}

type seenRequest struct {
	uri, deviceID, deviceKey, auth string
}

type testEnv struct {
	registry *deviceservice.Registry
	router   *mux.Router
}

func newTestEnv(t *testing.T, p *sessiondomain.Principal) *testEnv {
	t.Helper()
	authz, err := engine.NewOPAAuthorizer(context.Background(), "")
	if err != nil {
		t.Fatalf("NewOPAAuthorizer: %v", err)
	}
	reg := deviceservice.NewRegistry(devicerepo.NewMemoryRepository())
	h := NewHandler(reg, rbac.NewGuard(authz, allowlist.Parse("")), nil, 0, nil)

	r := mux.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if p != nil {
				req = req.WithContext(middleware.WithPrincipal(req.Context(), *p))
			}
			next.ServeHTTP(w, req)
		})
	})
	r.Handle("/api/proxy/{path:.*}", h)
	return &testEnv{registry: reg, router: r}
}

// registerServer records srv as a remote device.
func (e *testEnv) registerServer(t *testing.T, rawURL string) *domain.Device {
	t.Helper()
	host, portStr, err := net.SplitHostPort(rawURL[len("http://"):])
	if err != nil {
		t.Fatalf("split %s: %v", rawURL, err)
	}
	port, _ := strconv.Atoi(portStr)
	d, err := e.registry.Create(context.Background(), deviceservice.CreateInput{Name: "remote", IPAddress: host, Port: port})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return d
}

func (e *testEnv) do(method, target, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var m map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &m); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return m
}

func TestProxy_ForwardsWithDeviceCredential(t *testing.T) {
	seen := make(chan seenRequest, 1)
	remote := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen <- seenRequest{
			uri:       r.URL.RequestURI(),
			deviceID:  r.Header.Get(middleware.HeaderDeviceID),
			deviceKey: r.Header.Get(middleware.HeaderDeviceKey),
			auth:      r.Header.Get("Authorization"),
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte(`{"ok":"yes"}`))
	}))
	defer remote.Close()

	env := newTestEnv(t, &operator)
	d := env.registerServer(t, remote.URL)

	rec := env.do(http.MethodGet, "/api/proxy/devices?deviceId="+d.ID+"&limit=5", "session-token")
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
	if decode(t, rec)["ok"] != "yes" {
		t.Errorf("body = %s", rec.Body.String())
	}
	got := <-seen
	if got.uri != "/api/devices?limit=5" {
		t.Errorf("forwarded uri = %q", got.uri)
	}
	if got.deviceID != d.ID || got.deviceKey != d.APIKey {
		t.Errorf("device credential = %q/%q", got.deviceID, got.deviceKey)
	}
	if got.auth != "" {
		t.Errorf("caller Authorization leaked to device: %q", got.auth)
	}
}

func TestProxy_Rejections(t *testing.T) {
	env := newTestEnv(t, &operator)
	main, err := env.registry.EnsureMain(context.Background(), "main", "127.0.0.1", 3000)
	if err != nil {
		t.Fatalf("EnsureMain: %v", err)
	}

	rec := env.do(http.MethodGet, "/api/proxy/devices", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing deviceId status = %d, want 400", rec.Code)
	}
	rec = env.do(http.MethodGet, "/api/proxy/devices?deviceId=nope", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown device status = %d, want 404", rec.Code)
	}
	rec = env.do(http.MethodGet, "/api/proxy/devices?deviceId="+main.ID, "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("main device status = %d, want 400", rec.Code)
	}
}

func TestProxy_Unreachable(t *testing.T) {
	remote := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	remoteURL := remote.URL
	remote.Close()

	env := newTestEnv(t, &operator)
	d := env.registerServer(t, remoteURL)
	rec := env.do(http.MethodGet, "/api/proxy/devices?deviceId="+d.ID, "")
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", rec.Code)
	}
	if code := decode(t, rec)["code"]; code != "DEVICE_UNREACHABLE" {
		t.Errorf("code = %q, want DEVICE_UNREACHABLE", code)
	}
}

func TestProxy_Authorization(t *testing.T) {
	device := sessiondomain.Principal{DeviceID: "d9", Allowed: true}
	tests := []struct {
		name string
		p    *sessiondomain.Principal
		want int
	}{
		{"anonymous", nil, http.StatusUnauthorized},
		{"device principal cannot chain", &device, http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, tt.p)
			rec := env.do(http.MethodGet, "/api/proxy/devices?deviceId=x", "")
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}
