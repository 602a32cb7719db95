// Package server assembles the HTTP API and the gRPC health server.
package server

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"fleet-control-plane/internal/allowlist"
	"fleet-control-plane/internal/audit"
	audithandler "fleet-control-plane/internal/audit/handler"
	auditrepo "fleet-control-plane/internal/audit/repository"
	"fleet-control-plane/internal/challenge"
	devicehandler "fleet-control-plane/internal/device/handler"
	deviceservice "fleet-control-plane/internal/device/service"
	healthhandler "fleet-control-plane/internal/health/handler"
	identityhandler "fleet-control-plane/internal/identity/handler"
	"fleet-control-plane/internal/platform/rbac"
	"fleet-control-plane/internal/proxy"
	"fleet-control-plane/internal/server/httperr"
	"fleet-control-plane/internal/server/middleware"
	sessionhandler "fleet-control-plane/internal/session/handler"
	sessionservice "fleet-control-plane/internal/session/service"
	"fleet-control-plane/internal/telemetry"
)

// Deps holds the services behind the HTTP API.
type Deps struct {
	// Sessions issues, resolves and invalidates wallet sessions. Required.
	Sessions *sessionservice.Manager
	// Registry owns device records. Required.
	Registry *deviceservice.Registry
	// Guard evaluates the authorization policy. Required.
	Guard *rbac.Guard
	// AllowList backs the check-mode and validate-address endpoints. Required.
	AllowList *allowlist.List
	// Challenges issues login nonces. If nil, /api/wallet/nonce responds 404.
	Challenges challenge.Store
	// Health serves /healthz and /readyz. If nil, readiness checks nothing.
	Health *healthhandler.Server
	// AuditLogger records state-changing requests and login attempts. If nil, nothing is audited.
	AuditLogger audit.AuditLogger
	// AuditLogs backs GET /api/audit. If nil, the route is not registered.
	AuditLogs auditrepo.Repository
	// Emitter receives telemetry events. If nil, no events are emitted.
	Emitter telemetry.EventEmitter
	// Node is this process's device identity when it runs as a remote device. If nil, device
	// credential headers are always rejected.
	Node *middleware.NodeIdentity
	// ProxyTransport carries forwarded calls. If nil, http.DefaultTransport is used.
	ProxyTransport http.RoundTripper
	// ProxyTimeout bounds a forwarded call.
	ProxyTimeout time.Duration
	// DeviceStaleAfter is the heartbeat age after which a device is reported offline.
	DeviceStaleAfter time.Duration
	// Debug exposes diagnostic fields on check-mode.
	Debug bool
}

// NewHTTPHandler returns the API router.
//
// Public routes: /healthz, /readyz, /api/auth/*, /api/wallet/nonce, /api/wallet/login and
// /api/devices/ping (authenticated by the device key in the body). Every other /api route runs
// behind Authenticate and Audit; handlers enforce the policy themselves.
func NewHTTPHandler(d Deps) http.Handler {
	health := d.Health
	if health == nil {
		health = healthhandler.NewServer(nil, nil)
	}
	auditLogger := d.AuditLogger
	sessions := sessionhandler.NewHandler(d.Sessions, d.Challenges, d.Guard, auditLogger, d.Emitter)
	devices := devicehandler.NewHandler(d.Registry, d.Guard, auditLogger, d.Emitter, d.DeviceStaleAfter)
	identity := identityhandler.NewHandler(d.AllowList, d.Debug)
	forward := proxy.NewHandler(d.Registry, d.Guard, d.ProxyTransport, d.ProxyTimeout, d.Emitter)

	r := mux.NewRouter()
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		httperr.Write(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		httperr.Write(w, http.StatusMethodNotAllowed, "method not allowed")
	})
	r.Use(middleware.Telemetry(d.Emitter, map[string]bool{"/healthz": true, "/readyz": true}), middleware.ClientIPs)

	r.HandleFunc("/healthz", health.Liveness).Methods(http.MethodGet)
	r.HandleFunc("/readyz", health.Readiness).Methods(http.MethodGet)

	r.HandleFunc("/api/auth/check-mode", identity.CheckMode).Methods(http.MethodGet)
	r.HandleFunc("/api/auth/validate-address", identity.ValidateAddress).Methods(http.MethodPost)
	r.HandleFunc("/api/wallet/nonce", sessions.Nonce).Methods(http.MethodGet)
	r.HandleFunc("/api/wallet/login", sessions.Login).Methods(http.MethodPost)
	r.HandleFunc("/api/devices/ping", devices.Ping).Methods(http.MethodPost)

	api := r.PathPrefix("/api").Subrouter()
	api.Use(middleware.Authenticate(d.Sessions, d.Node), middleware.Audit(auditLogger, nil))
	api.HandleFunc("/wallet/logout", sessions.Logout).Methods(http.MethodPost)
	api.HandleFunc("/wallet/session", sessions.Session).Methods(http.MethodGet)
	api.HandleFunc("/devices", devices.List).Methods(http.MethodGet)
	api.HandleFunc("/devices", devices.Create).Methods(http.MethodPost)
	api.Handle("/proxy/{path:.*}", forward)
	if d.AuditLogs != nil {
		api.HandleFunc("/audit", audithandler.NewHandler(d.AuditLogs, d.Guard).List).Methods(http.MethodGet)
	}

	return r
}
