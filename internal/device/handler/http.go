package handler

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"fleet-control-plane/internal/audit"
	"fleet-control-plane/internal/device/domain"
	deviceservice "fleet-control-plane/internal/device/service"
	"fleet-control-plane/internal/platform/rbac"
	"fleet-control-plane/internal/policy/engine"
	"fleet-control-plane/internal/server/httperr"
	"fleet-control-plane/internal/telemetry"
)

const eventSource = "device_handler"

// Registry is the subset of the device registry used by the HTTP handlers.
type Registry interface {
	List(ctx context.Context) ([]*domain.Device, error)
	Create(ctx context.Context, in deviceservice.CreateInput) (*domain.Device, error)
	Ping(ctx context.Context, deviceID, apiKey string) error
}

// Handler serves /api/devices.
type Handler struct {
	registry    Registry
	guard       *rbac.Guard
	auditLogger audit.AuditLogger
	emitter     telemetry.EventEmitter
	staleAfter  time.Duration
	nowF        func() time.Time
}

// NewHandler returns the device HTTP handler. A device is reported online when its last heartbeat
// is younger than staleAfter. auditLogger and emitter may be nil.
func NewHandler(registry Registry, guard *rbac.Guard, auditLogger audit.AuditLogger, emitter telemetry.EventEmitter, staleAfter time.Duration) *Handler {
	return &Handler{
		registry:    registry,
		guard:       guard,
		auditLogger: auditLogger,
		emitter:     emitter,
		staleAfter:  staleAfter,
		nowF:        time.Now,
	}
}

// Device is the JSON representation of a device. APIKey is only present in the create response.
type Device struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	IPAddress string     `json:"ipAddress"`
	Port      int        `json:"port"`
	APIKey    string     `json:"apiKey,omitempty"`
	IsMain    bool       `json:"isMain"`
	IsActive  bool       `json:"isActive"`
	Online    bool       `json:"online"`
	LastSeen  *time.Time `json:"lastSeen"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

type createRequest struct {
	Name      string `json:"name"`
	IPAddress string `json:"ipAddress"`
	Port      int    `json:"port,omitempty"`
}

type createResponse struct {
	Device Device `json:"device"`
}

type pingRequest struct {
	DeviceID string `json:"deviceId"`
	APIKey   string `json:"apiKey"`
}

type pingResponse struct {
	Success bool `json:"success"`
}

// Create handles POST /api/devices. Requires an admin-equivalent principal.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	p, err := h.guard.Require(ctx, engine.ActionDeviceCreate)
	if err != nil {
		httperr.WriteAuth(w, err)
		return
	}
	var req createRequest
	if err := httperr.Decode(w, r, &req); err != nil {
		httperr.Write(w, http.StatusBadRequest, "invalid request body")
		return
	}
	d, err := h.registry.Create(ctx, deviceservice.CreateInput{Name: req.Name, IPAddress: req.IPAddress, Port: req.Port})
	if err != nil {
		switch {
		case errors.Is(err, deviceservice.ErrMissingField), errors.Is(err, deviceservice.ErrInvalidPort):
			httperr.Write(w, http.StatusBadRequest, err.Error())
		default:
			log.Printf("device: create: %v", err)
			httperr.Write(w, http.StatusInternalServerError, "failed to create device")
		}
		return
	}
	ev := telemetry.NewEvent(telemetry.EventDeviceCreate, eventSource, map[string]any{"name": d.Name, "port": d.Port})
	ev.Address, ev.UserID, ev.DeviceID = p.Address, p.UserID, d.ID
	telemetry.EmitAsync(h.emitter, ctx, ev)

	out := h.toJSON(d)
	out.APIKey = d.APIKey
	httperr.JSON(w, http.StatusOK, createResponse{Device: out})
}

// List handles GET /api/devices. Requires an allowed principal.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	if _, err := h.guard.Require(r.Context(), engine.ActionDeviceList); err != nil {
		httperr.WriteAuth(w, err)
		return
	}
	list, err := h.registry.List(r.Context())
	if err != nil {
		log.Printf("device: list: %v", err)
		httperr.Write(w, http.StatusInternalServerError, "failed to list devices")
		return
	}
	out := make([]Device, len(list))
	for i, d := range list {
		out[i] = h.toJSON(d)
	}
	httperr.JSON(w, http.StatusOK, out)
}

// Ping handles POST /api/devices/ping. Authenticated by the device's own API key, never a session token.
func (h *Handler) Ping(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req pingRequest
	if err := httperr.Decode(w, r, &req); err != nil {
		httperr.Write(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.registry.Ping(ctx, req.DeviceID, req.APIKey); err != nil {
		switch {
		case errors.Is(err, deviceservice.ErrMissingFields):
			httperr.Write(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, deviceservice.ErrInvalidDeviceCredentials):
			if h.auditLogger != nil {
				h.auditLogger.LogEvent(ctx, req.DeviceID, "ping_failure", "device", "invalid credentials")
			}
			httperr.Write(w, http.StatusUnauthorized, "Invalid device credentials")
		default:
			log.Printf("device: ping %s: %v", req.DeviceID, err)
			httperr.Write(w, http.StatusInternalServerError, "failed to record heartbeat")
		}
		return
	}
	ev := telemetry.NewEvent(telemetry.EventDevicePing, eventSource, nil)
	ev.DeviceID = req.DeviceID
	telemetry.EmitAsync(h.emitter, ctx, ev)
	httperr.JSON(w, http.StatusOK, pingResponse{Success: true})
}

func (h *Handler) toJSON(d *domain.Device) Device {
	return Device{
		ID:        d.ID,
		Name:      d.Name,
		IPAddress: d.IPAddress,
		Port:      d.Port,
		IsMain:    d.IsMain,
		IsActive:  d.IsActive,
		Online:    d.IsOnline(h.nowF(), h.staleAfter),
		LastSeen:  d.LastSeen,
		UpdatedAt: d.UpdatedAt,
	}
}
