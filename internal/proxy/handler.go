// Package proxy is the boundary that forwards API calls to a remote device using the device's
// own credential.
package proxy

import (
	"context"
	"errors"
	"log"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"fleet-control-plane/internal/device/domain"
	deviceservice "fleet-control-plane/internal/device/service"
	"fleet-control-plane/internal/platform/rbac"
	"fleet-control-plane/internal/policy/engine"
	"fleet-control-plane/internal/server/httperr"
	"fleet-control-plane/internal/server/middleware"
	"fleet-control-plane/internal/telemetry"
)

const eventSource = "proxy"

// DeviceLookup resolves a device id to its record.
type DeviceLookup interface {
	Get(ctx context.Context, id string) (*domain.Device, error)
}

// Handler serves /api/proxy/{path}?deviceId=<id>.
type Handler struct {
	devices   DeviceLookup
	guard     *rbac.Guard
	transport http.RoundTripper
	timeout   time.Duration
	emitter   telemetry.EventEmitter
}

// NewHandler returns the proxy handler. transport may be nil (http.DefaultTransport).
// timeout bounds a single forwarded call; zero means no bound beyond the caller's context.
func NewHandler(devices DeviceLookup, guard *rbac.Guard, transport http.RoundTripper, timeout time.Duration, emitter telemetry.EventEmitter) *Handler {
	if transport == nil {
		transport = http.DefaultTransport
	}
	return &Handler{devices: devices, guard: guard, transport: transport, timeout: timeout, emitter: emitter}
}

type callMetadata struct {
	Method     string `json:"method"`
	Path       string `json:"path"`
	StatusCode int    `json:"status_code"`
	DurationMs int64  `json:"duration_ms"`
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	p, err := h.guard.Require(ctx, engine.ActionProxyCall)
	if err != nil {
		httperr.WriteAuth(w, err)
		return
	}
	deviceID := strings.TrimSpace(r.URL.Query().Get("deviceId"))
	if deviceID == "" {
		httperr.Write(w, http.StatusBadRequest, "deviceId is required")
		return
	}
	d, err := h.devices.Get(ctx, deviceID)
	if err != nil {
		if errors.Is(err, deviceservice.ErrNotFound) {
			httperr.Write(w, http.StatusNotFound, "device not found")
			return
		}
		log.Printf("proxy: lookup device %s: %v", deviceID, err)
		httperr.Write(w, http.StatusInternalServerError, httperr.CodeServerError)
		return
	}
	if d.IsMain {
		httperr.Write(w, http.StatusBadRequest, "main device is served locally; call without deviceId")
		return
	}
	base, err := url.Parse(d.BaseURL())
	if err != nil {
		log.Printf("proxy: device %s base url: %v", d.ID, err)
		httperr.Write(w, http.StatusInternalServerError, httperr.CodeServerError)
		return
	}

	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}
	path := "/api/" + strings.TrimLeft(mux.Vars(r)["path"], "/")
	query := r.URL.Query()
	query.Del("deviceId")

	start := time.Now()
	status := http.StatusBadGateway
	rp := &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.Out.URL.Scheme = base.Scheme
			pr.Out.URL.Host = base.Host
			pr.Out.URL.Path = path
			pr.Out.URL.RawPath = ""
			pr.Out.URL.RawQuery = query.Encode()
			pr.Out.Host = base.Host
			// The caller's session token never leaves the main node.
			pr.Out.Header.Del("Authorization")
			pr.Out.Header.Del("Cookie")
			pr.Out.Header.Set(middleware.HeaderDeviceID, d.ID)
			pr.Out.Header.Set(middleware.HeaderDeviceKey, d.APIKey)
			otel.GetTextMapPropagator().Inject(pr.Out.Context(), propagation.HeaderCarrier(pr.Out.Header))
		},
		Transport: h.transport,
		ModifyResponse: func(resp *http.Response) error {
			status = resp.StatusCode
			return nil
		},
		ErrorHandler: func(w http.ResponseWriter, req *http.Request, err error) {
			if req.Context().Err() != nil && r.Context().Err() != nil {
				// Caller went away; nobody is left to read a response.
				return
			}
			log.Printf("proxy: device %s unreachable: %v", d.ID, err)
			httperr.WriteCode(w, http.StatusBadGateway, "device unreachable: "+d.Name, httperr.CodeDeviceUnreachable)
		},
	}
	rp.ServeHTTP(w, r.WithContext(ctx))

	ev := telemetry.NewEvent(telemetry.EventProxyCall, eventSource, callMetadata{
		Method:     r.Method,
		Path:       path,
		StatusCode: status,
		DurationMs: time.Since(start).Milliseconds(),
	})
	ev.Address, ev.UserID, ev.DeviceID = p.Address, p.UserID, d.ID
	telemetry.EmitAsync(h.emitter, ctx, ev)
}
