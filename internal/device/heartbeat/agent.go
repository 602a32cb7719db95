// Package heartbeat runs on a remote device and reports its liveness to the main node.
package heartbeat

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"fleet-control-plane/internal/router"
	"fleet-control-plane/internal/telemetry"
)

// PingPath is the main node's heartbeat endpoint.
const PingPath = "/api/devices/ping"

// Caller performs a routed API call. *router.Client implements it.
type Caller interface {
	Call(ctx context.Context, path string, opts router.CallOptions) (json.RawMessage, error)
}

// Agent sends a heartbeat for one device on a fixed interval.
type Agent struct {
	caller   Caller
	deviceID string
	apiKey   string
	interval time.Duration
	emitter  telemetry.EventEmitter
}

// NewAgent returns an Agent. interval defaults to 30s. emitter may be nil.
func NewAgent(caller Caller, deviceID, apiKey string, interval time.Duration, emitter telemetry.EventEmitter) *Agent {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Agent{caller: caller, deviceID: deviceID, apiKey: apiKey, interval: interval, emitter: emitter}
}

// Beat sends one heartbeat. A *router.RequestError with status 401 means the main node
// rejected this device's credential.
func (a *Agent) Beat(ctx context.Context) error {
	_, err := a.caller.Call(ctx, PingPath, router.CallOptions{
		Method: http.MethodPost,
		Body:   map[string]string{"deviceId": a.deviceID, "apiKey": a.apiKey},
	})
	return err
}

// Run beats immediately and then every interval until ctx is done. Failures are logged and
// the next tick tries again.
func (a *Agent) Run(ctx context.Context) {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()
	for {
		a.beatAndLog(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (a *Agent) beatAndLog(ctx context.Context) {
	err := a.Beat(ctx)
	if err == nil {
		if a.emitter != nil {
			ev := telemetry.NewEvent(telemetry.EventHeartbeat, "heartbeat", nil)
			ev.DeviceID = a.deviceID
			telemetry.EmitAsync(a.emitter, ctx, ev)
		}
		return
	}
	if ctx.Err() != nil {
		return
	}
	var reqErr *router.RequestError
	switch {
	case errors.As(err, &reqErr) && reqErr.Status == http.StatusUnauthorized:
		log.Printf("heartbeat: main node rejected credentials for device %s", a.deviceID)
	case router.IsTransport(err):
		log.Printf("heartbeat: main node unreachable: %v", err)
	default:
		log.Printf("heartbeat: %v", err)
	}
}
