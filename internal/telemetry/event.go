package telemetry

import (
	"context"
	"encoding/json"
	"time"
)

// Event types emitted by the control plane.
const (
	EventLogin        = "wallet_login"
	EventLoginFailed  = "wallet_login_failed"
	EventLogout       = "wallet_logout"
	EventDeviceCreate = "device_create"
	EventDevicePing   = "device_ping"
	EventProxyCall    = "proxy_call"
	EventHTTPRequest  = "http_request"
	EventHeartbeat    = "device_heartbeat"
)

// Event is one structured telemetry record. Metadata is JSON and becomes the record body.
type Event struct {
	Type      string
	Source    string
	Address   string
	UserID    string
	DeviceID  string
	Metadata  json.RawMessage
	CreatedAt time.Time
}

// NewEvent builds an Event stamped with the current time. meta is marshalled to JSON;
// marshal failures leave Metadata empty.
func NewEvent(eventType, source string, meta any) *Event {
	e := &Event{Type: eventType, Source: source, CreatedAt: time.Now().UTC()}
	if meta != nil {
		if b, err := json.Marshal(meta); err == nil {
			e.Metadata = b
		}
	}
	return e
}

// EventEmitter emits telemetry events (e.g. to OTel Logs). Best-effort; callers log and ignore errors.
type EventEmitter interface {
	Emit(ctx context.Context, event *Event) error
}
