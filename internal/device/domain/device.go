package domain

import (
	"errors"
	"net"
	"strconv"
	"strings"
	"time"
)

// DefaultPort is the port recorded when a device is registered without one.
const DefaultPort = 3000

// Device is a node of the fleet reachable over HTTP. Exactly one device per deployment is the
// main device (the local node); all others are remote and authenticate with APIKey.
type Device struct {
	ID        string
	Name      string
	IPAddress string
	Port      int
	APIKey    string
	IsMain    bool
	IsActive  bool
	LastSeen  *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Validate checks the fields required to persist a device.
func (d *Device) Validate() error {
	if d.ID == "" {
		return errors.New("device: id is required")
	}
	if strings.TrimSpace(d.Name) == "" || strings.TrimSpace(d.IPAddress) == "" {
		return errors.New("device: name and ip address are required")
	}
	if d.Port < 1 || d.Port > 65535 {
		return errors.New("device: port out of range")
	}
	if d.APIKey == "" {
		return errors.New("device: api key is required")
	}
	return nil
}

// BaseURL returns the device's HTTP base URL, e.g. http://10.0.0.5:3000.
func (d *Device) BaseURL() string {
	return "http://" + net.JoinHostPort(d.IPAddress, strconv.Itoa(d.Port))
}

// IsOnline reports whether the device is active and has sent a heartbeat within staleAfter of now.
// The main device is always online.
func (d *Device) IsOnline(now time.Time, staleAfter time.Duration) bool {
	if d.IsMain {
		return true
	}
	if !d.IsActive || d.LastSeen == nil {
		return false
	}
	return now.Sub(*d.LastSeen) < staleAfter
}
