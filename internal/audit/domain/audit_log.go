package domain

import "time"

// AuditLog represents an audit event. Actor is a wallet address, a device id, or
// SentinelActor when the caller could not be identified.
type AuditLog struct {
	ID        string
	Actor     string
	Action    string
	Resource  string
	IP        string
	Metadata  string
	CreatedAt time.Time
}
