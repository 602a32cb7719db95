package domain

// Principal is the identity resolved from a session token. It is derived on every
// resolution (or served from the token cache) and never persisted.
type Principal struct {
	Address string `json:"address"`
	UserID  string `json:"userId"`
	IsAdmin bool   `json:"isAdmin"`
	Allowed bool   `json:"allowed"`
	// DeviceID is set only for principals authenticated by a device credential
	// rather than a wallet session; such principals are never admin.
	DeviceID string `json:"deviceId,omitempty"`
}

// IsDevice reports whether p was authenticated with a device credential.
func (p Principal) IsDevice() bool {
	return p.DeviceID != ""
}
