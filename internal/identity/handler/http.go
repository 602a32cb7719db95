package handler

import (
	"net/http"
	"strings"

	"fleet-control-plane/internal/allowlist"
	"fleet-control-plane/internal/server/httperr"
)

// Handler serves the allow-list endpoints under /api/auth. Both are unauthenticated so a
// client can decide whether to offer wallet login before signing anything.
type Handler struct {
	allow *allowlist.List
	debug bool
}

// NewHandler returns the allow-list handler. With debug set, check-mode also reports the size
// of the allow-list.
func NewHandler(allow *allowlist.List, debug bool) *Handler {
	return &Handler{allow: allow, debug: debug}
}

type checkModeResponse struct {
	IsPublicMode bool `json:"isPublicMode"`
	AddressCount *int `json:"addressCount,omitempty"`
}

type validateAddressRequest struct {
	Address string `json:"address"`
}

type validateAddressResponse struct {
	IsAllowed    bool `json:"isAllowed"`
	IsPublicMode bool `json:"isPublicMode"`
}

// CheckMode handles GET /api/auth/check-mode.
func (h *Handler) CheckMode(w http.ResponseWriter, r *http.Request) {
	resp := checkModeResponse{IsPublicMode: h.allow.IsPublicMode()}
	if h.debug {
		n := h.allow.Len()
		resp.AddressCount = &n
	}
	httperr.JSON(w, http.StatusOK, resp)
}

// ValidateAddress handles POST /api/auth/validate-address.
func (h *Handler) ValidateAddress(w http.ResponseWriter, r *http.Request) {
	var req validateAddressRequest
	if err := httperr.Decode(w, r, &req); err != nil {
		httperr.Write(w, http.StatusBadRequest, "invalid request body")
		return
	}
	address := strings.TrimSpace(req.Address)
	if address == "" {
		httperr.Write(w, http.StatusBadRequest, "address is required")
		return
	}
	httperr.JSON(w, http.StatusOK, validateAddressResponse{
		IsAllowed:    h.allow.IsAllowed(address),
		IsPublicMode: h.allow.IsPublicMode(),
	})
}
