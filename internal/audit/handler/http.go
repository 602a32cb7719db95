// Package handler serves the audit trail over HTTP.
package handler

import (
	"log"
	"net/http"
	"strconv"
	"time"

	"fleet-control-plane/internal/audit/repository"
	"fleet-control-plane/internal/platform/rbac"
	"fleet-control-plane/internal/policy/engine"
	"fleet-control-plane/internal/server/httperr"
)

const (
	defaultLimit = 50
	maxLimit     = 500
)

// Handler serves GET /api/audit.
type Handler struct {
	repo  repository.Repository
	guard *rbac.Guard
}

// NewHandler returns the audit HTTP handler.
func NewHandler(repo repository.Repository, guard *rbac.Guard) *Handler {
	return &Handler{repo: repo, guard: guard}
}

// Entry is the JSON form of an audit log entry.
type Entry struct {
	ID        string    `json:"id"`
	Actor     string    `json:"actor"`
	Action    string    `json:"action"`
	Resource  string    `json:"resource"`
	IP        string    `json:"ip"`
	Metadata  string    `json:"metadata,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// List handles GET /api/audit?limit=&offset=, newest first. Admins only.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	if _, err := h.guard.Require(r.Context(), engine.ActionAuditRead); err != nil {
		httperr.WriteAuth(w, err)
		return
	}
	limit, ok := queryInt(r, "limit", defaultLimit)
	if !ok || limit <= 0 {
		httperr.Write(w, http.StatusBadRequest, "limit must be a positive integer")
		return
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	offset, ok := queryInt(r, "offset", 0)
	if !ok || offset < 0 {
		httperr.Write(w, http.StatusBadRequest, "offset must be a non-negative integer")
		return
	}

	logs, err := h.repo.List(r.Context(), int32(limit), int32(offset))
	if err != nil {
		log.Printf("audit: list: %v", err)
		httperr.Write(w, http.StatusInternalServerError, "failed to list audit logs")
		return
	}
	out := make([]Entry, len(logs))
	for i, a := range logs {
		out[i] = Entry{
			ID:        a.ID,
			Actor:     a.Actor,
			Action:    a.Action,
			Resource:  a.Resource,
			IP:        a.IP,
			Metadata:  a.Metadata,
			CreatedAt: a.CreatedAt,
		}
	}
	httperr.JSON(w, http.StatusOK, out)
}

func queryInt(r *http.Request, key string, fallback int) (int, bool) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback, true
	}
	n, err := strconv.ParseInt(raw, 10, 32)
	if err != nil {
		return 0, false
	}
	return int(n), true
}
