package handler

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"fleet-control-plane/internal/audit"
	"fleet-control-plane/internal/challenge"
	"fleet-control-plane/internal/platform/rbac"
	"fleet-control-plane/internal/policy/engine"
	"fleet-control-plane/internal/server/httperr"
	"fleet-control-plane/internal/server/middleware"
	sessionservice "fleet-control-plane/internal/session/service"
	"fleet-control-plane/internal/telemetry"
)

const eventSource = "session_handler"

// SessionManager is the subset of the session manager used by the HTTP handlers.
type SessionManager interface {
	Issue(ctx context.Context, req sessionservice.LoginRequest) (*sessionservice.IssueResult, error)
	Invalidate(ctx context.Context, token string) error
}

// Handler serves the wallet session endpoints under /api/wallet.
type Handler struct {
	sessions    SessionManager
	challenges  challenge.Store
	guard       *rbac.Guard
	auditLogger audit.AuditLogger
	emitter     telemetry.EventEmitter
}

// NewHandler returns the session HTTP handler. challenges may be nil, in which case the nonce
// endpoint responds 404. auditLogger and emitter may be nil.
func NewHandler(sessions SessionManager, challenges challenge.Store, guard *rbac.Guard, auditLogger audit.AuditLogger, emitter telemetry.EventEmitter) *Handler {
	return &Handler{
		sessions:    sessions,
		challenges:  challenges,
		guard:       guard,
		auditLogger: auditLogger,
		emitter:     emitter,
	}
}

type nonceResponse struct {
	Nonce     string    `json:"nonce"`
	Message   string    `json:"message"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type loginRequest struct {
	Address   string `json:"address"`
	Message   string `json:"message"`
	Signature string `json:"signature"`
	Nonce     string `json:"nonce,omitempty"`
}

type loginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
	Address   string    `json:"address"`
	IsAdmin   bool      `json:"isAdmin"`
}

type logoutResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// Nonce handles GET /api/wallet/nonce?address=. Issues a one-time challenge for the wallet to sign.
func (h *Handler) Nonce(w http.ResponseWriter, r *http.Request) {
	if h.challenges == nil {
		httperr.Write(w, http.StatusNotFound, "login challenges are disabled")
		return
	}
	address := strings.TrimSpace(r.URL.Query().Get("address"))
	if address == "" {
		httperr.Write(w, http.StatusBadRequest, "address is required")
		return
	}
	c, err := h.challenges.Issue(r.Context(), address)
	if err != nil {
		log.Printf("session: issue challenge: %v", err)
		httperr.Write(w, http.StatusInternalServerError, httperr.CodeServerError)
		return
	}
	httperr.JSON(w, http.StatusOK, nonceResponse{Nonce: c.Nonce, Message: c.Message, ExpiresAt: c.ExpiresAt})
}

// Login handles POST /api/wallet/login.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := httperr.Decode(w, r, &req); err != nil {
		httperr.Write(w, http.StatusBadRequest, "invalid request body")
		return
	}
	ctx := r.Context()
	res, err := h.sessions.Issue(ctx, sessionservice.LoginRequest{
		Address:   req.Address,
		Message:   req.Message,
		Signature: req.Signature,
		Nonce:     req.Nonce,
	})
	if err != nil {
		status, code := loginFailure(err)
		h.logAudit(ctx, strings.TrimSpace(req.Address), "login_failure", "session", code)
		h.emit(ctx, telemetry.EventLoginFailed, req.Address, "", map[string]string{"reason": code})
		if status == http.StatusInternalServerError {
			log.Printf("session: login failed: %v", err)
		}
		httperr.Write(w, status, code)
		return
	}

	p := res.Principal
	h.logAudit(ctx, p.Address, "login", "session", "success")
	h.emit(ctx, telemetry.EventLogin, p.Address, p.UserID, map[string]bool{"is_admin": p.IsAdmin})
	httperr.JSON(w, http.StatusOK, loginResponse{
		Token:     res.Token,
		ExpiresAt: res.ExpiresAt,
		Address:   p.Address,
		IsAdmin:   p.IsAdmin,
	})
}

// Logout handles POST /api/wallet/logout. Logging out an unknown or already invalidated token succeeds.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	token := middleware.BearerToken(r)
	if err := h.sessions.Invalidate(ctx, token); err != nil {
		switch {
		case errors.Is(err, sessionservice.ErrTokenMissing):
			httperr.Write(w, http.StatusUnauthorized, httperr.CodeTokenMissing)
		case errors.Is(err, sessionservice.ErrInvalidationFailed):
			log.Printf("session: logout: %v", err)
			httperr.Write(w, http.StatusInternalServerError, httperr.CodeInvalidationFailed)
		default:
			log.Printf("session: logout: %v", err)
			httperr.Write(w, http.StatusInternalServerError, httperr.CodeServerError)
		}
		return
	}
	var address, userID string
	if p, ok := middleware.PrincipalFrom(ctx); ok {
		address, userID = p.Address, p.UserID
	}
	h.emit(ctx, telemetry.EventLogout, address, userID, nil)
	httperr.JSON(w, http.StatusOK, logoutResponse{Success: true, Message: "Logged out successfully"})
}

// Session handles GET /api/wallet/session and returns the caller's principal.
func (h *Handler) Session(w http.ResponseWriter, r *http.Request) {
	p, err := h.guard.Require(r.Context(), engine.ActionSessionRead)
	if err != nil {
		httperr.WriteAuth(w, err)
		return
	}
	httperr.JSON(w, http.StatusOK, p)
}

func (h *Handler) emit(ctx context.Context, eventType, address, userID string, meta any) {
	if h.emitter == nil {
		return
	}
	ev := telemetry.NewEvent(eventType, eventSource, meta)
	ev.Address = address
	ev.UserID = userID
	telemetry.EmitAsync(h.emitter, ctx, ev)
}

func loginFailure(err error) (int, string) {
	switch {
	case errors.Is(err, sessionservice.ErrMissingCredentials):
		return http.StatusBadRequest, "address, message and signature are required"
	case errors.Is(err, sessionservice.ErrSignatureInvalid):
		return http.StatusUnauthorized, httperr.CodeSignatureInvalid
	case errors.Is(err, sessionservice.ErrChallengeInvalid):
		return http.StatusUnauthorized, httperr.CodeChallengeInvalid
	case errors.Is(err, sessionservice.ErrAddressNotAllowed):
		return http.StatusForbidden, httperr.CodeAddressNotAllowed
	default:
		return http.StatusInternalServerError, httperr.CodeServerError
	}
}

func (h *Handler) logAudit(ctx context.Context, actor, action, resource, metadata string) {
	if h.auditLogger != nil {
		h.auditLogger.LogEvent(ctx, actor, action, resource, metadata)
	}
}
