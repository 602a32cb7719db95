// Package httperr writes JSON responses and maps service errors onto HTTP status codes.
// Every failure body has the shape {"error": "...", "code": "..."} with code optional.
package httperr

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"fleet-control-plane/internal/platform/rbac"
	"fleet-control-plane/internal/server/middleware"
	sessionservice "fleet-control-plane/internal/session/service"
)

// maxBodyBytes bounds request bodies decoded by Decode.
const maxBodyBytes = 1 << 20

// Machine-readable error values returned to clients.
const (
	CodeTokenMissing       = "TOKEN_MISSING"
	CodeTokenInvalid       = "TOKEN_INVALID"
	CodeAddressNotAllowed  = "ADDRESS_NOT_ALLOWED"
	CodeForbidden          = "FORBIDDEN"
	CodeSignatureInvalid   = "SIGNATURE_INVALID"
	CodeChallengeInvalid   = "CHALLENGE_INVALID"
	CodeInvalidationFailed = "INVALIDATION_FAILED"
	CodeServerError        = "SERVER_ERROR"
	CodeDeviceUnreachable  = "DEVICE_UNREACHABLE"
)

// Body is the error response shape.
type Body struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// JSON writes v as a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("httperr: encode response: %v", err)
	}
}

// Write writes {"error": msg}.
func Write(w http.ResponseWriter, status int, msg string) {
	JSON(w, status, Body{Error: msg})
}

// WriteCode writes {"error": msg, "code": code}.
func WriteCode(w http.ResponseWriter, status int, msg, code string) {
	JSON(w, status, Body{Error: msg, Code: code})
}

// Decode reads a JSON request body into v. Bodies over 1 MiB are rejected.
func Decode(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	return json.NewDecoder(r.Body).Decode(v)
}

// WriteAuth writes the response for an authentication or authorization failure returned by
// rbac.Guard.Require. Unrecognized errors are logged and reported as 500.
func WriteAuth(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, sessionservice.ErrTokenMissing):
		Write(w, http.StatusUnauthorized, CodeTokenMissing)
	case errors.Is(err, sessionservice.ErrTokenInvalid):
		Write(w, http.StatusUnauthorized, CodeTokenInvalid)
	case errors.Is(err, middleware.ErrInvalidDeviceCredential):
		Write(w, http.StatusUnauthorized, "Invalid device credentials")
	case errors.Is(err, sessionservice.ErrAddressNotAllowed):
		Write(w, http.StatusForbidden, CodeAddressNotAllowed)
	case errors.Is(err, rbac.ErrForbidden):
		Write(w, http.StatusForbidden, CodeForbidden)
	default:
		log.Printf("httperr: authorization failed: %v", err)
		Write(w, http.StatusInternalServerError, CodeServerError)
	}
}
