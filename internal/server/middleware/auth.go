package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"fleet-control-plane/internal/security"
	sessiondomain "fleet-control-plane/internal/session/domain"
	sessionservice "fleet-control-plane/internal/session/service"
)

const bearerPrefix = "bearer "

// Device credential headers. Set by the proxy on forwarded calls; accepted only when they
// match this node's own identity.
const (
	HeaderDeviceID  = "X-Device-Id"
	HeaderDeviceKey = "X-Device-Key"
)

// ErrInvalidDeviceCredential is recorded when device credential headers do not match this node.
var ErrInvalidDeviceCredential = errors.New("invalid device credentials")

// Resolver resolves a bearer token to a principal.
type Resolver interface {
	Resolve(ctx context.Context, token string) (sessiondomain.Principal, error)
}

// NodeIdentity is this process's own device credential, used when it runs as a remote device.
type NodeIdentity struct {
	DeviceID string
	APIKey   string
}

// Authenticate resolves the caller and stores the principal (or the failure) in the request
// context. It never rejects a request; handlers decide via rbac.
//
// Device credential headers take precedence over a bearer token and are a separate path:
// they are compared against node and never passed to the session resolver.
func Authenticate(resolver Resolver, node *NodeIdentity) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if deviceID := strings.TrimSpace(r.Header.Get(HeaderDeviceID)); deviceID != "" {
				if node != nil && deviceID == node.DeviceID && security.APIKeyEqual(r.Header.Get(HeaderDeviceKey), node.APIKey) {
					ctx = WithPrincipal(ctx, sessiondomain.Principal{DeviceID: deviceID, Allowed: true})
				} else {
					ctx = WithAuthError(ctx, ErrInvalidDeviceCredential)
				}
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			token := BearerToken(r)
			if token == "" {
				ctx = WithAuthError(ctx, sessionservice.ErrTokenMissing)
			} else if p, err := resolver.Resolve(ctx, token); err != nil {
				ctx = WithAuthError(ctx, err)
			} else {
				ctx = WithPrincipal(ctx, p)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// BearerToken returns the Bearer token from the Authorization header, or "" if missing or malformed.
func BearerToken(r *http.Request) string {
	v := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(v) < len(bearerPrefix) {
		return ""
	}
	if !strings.EqualFold(v[:len(bearerPrefix)], bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(v[len(bearerPrefix):])
}
