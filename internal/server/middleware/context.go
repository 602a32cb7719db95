package middleware

import (
	"context"

	sessiondomain "fleet-control-plane/internal/session/domain"
)

type contextKey struct{ name string }

var (
	principalKey = contextKey{"principal"}
	authErrKey   = contextKey{"auth_error"}
	clientIPKey  = contextKey{"client_ip"}
)

// WithPrincipal returns a context carrying the resolved caller.
func WithPrincipal(ctx context.Context, p sessiondomain.Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// PrincipalFrom returns the principal set by Authenticate and true if one was resolved.
func PrincipalFrom(ctx context.Context) (sessiondomain.Principal, bool) {
	p, ok := ctx.Value(principalKey).(sessiondomain.Principal)
	return p, ok
}

// WithAuthError records why no principal could be resolved for the request.
func WithAuthError(ctx context.Context, err error) context.Context {
	return context.WithValue(ctx, authErrKey, err)
}

// AuthErrorFrom returns the resolution failure recorded by Authenticate, or nil.
func AuthErrorFrom(ctx context.Context) error {
	err, _ := ctx.Value(authErrKey).(error)
	return err
}

// WithClientIP returns a context carrying the caller's IP.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPKey, ip)
}

// ClientIPFromContext returns the IP stored by ClientIPs, or "unknown".
func ClientIPFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(clientIPKey).(string); ok && v != "" {
		return v
	}
	return "unknown"
}
