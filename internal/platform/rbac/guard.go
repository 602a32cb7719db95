// Package rbac gates handlers on the authenticated principal and the authorization policy.
package rbac

import (
	"context"
	"errors"
	"fmt"

	"fleet-control-plane/internal/allowlist"
	"fleet-control-plane/internal/policy/engine"
	"fleet-control-plane/internal/server/middleware"
	sessiondomain "fleet-control-plane/internal/session/domain"
	sessionservice "fleet-control-plane/internal/session/service"
)

// ErrForbidden is returned when the policy denies an authenticated, allowed principal.
var ErrForbidden = errors.New("forbidden")

// Guard checks the request principal against the policy engine.
type Guard struct {
	authz      engine.Authorizer
	publicMode bool
}

// NewGuard returns a Guard evaluating authz. Public mode is taken from allow.
func NewGuard(authz engine.Authorizer, allow *allowlist.List) *Guard {
	return &Guard{authz: authz, publicMode: allow.IsPublicMode()}
}

// Require ensures the caller is authenticated and permitted to perform action.
// Returns the principal on success. On failure the error is the resolution failure recorded by
// middleware.Authenticate (ErrTokenMissing when none), sessionservice.ErrAddressNotAllowed when the
// caller's address is outside the allow-list, or ErrForbidden.
func (g *Guard) Require(ctx context.Context, action string) (sessiondomain.Principal, error) {
	p, ok := middleware.PrincipalFrom(ctx)
	if !ok {
		if err := middleware.AuthErrorFrom(ctx); err != nil {
			return sessiondomain.Principal{}, err
		}
		return sessiondomain.Principal{}, sessionservice.ErrTokenMissing
	}
	allowed, err := g.authz.Allow(ctx, action, p, g.publicMode)
	if err != nil {
		return sessiondomain.Principal{}, fmt.Errorf("rbac: evaluate %s: %w", action, err)
	}
	if allowed {
		return p, nil
	}
	if !p.Allowed {
		return sessiondomain.Principal{}, sessionservice.ErrAddressNotAllowed
	}
	return sessiondomain.Principal{}, ErrForbidden
}

// PublicMode reports whether the guard was built for an empty allow-list.
func (g *Guard) PublicMode() bool {
	return g.publicMode
}
