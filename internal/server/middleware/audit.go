package middleware

import (
	"net/http"

	"fleet-control-plane/internal/audit"
)

// Audit returns middleware that records an audit entry after each state-changing request
// (any method other than GET, HEAD, OPTIONS). Only requests with a resolved principal are
// recorded; explicit events such as login failures are logged by the handlers themselves.
// skipRoutes is the set of route templates to not audit.
func Audit(logger audit.AuditLogger, skipRoutes map[string]bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rec := newStatusRecorder(w)
			next.ServeHTTP(rec, r)
			if logger == nil {
				return
			}
			switch r.Method {
			case http.MethodGet, http.MethodHead, http.MethodOptions:
				return
			}
			route := routeTemplate(r)
			if skipRoutes[route] {
				return
			}
			p, ok := PrincipalFrom(r.Context())
			if !ok {
				return
			}
			actor := p.Address
			if p.IsDevice() {
				actor = p.DeviceID
			}
			ar := audit.ParseRoute(r.Method, route)
			logger.LogEvent(r.Context(), actor, ar.Action, ar.Resource, http.StatusText(rec.status))
		})
	}
}
