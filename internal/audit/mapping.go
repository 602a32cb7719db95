package audit

import "strings"

// ActionResource holds action and resource derived from an HTTP method and route template.
type ActionResource struct {
	Action   string
	Resource string
}

// Route overrides where the verb alone does not describe the operation.
var routeOverrides = map[string]ActionResource{
	"POST /api/wallet/login":  {Action: "login", Resource: "session"},
	"POST /api/wallet/logout": {Action: "logout", Resource: "session"},
	"POST /api/devices/ping":  {Action: "ping", Resource: "device"},
	"GET /api/wallet/session": {Action: "get", Resource: "session"},
}

// ParseRoute returns action and resource for an HTTP request matched to routeTemplate
// (e.g. "/api/devices" or "/api/proxy/{path:.*}").
// Action is a verb derived from the method: get, list, create, update, delete.
// Resource is the first path segment after /api, singularized (devices -> device).
// Anything under /api/proxy is mapped to action "proxy" on resource "device".
func ParseRoute(method, routeTemplate string) ActionResource {
	method = strings.ToUpper(method)
	if ar, ok := routeOverrides[method+" "+routeTemplate]; ok {
		return ar
	}
	trimmed := strings.Trim(strings.TrimPrefix(routeTemplate, "/api"), "/")
	if trimmed == "" {
		return ActionResource{Action: "unknown", Resource: "unknown"}
	}
	segments := strings.Split(trimmed, "/")
	if segments[0] == "proxy" {
		return ActionResource{Action: "proxy", Resource: "device"}
	}
	resource := singular(segments[0])
	hasID := len(segments) > 1 && strings.HasPrefix(segments[1], "{")
	return ActionResource{Action: methodToAction(method, hasID), Resource: resource}
}

func singular(s string) string {
	if strings.HasSuffix(s, "ies") {
		return strings.TrimSuffix(s, "ies") + "y"
	}
	return strings.TrimSuffix(s, "s")
}

func methodToAction(method string, hasID bool) string {
	switch method {
	case "GET":
		if hasID {
			return "get"
		}
		return "list"
	case "POST":
		return "create"
	case "PUT", "PATCH":
		return "update"
	case "DELETE":
		return "delete"
	default:
		return strings.ToLower(method)
	}
}
