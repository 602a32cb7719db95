// Package engine evaluates the fleet authorization policy with an in-process OPA Rego engine.
package engine

import (
	"context"
	"fmt"
	"os"

	"github.com/open-policy-agent/opa/v1/ast"
	"github.com/open-policy-agent/opa/v1/rego"

	sessiondomain "fleet-control-plane/internal/session/domain"
)

// Actions checked against the policy.
const (
	ActionSessionRead  = "session.read"
	ActionDeviceList   = "device.list"
	ActionDeviceCreate = "device.create"
	ActionProxyCall    = "proxy.call"
	ActionAuditRead    = "audit.read"
)

const policyQuery = "data.fleet.authz.allow"

// DefaultPolicy is the built-in fleet.authz policy.
//
// Admin-equivalent callers are admins, or any allowed caller when an explicit allow-list is
// configured. Device-credential principals can read the fleet but never create devices or
// chain proxy calls.
const DefaultPolicy = `package fleet.authz

default allow := false

admin_equivalent if input.principal.is_admin

admin_equivalent if {
	input.principal.allowed
	not input.public_mode
}

allow if {
	input.action == "session.read"
	input.principal.user_id != ""
}

allow if {
	input.action == "device.list"
	input.principal.allowed
}

allow if {
	input.action == "proxy.call"
	input.principal.allowed
	not input.principal.is_device
}

allow if {
	input.action == "device.create"
	input.principal.allowed
	admin_equivalent
	not input.principal.is_device
}

allow if {
	input.action == "audit.read"
	input.principal.is_admin
}
`

// Authorizer decides whether a principal may perform an action.
type Authorizer interface {
	Allow(ctx context.Context, action string, p sessiondomain.Principal, publicMode bool) (bool, error)
}

// OPAAuthorizer evaluates a prepared Rego query. Safe for concurrent use.
type OPAAuthorizer struct {
	query rego.PreparedEvalQuery
}

// NewOPAAuthorizer compiles policy (DefaultPolicy when empty) and prepares the allow query.
func NewOPAAuthorizer(ctx context.Context, policy string) (*OPAAuthorizer, error) {
	if policy == "" {
		policy = DefaultPolicy
	}
	q, err := rego.New(
		rego.Query(policyQuery),
		rego.Module("fleet_authz.rego", policy),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("prepare policy: %w", err)
	}
	return &OPAAuthorizer{query: q}, nil
}

// NewOPAAuthorizerFromFile loads the policy from path; an empty path uses DefaultPolicy.
func NewOPAAuthorizerFromFile(ctx context.Context, path string) (*OPAAuthorizer, error) {
	if path == "" {
		return NewOPAAuthorizer(ctx, "")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy file: %w", err)
	}
	return NewOPAAuthorizer(ctx, string(b))
}

// Allow evaluates the policy for action and p. An undefined result is a deny.
func (a *OPAAuthorizer) Allow(ctx context.Context, action string, p sessiondomain.Principal, publicMode bool) (bool, error) {
	rs, err := a.query.Eval(ctx, rego.EvalInput(buildInput(action, p, publicMode)))
	if err != nil {
		return false, fmt.Errorf("eval policy: %w", err)
	}
	return rs.Allowed(), nil
}

// HealthCheck verifies that the in-process OPA Rego engine can compile and evaluate the default policy.
// Does not touch the prepared query. Returns nil on success.
func (a *OPAAuthorizer) HealthCheck(ctx context.Context) error {
	compiler, err := ast.CompileModules(map[string]string{"fleet_authz.rego": DefaultPolicy})
	if err != nil {
		return fmt.Errorf("compile default policy: %w", err)
	}
	rs, err := rego.New(
		rego.Query(policyQuery),
		rego.Compiler(compiler),
		rego.Input(buildInput(ActionDeviceList, sessiondomain.Principal{Allowed: true}, true)),
	).Eval(ctx)
	if err != nil {
		return fmt.Errorf("eval default policy: %w", err)
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return fmt.Errorf("policy query returned no result")
	}
	return nil
}

func buildInput(action string, p sessiondomain.Principal, publicMode bool) map[string]interface{} {
	return map[string]interface{}{
		"action":      action,
		"public_mode": publicMode,
		"principal": map[string]interface{}{
			"address":   p.Address,
			"user_id":   p.UserID,
			"is_admin":  p.IsAdmin,
			"allowed":   p.Allowed,
			"is_device": p.IsDevice(),
		},
	}
}
