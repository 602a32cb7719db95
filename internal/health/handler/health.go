package handler

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"fleet-control-plane/internal/server/httperr"
)

// checkTimeout bounds a single readiness check.
const checkTimeout = 3 * time.Second

// Pinger checks database connectivity (e.g. *sql.DB).
type Pinger interface {
	PingContext(ctx context.Context) error
}

// PolicyChecker checks that the policy engine can evaluate (e.g. *engine.OPAAuthorizer).
type PolicyChecker interface {
	HealthCheck(ctx context.Context) error
}

// Server reports liveness and readiness over HTTP and feeds the gRPC health service.
type Server struct {
	pinger Pinger
	policy PolicyChecker
}

// NewServer returns a health Server. A nil pinger or policy checker is skipped.
func NewServer(pinger Pinger, policy PolicyChecker) *Server {
	return &Server{pinger: pinger, policy: policy}
}

// Check returns nil when every configured dependency is healthy.
func (s *Server) Check(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()
	if s.pinger != nil {
		if err := s.pinger.PingContext(ctx); err != nil {
			return fmt.Errorf("database: %w", err)
		}
	}
	if s.policy != nil {
		if err := s.policy.HealthCheck(ctx); err != nil {
			return fmt.Errorf("policy engine: %w", err)
		}
	}
	return nil
}

type statusResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// Liveness handles GET /healthz. The process is up if it can answer.
func (s *Server) Liveness(w http.ResponseWriter, r *http.Request) {
	httperr.JSON(w, http.StatusOK, statusResponse{Status: "ok"})
}

// Readiness handles GET /readyz.
func (s *Server) Readiness(w http.ResponseWriter, r *http.Request) {
	if err := s.Check(r.Context()); err != nil {
		httperr.JSON(w, http.StatusServiceUnavailable, statusResponse{Status: "unavailable", Error: err.Error()})
		return
	}
	httperr.JSON(w, http.StatusOK, statusResponse{Status: "ready"})
}
