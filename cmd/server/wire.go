package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net"
	"strconv"

	auditrepo "fleet-control-plane/internal/audit/repository"
	"fleet-control-plane/internal/config"
	"fleet-control-plane/internal/db"
	"fleet-control-plane/internal/db/migrate"
	devicerepo "fleet-control-plane/internal/device/repository"
	healthhandler "fleet-control-plane/internal/health/handler"
	"fleet-control-plane/internal/security"
	sessionrepo "fleet-control-plane/internal/session/repository"
	userrepo "fleet-control-plane/internal/user/repository"
)

// stores bundles the repositories behind the services. conn is nil for in-memory stores.
type stores struct {
	conn     *sql.DB
	users    userrepo.Repository
	sessions sessionrepo.Repository
	devices  devicerepo.Repository
	audit    auditrepo.Repository
}

// openStores connects to Postgres and applies migrations when DATABASE_URL is set;
// otherwise every store is in-memory and lost on restart.
func openStores(ctx context.Context, cfg *config.Config) (*stores, error) {
	if cfg.DatabaseURL == "" {
		if cfg.IsProduction() {
			return nil, errors.New("DATABASE_URL must be set when APP_ENV=production")
		}
		log.Println("DATABASE_URL not set: using in-memory stores")
		return &stores{
			users:    userrepo.NewMemoryRepository(),
			sessions: sessionrepo.NewMemoryRepository(),
			devices:  devicerepo.NewMemoryRepository(),
			audit:    auditrepo.NewMemoryRepository(),
		}, nil
	}
	if err := migrate.Run(cfg.DatabaseURL, migrate.DirectionUp); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	conn, err := db.OpenContext(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	return &stores{
		conn:     conn,
		users:    userrepo.NewPostgresRepository(conn),
		sessions: sessionrepo.NewPostgresRepository(conn),
		devices:  devicerepo.NewPostgresRepository(conn),
		audit:    auditrepo.NewPostgresRepository(conn),
	}, nil
}

func (s *stores) pinger() healthhandler.Pinger {
	if s.conn == nil {
		return nil
	}
	return s.conn
}

func (s *stores) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Close()
}

// loadTokenProvider builds the JWT signer from the configured PEM pair, or an ephemeral
// P-256 key when none is configured (rejected in production by config.Load).
func loadTokenProvider(cfg *config.Config) (*security.TokenProvider, error) {
	if cfg.JWTPrivateKey == "" {
		log.Println("JWT keys not configured: generating an ephemeral signing key; sessions will not survive a restart")
		priv, pub, err := security.GenerateEphemeralKey()
		if err != nil {
			return nil, err
		}
		return security.NewTokenProvider(priv, pub, cfg.JWTIssuer, cfg.JWTAudience, cfg.SessionTTL()), nil
	}
	priv, pub, err := security.LoadKeyPair(cfg.JWTPrivateKey, cfg.JWTPublicKey)
	if err != nil {
		return nil, err
	}
	return security.NewTokenProvider(priv, pub, cfg.JWTIssuer, cfg.JWTAudience, cfg.SessionTTL()), nil
}

// mainEndpoint derives the main device's address from HTTP_ADDR. MAIN_DEVICE_PORT overrides
// the port; an unspecified host is recorded as loopback.
func mainEndpoint(cfg *config.Config) (string, int) {
	host, portStr, err := net.SplitHostPort(cfg.HTTPAddr)
	if err != nil {
		host, portStr = "", ""
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	port, _ := strconv.Atoi(portStr)
	if cfg.MainDevicePort > 0 {
		port = cfg.MainDevicePort
	}
	return host, port
}
