package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/otel"

	"fleet-control-plane/internal/allowlist"
	"fleet-control-plane/internal/audit"
	"fleet-control-plane/internal/challenge"
	"fleet-control-plane/internal/config"
	deviceservice "fleet-control-plane/internal/device/service"
	healthhandler "fleet-control-plane/internal/health/handler"
	"fleet-control-plane/internal/logging"
	"fleet-control-plane/internal/platform/rbac"
	"fleet-control-plane/internal/policy/engine"
	"fleet-control-plane/internal/server"
	"fleet-control-plane/internal/server/middleware"
	sessionservice "fleet-control-plane/internal/session/service"
	"fleet-control-plane/internal/telemetry"
	telemetryotel "fleet-control-plane/internal/telemetry/otel"
	"fleet-control-plane/internal/tokencache"
)

const appName = "fleet-control-plane"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logCloser := logging.Setup(logging.Options{File: cfg.LogFile, MaxSizeMB: cfg.LogMaxSizeMB})
	defer logCloser.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	providers, err := telemetryotel.NewProviders(ctx, telemetryotel.Options{
		Endpoint: cfg.OTLPEndpoint,
		Insecure: cfg.OTLPInsecure,
	})
	if err != nil {
		log.Fatalf("telemetry: %v", err)
	}
	providers.SetGlobal()
	emitter := telemetryotel.NewEventEmitter(providers.LoggerProvider)

	st, err := openStores(ctx, cfg)
	if err != nil {
		log.Fatalf("stores: %v", err)
	}
	defer st.Close()

	tokens, err := loadTokenProvider(cfg)
	if err != nil {
		log.Fatalf("jwt keys: %v", err)
	}

	cache, err := tokencache.NewMemoryCache(cfg.TokenCacheSize, cfg.TokenCacheTTL(),
		tokencache.WithMeter(otel.Meter("fleet.tokencache")))
	if err != nil {
		log.Fatalf("token cache: %v", err)
	}

	allow := allowlist.Parse(cfg.AllowedWallets)
	if allow.IsPublicMode() {
		log.Println("allow-list is empty: running in public mode")
	} else {
		log.Printf("allow-list loaded with %d addresses", allow.Len())
	}

	challenges := challenge.NewMemoryStore(cfg.NonceTTL(), appName)
	sessions := sessionservice.NewManager(st.users, st.sessions, cache, allow, nil, tokens,
		sessionservice.WithChallenges(challenges, cfg.RequireNonce),
		sessionservice.WithAdminWallets(cfg.AdminWalletsList()),
	)

	authz, err := engine.NewOPAAuthorizerFromFile(ctx, cfg.PolicyFile)
	if err != nil {
		log.Fatalf("policy: %v", err)
	}
	guard := rbac.NewGuard(authz, allow)

	registry := deviceservice.NewRegistry(st.devices)
	mainIP, mainPort := mainEndpoint(cfg)
	mainDevice, err := registry.EnsureMain(ctx, cfg.MainDeviceName, mainIP, mainPort)
	if err != nil {
		log.Fatalf("main device: %v", err)
	}
	log.Printf("main device %s (%s)", mainDevice.ID, mainDevice.BaseURL())

	var node *middleware.NodeIdentity
	if cfg.IsNode() {
		node = &middleware.NodeIdentity{DeviceID: cfg.NodeDeviceID, APIKey: cfg.NodeAPIKey}
		log.Printf("accepting proxied calls as device %s", cfg.NodeDeviceID)
	}

	health := healthhandler.NewServer(st.pinger(), authz)
	handler := server.NewHTTPHandler(server.Deps{
		Sessions:         sessions,
		Registry:         registry,
		Guard:            guard,
		AllowList:        allow,
		Challenges:       challenges,
		Health:           health,
		AuditLogger:      audit.NewLogger(st.audit, middleware.ClientIPFromContext),
		AuditLogs:        st.audit,
		Emitter:          emitter,
		Node:             node,
		ProxyTimeout:     cfg.ProxyTimeout(),
		DeviceStaleAfter: cfg.DeviceStaleAfter(),
		Debug:            cfg.Debug,
	})

	httpSrv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Printf("HTTP server listening on %s", cfg.HTTPAddr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("http serve: %v", err)
		}
	}()

	grpcSrv, healthSrv := server.NewGRPCServer()
	if cfg.GRPCAddr != "" {
		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			log.Fatalf("listen: %v", err)
		}
		go health.Watch(ctx, healthSrv, 10*time.Second)
		go func() {
			log.Printf("gRPC health server listening on %s", cfg.GRPCAddr)
			if err := grpcSrv.Serve(lis); err != nil {
				log.Fatalf("grpc serve: %v", err)
			}
		}()
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Println("shutting down...")
	cancel()
	healthSrv.Shutdown()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Printf("http shutdown: %v", err)
	}
	grpcSrv.GracefulStop()

	if !telemetry.Drain(telemetry.ShutdownDrainDuration) {
		log.Println("telemetry: gave up waiting for in-flight events")
	}
	if err := providers.Shutdown(shutdownCtx); err != nil {
		log.Printf("telemetry shutdown: %v", err)
	}
	log.Println("server stopped")
}
