// Worker runs the background jobs of a fleet node: the device heartbeat to MAIN_URL (when
// NODE_DEVICE_ID, NODE_API_KEY and MAIN_URL are set) and the expired-session purge (when
// DATABASE_URL is set). At least one of the two must be configured.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"fleet-control-plane/internal/config"
	"fleet-control-plane/internal/db"
	"fleet-control-plane/internal/device/heartbeat"
	"fleet-control-plane/internal/logging"
	"fleet-control-plane/internal/router"
	sessionrepo "fleet-control-plane/internal/session/repository"
	sessionservice "fleet-control-plane/internal/session/service"
	"fleet-control-plane/internal/telemetry"
	telemetryotel "fleet-control-plane/internal/telemetry/otel"
)

const purgeInterval = 15 * time.Minute

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logCloser := logging.Setup(logging.Options{File: cfg.LogFile, MaxSizeMB: cfg.LogMaxSizeMB, Prefix: "worker: "})
	defer logCloser.Close()

	runHeartbeat := cfg.IsNode() && cfg.MainURL != ""
	runPurge := cfg.DatabaseURL != ""
	if !runHeartbeat && !runPurge {
		log.Fatal("nothing to do: set NODE_DEVICE_ID, NODE_API_KEY and MAIN_URL, or DATABASE_URL")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
		<-quit
		log.Println("shutting down...")
		cancel()
	}()

	providers, err := telemetryotel.NewProviders(ctx, telemetryotel.Options{
		Endpoint:    cfg.OTLPEndpoint,
		Insecure:    cfg.OTLPInsecure,
		ServiceName: "fleet-worker",
	})
	if err != nil {
		log.Fatalf("telemetry: %v", err)
	}
	providers.SetGlobal()
	emitter := telemetryotel.NewEventEmitter(providers.LoggerProvider)

	var wg sync.WaitGroup
	if runHeartbeat {
		client := router.NewClient(cfg.MainURL, &http.Client{Timeout: cfg.ProxyTimeout()})
		agent := heartbeat.NewAgent(client, cfg.NodeDeviceID, cfg.NodeAPIKey, cfg.HeartbeatInterval(), emitter)
		log.Printf("heartbeat: device %s -> %s every %s", cfg.NodeDeviceID, cfg.MainURL, cfg.HeartbeatInterval())
		wg.Add(1)
		go func() {
			defer wg.Done()
			agent.Run(ctx)
		}()
	}
	if runPurge {
		conn, err := db.OpenContext(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("db: %v", err)
		}
		defer conn.Close()
		log.Printf("session purge every %s", purgeInterval)
		wg.Add(1)
		go func() {
			defer wg.Done()
			sessionservice.PurgeExpired(ctx, sessionrepo.NewPostgresRepository(conn), purgeInterval)
		}()
	}

	wg.Wait()
	if !telemetry.Drain(telemetry.ShutdownDrainDuration) {
		log.Println("telemetry: gave up waiting for in-flight events")
	}
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := providers.Shutdown(shutdownCtx); err != nil {
		log.Printf("telemetry shutdown: %v", err)
	}
	log.Println("stopped")
}
