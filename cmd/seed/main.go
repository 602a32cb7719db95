// seed prepares a database for local testing. Run via go run ./cmd/seed.
// Idempotent: admin users from ADMIN_WALLETS are created or promoted, the main device is
// registered if absent, and the optional sample device is skipped when one with the same name exists.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net"
	"strconv"
	"time"

	"github.com/google/uuid"

	"fleet-control-plane/internal/config"
	"fleet-control-plane/internal/db"
	devicerepo "fleet-control-plane/internal/device/repository"
	deviceservice "fleet-control-plane/internal/device/service"
	userdomain "fleet-control-plane/internal/user/domain"
	userrepo "fleet-control-plane/internal/user/repository"
)

func main() {
	deviceName := flag.String("device-name", "", "Register a sample remote device with this name")
	deviceAddr := flag.String("device-addr", "127.0.0.1:3001", "host:port of the sample remote device")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is not set; create a .env from .env.example or set DATABASE_URL")
	}

	conn, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer conn.Close()

	ctx := context.Background()
	users := userrepo.NewPostgresRepository(conn)
	for _, address := range cfg.AdminWalletsList() {
		if err := upsertAdmin(ctx, users, address); err != nil {
			log.Fatalf("admin %s: %v", address, err)
		}
		log.Printf("admin: %s", address)
	}

	registry := deviceservice.NewRegistry(devicerepo.NewPostgresRepository(conn))
	mainPort := cfg.MainDevicePort
	if _, p, err := net.SplitHostPort(cfg.HTTPAddr); err == nil && mainPort == 0 {
		mainPort, _ = strconv.Atoi(p)
	}
	mainDevice, err := registry.EnsureMain(ctx, cfg.MainDeviceName, "127.0.0.1", mainPort)
	if err != nil {
		log.Fatalf("main device: %v", err)
	}
	log.Printf("main device: %s", mainDevice.ID)

	if *deviceName != "" {
		if err := seedDevice(ctx, registry, *deviceName, *deviceAddr); err != nil {
			log.Fatalf("sample device: %v", err)
		}
	}

	log.Println("Seed completed successfully.")
}

func upsertAdmin(ctx context.Context, users *userrepo.PostgresRepository, address string) error {
	u, err := users.GetByAddress(ctx, address)
	if err != nil {
		return err
	}
	if u != nil {
		if u.IsAdmin {
			return nil
		}
		return users.SetAdmin(ctx, u.ID, true)
	}
	now := time.Now().UTC()
	return users.Create(ctx, &userdomain.User{
		ID:        uuid.New().String(),
		Address:   address,
		IsAdmin:   true,
		CreatedAt: now,
		UpdatedAt: now,
	})
}

func seedDevice(ctx context.Context, registry *deviceservice.Registry, name, addr string) error {
	existing, err := registry.List(ctx)
	if err != nil {
		return err
	}
	for _, d := range existing {
		if d.Name == name {
			log.Printf("sample device %q already exists (%s). Skipping.", name, d.ID)
			return nil
		}
	}
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return err
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return fmt.Errorf("invalid port %q", portStr)
	}
	d, err := registry.Create(ctx, deviceservice.CreateInput{Name: name, IPAddress: host, Port: port})
	if err != nil {
		return err
	}
	fmt.Printf("NODE_DEVICE_ID=%s\nNODE_API_KEY=%s\n", d.ID, d.APIKey)
	return nil
}
