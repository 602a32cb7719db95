// Package service implements the device registry and the heartbeat handler.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"fleet-control-plane/internal/device/domain"
	devicerepo "fleet-control-plane/internal/device/repository"
	"fleet-control-plane/internal/security"
)

var (
	ErrMissingField             = errors.New("name and ipAddress are required")
	ErrInvalidPort              = errors.New("port must be between 1 and 65535")
	ErrMissingFields            = errors.New("deviceId and apiKey are required")
	ErrInvalidDeviceCredentials = errors.New("invalid device credentials")
	ErrNotFound                 = errors.New("device not found")
	ErrPersistence              = errors.New("device store unavailable")
)

// CreateInput describes a device to register. Port 0 means domain.DefaultPort.
type CreateInput struct {
	Name      string
	IPAddress string
	Port      int
}

// Registry owns device records: registration, listing, credential checks and heartbeats.
type Registry struct {
	repo devicerepo.Repository
	nowF func() time.Time
}

// NewRegistry returns a Registry backed by repo.
func NewRegistry(repo devicerepo.Repository) *Registry {
	return &Registry{repo: repo, nowF: func() time.Time { return time.Now().UTC() }}
}

// List returns every device, most recently updated first.
func (s *Registry) List(ctx context.Context) ([]*domain.Device, error) {
	list, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return list, nil
}

// Get returns the device for id. Returns ErrNotFound when no such device exists.
func (s *Registry) Get(ctx context.Context, id string) (*domain.Device, error) {
	if strings.TrimSpace(id) == "" {
		return nil, ErrNotFound
	}
	d, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	if d == nil {
		return nil, ErrNotFound
	}
	return d, nil
}

// Create registers a remote device with a freshly generated API key.
func (s *Registry) Create(ctx context.Context, in CreateInput) (*domain.Device, error) {
	name := strings.TrimSpace(in.Name)
	ip := strings.TrimSpace(in.IPAddress)
	if name == "" || ip == "" {
		return nil, ErrMissingField
	}
	port := in.Port
	if port == 0 {
		port = domain.DefaultPort
	}
	if port < 1 || port > 65535 {
		return nil, ErrInvalidPort
	}
	return s.insert(ctx, name, ip, port, false)
}

// EnsureMain returns the main device, registering it for the local node if absent.
func (s *Registry) EnsureMain(ctx context.Context, name, ip string, port int) (*domain.Device, error) {
	d, err := s.repo.GetMain(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	if d != nil {
		return d, nil
	}
	if port == 0 {
		port = domain.DefaultPort
	}
	d, err = s.insert(ctx, name, ip, port, true)
	if errors.Is(err, devicerepo.ErrMainExists) {
		// Another process registered it first.
		return s.repo.GetMain(ctx)
	}
	return d, err
}

// ValidateCredentials reports whether apiKey is the key of device deviceID. It is false for
// empty input, unknown devices and store failures.
func (s *Registry) ValidateCredentials(ctx context.Context, deviceID, apiKey string) bool {
	if deviceID == "" || apiKey == "" {
		return false
	}
	d, err := s.repo.GetByID(ctx, deviceID)
	if err != nil || d == nil {
		return false
	}
	return security.APIKeyEqual(apiKey, d.APIKey)
}

// Ping records a heartbeat from a device presenting its own credential.
// On bad credentials the record is not touched.
func (s *Registry) Ping(ctx context.Context, deviceID, apiKey string) error {
	deviceID = strings.TrimSpace(deviceID)
	if deviceID == "" || apiKey == "" {
		return ErrMissingFields
	}
	if !s.ValidateCredentials(ctx, deviceID, apiKey) {
		return ErrInvalidDeviceCredentials
	}
	ok, err := s.repo.UpdateLiveness(ctx, deviceID, s.nowF())
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	if !ok {
		return ErrInvalidDeviceCredentials
	}
	return nil
}

func (s *Registry) insert(ctx context.Context, name, ip string, port int, isMain bool) (*domain.Device, error) {
	key, err := security.GenerateAPIKey()
	if err != nil {
		return nil, fmt.Errorf("generate api key: %w", err)
	}
	now := s.nowF()
	d := &domain.Device{
		ID:        uuid.New().String(),
		Name:      name,
		IPAddress: ip,
		Port:      port,
		APIKey:    key,
		IsMain:    isMain,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if isMain {
		d.IsActive = true
		d.LastSeen = &now
	}
	if err := s.repo.Create(ctx, d); err != nil {
		if errors.Is(err, devicerepo.ErrMainExists) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return d, nil
}
