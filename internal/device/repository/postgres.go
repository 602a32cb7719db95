package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"fleet-control-plane/internal/db"
	"fleet-control-plane/internal/device/domain"
)

const deviceColumns = `id, name, ip_address, port, api_key, is_main, is_active, last_seen, created_at, updated_at`

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a device repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// List returns all devices ordered by updated_at descending. Returns (nil, error) only on database errors.
func (r *PostgresRepository) List(ctx context.Context) ([]*domain.Device, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+deviceColumns+` FROM devices ORDER BY updated_at DESC, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domain.Device
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// GetByID returns the device for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.Device, error) {
	d, err := scanDevice(r.db.QueryRowContext(ctx, `SELECT `+deviceColumns+` FROM devices WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return d, err
}

// GetMain returns the main device, or nil if none has been registered.
func (r *PostgresRepository) GetMain(ctx context.Context) (*domain.Device, error) {
	d, err := scanDevice(r.db.QueryRowContext(ctx, `SELECT `+deviceColumns+` FROM devices WHERE is_main`))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return d, err
}

// Create persists the device. The device must have ID and APIKey set.
// A second main device violates devices_single_main and yields ErrMainExists.
func (r *PostgresRepository) Create(ctx context.Context, d *domain.Device) error {
	if err := d.Validate(); err != nil {
		return err
	}
	lastSeen := sql.NullTime{}
	if d.LastSeen != nil {
		lastSeen = sql.NullTime{Time: *d.LastSeen, Valid: true}
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO devices (`+deviceColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		d.ID, d.Name, d.IPAddress, d.Port, d.APIKey, d.IsMain, d.IsActive, lastSeen, d.CreatedAt, d.UpdatedAt)
	if d.IsMain && db.IsUniqueViolation(err) {
		return ErrMainExists
	}
	return err
}

// UpdateLiveness records a heartbeat for id in one UPDATE statement.
func (r *PostgresRepository) UpdateLiveness(ctx context.Context, id string, at time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE devices SET last_seen = $2, is_active = TRUE, updated_at = $2 WHERE id = $1`, id, at)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDevice(row rowScanner) (*domain.Device, error) {
	var d domain.Device
	var lastSeen sql.NullTime
	if err := row.Scan(&d.ID, &d.Name, &d.IPAddress, &d.Port, &d.APIKey, &d.IsMain, &d.IsActive,
		&lastSeen, &d.CreatedAt, &d.UpdatedAt); err != nil {
		return nil, err
	}
	if lastSeen.Valid {
		t := lastSeen.Time
		d.LastSeen = &t
	}
	return &d, nil
}
