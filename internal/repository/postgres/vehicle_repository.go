package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/fleetsafety/immobilizer/internal/models"
	"github.com/fleetsafety/immobilizer/pkg/errs"
)

// VehicleRepository handles vehicle database operations
type VehicleRepository struct {
	db *sql.DB
}

// NewVehicleRepository creates a new vehicle repository
func NewVehicleRepository(db *sql.DB) *VehicleRepository {
	return &VehicleRepository{db: db}
}

const vehicleColumns = `id, fleet_id, name, kill_switch_enabled, kill_switch_status,
	       sync_status, provider_id, vendor_device_id, last_latitude,
	       last_longitude, last_location_at, created_at, updated_at`

func scanVehicle(row interface{ Scan(...interface{}) error }) (*models.Vehicle, error) {
	v := &models.Vehicle{}
	err := row.Scan(
		&v.ID, &v.FleetID, &v.Name, &v.KillSwitchEnabled, &v.KillSwitchStatus,
		&v.SyncStatus, &v.ProviderID, &v.VendorDeviceID, &v.LastLatitude,
		&v.LastLongitude, &v.LastLocationAt, &v.CreatedAt, &v.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return v, nil
}

// Create inserts a new vehicle
func (r *VehicleRepository) Create(ctx context.Context, v *models.Vehicle) error {
	query := `
		INSERT INTO vehicles (
			id, fleet_id, name, kill_switch_enabled, kill_switch_status,
			sync_status, provider_id, vendor_device_id, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	now := time.Now()
	v.CreatedAt = now
	v.UpdatedAt = now
	if v.KillSwitchStatus == "" {
		v.KillSwitchStatus = models.KillSwitchInactive
	}
	if v.SyncStatus == "" {
		v.SyncStatus = models.SyncStatusSynced
	}

	_, err := r.db.ExecContext(ctx, query,
		v.ID, v.FleetID, v.Name, v.KillSwitchEnabled, v.KillSwitchStatus,
		v.SyncStatus, v.ProviderID, v.VendorDeviceID, v.CreatedAt, v.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create vehicle: %w", err)
	}

	return nil
}

// GetByID retrieves a vehicle by ID
func (r *VehicleRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Vehicle, error) {
	query := `SELECT ` + vehicleColumns + ` FROM vehicles WHERE id = $1`

	v, err := scanVehicle(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, errs.NotFound("vehicle %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get vehicle: %w", err)
	}

	return v, nil
}

// UpdateKillSwitch sets the kill-switch status and sync status. Only the
// kill-switch controller writes these fields.
func (r *VehicleRepository) UpdateKillSwitch(ctx context.Context, id uuid.UUID, status models.KillSwitchStatus, sync models.SyncStatus) error {
	query := `
		UPDATE vehicles
		SET kill_switch_status = $2,
		    sync_status = $3,
		    updated_at = NOW()
		WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query, id, status, sync)
	if err != nil {
		return fmt.Errorf("failed to update kill switch status: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return errs.NotFound("vehicle %s", id)
	}

	return nil
}

// MarkSynced records vendor confirmation of the current local state
func (r *VehicleRepository) MarkSynced(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE vehicles SET sync_status = $2, updated_at = NOW() WHERE id = $1`

	if _, err := r.db.ExecContext(ctx, query, id, models.SyncStatusSynced); err != nil {
		return fmt.Errorf("failed to mark vehicle synced: %w", err)
	}
	return nil
}

// ListPendingSync retrieves vehicles whose local state has not been
// confirmed by the vendor, oldest first
func (r *VehicleRepository) ListPendingSync(ctx context.Context, limit int) ([]models.Vehicle, error) {
	query := `SELECT ` + vehicleColumns + `
		FROM vehicles
		WHERE sync_status = $1
		ORDER BY updated_at ASC
		LIMIT $2`

	rows, err := r.db.QueryContext(ctx, query, models.SyncStatusPendingSync, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending-sync vehicles: %w", err)
	}
	defer rows.Close()

	var vehicles []models.Vehicle
	for rows.Next() {
		v, err := scanVehicle(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan vehicle: %w", err)
		}
		vehicles = append(vehicles, *v)
	}

	return vehicles, rows.Err()
}

// UpdateLocation stores the vehicle's last known location
func (r *VehicleRepository) UpdateLocation(ctx context.Context, id uuid.UUID, lat, lng float64, at time.Time) error {
	query := `
		UPDATE vehicles
		SET last_latitude = $2, last_longitude = $3, last_location_at = $4, updated_at = NOW()
		WHERE id = $1`

	if _, err := r.db.ExecContext(ctx, query, id, lat, lng, at); err != nil {
		return fmt.Errorf("failed to update vehicle location: %w", err)
	}
	return nil
}
