package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/fleetsafety/immobilizer/internal/models"
)

// EventRepository handles the append-only kill-switch audit trail
type EventRepository struct {
	db *sql.DB
}

// NewEventRepository creates a new event repository
func NewEventRepository(db *sql.DB) *EventRepository {
	return &EventRepository{db: db}
}

const eventColumns = `id, vehicle_id, fleet_id, report_id, event_type, actor_id,
	       reason, latitude, longitude, metadata, created_at`

// Append inserts an audit event. Events are never updated or deleted.
func (r *EventRepository) Append(ctx context.Context, e *models.KillSwitchEvent) error {
	query := `
		INSERT INTO kill_switch_events (
			id, vehicle_id, fleet_id, report_id, event_type, actor_id,
			reason, latitude, longitude, metadata, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}

	_, err := r.db.ExecContext(ctx, query,
		e.ID, e.VehicleID, e.FleetID, e.ReportID, e.EventType, e.ActorID,
		e.Reason, e.Latitude, e.Longitude, e.Metadata, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append kill-switch event: %w", err)
	}

	return nil
}

// ListByVehicle retrieves events for a vehicle, newest first
func (r *EventRepository) ListByVehicle(ctx context.Context, vehicleID uuid.UUID, limit, offset int) ([]models.KillSwitchEvent, error) {
	query := `SELECT ` + eventColumns + `
		FROM kill_switch_events
		WHERE vehicle_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`

	return r.list(ctx, query, vehicleID, limit, offset)
}

// ListByReport retrieves events for a report, newest first
func (r *EventRepository) ListByReport(ctx context.Context, reportID uuid.UUID, limit, offset int) ([]models.KillSwitchEvent, error) {
	query := `SELECT ` + eventColumns + `
		FROM kill_switch_events
		WHERE report_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`

	return r.list(ctx, query, reportID, limit, offset)
}

func (r *EventRepository) list(ctx context.Context, query string, id uuid.UUID, limit, offset int) ([]models.KillSwitchEvent, error) {
	rows, err := r.db.QueryContext(ctx, query, id, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list kill-switch events: %w", err)
	}
	defer rows.Close()

	var events []models.KillSwitchEvent
	for rows.Next() {
		e := models.KillSwitchEvent{}
		err := rows.Scan(
			&e.ID, &e.VehicleID, &e.FleetID, &e.ReportID, &e.EventType, &e.ActorID,
			&e.Reason, &e.Latitude, &e.Longitude, &e.Metadata, &e.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan kill-switch event: %w", err)
		}
		events = append(events, e)
	}

	return events, rows.Err()
}
