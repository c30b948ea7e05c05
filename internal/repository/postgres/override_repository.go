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

// OverrideRepository handles supervisor override request database operations
type OverrideRepository struct {
	db *sql.DB
}

// NewOverrideRepository creates a new override repository
func NewOverrideRepository(db *sql.DB) *OverrideRepository {
	return &OverrideRepository{db: db}
}

const overrideColumns = `id, workflow_id, report_id, vehicle_id, fleet_id, requester_id,
	       assigned_to, reason, urgency, status, requested_at, expires_at,
	       resolved_by, resolution_notes, resolved_at`

func scanOverride(row interface{ Scan(...interface{}) error }) (*models.SupervisorOverrideRequest, error) {
	o := &models.SupervisorOverrideRequest{}
	err := row.Scan(
		&o.ID, &o.WorkflowID, &o.ReportID, &o.VehicleID, &o.FleetID, &o.RequesterID,
		&o.AssignedTo, &o.Reason, &o.Urgency, &o.Status, &o.RequestedAt, &o.ExpiresAt,
		&o.ResolvedBy, &o.ResolutionNotes, &o.ResolvedAt,
	)
	if err != nil {
		return nil, err
	}
	return o, nil
}

// Create inserts a new override request
func (r *OverrideRepository) Create(ctx context.Context, o *models.SupervisorOverrideRequest) error {
	query := `
		INSERT INTO supervisor_override_requests (
			id, workflow_id, report_id, vehicle_id, fleet_id, requester_id,
			assigned_to, reason, urgency, status, requested_at, expires_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err := r.db.ExecContext(ctx, query,
		o.ID, o.WorkflowID, o.ReportID, o.VehicleID, o.FleetID, o.RequesterID,
		o.AssignedTo, o.Reason, o.Urgency, o.Status, o.RequestedAt, o.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create override request: %w", err)
	}

	return nil
}

// GetByID retrieves an override request by ID
func (r *OverrideRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.SupervisorOverrideRequest, error) {
	query := `SELECT ` + overrideColumns + ` FROM supervisor_override_requests WHERE id = $1`

	o, err := scanOverride(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, errs.NotFound("override request %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get override request: %w", err)
	}

	return o, nil
}

// Resolve transitions a pending request to its terminal status. The WHERE
// clause guards against double resolution; zero rows means the request was
// no longer pending.
func (r *OverrideRepository) Resolve(ctx context.Context, o *models.SupervisorOverrideRequest) error {
	query := `
		UPDATE supervisor_override_requests
		SET status = $2,
		    resolved_by = $3,
		    resolution_notes = $4,
		    resolved_at = $5
		WHERE id = $1 AND status = $6`

	result, err := r.db.ExecContext(ctx, query,
		o.ID, o.Status, o.ResolvedBy, o.ResolutionNotes, o.ResolvedAt,
		models.OverrideStatusPending,
	)
	if err != nil {
		return fmt.Errorf("failed to resolve override request: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return errs.InvalidState("override request %s is not pending", o.ID)
	}

	return nil
}

// ListPending retrieves pending, unexpired requests for a fleet ordered by
// urgency (descending) then request time (ascending). When supervisorID is
// set, restricts to requests unassigned or assigned to that supervisor.
func (r *OverrideRepository) ListPending(ctx context.Context, fleetID uuid.UUID, supervisorID *uuid.UUID) ([]models.SupervisorOverrideRequest, error) {
	query := `SELECT ` + overrideColumns + `
		FROM supervisor_override_requests
		WHERE fleet_id = $1
		  AND status = $2
		  AND expires_at > NOW()
		  AND ($3::uuid IS NULL OR assigned_to IS NULL OR assigned_to = $3)
		ORDER BY CASE urgency
			WHEN 'critical' THEN 4
			WHEN 'high' THEN 3
			WHEN 'medium' THEN 2
			ELSE 1
		END DESC, requested_at ASC`

	rows, err := r.db.QueryContext(ctx, query, fleetID, models.OverrideStatusPending, supervisorID)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending override requests: %w", err)
	}
	defer rows.Close()

	var requests []models.SupervisorOverrideRequest
	for rows.Next() {
		o, err := scanOverride(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan override request: %w", err)
		}
		requests = append(requests, *o)
	}

	return requests, rows.Err()
}

// ExpireOverdue transitions pending requests past their expiry to the
// expired terminal state and returns the affected request IDs
func (r *OverrideRepository) ExpireOverdue(ctx context.Context, now time.Time) ([]uuid.UUID, error) {
	query := `
		UPDATE supervisor_override_requests
		SET status = $1, resolved_at = $2
		WHERE status = $3 AND expires_at < $2
		RETURNING id`

	rows, err := r.db.QueryContext(ctx, query,
		models.OverrideStatusExpired, now, models.OverrideStatusPending,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to expire overdue override requests: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan expired request id: %w", err)
		}
		ids = append(ids, id)
	}

	return ids, rows.Err()
}

// CountPending counts pending, unexpired requests across all fleets
func (r *OverrideRepository) CountPending(ctx context.Context) (int64, error) {
	query := `
		SELECT COUNT(*)
		FROM supervisor_override_requests
		WHERE status = $1 AND expires_at > NOW()`

	var count int64
	if err := r.db.QueryRowContext(ctx, query, models.OverrideStatusPending).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count pending override requests: %w", err)
	}

	return count, nil
}
