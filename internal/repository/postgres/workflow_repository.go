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

// ErrVersionConflict is returned when an optimistic-concurrency update loses
// the race to a concurrent writer
var ErrVersionConflict = fmt.Errorf("workflow completion version conflict")

// WorkflowRepository handles workflow completion database operations
type WorkflowRepository struct {
	db *sql.DB
}

// NewWorkflowRepository creates a new workflow completion repository
func NewWorkflowRepository(db *sql.DB) *WorkflowRepository {
	return &WorkflowRepository{db: db}
}

const workflowColumns = `id, report_id, fleet_id, vehicle_id, driver_id, required_steps,
	       completed_steps, completion_percentage, is_complete,
	       kill_switch_engaged, kill_switch_engaged_at, kill_switch_released_at,
	       override_requested, override_approved, version, created_at, updated_at`

func scanWorkflow(row interface{ Scan(...interface{}) error }) (*models.WorkflowCompletion, error) {
	w := &models.WorkflowCompletion{}
	err := row.Scan(
		&w.ID, &w.ReportID, &w.FleetID, &w.VehicleID, &w.DriverID, &w.RequiredSteps,
		&w.CompletedSteps, &w.CompletionPercentage, &w.IsComplete,
		&w.KillSwitchEngaged, &w.KillSwitchEngagedAt, &w.KillSwitchReleasedAt,
		&w.OverrideRequested, &w.OverrideApproved, &w.Version, &w.CreatedAt, &w.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return w, nil
}

// Create inserts a new workflow completion record
func (r *WorkflowRepository) Create(ctx context.Context, w *models.WorkflowCompletion) error {
	query := `
		INSERT INTO workflow_completions (
			id, report_id, fleet_id, vehicle_id, driver_id, required_steps,
			completed_steps, completion_percentage, is_complete,
			kill_switch_engaged, override_requested, override_approved,
			version, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`

	now := time.Now()
	w.CreatedAt = now
	w.UpdatedAt = now
	w.Version = 1

	_, err := r.db.ExecContext(ctx, query,
		w.ID, w.ReportID, w.FleetID, w.VehicleID, w.DriverID, w.RequiredSteps,
		w.CompletedSteps, w.CompletionPercentage, w.IsComplete,
		w.KillSwitchEngaged, w.OverrideRequested, w.OverrideApproved,
		w.Version, w.CreatedAt, w.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create workflow completion: %w", err)
	}

	return nil
}

// GetByReportID retrieves the workflow completion for a report
func (r *WorkflowRepository) GetByReportID(ctx context.Context, reportID uuid.UUID) (*models.WorkflowCompletion, error) {
	query := `SELECT ` + workflowColumns + ` FROM workflow_completions WHERE report_id = $1`

	w, err := scanWorkflow(r.db.QueryRowContext(ctx, query, reportID))
	if err == sql.ErrNoRows {
		return nil, errs.NotFound("workflow completion for report %s", reportID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get workflow completion: %w", err)
	}

	return w, nil
}

// Update persists a workflow completion guarded by its version. The version
// the caller read must still be current or ErrVersionConflict is returned;
// on success the in-memory version is bumped to match the row.
func (r *WorkflowRepository) Update(ctx context.Context, w *models.WorkflowCompletion) error {
	query := `
		UPDATE workflow_completions
		SET completed_steps = $2,
		    completion_percentage = $3,
		    is_complete = $4,
		    kill_switch_engaged = $5,
		    kill_switch_engaged_at = $6,
		    kill_switch_released_at = $7,
		    override_requested = $8,
		    override_approved = $9,
		    version = version + 1,
		    updated_at = NOW()
		WHERE id = $1 AND version = $10`

	result, err := r.db.ExecContext(ctx, query,
		w.ID, w.CompletedSteps, w.CompletionPercentage, w.IsComplete,
		w.KillSwitchEngaged, w.KillSwitchEngagedAt, w.KillSwitchReleasedAt,
		w.OverrideRequested, w.OverrideApproved, w.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to update workflow completion: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrVersionConflict
	}

	w.Version++
	return nil
}
