package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/fleetsafety/immobilizer/internal/models"
)

// PhotoRepository handles report photo database operations. Only the surface
// the validation gate needs lives here; full photo CRUD is owned elsewhere.
type PhotoRepository struct {
	db *sql.DB
}

// NewPhotoRepository creates a new photo repository
func NewPhotoRepository(db *sql.DB) *PhotoRepository {
	return &PhotoRepository{db: db}
}

// ListPendingValidation retrieves a report's photos still awaiting validation
func (r *PhotoRepository) ListPendingValidation(ctx context.Context, reportID uuid.UUID) ([]models.ReportPhoto, error) {
	query := `
		SELECT id, report_id, fleet_id, storage_key, validation_status,
		       validated_at, created_at
		FROM report_photos
		WHERE report_id = $1 AND validation_status = $2
		ORDER BY created_at ASC`

	rows, err := r.db.QueryContext(ctx, query, reportID, models.PhotoPending)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending photos: %w", err)
	}
	defer rows.Close()

	var photos []models.ReportPhoto
	for rows.Next() {
		p := models.ReportPhoto{}
		err := rows.Scan(
			&p.ID, &p.ReportID, &p.FleetID, &p.StorageKey, &p.ValidationStatus,
			&p.ValidatedAt, &p.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan photo: %w", err)
		}
		photos = append(photos, p)
	}

	return photos, rows.Err()
}

// ListByReport retrieves all photos for a report
func (r *PhotoRepository) ListByReport(ctx context.Context, reportID uuid.UUID) ([]models.ReportPhoto, error) {
	query := `
		SELECT id, report_id, fleet_id, storage_key, validation_status,
		       validated_at, created_at
		FROM report_photos
		WHERE report_id = $1
		ORDER BY created_at ASC`

	rows, err := r.db.QueryContext(ctx, query, reportID)
	if err != nil {
		return nil, fmt.Errorf("failed to list photos: %w", err)
	}
	defer rows.Close()

	var photos []models.ReportPhoto
	for rows.Next() {
		p := models.ReportPhoto{}
		err := rows.Scan(
			&p.ID, &p.ReportID, &p.FleetID, &p.StorageKey, &p.ValidationStatus,
			&p.ValidatedAt, &p.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan photo: %w", err)
		}
		photos = append(photos, p)
	}

	return photos, rows.Err()
}

// UpdateValidationStatus records the classification result for a photo
func (r *PhotoRepository) UpdateValidationStatus(ctx context.Context, id uuid.UUID, status models.PhotoValidationStatus, at time.Time) error {
	query := `
		UPDATE report_photos
		SET validation_status = $2, validated_at = $3
		WHERE id = $1`

	if _, err := r.db.ExecContext(ctx, query, id, status, at); err != nil {
		return fmt.Errorf("failed to update photo validation status: %w", err)
	}
	return nil
}
