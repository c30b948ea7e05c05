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

// ProviderRepository handles vendor provider configuration operations
type ProviderRepository struct {
	db *sql.DB
}

// NewProviderRepository creates a new provider repository
func NewProviderRepository(db *sql.DB) *ProviderRepository {
	return &ProviderRepository{db: db}
}

// Create inserts a new vendor provider configuration
func (r *ProviderRepository) Create(ctx context.Context, p *models.VendorProvider) error {
	query := `
		INSERT INTO vendor_providers (
			id, fleet_id, vendor, endpoint, encrypted_credential, config,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	now := time.Now()
	p.CreatedAt = now
	p.UpdatedAt = now

	_, err := r.db.ExecContext(ctx, query,
		p.ID, p.FleetID, p.Vendor, p.Endpoint, p.EncryptedCredential, p.Config,
		p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create vendor provider: %w", err)
	}

	return nil
}

// GetByID retrieves a provider configuration by ID
func (r *ProviderRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.VendorProvider, error) {
	query := `
		SELECT id, fleet_id, vendor, endpoint, encrypted_credential, config,
		       created_at, updated_at
		FROM vendor_providers
		WHERE id = $1`

	p := &models.VendorProvider{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&p.ID, &p.FleetID, &p.Vendor, &p.Endpoint, &p.EncryptedCredential,
		&p.Config, &p.CreatedAt, &p.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, errs.NotFound("vendor provider %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get vendor provider: %w", err)
	}

	return p, nil
}

// UpdateCredential replaces the encrypted credential blob
func (r *ProviderRepository) UpdateCredential(ctx context.Context, id uuid.UUID, encryptedCredential string) error {
	query := `
		UPDATE vendor_providers
		SET encrypted_credential = $2, updated_at = NOW()
		WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query, id, encryptedCredential)
	if err != nil {
		return fmt.Errorf("failed to update vendor credential: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return errs.NotFound("vendor provider %s", id)
	}

	return nil
}
