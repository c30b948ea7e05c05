package models

import (
	"time"

	"github.com/google/uuid"
)

// PhotoValidationStatus is the AI classification outcome for a report photo
type PhotoValidationStatus string

const (
	PhotoPending      PhotoValidationStatus = "pending"
	PhotoValid        PhotoValidationStatus = "valid"
	PhotoManualReview PhotoValidationStatus = "manual_review"
	PhotoInvalid      PhotoValidationStatus = "invalid"
	PhotoFlagged      PhotoValidationStatus = "flagged"
)

// Passing reports whether the status allows the photo_validation step to
// complete. valid and manual_review pass; anything else blocks.
func (s PhotoValidationStatus) Passing() bool {
	return s == PhotoValid || s == PhotoManualReview
}

// ReportPhoto is the minimal photo surface the validation gate needs
type ReportPhoto struct {
	ID               uuid.UUID             `json:"id" db:"id"`
	ReportID         uuid.UUID             `json:"report_id" db:"report_id"`
	FleetID          uuid.UUID             `json:"fleet_id" db:"fleet_id"`
	StorageKey       string                `json:"storage_key" db:"storage_key"`
	ValidationStatus PhotoValidationStatus `json:"validation_status" db:"validation_status"`
	ValidatedAt      *time.Time            `json:"validated_at,omitempty" db:"validated_at"`
	CreatedAt        time.Time             `json:"created_at" db:"created_at"`
}
