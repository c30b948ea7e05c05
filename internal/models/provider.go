package models

import (
	"time"

	"github.com/google/uuid"
)

// Known vendor family names. "generic" is driven entirely by the provider's
// stored configuration.
const (
	VendorGeotab        = "geotab"
	VendorSamsara       = "samsara"
	VendorVerizon       = "verizon"
	VendorFleetComplete = "fleetcomplete"
	VendorTeletrac      = "teletrac"
	VendorGeneric       = "generic"
)

// VendorProvider is the per-fleet telematics provider configuration a
// vehicle points at. The credential blob is encrypted at rest and decrypted
// only transiently when a command must be sent.
type VendorProvider struct {
	ID                  uuid.UUID `json:"id" db:"id"`
	FleetID             uuid.UUID `json:"fleet_id" db:"fleet_id"`
	Vendor              string    `json:"vendor" db:"vendor"`
	Endpoint            string    `json:"endpoint" db:"endpoint"`
	EncryptedCredential string    `json:"-" db:"encrypted_credential"`
	Config              JSONB     `json:"config,omitempty" db:"config"`
	CreatedAt           time.Time `json:"created_at" db:"created_at"`
	UpdatedAt           time.Time `json:"updated_at" db:"updated_at"`
}
