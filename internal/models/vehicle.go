package models

import (
	"time"

	"github.com/google/uuid"
)

// KillSwitchStatus is the locally recorded immobilization state of a vehicle
type KillSwitchStatus string

const (
	KillSwitchInactive KillSwitchStatus = "inactive"
	KillSwitchEngaged  KillSwitchStatus = "engaged"
)

// SyncStatus records whether the vendor has confirmed the locally recorded
// kill-switch state. pending_sync marks vehicles the reconciler must revisit.
type SyncStatus string

const (
	SyncStatusSynced      SyncStatus = "synced"
	SyncStatusPendingSync SyncStatus = "pending_sync"
)

// Vehicle identifies a physical fleet asset
type Vehicle struct {
	ID                uuid.UUID        `json:"id" db:"id"`
	FleetID           uuid.UUID        `json:"fleet_id" db:"fleet_id"`
	Name              string           `json:"name" db:"name"`
	KillSwitchEnabled bool             `json:"kill_switch_enabled" db:"kill_switch_enabled"`
	KillSwitchStatus  KillSwitchStatus `json:"kill_switch_status" db:"kill_switch_status"`
	SyncStatus        SyncStatus       `json:"sync_status" db:"sync_status"`
	ProviderID        *uuid.UUID       `json:"provider_id,omitempty" db:"provider_id"`
	VendorDeviceID    *string          `json:"vendor_device_id,omitempty" db:"vendor_device_id"`
	LastLatitude      *float64         `json:"last_latitude,omitempty" db:"last_latitude"`
	LastLongitude     *float64         `json:"last_longitude,omitempty" db:"last_longitude"`
	LastLocationAt    *time.Time       `json:"last_location_at,omitempty" db:"last_location_at"`
	CreatedAt         time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time        `json:"updated_at" db:"updated_at"`
}

// HasVendorConfig reports whether the vehicle can receive vendor commands
func (v *Vehicle) HasVendorConfig() bool {
	return v.ProviderID != nil && v.VendorDeviceID != nil && *v.VendorDeviceID != ""
}
