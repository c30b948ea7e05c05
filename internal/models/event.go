package models

import (
	"time"

	"github.com/google/uuid"
)

// KillSwitchEventType classifies an audit event
type KillSwitchEventType string

const (
	EventEngaged          KillSwitchEventType = "engaged"
	EventDisengaged       KillSwitchEventType = "disengaged"
	EventOverrideApproved KillSwitchEventType = "override_approved"
	EventOverrideDenied   KillSwitchEventType = "override_denied"
)

// KillSwitchEvent is an immutable audit record. Events are append-only and
// never mutated or deleted.
type KillSwitchEvent struct {
	ID        uuid.UUID           `json:"id" db:"id"`
	VehicleID uuid.UUID           `json:"vehicle_id" db:"vehicle_id"`
	FleetID   uuid.UUID           `json:"fleet_id" db:"fleet_id"`
	ReportID  *uuid.UUID          `json:"report_id,omitempty" db:"report_id"`
	EventType KillSwitchEventType `json:"event_type" db:"event_type"`
	ActorID   uuid.UUID           `json:"actor_id" db:"actor_id"`
	Reason    string              `json:"reason" db:"reason"`
	Latitude  *float64            `json:"latitude,omitempty" db:"latitude"`
	Longitude *float64            `json:"longitude,omitempty" db:"longitude"`
	Metadata  JSONB               `json:"metadata,omitempty" db:"metadata"`
	CreatedAt time.Time           `json:"created_at" db:"created_at"`
}
