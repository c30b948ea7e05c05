package models

import (
	"time"

	"github.com/google/uuid"
)

// OverrideExpiry is how long a supervisor override request stays actionable
const OverrideExpiry = 2 * time.Hour

// OverrideUrgency ranks how quickly a supervisor should act
type OverrideUrgency string

const (
	UrgencyLow      OverrideUrgency = "low"
	UrgencyMedium   OverrideUrgency = "medium"
	UrgencyHigh     OverrideUrgency = "high"
	UrgencyCritical OverrideUrgency = "critical"
)

// Rank returns a sortable weight for the urgency, higher is more urgent
func (u OverrideUrgency) Rank() int {
	switch u {
	case UrgencyCritical:
		return 4
	case UrgencyHigh:
		return 3
	case UrgencyMedium:
		return 2
	case UrgencyLow:
		return 1
	}
	return 0
}

// OverrideStatus is the lifecycle state of an override request
type OverrideStatus string

const (
	OverrideStatusPending  OverrideStatus = "pending"
	OverrideStatusApproved OverrideStatus = "approved"
	OverrideStatusDenied   OverrideStatus = "denied"
	OverrideStatusExpired  OverrideStatus = "expired"
)

// SupervisorOverrideRequest is an escalation instance tied to one workflow.
// A supervisor can release an engaged kill switch before the workflow
// completes by approving one of these.
type SupervisorOverrideRequest struct {
	ID              uuid.UUID       `json:"id" db:"id"`
	WorkflowID      uuid.UUID       `json:"workflow_id" db:"workflow_id"`
	ReportID        uuid.UUID       `json:"report_id" db:"report_id"`
	VehicleID       uuid.UUID       `json:"vehicle_id" db:"vehicle_id"`
	FleetID         uuid.UUID       `json:"fleet_id" db:"fleet_id"`
	RequesterID     uuid.UUID       `json:"requester_id" db:"requester_id"`
	AssignedTo      *uuid.UUID      `json:"assigned_to,omitempty" db:"assigned_to"`
	Reason          string          `json:"reason" db:"reason"`
	Urgency         OverrideUrgency `json:"urgency" db:"urgency"`
	Status          OverrideStatus  `json:"status" db:"status"`
	RequestedAt     time.Time       `json:"requested_at" db:"requested_at"`
	ExpiresAt       time.Time       `json:"expires_at" db:"expires_at"`
	ResolvedBy      *uuid.UUID      `json:"resolved_by,omitempty" db:"resolved_by"`
	ResolutionNotes *string         `json:"resolution_notes,omitempty" db:"resolution_notes"`
	ResolvedAt      *time.Time      `json:"resolved_at,omitempty" db:"resolved_at"`
}

// Expired reports whether the request is past its expiry at the given time
func (r *SupervisorOverrideRequest) Expired(now time.Time) bool {
	return now.After(r.ExpiresAt)
}
