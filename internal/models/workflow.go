package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
)

// StepPhotoValidation is the step resolved by the photo validation gate
// rather than a direct driver action
const StepPhotoValidation = "photo_validation"

// StepDefinition describes one required or optional step of the
// accident-report wizard
type StepDefinition struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Required bool   `json:"required"`
	MinCount int    `json:"min_count,omitempty"`
}

// StepList is a JSONB-backed ordered list of step definitions
type StepList []StepDefinition

// Scan implements sql.Scanner for StepList
func (s *StepList) Scan(value interface{}) error {
	if value == nil {
		*s = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("cannot scan %T into StepList", value)
	}
	return json.Unmarshal(bytes, s)
}

// Value implements driver.Valuer for StepList
func (s StepList) Value() (driver.Value, error) {
	if s == nil {
		return json.Marshal([]StepDefinition{})
	}
	return json.Marshal(s)
}

// CompletedStep records one completed step with its completion metadata
type CompletedStep struct {
	StepID      string                 `json:"step_id"`
	CompletedAt time.Time              `json:"completed_at"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}

// CompletedStepList is a JSONB-backed set of completed steps
type CompletedStepList []CompletedStep

// Scan implements sql.Scanner for CompletedStepList
func (c *CompletedStepList) Scan(value interface{}) error {
	if value == nil {
		*c = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("cannot scan %T into CompletedStepList", value)
	}
	return json.Unmarshal(bytes, c)
}

// Value implements driver.Valuer for CompletedStepList
func (c CompletedStepList) Value() (driver.Value, error) {
	if c == nil {
		return json.Marshal([]CompletedStep{})
	}
	return json.Marshal(c)
}

// WorkflowCompletion tracks per-report step completion state. One instance
// exists per accident report and is never deleted.
type WorkflowCompletion struct {
	ID                   uuid.UUID         `json:"id" db:"id"`
	ReportID             uuid.UUID         `json:"report_id" db:"report_id"`
	FleetID              uuid.UUID         `json:"fleet_id" db:"fleet_id"`
	VehicleID            *uuid.UUID        `json:"vehicle_id,omitempty" db:"vehicle_id"`
	DriverID             *uuid.UUID        `json:"driver_id,omitempty" db:"driver_id"`
	RequiredSteps        StepList          `json:"required_steps" db:"required_steps"`
	CompletedSteps       CompletedStepList `json:"completed_steps" db:"completed_steps"`
	CompletionPercentage int               `json:"completion_percentage" db:"completion_percentage"`
	IsComplete           bool              `json:"is_complete" db:"is_complete"`
	KillSwitchEngaged    bool              `json:"kill_switch_engaged" db:"kill_switch_engaged"`
	KillSwitchEngagedAt  *time.Time        `json:"kill_switch_engaged_at,omitempty" db:"kill_switch_engaged_at"`
	KillSwitchReleasedAt *time.Time        `json:"kill_switch_released_at,omitempty" db:"kill_switch_released_at"`
	OverrideRequested    bool              `json:"override_requested" db:"override_requested"`
	OverrideApproved     bool              `json:"override_approved" db:"override_approved"`
	Version              int               `json:"version" db:"version"`
	CreatedAt            time.Time         `json:"created_at" db:"created_at"`
	UpdatedAt            time.Time         `json:"updated_at" db:"updated_at"`
}

// DefaultSteps returns the standard 8-step accident-report wizard
func DefaultSteps() StepList {
	return StepList{
		{ID: "accident_details", Name: "Accident Details", Required: true},
		{ID: "location_capture", Name: "Location Capture", Required: true},
		{ID: "vehicle_damage", Name: "Vehicle Damage Assessment", Required: true},
		{ID: "photos", Name: "Scene Photos", Required: true, MinCount: 3},
		{ID: StepPhotoValidation, Name: "Photo Validation", Required: true},
		{ID: "other_party_info", Name: "Other Party Information", Required: true},
		{ID: "police_report", Name: "Police Report Details", Required: true},
		{ID: "driver_signature", Name: "Driver Signature", Required: true},
	}
}

// HasStep reports whether stepID is part of the workflow's step list
func (w *WorkflowCompletion) HasStep(stepID string) bool {
	for _, s := range w.RequiredSteps {
		if s.ID == stepID {
			return true
		}
	}
	return false
}

// StepCompleted reports whether stepID is in the completed set
func (w *WorkflowCompletion) StepCompleted(stepID string) bool {
	for _, c := range w.CompletedSteps {
		if c.StepID == stepID {
			return true
		}
	}
	return false
}

// MarkStep idempotently adds or removes stepID from the completed set and
// recomputes the derived completion fields. Returns true if the set changed.
func (w *WorkflowCompletion) MarkStep(stepID string, completed bool, metadata map[string]interface{}, now time.Time) bool {
	changed := false
	if completed {
		if !w.StepCompleted(stepID) {
			w.CompletedSteps = append(w.CompletedSteps, CompletedStep{
				StepID:      stepID,
				CompletedAt: now,
				Metadata:    metadata,
			})
			changed = true
		}
	} else {
		for i, c := range w.CompletedSteps {
			if c.StepID == stepID {
				w.CompletedSteps = append(w.CompletedSteps[:i], w.CompletedSteps[i+1:]...)
				changed = true
				break
			}
		}
	}

	w.Recompute()
	return changed
}

// Recompute derives completion_percentage and is_complete from the current
// step sets. is_complete is true iff every required step is completed.
func (w *WorkflowCompletion) Recompute() {
	required := 0
	completedRequired := 0

	for _, s := range w.RequiredSteps {
		if !s.Required {
			continue
		}
		required++
		if w.StepCompleted(s.ID) {
			completedRequired++
		}
	}

	if required == 0 {
		w.CompletionPercentage = 100
		w.IsComplete = true
		return
	}

	w.CompletionPercentage = int(math.Round(100 * float64(completedRequired) / float64(required)))
	w.IsComplete = completedRequired == required
}

// RequiredStepCount returns the number of required steps
func (w *WorkflowCompletion) RequiredStepCount() int {
	n := 0
	for _, s := range w.RequiredSteps {
		if s.Required {
			n++
		}
	}
	return n
}

// CompletedRequiredCount returns how many required steps are completed
func (w *WorkflowCompletion) CompletedRequiredCount() int {
	n := 0
	for _, s := range w.RequiredSteps {
		if s.Required && w.StepCompleted(s.ID) {
			n++
		}
	}
	return n
}
