package testutil

import (
	"time"

	"github.com/google/uuid"

	"github.com/fleetsafety/immobilizer/internal/models"
)

// FixtureBuilder provides methods to create test fixtures
type FixtureBuilder struct{}

// NewFixtureBuilder creates a new fixture builder
func NewFixtureBuilder() *FixtureBuilder {
	return &FixtureBuilder{}
}

// Vehicle creates a kill-switch-enabled vehicle with vendor config
func (fb *FixtureBuilder) Vehicle(overrides ...func(*models.Vehicle)) *models.Vehicle {
	now := time.Now()
	deviceID := "device-" + uuid.NewString()[:8]
	providerID := uuid.New()

	vehicle := &models.Vehicle{
		ID:                uuid.New(),
		FleetID:           uuid.New(),
		Name:              "Test Truck",
		KillSwitchEnabled: true,
		KillSwitchStatus:  models.KillSwitchInactive,
		SyncStatus:        models.SyncStatusSynced,
		ProviderID:        &providerID,
		VendorDeviceID:    &deviceID,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	for _, override := range overrides {
		override(vehicle)
	}
	return vehicle
}

// Workflow creates a fresh workflow completion with the default step list
func (fb *FixtureBuilder) Workflow(overrides ...func(*models.WorkflowCompletion)) *models.WorkflowCompletion {
	now := time.Now()
	vehicleID := uuid.New()

	workflow := &models.WorkflowCompletion{
		ID:            uuid.New(),
		ReportID:      uuid.New(),
		FleetID:       uuid.New(),
		VehicleID:     &vehicleID,
		RequiredSteps: models.DefaultSteps(),
		Version:       1,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	for _, override := range overrides {
		override(workflow)
	}
	return workflow
}

// Provider creates a vendor provider configuration
func (fb *FixtureBuilder) Provider(overrides ...func(*models.VendorProvider)) *models.VendorProvider {
	now := time.Now()

	provider := &models.VendorProvider{
		ID:        uuid.New(),
		FleetID:   uuid.New(),
		Vendor:    models.VendorSamsara,
		Endpoint:  "https://api.samsara.example.com",
		Config:    models.JSONB{},
		CreatedAt: now,
		UpdatedAt: now,
	}

	for _, override := range overrides {
		override(provider)
	}
	return provider
}

// Override creates a pending supervisor override request
func (fb *FixtureBuilder) Override(overrides ...func(*models.SupervisorOverrideRequest)) *models.SupervisorOverrideRequest {
	now := time.Now()

	request := &models.SupervisorOverrideRequest{
		ID:          uuid.New(),
		WorkflowID:  uuid.New(),
		ReportID:    uuid.New(),
		VehicleID:   uuid.New(),
		FleetID:     uuid.New(),
		RequesterID: uuid.New(),
		Reason:      "Vehicle needed for an active delivery route",
		Urgency:     models.UrgencyHigh,
		Status:      models.OverrideStatusPending,
		RequestedAt: now,
		ExpiresAt:   now.Add(models.OverrideExpiry),
	}

	for _, override := range overrides {
		override(request)
	}
	return request
}

// Photo creates an accident report photo awaiting validation
func (fb *FixtureBuilder) Photo(reportID uuid.UUID, overrides ...func(*models.ReportPhoto)) *models.ReportPhoto {
	now := time.Now()

	photo := &models.ReportPhoto{
		ID:               uuid.New(),
		ReportID:         reportID,
		FleetID:          uuid.New(),
		StorageKey:       "photos/" + uuid.NewString(),
		ValidationStatus: models.PhotoPending,
		CreatedAt:        now,
	}

	for _, override := range overrides {
		override(photo)
	}
	return photo
}

// Event creates a kill switch audit event
func (fb *FixtureBuilder) Event(vehicleID uuid.UUID, overrides ...func(*models.KillSwitchEvent)) *models.KillSwitchEvent {
	event := &models.KillSwitchEvent{
		ID:        uuid.New(),
		VehicleID: vehicleID,
		FleetID:   uuid.New(),
		EventType: models.EventEngaged,
		ActorID:   uuid.New(),
		Reason:    "incomplete accident report workflow",
		CreatedAt: time.Now(),
	}

	for _, override := range overrides {
		override(event)
	}
	return event
}
