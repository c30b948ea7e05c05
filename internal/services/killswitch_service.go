package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/fleetsafety/immobilizer/internal/models"
	"github.com/fleetsafety/immobilizer/internal/vendors"
	"github.com/fleetsafety/immobilizer/pkg/errs"
	"github.com/fleetsafety/immobilizer/pkg/logger"
	"github.com/fleetsafety/immobilizer/pkg/metrics"
)

// SystemActorID marks events produced by the engine itself rather than a
// person
var SystemActorID = uuid.Nil

// VehicleRepository defines the interface for vehicle persistence
type VehicleRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Vehicle, error)
	UpdateKillSwitch(ctx context.Context, id uuid.UUID, status models.KillSwitchStatus, sync models.SyncStatus) error
	MarkSynced(ctx context.Context, id uuid.UUID) error
	ListPendingSync(ctx context.Context, limit int) ([]models.Vehicle, error)
}

// EventRepository defines the interface for the append-only audit trail
type EventRepository interface {
	Append(ctx context.Context, e *models.KillSwitchEvent) error
}

// CommandDispatcher sends immobilization commands to the vehicle's
// telematics vendor
type CommandDispatcher interface {
	Dispatch(ctx context.Context, action vendors.Action, vehicle *models.Vehicle) (*vendors.Response, error)
}

// CommandResult is the outcome of an engage or disengage operation. The
// local state transition always precedes the vendor call, so a result can
// carry both a committed state and a vendor error.
type CommandResult struct {
	Vehicle        *models.Vehicle   `json:"vehicle"`
	VendorResponse *vendors.Response `json:"vendor_response,omitempty"`
	Synced         bool              `json:"synced"`
	Changed        bool              `json:"changed"`
}

// KillSwitchService owns the vehicle immobilization state machine. Local
// state is the source of truth: the database transition commits first, the
// vendor command follows, and vehicles the vendor has not confirmed stay
// pending_sync until Reconcile catches them up.
type KillSwitchService struct {
	vehicleRepo   VehicleRepository
	eventRepo     EventRepository
	dispatcher    CommandDispatcher
	notifications *NotificationService
	logger        *logger.Logger
	metrics       *metrics.Metrics
}

// NewKillSwitchService creates a new kill-switch service
func NewKillSwitchService(
	vehicleRepo VehicleRepository,
	eventRepo EventRepository,
	dispatcher CommandDispatcher,
	notifications *NotificationService,
	log *logger.Logger,
	m *metrics.Metrics,
) *KillSwitchService {
	return &KillSwitchService{
		vehicleRepo:   vehicleRepo,
		eventRepo:     eventRepo,
		dispatcher:    dispatcher,
		notifications: notifications,
		logger:        log,
		metrics:       m,
	}
}

// Engage immobilizes a vehicle. The vehicle must have the kill switch
// enabled; engaging an already engaged vehicle is a no-op. A vendor failure
// after the local transition committed returns the result together with the
// integration error so callers can distinguish degraded success.
func (s *KillSwitchService) Engage(ctx context.Context, vehicleID, actorID uuid.UUID, reportID *uuid.UUID, reason string) (*CommandResult, error) {
	vehicle, err := s.vehicleRepo.GetByID(ctx, vehicleID)
	if err != nil {
		return nil, err
	}

	if !vehicle.KillSwitchEnabled {
		return nil, errs.InvalidState("kill switch is not enabled for vehicle %s", vehicleID)
	}

	if vehicle.KillSwitchStatus == models.KillSwitchEngaged {
		s.logger.Debug("Kill switch already engaged",
			logger.String("vehicle_id", vehicleID.String()),
		)
		return &CommandResult{Vehicle: vehicle, Synced: vehicle.SyncStatus == models.SyncStatusSynced}, nil
	}

	return s.transition(ctx, vehicle, models.KillSwitchEngaged, actorID, reportID, reason)
}

// Disengage releases a vehicle. Releasing an already inactive vehicle is a
// no-op. Unlike Engage there is no enablement precondition: a vehicle whose
// kill switch was disabled mid-engagement must still be releasable.
func (s *KillSwitchService) Disengage(ctx context.Context, vehicleID, actorID uuid.UUID, reportID *uuid.UUID, reason string) (*CommandResult, error) {
	vehicle, err := s.vehicleRepo.GetByID(ctx, vehicleID)
	if err != nil {
		return nil, err
	}

	if vehicle.KillSwitchStatus == models.KillSwitchInactive {
		s.logger.Debug("Kill switch already inactive",
			logger.String("vehicle_id", vehicleID.String()),
		)
		return &CommandResult{Vehicle: vehicle, Synced: vehicle.SyncStatus == models.SyncStatusSynced}, nil
	}

	return s.transition(ctx, vehicle, models.KillSwitchInactive, actorID, reportID, reason)
}

// CheckAndEngage engages the vehicle tied to an incomplete workflow if its
// kill switch is enabled and currently inactive. Returns whether an
// engagement was performed. Vendor failures do not bubble up; the local
// state committed and the reconciler owns the retry.
func (s *KillSwitchService) CheckAndEngage(ctx context.Context, workflow *models.WorkflowCompletion) (bool, error) {
	if workflow.VehicleID == nil || workflow.IsComplete {
		return false, nil
	}

	vehicle, err := s.vehicleRepo.GetByID(ctx, *workflow.VehicleID)
	if err != nil {
		return false, err
	}

	if !vehicle.KillSwitchEnabled || vehicle.KillSwitchStatus != models.KillSwitchInactive {
		return false, nil
	}

	reportID := workflow.ReportID
	_, err = s.Engage(ctx, vehicle.ID, SystemActorID, &reportID, "accident report in progress")
	if err != nil && !errs.IsIntegration(err) {
		return false, err
	}
	if err != nil {
		s.logger.Warn("Vehicle engaged locally but vendor sync pending",
			logger.String("vehicle_id", vehicle.ID.String()),
			logger.Err(err),
		)
	}

	return true, nil
}

// Reconcile pushes the local state of pending_sync vehicles to their
// vendors, oldest first, up to limit vehicles. Per-vehicle failures are
// logged and skipped so one unreachable vendor cannot starve the rest.
// Returns how many vehicles were confirmed.
func (s *KillSwitchService) Reconcile(ctx context.Context, limit int) (int, error) {
	pending, err := s.vehicleRepo.ListPendingSync(ctx, limit)
	if err != nil {
		return 0, fmt.Errorf("failed to list pending-sync vehicles: %w", err)
	}

	if s.metrics != nil {
		s.metrics.VehiclesPendingSync.Set(float64(len(pending)))
	}

	synced := 0
	for i := range pending {
		vehicle := &pending[i]

		action := vendors.ActionEngage
		if vehicle.KillSwitchStatus == models.KillSwitchInactive {
			action = vendors.ActionDisengage
		}

		// Vehicles without vendor config should never be pending_sync,
		// but confirm them rather than retrying forever
		if !vehicle.HasVendorConfig() {
			if err := s.vehicleRepo.MarkSynced(ctx, vehicle.ID); err == nil {
				synced++
			}
			continue
		}

		if _, err := s.dispatcher.Dispatch(ctx, action, vehicle); err != nil {
			s.logger.Warn("Reconcile attempt failed",
				logger.String("vehicle_id", vehicle.ID.String()),
				logger.String("action", string(action)),
				logger.Err(err),
			)
			continue
		}

		if err := s.vehicleRepo.MarkSynced(ctx, vehicle.ID); err != nil {
			s.logger.Error("Failed to mark vehicle synced",
				logger.String("vehicle_id", vehicle.ID.String()),
				logger.Err(err),
			)
			continue
		}

		synced++
	}

	if len(pending) > 0 {
		s.logger.Info("Reconcile pass completed",
			logger.Int("pending", len(pending)),
			logger.Int("synced", synced),
		)
	}

	return synced, nil
}

// transition commits the local state change, appends the audit event, fans
// out notifications, then attempts the vendor command
func (s *KillSwitchService) transition(ctx context.Context, vehicle *models.Vehicle, target models.KillSwitchStatus, actorID uuid.UUID, reportID *uuid.UUID, reason string) (*CommandResult, error) {
	action := vendors.ActionEngage
	eventType := models.EventEngaged
	if target == models.KillSwitchInactive {
		action = vendors.ActionDisengage
		eventType = models.EventDisengaged
	}

	sync := models.SyncStatusPendingSync
	if !vehicle.HasVendorConfig() {
		sync = models.SyncStatusSynced
	}

	if err := s.vehicleRepo.UpdateKillSwitch(ctx, vehicle.ID, target, sync); err != nil {
		s.recordCommand(action, "failed")
		return nil, err
	}
	vehicle.KillSwitchStatus = target
	vehicle.SyncStatus = sync

	event := &models.KillSwitchEvent{
		VehicleID: vehicle.ID,
		FleetID:   vehicle.FleetID,
		ReportID:  reportID,
		EventType: eventType,
		ActorID:   actorID,
		Reason:    reason,
		Latitude:  vehicle.LastLatitude,
		Longitude: vehicle.LastLongitude,
	}
	if err := s.eventRepo.Append(ctx, event); err != nil {
		// The state transition already committed; a lost audit row is
		// logged loudly rather than rolling back a safety action
		s.logger.Error("Failed to append kill-switch event",
			logger.String("vehicle_id", vehicle.ID.String()),
			logger.String("event_type", string(eventType)),
			logger.Err(err),
		)
	}

	if s.notifications != nil {
		if eventType == models.EventEngaged {
			go s.notifications.NotifyKillSwitchEngaged(context.Background(), vehicle, reason)
		} else {
			go s.notifications.NotifyKillSwitchDisengaged(context.Background(), vehicle, reason)
		}
	}

	result := &CommandResult{Vehicle: vehicle, Changed: true}

	if !vehicle.HasVendorConfig() {
		s.recordCommand(action, "local_only")
		result.Synced = true
		return result, nil
	}

	resp, err := s.dispatcher.Dispatch(ctx, action, vehicle)
	result.VendorResponse = resp
	if err != nil {
		s.recordCommand(action, "degraded")
		s.logger.Warn("Vendor command failed, vehicle left pending sync",
			logger.String("vehicle_id", vehicle.ID.String()),
			logger.String("action", string(action)),
			logger.Err(err),
		)
		return result, err
	}

	if err := s.vehicleRepo.MarkSynced(ctx, vehicle.ID); err != nil {
		s.logger.Error("Failed to mark vehicle synced",
			logger.String("vehicle_id", vehicle.ID.String()),
			logger.Err(err),
		)
	} else {
		vehicle.SyncStatus = models.SyncStatusSynced
		result.Synced = true
	}

	s.recordCommand(action, "success")
	return result, nil
}

func (s *KillSwitchService) recordCommand(action vendors.Action, outcome string) {
	if s.metrics != nil {
		s.metrics.KillSwitchCommandsTotal.With(prometheus.Labels{
			"action": string(action), "outcome": outcome,
		}).Inc()
	}
}
