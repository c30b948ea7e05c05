package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/fleetsafety/immobilizer/internal/models"
	"github.com/fleetsafety/immobilizer/internal/repository/postgres"
	"github.com/fleetsafety/immobilizer/pkg/errs"
	"github.com/fleetsafety/immobilizer/pkg/logger"
	"github.com/fleetsafety/immobilizer/pkg/metrics"
	"github.com/fleetsafety/immobilizer/pkg/validator"
)

// OverrideRepository defines the interface for supervisor override
// persistence
type OverrideRepository interface {
	Create(ctx context.Context, o *models.SupervisorOverrideRequest) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.SupervisorOverrideRequest, error)
	Resolve(ctx context.Context, o *models.SupervisorOverrideRequest) error
	ListPending(ctx context.Context, fleetID uuid.UUID, supervisorID *uuid.UUID) ([]models.SupervisorOverrideRequest, error)
	ExpireOverdue(ctx context.Context, now time.Time) ([]uuid.UUID, error)
	CountPending(ctx context.Context) (int64, error)
}

// OverrideRequestInput is the validated payload for a new override request
type OverrideRequestInput struct {
	ReportID    uuid.UUID  `json:"report_id" validate:"required"`
	RequesterID uuid.UUID  `json:"requester_id" validate:"required"`
	AssignedTo  *uuid.UUID `json:"assigned_to,omitempty"`
	Reason      string     `json:"reason" validate:"required,max=2000"`
	Urgency     string     `json:"urgency" validate:"required,oneof=low medium high critical"`
}

// OverrideService handles the supervisor escalation path: a driver who
// cannot finish the report asks a supervisor to release the vehicle early.
// Requests expire after models.OverrideExpiry and an expired request can
// never be approved.
type OverrideService struct {
	overrideRepo  OverrideRepository
	workflowRepo  WorkflowRepository
	eventRepo     EventRepository
	killSwitch    *KillSwitchService
	notifications *NotificationService
	validator     *validator.Validator
	logger        *logger.Logger
	metrics       *metrics.Metrics
}

// NewOverrideService creates a new override service
func NewOverrideService(
	overrideRepo OverrideRepository,
	workflowRepo WorkflowRepository,
	eventRepo EventRepository,
	killSwitch *KillSwitchService,
	notifications *NotificationService,
	v *validator.Validator,
	log *logger.Logger,
	m *metrics.Metrics,
) *OverrideService {
	return &OverrideService{
		overrideRepo:  overrideRepo,
		workflowRepo:  workflowRepo,
		eventRepo:     eventRepo,
		killSwitch:    killSwitch,
		notifications: notifications,
		validator:     v,
		logger:        log,
		metrics:       m,
	}
}

// Request opens an override escalation for a report's workflow. The request
// expires two hours after creation. Workflow completion state and current
// kill switch state are not preconditions; a request filed against an
// already released vehicle just resolves as a no-op on approval.
func (s *OverrideService) Request(ctx context.Context, input *OverrideRequestInput) (*models.SupervisorOverrideRequest, error) {
	if err := s.validator.Validate(input); err != nil {
		return nil, errs.InvalidState("invalid override request: %v", err)
	}

	workflow, err := s.workflowRepo.GetByReportID(ctx, input.ReportID)
	if err != nil {
		return nil, err
	}

	// A request releases a vehicle; a workflow that never had one attached
	// leaves nothing for the supervisor to act on
	if workflow.VehicleID == nil {
		return nil, errs.InvalidState("report %s workflow has no vehicle", input.ReportID)
	}

	now := time.Now()
	request := &models.SupervisorOverrideRequest{
		ID:          uuid.New(),
		WorkflowID:  workflow.ID,
		ReportID:    workflow.ReportID,
		VehicleID:   *workflow.VehicleID,
		FleetID:     workflow.FleetID,
		RequesterID: input.RequesterID,
		AssignedTo:  input.AssignedTo,
		Reason:      input.Reason,
		Urgency:     models.OverrideUrgency(input.Urgency),
		Status:      models.OverrideStatusPending,
		RequestedAt: now,
		ExpiresAt:   now.Add(models.OverrideExpiry),
	}

	if err := s.overrideRepo.Create(ctx, request); err != nil {
		return nil, fmt.Errorf("failed to create override request: %w", err)
	}

	if _, err := s.markWorkflowOverride(ctx, workflow.ReportID, func(w *models.WorkflowCompletion) {
		w.OverrideRequested = true
	}); err != nil {
		s.logger.Error("Failed to flag workflow override request",
			logger.String("report_id", workflow.ReportID.String()),
			logger.Err(err),
		)
	}

	s.recordOverride("requested")
	s.logger.Info("Override requested",
		logger.String("request_id", request.ID.String()),
		logger.String("report_id", request.ReportID.String()),
		logger.String("urgency", string(request.Urgency)),
	)

	if s.notifications != nil {
		go s.notifications.NotifyOverrideRequested(context.Background(), request)
	}

	return request, nil
}

// Approve resolves a pending request in the driver's favor and releases the
// vehicle. Approving past the expiry window is rejected even if the expiry
// worker has not swept the request yet.
func (s *OverrideService) Approve(ctx context.Context, requestID, supervisorID uuid.UUID, notes string) (*models.SupervisorOverrideRequest, error) {
	request, err := s.overrideRepo.GetByID(ctx, requestID)
	if err != nil {
		return nil, err
	}

	if request.Status != models.OverrideStatusPending {
		return nil, errs.InvalidState("override request %s is %s, not pending", requestID, request.Status)
	}

	now := time.Now()
	if request.Expired(now) {
		return nil, errs.InvalidState("override request %s expired at %s", requestID, request.ExpiresAt.Format(time.RFC3339))
	}

	request.Status = models.OverrideStatusApproved
	request.ResolvedBy = &supervisorID
	request.ResolutionNotes = &notes
	request.ResolvedAt = &now

	if err := s.overrideRepo.Resolve(ctx, request); err != nil {
		return nil, err
	}

	// The approval flag keeps the tracker from re-engaging this workflow
	if _, err := s.markWorkflowOverride(ctx, request.ReportID, func(w *models.WorkflowCompletion) {
		w.OverrideApproved = true
		w.KillSwitchEngaged = false
		w.KillSwitchReleasedAt = &now
	}); err != nil {
		s.logger.Error("Failed to flag workflow override approval",
			logger.String("report_id", request.ReportID.String()),
			logger.Err(err),
		)
	}

	reason := "supervisor override"
	if notes != "" {
		reason = fmt.Sprintf("supervisor override: %s", notes)
	}

	reportID := request.ReportID
	if _, err := s.killSwitch.Disengage(ctx, request.VehicleID, supervisorID, &reportID, reason); err != nil && !errs.IsIntegration(err) {
		s.logger.Error("Failed to release vehicle after override approval",
			logger.String("vehicle_id", request.VehicleID.String()),
			logger.Err(err),
		)
	}

	s.appendResolutionEvent(ctx, request, models.EventOverrideApproved, supervisorID, reason)
	s.recordOverride("approved")

	if s.notifications != nil {
		go s.notifications.NotifyOverrideResolved(context.Background(), request)
	}

	return request, nil
}

// Deny resolves a pending request against the driver. The kill switch stays
// engaged; only the audit trail and notifications record the decision.
func (s *OverrideService) Deny(ctx context.Context, requestID, supervisorID uuid.UUID, notes string) (*models.SupervisorOverrideRequest, error) {
	request, err := s.overrideRepo.GetByID(ctx, requestID)
	if err != nil {
		return nil, err
	}

	if request.Status != models.OverrideStatusPending {
		return nil, errs.InvalidState("override request %s is %s, not pending", requestID, request.Status)
	}

	now := time.Now()
	request.Status = models.OverrideStatusDenied
	request.ResolvedBy = &supervisorID
	request.ResolutionNotes = &notes
	request.ResolvedAt = &now

	if err := s.overrideRepo.Resolve(ctx, request); err != nil {
		return nil, err
	}

	reason := "override denied"
	if notes != "" {
		reason = fmt.Sprintf("override denied: %s", notes)
	}

	s.appendResolutionEvent(ctx, request, models.EventOverrideDenied, supervisorID, reason)
	s.recordOverride("denied")

	if s.notifications != nil {
		go s.notifications.NotifyOverrideResolved(context.Background(), request)
	}

	return request, nil
}

// ListPending returns a fleet's actionable requests ordered by urgency then
// age. When supervisorID is set the list is restricted to requests that
// supervisor can act on.
func (s *OverrideService) ListPending(ctx context.Context, fleetID uuid.UUID, supervisorID *uuid.UUID) ([]models.SupervisorOverrideRequest, error) {
	return s.overrideRepo.ListPending(ctx, fleetID, supervisorID)
}

// ExpireOverdue sweeps pending requests past their expiry into the expired
// terminal state. Returns how many were expired.
func (s *OverrideService) ExpireOverdue(ctx context.Context) (int, error) {
	ids, err := s.overrideRepo.ExpireOverdue(ctx, time.Now())
	if err != nil {
		return 0, err
	}

	for range ids {
		s.recordOverride("expired")
	}

	if s.metrics != nil {
		if count, err := s.overrideRepo.CountPending(ctx); err == nil {
			s.metrics.PendingOverrides.Set(float64(count))
		}
	}

	if len(ids) > 0 {
		s.logger.Info("Expired overdue override requests",
			logger.Int("count", len(ids)),
		)
	}

	return len(ids), nil
}

func (s *OverrideService) markWorkflowOverride(ctx context.Context, reportID uuid.UUID, mutate func(w *models.WorkflowCompletion)) (*models.WorkflowCompletion, error) {
	var lastErr error
	for attempt := 0; attempt < maxUpdateRetries; attempt++ {
		workflow, err := s.workflowRepo.GetByReportID(ctx, reportID)
		if err != nil {
			return nil, err
		}

		mutate(workflow)
		err = s.workflowRepo.Update(ctx, workflow)
		if err == nil {
			return workflow, nil
		}
		if err != postgres.ErrVersionConflict {
			return nil, err
		}
		lastErr = err
	}

	return nil, fmt.Errorf("workflow override flag update for report %s exhausted retries: %w", reportID, lastErr)
}

func (s *OverrideService) appendResolutionEvent(ctx context.Context, request *models.SupervisorOverrideRequest, eventType models.KillSwitchEventType, supervisorID uuid.UUID, reason string) {
	reportID := request.ReportID
	event := &models.KillSwitchEvent{
		VehicleID: request.VehicleID,
		FleetID:   request.FleetID,
		ReportID:  &reportID,
		EventType: eventType,
		ActorID:   supervisorID,
		Reason:    reason,
		Metadata: models.JSONB{
			"override_request_id": request.ID.String(),
			"urgency":             string(request.Urgency),
		},
	}

	if err := s.eventRepo.Append(ctx, event); err != nil {
		s.logger.Error("Failed to append override resolution event",
			logger.String("request_id", request.ID.String()),
			logger.Err(err),
		)
	}
}

func (s *OverrideService) recordOverride(outcome string) {
	if s.metrics != nil {
		s.metrics.OverridesTotal.With(prometheus.Labels{"outcome": outcome}).Inc()
	}
}
