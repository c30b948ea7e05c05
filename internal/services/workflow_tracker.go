package services

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/fleetsafety/immobilizer/internal/clients"
	"github.com/fleetsafety/immobilizer/internal/models"
	"github.com/fleetsafety/immobilizer/internal/repository/postgres"
	"github.com/fleetsafety/immobilizer/pkg/errs"
	"github.com/fleetsafety/immobilizer/pkg/logger"
	"github.com/fleetsafety/immobilizer/pkg/metrics"
)

// maxUpdateRetries bounds the optimistic-concurrency retry loop. Conflicts
// come from drivers and supervisors touching the same report at once, which
// settles within a retry or two.
const maxUpdateRetries = 3

// WorkflowRepository defines the interface for workflow completion
// persistence
type WorkflowRepository interface {
	Create(ctx context.Context, w *models.WorkflowCompletion) error
	GetByReportID(ctx context.Context, reportID uuid.UUID) (*models.WorkflowCompletion, error)
	Update(ctx context.Context, w *models.WorkflowCompletion) error
}

// PhotoRepository defines the photo surface the validation gate needs
type PhotoRepository interface {
	ListPendingValidation(ctx context.Context, reportID uuid.UUID) ([]models.ReportPhoto, error)
	ListByReport(ctx context.Context, reportID uuid.UUID) ([]models.ReportPhoto, error)
	UpdateValidationStatus(ctx context.Context, id uuid.UUID, status models.PhotoValidationStatus, at time.Time) error
}

// PhotoValidator classifies accident-scene photos via the external
// validation API
type PhotoValidator interface {
	ValidateBatch(ctx context.Context, photos []models.ReportPhoto) ([]clients.ValidationResult, error)
}

// Locker provides best-effort advisory locking around per-report mutations.
// The version check on the workflow row is the real guard; the lock only
// reduces retry churn.
type Locker interface {
	AcquireLock(ctx context.Context, key, token string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, key, token string) error
}

// StepCompletionResult is the outcome of a step transition
type StepCompletionResult struct {
	Workflow             *models.WorkflowCompletion `json:"workflow"`
	StepID               string                     `json:"step_id"`
	Changed              bool                       `json:"changed"`
	CompletionPercentage int                        `json:"completion_percentage"`
	IsComplete           bool                       `json:"is_complete"`
	KillSwitchEngaged    bool                       `json:"kill_switch_engaged"`
}

// PhotoGateResult is the outcome of a photo validation gate run
type PhotoGateResult struct {
	Passed      bool                       `json:"passed"`
	TotalPhotos int                        `json:"total_photos"`
	Blocking    []uuid.UUID                `json:"blocking,omitempty"`
	Workflow    *models.WorkflowCompletion `json:"workflow"`
}

// WorkflowTracker owns accident-report workflow state and drives the
// kill-switch side effects of step transitions. Completing the last
// required step releases the vehicle; reopening a workflow with a
// kill-switch-enabled vehicle engages it.
type WorkflowTracker struct {
	workflowRepo WorkflowRepository
	photoRepo    PhotoRepository
	validator    PhotoValidator
	killSwitch   *KillSwitchService
	locker       Locker
	logger       *logger.Logger
	metrics      *metrics.Metrics
}

// NewWorkflowTracker creates a new workflow tracker
func NewWorkflowTracker(
	workflowRepo WorkflowRepository,
	photoRepo PhotoRepository,
	validator PhotoValidator,
	killSwitch *KillSwitchService,
	locker Locker,
	log *logger.Logger,
	m *metrics.Metrics,
) *WorkflowTracker {
	return &WorkflowTracker{
		workflowRepo: workflowRepo,
		photoRepo:    photoRepo,
		validator:    validator,
		killSwitch:   killSwitch,
		locker:       locker,
		logger:       log,
		metrics:      m,
	}
}

// Initialize creates the workflow completion record for a report, engaging
// the vehicle's kill switch when one is attached. Initializing an existing
// report returns the existing record unchanged.
func (s *WorkflowTracker) Initialize(ctx context.Context, reportID, fleetID uuid.UUID, vehicleID, driverID *uuid.UUID, steps models.StepList) (*models.WorkflowCompletion, error) {
	existing, err := s.workflowRepo.GetByReportID(ctx, reportID)
	if err == nil {
		return existing, nil
	}
	if !errs.IsNotFound(err) {
		return nil, err
	}

	if len(steps) == 0 {
		steps = models.DefaultSteps()
	}

	workflow := &models.WorkflowCompletion{
		ID:            uuid.New(),
		ReportID:      reportID,
		FleetID:       fleetID,
		VehicleID:     vehicleID,
		DriverID:      driverID,
		RequiredSteps: steps,
	}
	workflow.Recompute()

	if err := s.workflowRepo.Create(ctx, workflow); err != nil {
		return nil, fmt.Errorf("failed to initialize workflow: %w", err)
	}

	s.logger.Info("Workflow initialized",
		logger.String("report_id", reportID.String()),
		logger.Int("required_steps", workflow.RequiredStepCount()),
	)

	if err := s.maybeEngage(ctx, workflow); err != nil {
		s.logger.Error("Failed to engage kill switch on workflow start",
			logger.String("report_id", reportID.String()),
			logger.Err(err),
		)
	}

	return workflow, nil
}

// SetStepCompletion marks a step complete or incomplete, recomputes the
// derived completion fields, and drives the kill-switch side effects.
// Transitions are idempotent: marking a completed step complete again
// changes nothing.
func (s *WorkflowTracker) SetStepCompletion(ctx context.Context, reportID uuid.UUID, stepID string, completed bool, metadata map[string]interface{}, actorID uuid.UUID) (*StepCompletionResult, error) {
	unlock := s.lockReport(ctx, reportID)
	defer unlock()

	var changed, releasedNow bool
	now := time.Now()

	workflow, err := s.updateWithRetry(ctx, reportID, func(w *models.WorkflowCompletion) (bool, error) {
		changed = false
		releasedNow = false

		if !w.HasStep(stepID) {
			return false, errs.NotFound("step %q is not part of workflow for report %s", stepID, reportID)
		}

		changed = w.MarkStep(stepID, completed, metadata, now)
		if !changed {
			return false, nil
		}

		if w.IsComplete && w.KillSwitchEngaged {
			w.KillSwitchEngaged = false
			w.KillSwitchReleasedAt = &now
			releasedNow = true
		}

		return true, nil
	})
	if err != nil {
		return nil, err
	}

	if changed {
		s.recordTransition(stepID, completed)

		if workflow.IsComplete {
			if s.metrics != nil {
				s.metrics.WorkflowsCompleted.Inc()
			}
			s.logger.Info("Workflow completed",
				logger.String("report_id", reportID.String()),
			)
		}

		if releasedNow && workflow.VehicleID != nil {
			if _, err := s.killSwitch.Disengage(ctx, *workflow.VehicleID, actorID, &workflow.ReportID, "accident report workflow completed"); err != nil && !errs.IsIntegration(err) {
				s.logger.Error("Failed to release vehicle after workflow completion",
					logger.String("vehicle_id", workflow.VehicleID.String()),
					logger.Err(err),
				)
			}
		}

		if !workflow.IsComplete {
			if err := s.maybeEngage(ctx, workflow); err != nil {
				s.logger.Error("Failed to engage kill switch on workflow reopen",
					logger.String("report_id", reportID.String()),
					logger.Err(err),
				)
			}
		}
	}

	return &StepCompletionResult{
		Workflow:             workflow,
		StepID:               stepID,
		Changed:              changed,
		CompletionPercentage: workflow.CompletionPercentage,
		IsComplete:           workflow.IsComplete,
		KillSwitchEngaged:    workflow.KillSwitchEngaged,
	}, nil
}

// RunPhotoValidationGate validates a report's pending photos and resolves
// the photo_validation step. The gate passes only when every photo on the
// report classified as passing; a report with no photos fails the gate.
// Validation API failures leave the step untouched.
func (s *WorkflowTracker) RunPhotoValidationGate(ctx context.Context, reportID, actorID uuid.UUID) (*PhotoGateResult, error) {
	pending, err := s.photoRepo.ListPendingValidation(ctx, reportID)
	if err != nil {
		return nil, err
	}

	if len(pending) > 0 {
		results, err := s.validator.ValidateBatch(ctx, pending)
		if err != nil {
			s.recordGateRun("error")
			return nil, err
		}

		now := time.Now()
		for _, result := range results {
			if err := s.photoRepo.UpdateValidationStatus(ctx, result.PhotoID, result.Status, now); err != nil {
				s.recordGateRun("error")
				return nil, err
			}
		}
	}

	photos, err := s.photoRepo.ListByReport(ctx, reportID)
	if err != nil {
		return nil, err
	}

	passed := len(photos) > 0
	var blocking []uuid.UUID
	for _, p := range photos {
		if !p.ValidationStatus.Passing() {
			passed = false
			blocking = append(blocking, p.ID)
		}
	}

	if passed {
		s.recordGateRun("passed")
	} else {
		s.recordGateRun("failed")
	}

	stepResult, err := s.SetStepCompletion(ctx, reportID, models.StepPhotoValidation, passed, map[string]interface{}{
		"total_photos":    len(photos),
		"blocking_photos": len(blocking),
	}, actorID)
	if err != nil {
		return nil, err
	}

	return &PhotoGateResult{
		Passed:      passed,
		TotalPhotos: len(photos),
		Blocking:    blocking,
		Workflow:    stepResult.Workflow,
	}, nil
}

// Get retrieves the workflow completion for a report
func (s *WorkflowTracker) Get(ctx context.Context, reportID uuid.UUID) (*models.WorkflowCompletion, error) {
	return s.workflowRepo.GetByReportID(ctx, reportID)
}

// maybeEngage engages the vehicle of an incomplete workflow and records the
// engagement on the workflow row. Workflows with an approved override never
// re-engage.
func (s *WorkflowTracker) maybeEngage(ctx context.Context, workflow *models.WorkflowCompletion) error {
	if workflow.VehicleID == nil || workflow.IsComplete || workflow.KillSwitchEngaged || workflow.OverrideApproved {
		return nil
	}

	engaged, err := s.killSwitch.CheckAndEngage(ctx, workflow)
	if err != nil {
		return err
	}
	if !engaged {
		return nil
	}

	now := time.Now()
	updated, err := s.updateWithRetry(ctx, workflow.ReportID, func(w *models.WorkflowCompletion) (bool, error) {
		w.KillSwitchEngaged = true
		w.KillSwitchEngagedAt = &now
		return true, nil
	})
	if err != nil {
		return err
	}

	*workflow = *updated
	return nil
}

// updateWithRetry reloads, mutates, and persists the workflow row under its
// version guard, retrying on conflict with a fresh read. The mutate func
// reports whether anything needs persisting.
func (s *WorkflowTracker) updateWithRetry(ctx context.Context, reportID uuid.UUID, mutate func(w *models.WorkflowCompletion) (bool, error)) (*models.WorkflowCompletion, error) {
	for attempt := 0; attempt < maxUpdateRetries; attempt++ {
		workflow, err := s.workflowRepo.GetByReportID(ctx, reportID)
		if err != nil {
			return nil, err
		}

		dirty, err := mutate(workflow)
		if err != nil {
			return nil, err
		}
		if !dirty {
			return workflow, nil
		}

		err = s.workflowRepo.Update(ctx, workflow)
		if err == nil {
			return workflow, nil
		}
		if err != postgres.ErrVersionConflict {
			return nil, err
		}

		s.logger.Debug("Workflow update lost version race, retrying",
			logger.String("report_id", reportID.String()),
			logger.Int("attempt", attempt+1),
		)
	}

	return nil, fmt.Errorf("workflow update for report %s exhausted %d retries: %w", reportID, maxUpdateRetries, postgres.ErrVersionConflict)
}

// lockReport takes the best-effort advisory lock for a report and returns
// the release func. Lock acquisition failures fall through to the version
// guard.
func (s *WorkflowTracker) lockReport(ctx context.Context, reportID uuid.UUID) func() {
	if s.locker == nil {
		return func() {}
	}

	key := "workflow:lock:" + reportID.String()
	token := uuid.New().String()

	acquired, err := s.locker.AcquireLock(ctx, key, token, 10*time.Second)
	if err != nil || !acquired {
		if err != nil {
			s.logger.Debug("Advisory lock unavailable",
				logger.String("report_id", reportID.String()),
				logger.Err(err),
			)
		}
		return func() {}
	}

	return func() {
		if err := s.locker.ReleaseLock(ctx, key, token); err != nil {
			s.logger.Debug("Advisory lock release failed",
				logger.String("report_id", reportID.String()),
				logger.Err(err),
			)
		}
	}
}

func (s *WorkflowTracker) recordTransition(stepID string, completed bool) {
	if s.metrics != nil {
		s.metrics.StepTransitionsTotal.With(prometheus.Labels{
			"step_id": stepID, "completed": strconv.FormatBool(completed),
		}).Inc()
	}
}

func (s *WorkflowTracker) recordGateRun(outcome string) {
	if s.metrics != nil {
		s.metrics.PhotoGateRunsTotal.With(prometheus.Labels{"outcome": outcome}).Inc()
	}
}
