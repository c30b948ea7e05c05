package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetsafety/immobilizer/internal/clients"
	"github.com/fleetsafety/immobilizer/internal/models"
	"github.com/fleetsafety/immobilizer/internal/repository/postgres"
	"github.com/fleetsafety/immobilizer/internal/vendors"
	"github.com/fleetsafety/immobilizer/pkg/errs"
	"github.com/fleetsafety/immobilizer/pkg/logger"
)

// Mock WorkflowRepository with version-guard semantics matching the real
// repository
type mockWorkflowRepo struct {
	mu       sync.Mutex
	byReport map[uuid.UUID]*models.WorkflowCompletion
	updates  int

	// failUpdates injects this many version conflicts before succeeding
	failUpdates int
}

func newMockWorkflowRepo() *mockWorkflowRepo {
	return &mockWorkflowRepo{byReport: map[uuid.UUID]*models.WorkflowCompletion{}}
}

func copyWorkflow(w *models.WorkflowCompletion) *models.WorkflowCompletion {
	c := *w
	c.RequiredSteps = append(models.StepList(nil), w.RequiredSteps...)
	c.CompletedSteps = append(models.CompletedStepList(nil), w.CompletedSteps...)
	return &c
}

func (m *mockWorkflowRepo) Create(ctx context.Context, w *models.WorkflowCompletion) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	w.Version = 1
	m.byReport[w.ReportID] = copyWorkflow(w)
	return nil
}

func (m *mockWorkflowRepo) GetByReportID(ctx context.Context, reportID uuid.UUID) (*models.WorkflowCompletion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.byReport[reportID]
	if !ok {
		return nil, errs.NotFound("workflow completion for report %s", reportID)
	}
	return copyWorkflow(w), nil
}

func (m *mockWorkflowRepo) Update(ctx context.Context, w *models.WorkflowCompletion) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.byReport[w.ReportID]
	if !ok {
		return errs.NotFound("workflow completion for report %s", w.ReportID)
	}
	if m.failUpdates > 0 {
		m.failUpdates--
		return postgres.ErrVersionConflict
	}
	if stored.Version != w.Version {
		return postgres.ErrVersionConflict
	}

	m.updates++
	w.Version++
	m.byReport[w.ReportID] = copyWorkflow(w)
	return nil
}

// Mock PhotoRepository for testing
type mockPhotoRepo struct {
	mu     sync.Mutex
	photos []models.ReportPhoto
}

func (m *mockPhotoRepo) ListPendingValidation(ctx context.Context, reportID uuid.UUID) ([]models.ReportPhoto, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.ReportPhoto
	for _, p := range m.photos {
		if p.ReportID == reportID && p.ValidationStatus == models.PhotoPending {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *mockPhotoRepo) ListByReport(ctx context.Context, reportID uuid.UUID) ([]models.ReportPhoto, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.ReportPhoto
	for _, p := range m.photos {
		if p.ReportID == reportID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *mockPhotoRepo) UpdateValidationStatus(ctx context.Context, id uuid.UUID, status models.PhotoValidationStatus, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.photos {
		if m.photos[i].ID == id {
			m.photos[i].ValidationStatus = status
			m.photos[i].ValidatedAt = &at
		}
	}
	return nil
}

// Mock PhotoValidator for testing
type mockPhotoValidator struct {
	validateFunc func(ctx context.Context, photos []models.ReportPhoto) ([]clients.ValidationResult, error)
}

func (m *mockPhotoValidator) ValidateBatch(ctx context.Context, photos []models.ReportPhoto) ([]clients.ValidationResult, error) {
	if m.validateFunc != nil {
		return m.validateFunc(ctx, photos)
	}
	var out []clients.ValidationResult
	for _, p := range photos {
		out = append(out, clients.ValidationResult{PhotoID: p.ID, Status: models.PhotoValid})
	}
	return out, nil
}

// Mock Locker for testing
type mockLocker struct {
	mu       sync.Mutex
	acquired int
	released int
	denied   bool
}

func (m *mockLocker) AcquireLock(ctx context.Context, key, token string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.denied {
		return false, nil
	}
	m.acquired++
	return true, nil
}

func (m *mockLocker) ReleaseLock(ctx context.Context, key, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.released++
	return nil
}

type trackerFixture struct {
	tracker      *WorkflowTracker
	workflowRepo *mockWorkflowRepo
	photoRepo    *mockPhotoRepo
	vehicles     *mockVehicleRepo
	dispatcher   *mockDispatcher
	events       *mockEventRepo
	vehicle      *models.Vehicle
}

func newTrackerFixture(t *testing.T) *trackerFixture {
	t.Helper()

	vehicle := testVehicle(true, models.KillSwitchInactive)
	vehicles := &mockVehicleRepo{
		getByIDFunc: func(ctx context.Context, id uuid.UUID) (*models.Vehicle, error) {
			return vehicle, nil
		},
	}
	events := &mockEventRepo{}
	dispatcher := &mockDispatcher{}
	killSwitch := newKillSwitchService(t, vehicles, events, dispatcher)

	workflowRepo := newMockWorkflowRepo()
	photoRepo := &mockPhotoRepo{}

	tracker := NewWorkflowTracker(
		workflowRepo, photoRepo, &mockPhotoValidator{},
		killSwitch, nil, logger.NewForTesting(), nil,
	)

	return &trackerFixture{
		tracker:      tracker,
		workflowRepo: workflowRepo,
		photoRepo:    photoRepo,
		vehicles:     vehicles,
		dispatcher:   dispatcher,
		events:       events,
		vehicle:      vehicle,
	}
}

func TestInitialize(t *testing.T) {
	f := newTrackerFixture(t)
	reportID := uuid.New()

	workflow, err := f.tracker.Initialize(context.Background(), reportID, f.vehicle.FleetID, &f.vehicle.ID, nil, nil)
	require.NoError(t, err)

	assert.Equal(t, 8, workflow.RequiredStepCount(), "default wizard has eight required steps")
	assert.Equal(t, 0, workflow.CompletionPercentage)
	assert.False(t, workflow.IsComplete)

	// Starting a report with an attached vehicle engages the kill switch
	assert.True(t, workflow.KillSwitchEngaged)
	assert.NotNil(t, workflow.KillSwitchEngagedAt)
	assert.Equal(t, []string{"engage"}, actionStrings(f.dispatcher.calls))
	assert.Equal(t, models.KillSwitchEngaged, f.vehicle.KillSwitchStatus)
}

func TestInitializeIdempotent(t *testing.T) {
	f := newTrackerFixture(t)
	reportID := uuid.New()

	first, err := f.tracker.Initialize(context.Background(), reportID, f.vehicle.FleetID, &f.vehicle.ID, nil, nil)
	require.NoError(t, err)

	second, err := f.tracker.Initialize(context.Background(), reportID, f.vehicle.FleetID, &f.vehicle.ID, nil, nil)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, []string{"engage"}, actionStrings(f.dispatcher.calls), "re-initialize sends no second command")
}

func TestInitializeWithoutVehicle(t *testing.T) {
	f := newTrackerFixture(t)

	workflow, err := f.tracker.Initialize(context.Background(), uuid.New(), uuid.New(), nil, nil, nil)
	require.NoError(t, err)

	assert.False(t, workflow.KillSwitchEngaged)
	assert.Empty(t, f.dispatcher.calls)
}

func TestSetStepCompletion(t *testing.T) {
	f := newTrackerFixture(t)
	reportID := uuid.New()
	_, err := f.tracker.Initialize(context.Background(), reportID, f.vehicle.FleetID, &f.vehicle.ID, nil, nil)
	require.NoError(t, err)

	result, err := f.tracker.SetStepCompletion(context.Background(), reportID, "accident_details", true, nil, uuid.New())
	require.NoError(t, err)

	assert.True(t, result.Changed)
	assert.Equal(t, 13, result.CompletionPercentage, "1 of 8 rounds to 13")
	assert.False(t, result.IsComplete)
	assert.True(t, result.KillSwitchEngaged, "vehicle stays immobilized until the report is done")
}

func TestSetStepCompletionIdempotent(t *testing.T) {
	f := newTrackerFixture(t)
	reportID := uuid.New()
	_, err := f.tracker.Initialize(context.Background(), reportID, f.vehicle.FleetID, &f.vehicle.ID, nil, nil)
	require.NoError(t, err)

	_, err = f.tracker.SetStepCompletion(context.Background(), reportID, "accident_details", true, nil, uuid.New())
	require.NoError(t, err)
	writesBefore := f.workflowRepo.updates

	result, err := f.tracker.SetStepCompletion(context.Background(), reportID, "accident_details", true, nil, uuid.New())
	require.NoError(t, err)

	assert.False(t, result.Changed)
	assert.Equal(t, writesBefore, f.workflowRepo.updates, "no-op transitions write nothing")
}

func TestSetStepCompletionUnknownStep(t *testing.T) {
	f := newTrackerFixture(t)
	reportID := uuid.New()
	_, err := f.tracker.Initialize(context.Background(), reportID, f.vehicle.FleetID, &f.vehicle.ID, nil, nil)
	require.NoError(t, err)

	_, err = f.tracker.SetStepCompletion(context.Background(), reportID, "not_a_step", true, nil, uuid.New())
	assert.True(t, errors.Is(err, errs.ErrNotFound))
}

func TestWorkflowCompletionReleasesVehicle(t *testing.T) {
	f := newTrackerFixture(t)
	reportID := uuid.New()
	workflow, err := f.tracker.Initialize(context.Background(), reportID, f.vehicle.FleetID, &f.vehicle.ID, nil, nil)
	require.NoError(t, err)
	require.True(t, workflow.KillSwitchEngaged)

	var last *StepCompletionResult
	for _, step := range workflow.RequiredSteps {
		last, err = f.tracker.SetStepCompletion(context.Background(), reportID, step.ID, true, nil, uuid.New())
		require.NoError(t, err)
	}

	assert.True(t, last.IsComplete)
	assert.Equal(t, 100, last.CompletionPercentage)
	assert.False(t, last.KillSwitchEngaged)
	assert.NotNil(t, last.Workflow.KillSwitchReleasedAt)

	assert.Equal(t, []string{"engage", "disengage"}, actionStrings(f.dispatcher.calls))
	assert.Equal(t, models.KillSwitchInactive, f.vehicle.KillSwitchStatus)
}

func TestReopeningWorkflowReengages(t *testing.T) {
	f := newTrackerFixture(t)
	reportID := uuid.New()
	workflow, err := f.tracker.Initialize(context.Background(), reportID, f.vehicle.FleetID, &f.vehicle.ID, nil, nil)
	require.NoError(t, err)

	for _, step := range workflow.RequiredSteps {
		_, err = f.tracker.SetStepCompletion(context.Background(), reportID, step.ID, true, nil, uuid.New())
		require.NoError(t, err)
	}
	require.Equal(t, models.KillSwitchInactive, f.vehicle.KillSwitchStatus)

	// Un-completing a step reopens the report and re-engages the vehicle
	result, err := f.tracker.SetStepCompletion(context.Background(), reportID, "driver_signature", false, nil, uuid.New())
	require.NoError(t, err)

	assert.False(t, result.IsComplete)
	assert.True(t, result.KillSwitchEngaged)
	assert.Equal(t, []string{"engage", "disengage", "engage"}, actionStrings(f.dispatcher.calls))
}

func TestApprovedOverrideBlocksReengagement(t *testing.T) {
	f := newTrackerFixture(t)
	reportID := uuid.New()
	_, err := f.tracker.Initialize(context.Background(), reportID, f.vehicle.FleetID, &f.vehicle.ID, nil, nil)
	require.NoError(t, err)

	// Simulate an approved override: flag set, vehicle released
	stored, _ := f.workflowRepo.GetByReportID(context.Background(), reportID)
	stored.OverrideApproved = true
	stored.KillSwitchEngaged = false
	require.NoError(t, f.workflowRepo.Update(context.Background(), stored))
	f.vehicle.KillSwitchStatus = models.KillSwitchInactive

	result, err := f.tracker.SetStepCompletion(context.Background(), reportID, "accident_details", true, nil, uuid.New())
	require.NoError(t, err)

	assert.False(t, result.KillSwitchEngaged)
	assert.Equal(t, models.KillSwitchInactive, f.vehicle.KillSwitchStatus)
}

func TestSetStepCompletionRetriesVersionConflict(t *testing.T) {
	f := newTrackerFixture(t)
	reportID := uuid.New()
	_, err := f.tracker.Initialize(context.Background(), reportID, f.vehicle.FleetID, &f.vehicle.ID, nil, nil)
	require.NoError(t, err)

	f.workflowRepo.failUpdates = 2

	result, err := f.tracker.SetStepCompletion(context.Background(), reportID, "accident_details", true, nil, uuid.New())
	require.NoError(t, err, "conflicts within the retry budget succeed")
	assert.True(t, result.Changed)
}

func TestSetStepCompletionExhaustsRetries(t *testing.T) {
	f := newTrackerFixture(t)
	reportID := uuid.New()
	_, err := f.tracker.Initialize(context.Background(), reportID, f.vehicle.FleetID, &f.vehicle.ID, nil, nil)
	require.NoError(t, err)

	f.workflowRepo.failUpdates = maxUpdateRetries

	_, err = f.tracker.SetStepCompletion(context.Background(), reportID, "accident_details", true, nil, uuid.New())
	require.Error(t, err)
	assert.True(t, errors.Is(err, postgres.ErrVersionConflict))
}

func TestSetStepCompletionUsesAdvisoryLock(t *testing.T) {
	f := newTrackerFixture(t)
	locker := &mockLocker{}
	f.tracker.locker = locker

	reportID := uuid.New()
	_, err := f.tracker.Initialize(context.Background(), reportID, f.vehicle.FleetID, &f.vehicle.ID, nil, nil)
	require.NoError(t, err)

	_, err = f.tracker.SetStepCompletion(context.Background(), reportID, "accident_details", true, nil, uuid.New())
	require.NoError(t, err)

	assert.Equal(t, 1, locker.acquired)
	assert.Equal(t, 1, locker.released)
}

func TestSetStepCompletionProceedsWithoutLock(t *testing.T) {
	f := newTrackerFixture(t)
	f.tracker.locker = &mockLocker{denied: true}

	reportID := uuid.New()
	_, err := f.tracker.Initialize(context.Background(), reportID, f.vehicle.FleetID, &f.vehicle.ID, nil, nil)
	require.NoError(t, err)

	result, err := f.tracker.SetStepCompletion(context.Background(), reportID, "accident_details", true, nil, uuid.New())
	require.NoError(t, err, "lock contention falls back to the version guard")
	assert.True(t, result.Changed)
}

func TestRunPhotoValidationGate(t *testing.T) {
	f := newTrackerFixture(t)
	reportID := uuid.New()
	_, err := f.tracker.Initialize(context.Background(), reportID, f.vehicle.FleetID, &f.vehicle.ID, nil, nil)
	require.NoError(t, err)

	f.photoRepo.photos = []models.ReportPhoto{
		{ID: uuid.New(), ReportID: reportID, ValidationStatus: models.PhotoPending},
		{ID: uuid.New(), ReportID: reportID, ValidationStatus: models.PhotoPending},
		{ID: uuid.New(), ReportID: reportID, ValidationStatus: models.PhotoPending},
	}

	result, err := f.tracker.RunPhotoValidationGate(context.Background(), reportID, uuid.New())
	require.NoError(t, err)

	assert.True(t, result.Passed)
	assert.Equal(t, 3, result.TotalPhotos)
	assert.Empty(t, result.Blocking)
	assert.True(t, result.Workflow.StepCompleted(models.StepPhotoValidation))

	for _, p := range f.photoRepo.photos {
		assert.Equal(t, models.PhotoValid, p.ValidationStatus)
		assert.NotNil(t, p.ValidatedAt)
	}
}

func TestRunPhotoValidationGateManualReviewPasses(t *testing.T) {
	f := newTrackerFixture(t)
	reportID := uuid.New()
	_, err := f.tracker.Initialize(context.Background(), reportID, f.vehicle.FleetID, &f.vehicle.ID, nil, nil)
	require.NoError(t, err)

	photoID := uuid.New()
	f.photoRepo.photos = []models.ReportPhoto{
		{ID: photoID, ReportID: reportID, ValidationStatus: models.PhotoPending},
	}
	f.tracker.validator = &mockPhotoValidator{
		validateFunc: func(ctx context.Context, photos []models.ReportPhoto) ([]clients.ValidationResult, error) {
			return []clients.ValidationResult{{PhotoID: photoID, Status: models.PhotoManualReview}}, nil
		},
	}

	result, err := f.tracker.RunPhotoValidationGate(context.Background(), reportID, uuid.New())
	require.NoError(t, err)

	assert.True(t, result.Passed, "manual_review does not block the driver")
}

func TestRunPhotoValidationGateBlocksOnInvalid(t *testing.T) {
	f := newTrackerFixture(t)
	reportID := uuid.New()
	_, err := f.tracker.Initialize(context.Background(), reportID, f.vehicle.FleetID, &f.vehicle.ID, nil, nil)
	require.NoError(t, err)

	goodID, badID := uuid.New(), uuid.New()
	f.photoRepo.photos = []models.ReportPhoto{
		{ID: goodID, ReportID: reportID, ValidationStatus: models.PhotoPending},
		{ID: badID, ReportID: reportID, ValidationStatus: models.PhotoPending},
	}
	f.tracker.validator = &mockPhotoValidator{
		validateFunc: func(ctx context.Context, photos []models.ReportPhoto) ([]clients.ValidationResult, error) {
			return []clients.ValidationResult{
				{PhotoID: goodID, Status: models.PhotoValid},
				{PhotoID: badID, Status: models.PhotoInvalid, Reason: "blurred"},
			}, nil
		},
	}

	result, err := f.tracker.RunPhotoValidationGate(context.Background(), reportID, uuid.New())
	require.NoError(t, err)

	assert.False(t, result.Passed)
	assert.Equal(t, []uuid.UUID{badID}, result.Blocking)
	assert.False(t, result.Workflow.StepCompleted(models.StepPhotoValidation))
}

func TestRunPhotoValidationGateNoPhotos(t *testing.T) {
	f := newTrackerFixture(t)
	reportID := uuid.New()
	_, err := f.tracker.Initialize(context.Background(), reportID, f.vehicle.FleetID, &f.vehicle.ID, nil, nil)
	require.NoError(t, err)

	result, err := f.tracker.RunPhotoValidationGate(context.Background(), reportID, uuid.New())
	require.NoError(t, err)

	assert.False(t, result.Passed, "a report without photos cannot pass the gate")
	assert.Equal(t, 0, result.TotalPhotos)
}

func TestRunPhotoValidationGateAPIDown(t *testing.T) {
	f := newTrackerFixture(t)
	reportID := uuid.New()
	_, err := f.tracker.Initialize(context.Background(), reportID, f.vehicle.FleetID, &f.vehicle.ID, nil, nil)
	require.NoError(t, err)

	f.photoRepo.photos = []models.ReportPhoto{
		{ID: uuid.New(), ReportID: reportID, ValidationStatus: models.PhotoPending},
	}
	f.tracker.validator = &mockPhotoValidator{
		validateFunc: func(ctx context.Context, photos []models.ReportPhoto) ([]clients.ValidationResult, error) {
			return nil, errs.IntegrationStatus("photo-validation", "model overloaded", 503)
		},
	}

	_, err = f.tracker.RunPhotoValidationGate(context.Background(), reportID, uuid.New())
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrIntegration))

	// Photos stay pending and the step is untouched
	assert.Equal(t, models.PhotoPending, f.photoRepo.photos[0].ValidationStatus)
	workflow, _ := f.workflowRepo.GetByReportID(context.Background(), reportID)
	assert.False(t, workflow.StepCompleted(models.StepPhotoValidation))
}

func actionStrings(actions []vendors.Action) []string {
	out := make([]string, 0, len(actions))
	for _, a := range actions {
		out = append(out, string(a))
	}
	return out
}
