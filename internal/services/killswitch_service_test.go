package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetsafety/immobilizer/internal/models"
	"github.com/fleetsafety/immobilizer/internal/vendors"
	"github.com/fleetsafety/immobilizer/pkg/config"
	"github.com/fleetsafety/immobilizer/pkg/errs"
	"github.com/fleetsafety/immobilizer/pkg/logger"
)

// Mock VehicleRepository for testing
type mockVehicleRepo struct {
	getByIDFunc          func(ctx context.Context, id uuid.UUID) (*models.Vehicle, error)
	updateKillSwitchFunc func(ctx context.Context, id uuid.UUID, status models.KillSwitchStatus, sync models.SyncStatus) error
	markSyncedFunc       func(ctx context.Context, id uuid.UUID) error
	listPendingSyncFunc  func(ctx context.Context, limit int) ([]models.Vehicle, error)
}

func (m *mockVehicleRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Vehicle, error) {
	if m.getByIDFunc != nil {
		return m.getByIDFunc(ctx, id)
	}
	return nil, errs.NotFound("vehicle %s", id)
}

func (m *mockVehicleRepo) UpdateKillSwitch(ctx context.Context, id uuid.UUID, status models.KillSwitchStatus, sync models.SyncStatus) error {
	if m.updateKillSwitchFunc != nil {
		return m.updateKillSwitchFunc(ctx, id, status, sync)
	}
	return nil
}

func (m *mockVehicleRepo) MarkSynced(ctx context.Context, id uuid.UUID) error {
	if m.markSyncedFunc != nil {
		return m.markSyncedFunc(ctx, id)
	}
	return nil
}

func (m *mockVehicleRepo) ListPendingSync(ctx context.Context, limit int) ([]models.Vehicle, error) {
	if m.listPendingSyncFunc != nil {
		return m.listPendingSyncFunc(ctx, limit)
	}
	return nil, nil
}

// Mock EventRepository for testing
type mockEventRepo struct {
	appendFunc func(ctx context.Context, e *models.KillSwitchEvent) error
	events     []models.KillSwitchEvent
}

func (m *mockEventRepo) Append(ctx context.Context, e *models.KillSwitchEvent) error {
	if m.appendFunc != nil {
		return m.appendFunc(ctx, e)
	}
	m.events = append(m.events, *e)
	return nil
}

// Mock CommandDispatcher for testing
type mockDispatcher struct {
	dispatchFunc func(ctx context.Context, action vendors.Action, vehicle *models.Vehicle) (*vendors.Response, error)
	calls        []vendors.Action
}

func (m *mockDispatcher) Dispatch(ctx context.Context, action vendors.Action, vehicle *models.Vehicle) (*vendors.Response, error) {
	m.calls = append(m.calls, action)
	if m.dispatchFunc != nil {
		return m.dispatchFunc(ctx, action, vehicle)
	}
	return &vendors.Response{Vendor: "samsara", StatusCode: 200, SentAt: time.Now()}, nil
}

func disabledNotifications(t *testing.T) *NotificationService {
	t.Helper()
	svc, err := NewNotificationService(&config.NotificationConfig{}, logger.NewForTesting(), nil)
	require.NoError(t, err)
	return svc
}

func testVehicle(enabled bool, status models.KillSwitchStatus) *models.Vehicle {
	providerID := uuid.New()
	deviceID := "dev-1"
	return &models.Vehicle{
		ID:                uuid.New(),
		FleetID:           uuid.New(),
		Name:              "Truck 12",
		KillSwitchEnabled: enabled,
		KillSwitchStatus:  status,
		SyncStatus:        models.SyncStatusSynced,
		ProviderID:        &providerID,
		VendorDeviceID:    &deviceID,
	}
}

func newKillSwitchService(t *testing.T, vehicles *mockVehicleRepo, events *mockEventRepo, dispatcher *mockDispatcher) *KillSwitchService {
	t.Helper()
	return NewKillSwitchService(vehicles, events, dispatcher, disabledNotifications(t), logger.NewForTesting(), nil)
}

func TestEngage(t *testing.T) {
	vehicle := testVehicle(true, models.KillSwitchInactive)
	actorID := uuid.New()
	reportID := uuid.New()

	var gotStatus models.KillSwitchStatus
	var gotSync models.SyncStatus
	markedSynced := false

	vehicles := &mockVehicleRepo{
		getByIDFunc: func(ctx context.Context, id uuid.UUID) (*models.Vehicle, error) {
			return vehicle, nil
		},
		updateKillSwitchFunc: func(ctx context.Context, id uuid.UUID, status models.KillSwitchStatus, sync models.SyncStatus) error {
			gotStatus, gotSync = status, sync
			return nil
		},
		markSyncedFunc: func(ctx context.Context, id uuid.UUID) error {
			markedSynced = true
			return nil
		},
	}
	events := &mockEventRepo{}
	dispatcher := &mockDispatcher{}

	svc := newKillSwitchService(t, vehicles, events, dispatcher)

	result, err := svc.Engage(context.Background(), vehicle.ID, actorID, &reportID, "accident report in progress")
	require.NoError(t, err)

	assert.True(t, result.Changed)
	assert.True(t, result.Synced)
	assert.Equal(t, models.KillSwitchEngaged, gotStatus)
	assert.Equal(t, models.SyncStatusPendingSync, gotSync, "local write precedes vendor confirmation")
	assert.True(t, markedSynced)
	assert.Equal(t, []vendors.Action{vendors.ActionEngage}, dispatcher.calls)

	require.Len(t, events.events, 1)
	event := events.events[0]
	assert.Equal(t, models.EventEngaged, event.EventType)
	assert.Equal(t, actorID, event.ActorID)
	assert.Equal(t, &reportID, event.ReportID)
	assert.Equal(t, "accident report in progress", event.Reason)
}

func TestEngageNotEnabled(t *testing.T) {
	vehicle := testVehicle(false, models.KillSwitchInactive)

	vehicles := &mockVehicleRepo{
		getByIDFunc: func(ctx context.Context, id uuid.UUID) (*models.Vehicle, error) {
			return vehicle, nil
		},
		updateKillSwitchFunc: func(ctx context.Context, id uuid.UUID, status models.KillSwitchStatus, sync models.SyncStatus) error {
			t.Fatal("state must not change when kill switch is disabled")
			return nil
		},
	}
	events := &mockEventRepo{}
	dispatcher := &mockDispatcher{}

	svc := newKillSwitchService(t, vehicles, events, dispatcher)

	_, err := svc.Engage(context.Background(), vehicle.ID, uuid.New(), nil, "test")
	assert.True(t, errors.Is(err, errs.ErrInvalidState))
	assert.Empty(t, events.events, "no audit event for a rejected engage")
	assert.Empty(t, dispatcher.calls)
}

func TestEngageAlreadyEngaged(t *testing.T) {
	vehicle := testVehicle(true, models.KillSwitchEngaged)

	vehicles := &mockVehicleRepo{
		getByIDFunc: func(ctx context.Context, id uuid.UUID) (*models.Vehicle, error) {
			return vehicle, nil
		},
	}
	events := &mockEventRepo{}
	dispatcher := &mockDispatcher{}

	svc := newKillSwitchService(t, vehicles, events, dispatcher)

	result, err := svc.Engage(context.Background(), vehicle.ID, uuid.New(), nil, "test")
	require.NoError(t, err)

	assert.False(t, result.Changed)
	assert.Empty(t, dispatcher.calls, "idempotent engage sends no vendor command")
	assert.Empty(t, events.events)
}

func TestEngageVendorFailure(t *testing.T) {
	vehicle := testVehicle(true, models.KillSwitchInactive)

	markedSynced := false
	vehicles := &mockVehicleRepo{
		getByIDFunc: func(ctx context.Context, id uuid.UUID) (*models.Vehicle, error) {
			return vehicle, nil
		},
		markSyncedFunc: func(ctx context.Context, id uuid.UUID) error {
			markedSynced = true
			return nil
		},
	}
	events := &mockEventRepo{}
	dispatcher := &mockDispatcher{
		dispatchFunc: func(ctx context.Context, action vendors.Action, v *models.Vehicle) (*vendors.Response, error) {
			return nil, errs.IntegrationStatus("samsara", "command rejected", 502)
		},
	}

	svc := newKillSwitchService(t, vehicles, events, dispatcher)

	result, err := svc.Engage(context.Background(), vehicle.ID, uuid.New(), nil, "test")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrIntegration))

	// Degraded success: local state committed, reconciler owns the retry
	require.NotNil(t, result)
	assert.True(t, result.Changed)
	assert.False(t, result.Synced)
	assert.False(t, markedSynced)
	assert.Len(t, events.events, 1, "audit event recorded despite vendor failure")
}

func TestEngageWithoutVendorConfig(t *testing.T) {
	vehicle := testVehicle(true, models.KillSwitchInactive)
	vehicle.ProviderID = nil
	vehicle.VendorDeviceID = nil

	var gotSync models.SyncStatus
	vehicles := &mockVehicleRepo{
		getByIDFunc: func(ctx context.Context, id uuid.UUID) (*models.Vehicle, error) {
			return vehicle, nil
		},
		updateKillSwitchFunc: func(ctx context.Context, id uuid.UUID, status models.KillSwitchStatus, sync models.SyncStatus) error {
			gotSync = sync
			return nil
		},
	}
	events := &mockEventRepo{}
	dispatcher := &mockDispatcher{}

	svc := newKillSwitchService(t, vehicles, events, dispatcher)

	result, err := svc.Engage(context.Background(), vehicle.ID, uuid.New(), nil, "test")
	require.NoError(t, err)

	assert.True(t, result.Synced)
	assert.Equal(t, models.SyncStatusSynced, gotSync, "no vendor means nothing to confirm")
	assert.Empty(t, dispatcher.calls)
}

func TestDisengage(t *testing.T) {
	vehicle := testVehicle(true, models.KillSwitchEngaged)
	actorID := uuid.New()

	vehicles := &mockVehicleRepo{
		getByIDFunc: func(ctx context.Context, id uuid.UUID) (*models.Vehicle, error) {
			return vehicle, nil
		},
	}
	events := &mockEventRepo{}
	dispatcher := &mockDispatcher{}

	svc := newKillSwitchService(t, vehicles, events, dispatcher)

	result, err := svc.Disengage(context.Background(), vehicle.ID, actorID, nil, "workflow completed")
	require.NoError(t, err)

	assert.True(t, result.Changed)
	assert.Equal(t, []vendors.Action{vendors.ActionDisengage}, dispatcher.calls)
	require.Len(t, events.events, 1)
	assert.Equal(t, models.EventDisengaged, events.events[0].EventType)
}

func TestDisengageIgnoresEnablement(t *testing.T) {
	// A vehicle disabled mid-engagement must still be releasable
	vehicle := testVehicle(false, models.KillSwitchEngaged)

	vehicles := &mockVehicleRepo{
		getByIDFunc: func(ctx context.Context, id uuid.UUID) (*models.Vehicle, error) {
			return vehicle, nil
		},
	}
	svc := newKillSwitchService(t, vehicles, &mockEventRepo{}, &mockDispatcher{})

	result, err := svc.Disengage(context.Background(), vehicle.ID, uuid.New(), nil, "test")
	require.NoError(t, err)
	assert.True(t, result.Changed)
}

func TestCheckAndEngage(t *testing.T) {
	vehicle := testVehicle(true, models.KillSwitchInactive)
	reportID := uuid.New()
	workflow := &models.WorkflowCompletion{
		ID:            uuid.New(),
		ReportID:      reportID,
		FleetID:       vehicle.FleetID,
		VehicleID:     &vehicle.ID,
		RequiredSteps: models.DefaultSteps(),
	}
	workflow.Recompute()
	require.False(t, workflow.IsComplete)

	vehicles := &mockVehicleRepo{
		getByIDFunc: func(ctx context.Context, id uuid.UUID) (*models.Vehicle, error) {
			return vehicle, nil
		},
	}
	events := &mockEventRepo{}
	svc := newKillSwitchService(t, vehicles, events, &mockDispatcher{})

	engaged, err := svc.CheckAndEngage(context.Background(), workflow)
	require.NoError(t, err)
	assert.True(t, engaged)

	require.Len(t, events.events, 1)
	assert.Equal(t, SystemActorID, events.events[0].ActorID, "automatic engagement is attributed to the system")
	assert.Equal(t, &reportID, events.events[0].ReportID)
}

func TestCheckAndEngageSkips(t *testing.T) {
	vehicle := testVehicle(true, models.KillSwitchInactive)

	t.Run("complete workflow", func(t *testing.T) {
		workflow := &models.WorkflowCompletion{VehicleID: &vehicle.ID, IsComplete: true}
		svc := newKillSwitchService(t, &mockVehicleRepo{}, &mockEventRepo{}, &mockDispatcher{})

		engaged, err := svc.CheckAndEngage(context.Background(), workflow)
		require.NoError(t, err)
		assert.False(t, engaged)
	})

	t.Run("no vehicle", func(t *testing.T) {
		workflow := &models.WorkflowCompletion{}
		svc := newKillSwitchService(t, &mockVehicleRepo{}, &mockEventRepo{}, &mockDispatcher{})

		engaged, err := svc.CheckAndEngage(context.Background(), workflow)
		require.NoError(t, err)
		assert.False(t, engaged)
	})

	t.Run("kill switch disabled", func(t *testing.T) {
		disabled := testVehicle(false, models.KillSwitchInactive)
		workflow := &models.WorkflowCompletion{VehicleID: &disabled.ID}
		vehicles := &mockVehicleRepo{
			getByIDFunc: func(ctx context.Context, id uuid.UUID) (*models.Vehicle, error) {
				return disabled, nil
			},
		}
		svc := newKillSwitchService(t, vehicles, &mockEventRepo{}, &mockDispatcher{})

		engaged, err := svc.CheckAndEngage(context.Background(), workflow)
		require.NoError(t, err)
		assert.False(t, engaged)
	})

	t.Run("already engaged", func(t *testing.T) {
		held := testVehicle(true, models.KillSwitchEngaged)
		workflow := &models.WorkflowCompletion{VehicleID: &held.ID}
		vehicles := &mockVehicleRepo{
			getByIDFunc: func(ctx context.Context, id uuid.UUID) (*models.Vehicle, error) {
				return held, nil
			},
		}
		svc := newKillSwitchService(t, vehicles, &mockEventRepo{}, &mockDispatcher{})

		engaged, err := svc.CheckAndEngage(context.Background(), workflow)
		require.NoError(t, err)
		assert.False(t, engaged)
	})
}

func TestReconcile(t *testing.T) {
	good := testVehicle(true, models.KillSwitchEngaged)
	good.SyncStatus = models.SyncStatusPendingSync
	bad := testVehicle(true, models.KillSwitchInactive)
	bad.SyncStatus = models.SyncStatusPendingSync

	var syncedIDs []uuid.UUID
	vehicles := &mockVehicleRepo{
		listPendingSyncFunc: func(ctx context.Context, limit int) ([]models.Vehicle, error) {
			return []models.Vehicle{*good, *bad}, nil
		},
		markSyncedFunc: func(ctx context.Context, id uuid.UUID) error {
			syncedIDs = append(syncedIDs, id)
			return nil
		},
	}
	dispatcher := &mockDispatcher{
		dispatchFunc: func(ctx context.Context, action vendors.Action, v *models.Vehicle) (*vendors.Response, error) {
			if v.ID == bad.ID {
				return nil, errs.Integration("verizon", "request failed", errors.New("connection refused"))
			}
			return &vendors.Response{Vendor: "samsara", StatusCode: 200}, nil
		},
	}

	svc := newKillSwitchService(t, vehicles, &mockEventRepo{}, dispatcher)

	synced, err := svc.Reconcile(context.Background(), 50)
	require.NoError(t, err)

	assert.Equal(t, 1, synced, "one vendor unreachable, the other confirmed")
	assert.Equal(t, []uuid.UUID{good.ID}, syncedIDs)
	// The engaged vehicle replays engage, the inactive one replays disengage
	assert.Equal(t, []vendors.Action{vendors.ActionEngage, vendors.ActionDisengage}, dispatcher.calls)
}

func TestReconcileVehicleWithoutVendor(t *testing.T) {
	orphan := testVehicle(true, models.KillSwitchEngaged)
	orphan.ProviderID = nil
	orphan.VendorDeviceID = nil
	orphan.SyncStatus = models.SyncStatusPendingSync

	marked := false
	vehicles := &mockVehicleRepo{
		listPendingSyncFunc: func(ctx context.Context, limit int) ([]models.Vehicle, error) {
			return []models.Vehicle{*orphan}, nil
		},
		markSyncedFunc: func(ctx context.Context, id uuid.UUID) error {
			marked = true
			return nil
		},
	}
	dispatcher := &mockDispatcher{}

	svc := newKillSwitchService(t, vehicles, &mockEventRepo{}, dispatcher)

	synced, err := svc.Reconcile(context.Background(), 50)
	require.NoError(t, err)

	assert.Equal(t, 1, synced)
	assert.True(t, marked)
	assert.Empty(t, dispatcher.calls, "nothing to send without vendor config")
}
