package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/fleetsafety/immobilizer/internal/services"
	"github.com/fleetsafety/immobilizer/pkg/errs"
	"github.com/fleetsafety/immobilizer/pkg/logger"
)

// Handlers aggregates all HTTP handlers
type Handlers struct {
	Health     *HealthHandler
	Workflow   *WorkflowHandler
	Override   *OverrideHandler
	KillSwitch *KillSwitchHandler
	Event      *EventHandler
}

// HealthCheckers holds all health check dependencies
type HealthCheckers struct {
	DB    HealthChecker
	Redis HealthChecker
}

// NewHandlers creates a new handlers instance
func NewHandlers(
	log *logger.Logger,
	tracker *services.WorkflowTracker,
	overrideService *services.OverrideService,
	killSwitchService *services.KillSwitchService,
	events EventLister,
	healthCheckers *HealthCheckers,
	version string,
) *Handlers {
	return &Handlers{
		Health:     NewHealthHandler(log, healthCheckers.DB, healthCheckers.Redis, version),
		Workflow:   NewWorkflowHandler(log, tracker),
		Override:   NewOverrideHandler(log, overrideService),
		KillSwitch: NewKillSwitchHandler(log, killSwitchService),
		Event:      NewEventHandler(log, events),
	}
}

// respondJSON writes a JSON response
func respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// respondError writes an error response
func respondError(w http.ResponseWriter, statusCode int, message string) {
	respondJSON(w, statusCode, map[string]string{"error": message})
}

// respondServiceError maps domain errors onto HTTP status codes
func respondServiceError(w http.ResponseWriter, log *logger.Logger, err error) {
	switch {
	case errors.Is(err, errs.ErrNotFound):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, errs.ErrInvalidState):
		respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, errs.ErrConfiguration):
		respondError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, errs.ErrIntegration):
		respondError(w, http.StatusBadGateway, err.Error())
	default:
		log.Errorf("Unhandled service error: %v", err)
		respondError(w, http.StatusInternalServerError, "internal error")
	}
}
