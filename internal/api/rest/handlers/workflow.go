package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/fleetsafety/immobilizer/internal/models"
	"github.com/fleetsafety/immobilizer/internal/services"
	"github.com/fleetsafety/immobilizer/pkg/logger"
)

// WorkflowHandler handles workflow completion HTTP requests
type WorkflowHandler struct {
	logger  *logger.Logger
	tracker *services.WorkflowTracker
}

// NewWorkflowHandler creates a new workflow handler
func NewWorkflowHandler(log *logger.Logger, tracker *services.WorkflowTracker) *WorkflowHandler {
	return &WorkflowHandler{
		logger:  log,
		tracker: tracker,
	}
}

type initializeWorkflowRequest struct {
	ReportID  uuid.UUID       `json:"report_id"`
	FleetID   uuid.UUID       `json:"fleet_id"`
	VehicleID *uuid.UUID      `json:"vehicle_id,omitempty"`
	DriverID  *uuid.UUID      `json:"driver_id,omitempty"`
	Steps     models.StepList `json:"steps,omitempty"`
}

// Initialize handles POST /internal/v1/workflows
func (h *WorkflowHandler) Initialize(w http.ResponseWriter, r *http.Request) {
	var req initializeWorkflowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ReportID == uuid.Nil || req.FleetID == uuid.Nil {
		respondError(w, http.StatusBadRequest, "report_id and fleet_id are required")
		return
	}

	workflow, err := h.tracker.Initialize(r.Context(), req.ReportID, req.FleetID, req.VehicleID, req.DriverID, req.Steps)
	if err != nil {
		respondServiceError(w, h.logger, err)
		return
	}

	respondJSON(w, http.StatusCreated, workflow)
}

// Get handles GET /internal/v1/reports/{reportID}/workflow
func (h *WorkflowHandler) Get(w http.ResponseWriter, r *http.Request) {
	reportID, err := uuid.Parse(chi.URLParam(r, "reportID"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid report ID")
		return
	}

	workflow, err := h.tracker.Get(r.Context(), reportID)
	if err != nil {
		respondServiceError(w, h.logger, err)
		return
	}

	respondJSON(w, http.StatusOK, workflow)
}

type setStepRequest struct {
	Completed bool                   `json:"completed"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	ActorID   uuid.UUID              `json:"actor_id"`
}

// SetStep handles PUT /internal/v1/reports/{reportID}/steps/{stepID}
func (h *WorkflowHandler) SetStep(w http.ResponseWriter, r *http.Request) {
	reportID, err := uuid.Parse(chi.URLParam(r, "reportID"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid report ID")
		return
	}
	stepID := chi.URLParam(r, "stepID")

	var req setStepRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ActorID == uuid.Nil {
		respondError(w, http.StatusBadRequest, "actor_id is required")
		return
	}

	result, err := h.tracker.SetStepCompletion(r.Context(), reportID, stepID, req.Completed, req.Metadata, req.ActorID)
	if err != nil {
		respondServiceError(w, h.logger, err)
		return
	}

	respondJSON(w, http.StatusOK, result)
}

type runPhotoGateRequest struct {
	ActorID uuid.UUID `json:"actor_id"`
}

// RunPhotoGate handles POST /internal/v1/reports/{reportID}/photo-gate
func (h *WorkflowHandler) RunPhotoGate(w http.ResponseWriter, r *http.Request) {
	reportID, err := uuid.Parse(chi.URLParam(r, "reportID"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid report ID")
		return
	}

	var req runPhotoGateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.tracker.RunPhotoValidationGate(r.Context(), reportID, req.ActorID)
	if err != nil {
		respondServiceError(w, h.logger, err)
		return
	}

	respondJSON(w, http.StatusOK, result)
}
