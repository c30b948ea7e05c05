package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/fleetsafety/immobilizer/internal/models"
	"github.com/fleetsafety/immobilizer/internal/services"
	"github.com/fleetsafety/immobilizer/pkg/logger"
)

// OverrideHandler handles supervisor override HTTP requests
type OverrideHandler struct {
	logger          *logger.Logger
	overrideService *services.OverrideService
}

// NewOverrideHandler creates a new override handler
func NewOverrideHandler(log *logger.Logger, overrideService *services.OverrideService) *OverrideHandler {
	return &OverrideHandler{
		logger:          log,
		overrideService: overrideService,
	}
}

// Request handles POST /internal/v1/overrides
func (h *OverrideHandler) Request(w http.ResponseWriter, r *http.Request) {
	var input services.OverrideRequestInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	request, err := h.overrideService.Request(r.Context(), &input)
	if err != nil {
		respondServiceError(w, h.logger, err)
		return
	}

	respondJSON(w, http.StatusCreated, request)
}

type resolveOverrideRequest struct {
	SupervisorID uuid.UUID `json:"supervisor_id"`
	Notes        string    `json:"notes,omitempty"`
}

// Approve handles POST /internal/v1/overrides/{id}/approve
func (h *OverrideHandler) Approve(w http.ResponseWriter, r *http.Request) {
	h.resolve(w, r, h.overrideService.Approve)
}

// Deny handles POST /internal/v1/overrides/{id}/deny
func (h *OverrideHandler) Deny(w http.ResponseWriter, r *http.Request) {
	h.resolve(w, r, h.overrideService.Deny)
}

type resolveFunc func(ctx context.Context, requestID, supervisorID uuid.UUID, notes string) (*models.SupervisorOverrideRequest, error)

func (h *OverrideHandler) resolve(w http.ResponseWriter, r *http.Request, fn resolveFunc) {
	requestID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid override request ID")
		return
	}

	var req resolveOverrideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.SupervisorID == uuid.Nil {
		respondError(w, http.StatusBadRequest, "supervisor_id is required")
		return
	}

	resolved, err := fn(r.Context(), requestID, req.SupervisorID, req.Notes)
	if err != nil {
		respondServiceError(w, h.logger, err)
		return
	}

	respondJSON(w, http.StatusOK, resolved)
}

// ListPending handles GET /internal/v1/fleets/{fleetID}/overrides
func (h *OverrideHandler) ListPending(w http.ResponseWriter, r *http.Request) {
	fleetID, err := uuid.Parse(chi.URLParam(r, "fleetID"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid fleet ID")
		return
	}

	var supervisorID *uuid.UUID
	if s := r.URL.Query().Get("supervisor_id"); s != "" {
		id, err := uuid.Parse(s)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid supervisor_id")
			return
		}
		supervisorID = &id
	}

	requests, err := h.overrideService.ListPending(r.Context(), fleetID, supervisorID)
	if err != nil {
		respondServiceError(w, h.logger, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"overrides": requests,
		"total":     len(requests),
	})
}
