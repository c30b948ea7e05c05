package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/fleetsafety/immobilizer/internal/services"
	"github.com/fleetsafety/immobilizer/pkg/errs"
	"github.com/fleetsafety/immobilizer/pkg/logger"
)

// KillSwitchHandler handles manual kill switch HTTP requests
type KillSwitchHandler struct {
	logger            *logger.Logger
	killSwitchService *services.KillSwitchService
}

// NewKillSwitchHandler creates a new kill switch handler
func NewKillSwitchHandler(log *logger.Logger, killSwitchService *services.KillSwitchService) *KillSwitchHandler {
	return &KillSwitchHandler{
		logger:            log,
		killSwitchService: killSwitchService,
	}
}

type killSwitchRequest struct {
	ActorID  uuid.UUID  `json:"actor_id"`
	ReportID *uuid.UUID `json:"report_id,omitempty"`
	Reason   string     `json:"reason"`
}

type killSwitchResponse struct {
	*services.CommandResult
	Warning string `json:"warning,omitempty"`
}

// Engage handles POST /internal/v1/vehicles/{vehicleID}/engage
func (h *KillSwitchHandler) Engage(w http.ResponseWriter, r *http.Request) {
	h.command(w, r, h.killSwitchService.Engage)
}

// Disengage handles POST /internal/v1/vehicles/{vehicleID}/disengage
func (h *KillSwitchHandler) Disengage(w http.ResponseWriter, r *http.Request) {
	h.command(w, r, h.killSwitchService.Disengage)
}

type commandFunc func(ctx context.Context, vehicleID, actorID uuid.UUID, reportID *uuid.UUID, reason string) (*services.CommandResult, error)

func (h *KillSwitchHandler) command(w http.ResponseWriter, r *http.Request, fn commandFunc) {
	vehicleID, err := uuid.Parse(chi.URLParam(r, "vehicleID"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid vehicle ID")
		return
	}

	var req killSwitchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ActorID == uuid.Nil {
		respondError(w, http.StatusBadRequest, "actor_id is required")
		return
	}
	if req.Reason == "" {
		respondError(w, http.StatusBadRequest, "reason is required")
		return
	}

	result, err := fn(r.Context(), vehicleID, req.ActorID, req.ReportID, req.Reason)
	if err != nil {
		// The local transition commits before the vendor call, so an
		// integration failure still returns the updated vehicle. The
		// sync worker will replay the command against the vendor.
		if result != nil && errs.IsIntegration(err) {
			respondJSON(w, http.StatusOK, killSwitchResponse{
				CommandResult: result,
				Warning:       "vendor command failed, vehicle pending sync",
			})
			return
		}
		respondServiceError(w, h.logger, err)
		return
	}

	respondJSON(w, http.StatusOK, killSwitchResponse{CommandResult: result})
}
