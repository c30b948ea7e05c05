package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/fleetsafety/immobilizer/internal/models"
	"github.com/fleetsafety/immobilizer/pkg/logger"
)

// EventLister reads the kill switch audit trail
type EventLister interface {
	ListByVehicle(ctx context.Context, vehicleID uuid.UUID, limit, offset int) ([]models.KillSwitchEvent, error)
	ListByReport(ctx context.Context, reportID uuid.UUID, limit, offset int) ([]models.KillSwitchEvent, error)
}

// EventHandler serves the append-only kill switch audit trail
type EventHandler struct {
	logger    *logger.Logger
	eventRepo EventLister
}

// NewEventHandler creates a new event handler
func NewEventHandler(log *logger.Logger, eventRepo EventLister) *EventHandler {
	return &EventHandler{
		logger:    log,
		eventRepo: eventRepo,
	}
}

// ListByVehicle handles GET /internal/v1/vehicles/{vehicleID}/events
func (h *EventHandler) ListByVehicle(w http.ResponseWriter, r *http.Request) {
	vehicleID, err := uuid.Parse(chi.URLParam(r, "vehicleID"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid vehicle ID")
		return
	}

	limit, offset := parsePagination(r)
	events, err := h.eventRepo.ListByVehicle(r.Context(), vehicleID, limit, offset)
	if err != nil {
		respondServiceError(w, h.logger, err)
		return
	}

	respondEvents(w, events, limit, offset)
}

// ListByReport handles GET /internal/v1/reports/{reportID}/events
func (h *EventHandler) ListByReport(w http.ResponseWriter, r *http.Request) {
	reportID, err := uuid.Parse(chi.URLParam(r, "reportID"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid report ID")
		return
	}

	limit, offset := parsePagination(r)
	events, err := h.eventRepo.ListByReport(r.Context(), reportID, limit, offset)
	if err != nil {
		respondServiceError(w, h.logger, err)
		return
	}

	respondEvents(w, events, limit, offset)
}

func respondEvents(w http.ResponseWriter, events []models.KillSwitchEvent, limit, offset int) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"events":    events,
		"total":     len(events),
		"page":      offset / limit,
		"page_size": limit,
	})
}

func parsePagination(r *http.Request) (limit, offset int) {
	limit = 50
	if s := r.URL.Query().Get("limit"); s != "" {
		if l, err := strconv.Atoi(s); err == nil && l > 0 && l <= 100 {
			limit = l
		}
	}

	offset = 0
	if s := r.URL.Query().Get("offset"); s != "" {
		if o, err := strconv.Atoi(s); err == nil && o >= 0 {
			offset = o
		}
	}
	return limit, offset
}
