package rest

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fleetsafety/immobilizer/internal/api/rest/handlers"
	customMiddleware "github.com/fleetsafety/immobilizer/internal/api/rest/middleware"
	"github.com/fleetsafety/immobilizer/pkg/logger"
)

// Router serves the internal service-to-service API plus the operational
// surface: liveness, readiness, and metrics. The internal API is reachable
// only from inside the platform network; authentication happens at the mesh.
type Router struct {
	router   *chi.Mux
	logger   *logger.Logger
	handlers *handlers.Handlers
}

// NewRouter creates the HTTP router
func NewRouter(log *logger.Logger, h *handlers.Handlers) *Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(customMiddleware.Logger(log))
	r.Use(middleware.Recoverer)

	router := &Router{
		router:   r,
		logger:   log,
		handlers: h,
	}
	router.setupRoutes()

	return router
}

func (r *Router) setupRoutes() {
	h := r.handlers

	r.router.Get("/healthz", h.Health.Health)
	r.router.Get("/readyz", h.Health.Ready)
	r.router.Handle("/metrics", promhttp.Handler())

	r.router.Route("/internal/v1", func(api chi.Router) {
		api.Post("/workflows", h.Workflow.Initialize)

		api.Route("/reports/{reportID}", func(rep chi.Router) {
			rep.Get("/workflow", h.Workflow.Get)
			rep.Put("/steps/{stepID}", h.Workflow.SetStep)
			rep.Post("/photo-gate", h.Workflow.RunPhotoGate)
			rep.Get("/events", h.Event.ListByReport)
		})

		api.Route("/vehicles/{vehicleID}", func(veh chi.Router) {
			veh.Post("/engage", h.KillSwitch.Engage)
			veh.Post("/disengage", h.KillSwitch.Disengage)
			veh.Get("/events", h.Event.ListByVehicle)
		})

		api.Route("/overrides", func(ovr chi.Router) {
			ovr.Post("/", h.Override.Request)
			ovr.Post("/{id}/approve", h.Override.Approve)
			ovr.Post("/{id}/deny", h.Override.Deny)
		})

		api.Get("/fleets/{fleetID}/overrides", h.Override.ListPending)
	})
}

// Handler returns the http.Handler for the server
func (r *Router) Handler() http.Handler {
	return r.router
}
