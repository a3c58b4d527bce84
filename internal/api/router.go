package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/theblitlabs/parity-monitor/internal/api/middleware"
	"github.com/theblitlabs/parity-monitor/internal/telemetry"
)

// Controller mounts its routes on the shared router.
type Controller interface {
	RegisterRoutes(r *mux.Router)
}

// Router wraps mux.Router to add more functionality
type Router struct {
	*mux.Router
	middleware []mux.MiddlewareFunc
}

// NewRouter creates the router, applies the global middleware and mounts
// every controller plus the Prometheus endpoint.
func NewRouter(controllers ...Controller) *Router {
	r := &Router{
		Router: mux.NewRouter(),
		middleware: []mux.MiddlewareFunc{
			middleware.Logging,
			telemetry.MetricsMiddleware,
		},
	}

	r.setup()
	r.registerRoutes(controllers)

	return r
}

func (r *Router) setup() {
	for _, m := range r.middleware {
		r.Use(m)
	}
}

// registerRoutes mounts fixed paths before controllers so a catch-all
// stream endpoint cannot shadow them.
func (r *Router) registerRoutes(controllers []Controller) {
	r.Handle("/metrics", telemetry.MetricsHandler()).Methods(http.MethodGet)

	for _, c := range controllers {
		c.RegisterRoutes(r.Router)
	}
}

// AddMiddleware adds a new middleware to the router
func (r *Router) AddMiddleware(middleware mux.MiddlewareFunc) {
	r.Use(middleware)
}
