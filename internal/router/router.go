package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"geotech-lab-api/internal/config"
	"geotech-lab-api/internal/handler"
	"geotech-lab-api/internal/middleware"
	"geotech-lab-api/internal/model"
	"geotech-lab-api/internal/ratelimit"
)

// Route is one row of the API table. The zero Access means any
// authenticated caller.
type Route struct {
	Method  string
	Pattern string
	Access  middleware.Access
	Handler http.HandlerFunc
}

type Handlers struct {
	Health         *handler.HealthHandler
	Auth           *handler.AuthHandler
	User           *handler.UserHandler
	AuthLog        *handler.AuthLogHandler
	Catalog        *handler.CatalogHandler
	ServiceRequest *handler.ServiceRequestHandler
	Project        *handler.ProjectHandler
	Apique         *handler.ApiqueHandler
	Profile        *handler.ProfileHandler
	Expense        *handler.ExpenseHandler
	WebSocket      http.HandlerFunc
}

var (
	public  = middleware.Access{Public: true}
	signed  = middleware.Access{}
	admin   = middleware.Access{Roles: []string{model.RoleAdmin}}
	labTeam = middleware.Access{Roles: []string{model.RoleAdmin, model.RoleLab}}
)

func Routes(h Handlers) []Route {
	return []Route{
		{http.MethodGet, "/health", public, h.Health.Check},

		{http.MethodPost, "/auth/login", public, h.Auth.Login},
		{http.MethodPost, "/auth/refresh", public, h.Auth.Refresh},
		{http.MethodPost, "/auth/forgot-password", public, h.Auth.ForgotPassword},
		{http.MethodPost, "/auth/reset-password", public, h.Auth.ResetPassword},
		{http.MethodPost, "/auth/logout", signed, h.Auth.Logout},
		{http.MethodGet, "/auth/me", signed, h.Auth.Me},
		{http.MethodPost, "/auth/change-password", signed, h.Auth.ChangePassword},
		{http.MethodGet, "/auth/sessions", signed, h.Auth.Sessions},
		{http.MethodDelete, "/auth/sessions/{id}", signed, h.Auth.RevokeSession},
		{http.MethodPost, "/auth/register", admin, h.Auth.Register},

		{http.MethodGet, "/users", admin, h.User.List},
		{http.MethodGet, "/users/{id}", admin, h.User.Get},
		{http.MethodPatch, "/users/{id}", admin, h.User.Update},
		{http.MethodPost, "/users/{id}/unlock", admin, h.User.Unlock},
		{http.MethodGet, "/auth-logs", admin, h.AuthLog.List},

		{http.MethodGet, "/services", public, h.Catalog.List},

		{http.MethodPost, "/service-requests", signed, h.ServiceRequest.Create},
		{http.MethodGet, "/service-requests", signed, h.ServiceRequest.List},
		{http.MethodGet, "/service-requests/{id}", signed, h.ServiceRequest.Get},
		{http.MethodPatch, "/service-requests/{id}", labTeam, h.ServiceRequest.Update},
		{http.MethodPatch, "/service-requests/{id}/status", labTeam, h.ServiceRequest.UpdateStatus},
		{http.MethodDelete, "/service-requests/{id}", admin, h.ServiceRequest.Delete},

		{http.MethodGet, "/projects", labTeam, h.Project.List},
		{http.MethodPost, "/projects", admin, h.Project.Create},
		{http.MethodGet, "/projects/{id}", labTeam, h.Project.Get},
		{http.MethodPatch, "/projects/{id}", admin, h.Project.Update},
		{http.MethodDelete, "/projects/{id}", admin, h.Project.Delete},

		{http.MethodGet, "/projects/{projectID}/apiques", labTeam, h.Apique.ListByProject},
		{http.MethodPost, "/projects/{projectID}/apiques", labTeam, h.Apique.Create},
		{http.MethodGet, "/apiques/{id}", labTeam, h.Apique.Get},
		{http.MethodPatch, "/apiques/{id}", labTeam, h.Apique.Update},
		{http.MethodDelete, "/apiques/{id}", labTeam, h.Apique.Delete},

		{http.MethodGet, "/projects/{projectID}/profiles", labTeam, h.Profile.ListByProject},
		{http.MethodPost, "/projects/{projectID}/profiles", labTeam, h.Profile.Create},
		{http.MethodGet, "/profiles/{id}", labTeam, h.Profile.Get},
		{http.MethodPatch, "/profiles/{id}", labTeam, h.Profile.Update},
		{http.MethodDelete, "/profiles/{id}", labTeam, h.Profile.Delete},

		{http.MethodGet, "/expenses", admin, h.Expense.List},
		{http.MethodPost, "/expenses", admin, h.Expense.Create},
		{http.MethodGet, "/expenses/{id}", admin, h.Expense.Get},
		{http.MethodPatch, "/expenses/{id}", admin, h.Expense.Update},
		{http.MethodDelete, "/expenses/{id}", admin, h.Expense.Delete},

		{http.MethodGet, "/ws", labTeam, h.WebSocket},
	}
}

func New(cfg *config.Config, authenticator middleware.Authenticator, limiter ratelimit.Store, h Handlers) http.Handler {
	return Mount(cfg, authenticator, limiter, Routes(h))
}

// Mount builds the chi tree for a route table. Split out from New so
// tests can mount a table of stub handlers.
func Mount(cfg *config.Config, authenticator middleware.Authenticator, limiter ratelimit.Store, routes []Route) http.Handler {
	r := chi.NewRouter()
	rateLimitMiddleware := middleware.NewRateLimitMiddleware(limiter, middleware.RateLimitConfig{
		Window:     cfg.RateLimitWindow,
		Max:        cfg.RateLimitMax,
		AuthMax:    cfg.AuthRateLimitMax,
		TrustProxy: cfg.TrustProxy,
	})
	gate := middleware.NewAuthGate(authenticator)

	r.Use(middleware.Recovery)
	r.Use(middleware.Logging)
	r.Use(middleware.CORS(cfg.CORSOrigins))
	r.Use(middleware.SecurityHeaders)
	r.Use(rateLimitMiddleware.Handler)

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		writeRouteError(w, req, http.StatusNotFound, "NOT_FOUND", "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		writeRouteError(w, req, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
	})

	r.Route("/api/v1", func(api chi.Router) {
		api.Use(middleware.Timeout(cfg.RequestTimeout))

		for _, route := range routes {
			if route.Handler == nil {
				continue
			}
			api.With(gate.Guard(route.Access)).Method(route.Method, route.Pattern, route.Handler)
		}
	})

	return r
}
