package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/stafflane/stafflane/internal/accounts"
	"github.com/stafflane/stafflane/internal/audit"
	"github.com/stafflane/stafflane/internal/auth"
	"github.com/stafflane/stafflane/internal/observability"
	"github.com/stafflane/stafflane/internal/permissions"
	"github.com/stafflane/stafflane/internal/roles"
	"github.com/stafflane/stafflane/internal/shared"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger         *slog.Logger
	Config         *Config
	SessionManager *shared.SessionManager
	Actors         ActorLoader

	AuthHandler        *auth.Handler
	AccountsHandler    *accounts.Handler
	RolesHandler       *roles.Handler
	PermissionsHandler *permissions.Handler
	AuditHandler       *audit.Handler

	Metrics *observability.Metrics
}

// NewRouter constructs the chi.Router with Stafflane defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:         params.Logger,
		Config:         params.Config,
		SessionManager: params.SessionManager,
		Actors:         params.Actors,
		Metrics:        params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/api", func(r chi.Router) {
		params.AuthHandler.MountRoutes(r)
		params.AccountsHandler.MountRoutes(r)
		params.RolesHandler.MountRoutes(r)
		params.PermissionsHandler.MountRoutes(r)
		params.AuditHandler.MountRoutes(r)
	})

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
