package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/taskforge/taskforge/internal/auth"
	"github.com/taskforge/taskforge/internal/dashboard"
	"github.com/taskforge/taskforge/internal/logs"
	"github.com/taskforge/taskforge/internal/rbac"
	"github.com/taskforge/taskforge/internal/tasks"
	"github.com/taskforge/taskforge/internal/users"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger           *slog.Logger
	Config           *Config
	AuthHandler      *auth.Handler
	AuthMiddleware   auth.Middleware
	UsersHandler     *users.Handler
	RBACHandler      *rbac.Handler
	TasksHandler     *tasks.Handler
	LogsHandler      *logs.Handler
	DashboardHandler *dashboard.Handler
}

// NewRouter constructs the chi.Router with taskforge defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger: params.Logger,
		Config: params.Config,
	}) {
		r.Use(mw)
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/auth", params.AuthHandler.MountRoutes)

		r.Group(func(r chi.Router) {
			r.Use(params.AuthMiddleware.RequirePrincipal)

			r.Route("/users", func(r chi.Router) {
				params.UsersHandler.MountRoutes(r)
				params.RBACHandler.MountUserRoutes(r)
			})
			params.RBACHandler.MountRoutes(r)
			r.Route("/tasks", params.TasksHandler.MountRoutes)
			r.Route("/logs", params.LogsHandler.MountRoutes)
			r.Route("/dashboard", params.DashboardHandler.MountRoutes)
		})
	})

	return r
}
