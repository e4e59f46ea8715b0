package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/labelscan/portal/internal/config"
	custommw "github.com/labelscan/portal/internal/middleware"
	"github.com/labelscan/portal/internal/observability"
	"github.com/labelscan/portal/internal/services"
)

// RouterDeps are the collaborators the HTTP surface is built from
type RouterDeps struct {
	Config      config.Config
	Sessions    *custommw.SessionStore
	Registry    *services.WorkspaceRegistry
	Hub         *services.WebSocketHub
	Previews    *services.PreviewService
	Metrics     *observability.HTTPMetrics
	ServiceName string
}

// NewRouter mounts every portal route
func NewRouter(d RouterDeps) http.Handler {
	pageHandler := NewPageHandler()
	authHandler := NewAuthHandler()
	productHandler := NewProductHandler(d.Config.Upload, d.Previews)
	submissionHandler := NewSubmissionHandler()
	wsHandler := NewWebSocketHandler(d.Hub)
	healthHandler := NewHealthHandler()

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	if d.ServiceName != "" {
		r.Use(observability.TracingMiddleware(d.ServiceName))
	}
	if d.Metrics != nil {
		r.Use(observability.MetricsMiddleware(d.Metrics))
	}

	r.Get("/health", healthHandler.HealthCheck)

	r.Group(func(r chi.Router) {
		r.Use(custommw.Workspace(d.Sessions, d.Registry))

		r.Get("/", pageHandler.Index)

		r.Post("/login", authHandler.Login)
		r.Post("/logout", authHandler.Logout)

		r.Post("/images", productHandler.AddImages)
		r.Post("/images/{index}/remove", productHandler.RemoveImage)
		r.Get("/previews/{ref}", productHandler.Preview)

		r.Post("/product/field", productHandler.UpdateField)
		r.Post("/product", productHandler.Submit)

		r.Route("/submission", func(r chi.Router) {
			r.With(custommw.RequireAuth).Post("/confirm", submissionHandler.Confirm)
			r.Post("/dismiss", submissionHandler.Dismiss)
			r.Get("/status", submissionHandler.Status)
		})
		r.Get("/ws/submission", wsHandler.HandleConnection)

		r.Post("/results/next", submissionHandler.NextImage)
		r.Post("/results/prev", submissionHandler.PrevImage)
	})

	return r
}
