// It defines the API server, sets up the routes (endpoints)
// using chi, and links them to the handler functions.

package api

import (
	"database/sql"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/vrsandeep/mango-updater/internal/core"
	"github.com/vrsandeep/mango-updater/internal/store"
)

// Server holds the dependencies for our API.
type Server struct {
	app   *core.App
	db    *sql.DB
	store *store.Store
}

// Store returns the store instance.
func (s *Server) Store() *store.Store {
	return s.store
}

// NewServer creates a new Server instance.
func NewServer(app *core.App) *Server {
	return &Server{
		app:   app,
		db:    app.DB(),
		store: app.Store(),
	}
}

// Router sets up and returns the main router for the application.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)    // Logs requests to the console
	r.Use(middleware.Recoverer) // Recovers from panics
	// Update passes download whole artifacts.
	r.Use(middleware.Timeout(10 * time.Minute))

	r.Get("/api/health", s.handleHealth)
	r.Get("/api/version", s.handleGetVersion)

	r.Route("/api", func(r chi.Router) {
		r.Get("/plugins", s.handleListPlugins)
		r.Get("/plugins/info", s.handleGetPluginInfo)
		r.Get("/dependencies", s.handleListDependencies)

		r.Route("/admin", func(r chi.Router) {
			r.Use(s.AdminTokenMiddleware)

			r.Post("/plugins/install", s.handleInstallPlugin)
			r.Post("/plugins/uninstall", s.handleUninstallPlugin)
			r.Post("/update", s.handleUpdateAll)
			r.Post("/update/plugin", s.handleUpdatePlugin)

			r.Get("/jobs/status", s.handleGetAdminJobsStatus)
			r.Post("/jobs/run", s.handleRunAdminJob)
			r.Get("/history", s.handleGetHistory)
		})
	})

	// WebSocket route
	r.With(s.AdminTokenMiddleware).Get("/ws/admin/events", func(w http.ResponseWriter, r *http.Request) {
		s.app.WsHub().ServeWs(w, r)
	})

	return r
}
