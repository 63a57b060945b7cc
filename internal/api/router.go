package api

import (
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/maxkimambo/dataflow/internal/api/handler"
	"github.com/maxkimambo/dataflow/internal/api/middleware"
	"github.com/maxkimambo/dataflow/internal/service"
	"github.com/maxkimambo/dataflow/internal/store"
)

// NewRouter creates and configures the HTTP router.
func NewRouter(runs *service.RunService, st *store.Store) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Recovery)
	r.Use(chimiddleware.RequestID)
	r.Use(middleware.Logging)
	r.Use(chimiddleware.RealIP)

	systemHandler := handler.NewSystemHandler(runs)
	runHandler := handler.NewRunHandler(runs, st)

	r.Get("/v1/health", systemHandler.Health)

	r.Route("/v1/runs", func(r chi.Router) {
		r.Get("/", runHandler.ListRuns)
		r.Post("/", runHandler.CreateRun)
		r.Get("/{id}", runHandler.GetRun)
		r.Get("/{id}/tasks", runHandler.ListTaskRuns)
		r.Post("/{id}/cancel", runHandler.CancelRun)
	})

	return r
}
