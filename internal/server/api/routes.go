package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/zcsabbagh/knowledge-graph-mcp/internal/server/metrics"
)

// Routes builds the router for the knowledge graph API.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(s.withLogger)

	r.Get("/health", s.HealthCheck)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Post("/nodes", s.CreateNode)
		r.Get("/nodes", s.ListNodes)
		r.Get("/nodes/{id}", s.GetNode)
		r.Patch("/nodes/{id}", s.UpdateNode)
		r.Get("/nodes/{id}/subgraph", s.Subgraph)
		r.Get("/nodes/{id}/path", s.LearningPath)
		r.Post("/edges", s.CreateEdge)
		r.Get("/query/{type}", s.Query)
		r.Get("/stats", s.Statistics)
	})

	return r
}
