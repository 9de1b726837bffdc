package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/zcsabbagh/knowledge-graph-mcp/internal/server/core"
	"github.com/zcsabbagh/knowledge-graph-mcp/internal/server/ctxlog"
	"github.com/zcsabbagh/knowledge-graph-mcp/internal/server/service"
	"github.com/zcsabbagh/knowledge-graph-mcp/internal/server/store"
)

// Server holds the HTTP server dependencies
type Server struct {
	svc    *service.Service
	logger *slog.Logger
}

// New creates a new API server
func New(svc *service.Service, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{svc: svc, logger: logger}
}

// CreateNode handles POST /api/nodes
func (s *Server) CreateNode(w http.ResponseWriter, r *http.Request) {
	var req service.AddNodeRequest
	if !decode(w, r, &req) {
		return
	}

	res, err := s.svc.AddNode(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	status := http.StatusOK
	if res.Created {
		status = http.StatusCreated
	}
	writeJSON(w, status, res)
}

// GetNode handles GET /api/nodes/{id}
// The id may also be a concept name.
func (s *Server) GetNode(w http.ResponseWriter, r *http.Request) {
	node, err := s.svc.GetNode(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, node)
}

// ListNodes handles GET /api/nodes
// Supports ?domain= and ?tag= filters
func (s *Server) ListNodes(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	nodes, err := s.svc.ListNodes(r.Context(), store.NodeFilter{
		Domain: query.Get("domain"),
		Tag:    query.Get("tag"),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"nodes": nodes,
		"count": len(nodes),
	})
}

// UpdateNode handles PATCH /api/nodes/{id}
// Records mastery changes and, when quality is present, a review.
func (s *Server) UpdateNode(w http.ResponseWriter, r *http.Request) {
	var req service.UpdateNodeRequest
	if !decode(w, r, &req) {
		return
	}
	req.NodeID = chi.URLParam(r, "id")

	res, err := s.svc.UpdateNode(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// CreateEdge handles POST /api/edges
func (s *Server) CreateEdge(w http.ResponseWriter, r *http.Request) {
	var req service.AddEdgeRequest
	if !decode(w, r, &req) {
		return
	}

	res, err := s.svc.AddEdge(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Query handles GET /api/query/{type}
// Supports ?node=, ?domain=, ?tag= and ?limit=
func (s *Server) Query(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	limit, err := intParam(r, "limit", 0)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	res, err := s.svc.QueryGraph(r.Context(), service.QueryRequest{
		QueryType: chi.URLParam(r, "type"),
		Node:      query.Get("node"),
		Domain:    query.Get("domain"),
		Tag:       query.Get("tag"),
		Limit:     limit,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Subgraph handles GET /api/nodes/{id}/subgraph
// Supports ?depth= (default 2), ?direction= and ?format=
func (s *Server) Subgraph(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	depth, err := intParam(r, "depth", 2)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	res, err := s.svc.ReadSubgraph(r.Context(), service.SubgraphRequest{
		CenterNode:   chi.URLParam(r, "id"),
		Depth:        depth,
		Direction:    query.Get("direction"),
		OutputFormat: query.Get("format"),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	// A bare diagram request is served as text so it can be piped into
	// a mermaid renderer.
	if query.Get("format") == string(service.FormatMermaid) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(res.Mermaid))
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// LearningPath handles GET /api/nodes/{id}/path
// Supports ?mermaid=true and ?hide_mastered=true
func (s *Server) LearningPath(w http.ResponseWriter, r *http.Request) {
	includeMermaid, err := boolParam(r, "mermaid")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	hideMastered, err := boolParam(r, "hide_mastered")
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	res, err := s.svc.GetLearningPath(r.Context(), service.PathRequest{
		TargetConcept:  chi.URLParam(r, "id"),
		IncludeMermaid: includeMermaid,
		HideMastered:   hideMastered,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Statistics handles GET /api/stats
// Supports ?domain=
func (s *Server) Statistics(w http.ResponseWriter, r *http.Request) {
	st, err := s.svc.GetStatistics(r.Context(), r.URL.Query().Get("domain"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// HealthCheck handles GET /health
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// withLogger attaches a request-scoped logger to the context.
func (s *Server) withLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger := s.logger.With("request_id", middleware.GetReqID(r.Context()))
		next.ServeHTTP(w, r.WithContext(ctxlog.WithLogger(r.Context(), logger)))
	})
}

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
	Field string `json:"field,omitempty"`
	// Cycle lists the offending node ids for a cycle error.
	Cycle []string `json:"cycle,omitempty"`
}

// statusOf maps the error taxonomy onto HTTP status codes.
func statusOf(err error) (int, string) {
	switch {
	case errors.Is(err, core.ErrValidation):
		return http.StatusBadRequest, "validation"
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, core.ErrCycle):
		return http.StatusConflict, "cycle"
	case errors.Is(err, core.ErrStorage):
		return http.StatusInternalServerError, "storage"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, kind := statusOf(err)
	resp := errorResponse{Error: err.Error(), Kind: kind}

	var ve *core.ValidationError
	if errors.As(err, &ve) {
		resp.Field = ve.Field
	}
	var ce *core.CycleError
	if errors.As(err, &ce) {
		resp.Cycle = ce.Cycle
	}
	if status == http.StatusInternalServerError {
		ctxlog.FromContext(r.Context()).Error("request failed", "path", r.URL.Path, "error", err)
	}
	writeJSON(w, status, resp)
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error(), Kind: "validation", Field: "body"})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// intParam reads an integer query parameter, returning def when absent
func intParam(r *http.Request, key string, def int) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, &core.ValidationError{Field: key, Value: v, Reason: "must be an integer"}
	}
	return n, nil
}

// boolParam reads a boolean query parameter, false when absent
func boolParam(r *http.Request, key string) (bool, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, &core.ValidationError{Field: key, Value: v, Reason: "must be a boolean"}
	}
	return b, nil
}
