package api

import (
	"log/slog"
	"net/http"

	"github.com/dgallion1/deckgen/internal/config"
	"github.com/dgallion1/deckgen/internal/llm"
	"github.com/dgallion1/deckgen/internal/pipeline"
	"github.com/dgallion1/deckgen/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Server is the HTTP API server for deckgen.
type Server struct {
	router       chi.Router
	orchestrator *pipeline.Orchestrator
	model        llm.Streamer
	stats        *llm.StreamStats
	store        *store.Store
	log          *slog.Logger
	cfg          config.Config
}

// NewServer creates and configures the HTTP server. stats may be nil.
func NewServer(orch *pipeline.Orchestrator, model llm.Streamer, stats *llm.StreamStats, st *store.Store, log *slog.Logger, cfg config.Config) *Server {
	s := &Server{
		orchestrator: orch,
		model:        model,
		stats:        stats,
		store:        st,
		log:          log,
		cfg:          cfg,
	}
	s.setupRoutes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(RequestLogger(s.log))

	// Public endpoints.
	r.Get("/health", s.handleHealth)
	r.Get("/share/{id}", s.handleSharedPresentation)

	// Authenticated endpoints.
	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(s.cfg.APIKey, s.log))

		r.Post("/api/parse", s.handleParse)
		r.Post("/api/outline", s.handleOutline)

		r.Post("/api/presentations", s.handleCreatePresentation)
		r.Get("/api/presentations", s.handleListPresentations)
		r.Get("/api/presentations/{id}", s.handleGetPresentation)
		r.Delete("/api/presentations/{id}", s.handleDeletePresentation)
		r.Post("/api/presentations/{id}/share", s.handleSharePresentation)

		r.Get("/api/sessions/{sessionID}", s.handleSessionStatus)
		r.Get("/api/sessions/{sessionID}/events", s.handleSessionEvents)
		r.Post("/api/sessions/{sessionID}/cancel", s.handleCancelSession)

		r.Get("/api/stats/llm", s.handleLLMStats)
	})

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status, code := "ok", http.StatusOK
	if err := s.store.Ping(r.Context()); err != nil {
		s.log.Warn("health check: store unreachable", "error", err)
		status, code = "degraded", http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{
		"status":      status,
		"model":       s.model.Model(),
		"queue_depth": s.orchestrator.QueueDepth(),
	})
}
