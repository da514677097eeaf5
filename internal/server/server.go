package server

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mwhitaker/herald/internal/config"
	"github.com/mwhitaker/herald/internal/guardrail"
	"github.com/mwhitaker/herald/internal/storage"
	"github.com/mwhitaker/herald/internal/tools"
)

// Server is the HTTP surface: REST session API plus WebSocket chat.
type Server struct {
	cfg      *config.Config
	store    storage.Store
	registry *tools.Registry
	checker  *guardrail.Checker
	sessions *SessionManager
	router   chi.Router
	http     *http.Server
}

// New creates a Server. checker may be nil when guardrails are off.
func New(cfg *config.Config, store storage.Store, registry *tools.Registry, checker *guardrail.Checker) *Server {
	s := &Server{
		cfg:      cfg,
		store:    store,
		registry: registry,
		checker:  checker,
		sessions: NewSessionManager(),
		router:   chi.NewRouter(),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	r := s.router

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)

	r.Route("/api", func(r chi.Router) {
		r.Use(jsonContentType)

		// Sessions
		r.Get("/sessions", s.handleListSessions)
		r.Post("/sessions", s.handleCreateSession)
		r.Get("/sessions/{id}", s.handleGetSession)
		r.Delete("/sessions/{id}", s.handleDeleteSession)

		// Messages
		r.Get("/sessions/{id}/messages", s.handleGetMessages)
		r.Post("/sessions/{id}/messages", s.handleSendMessage)

		// WebSocket (no JSON content-type)
		r.Get("/sessions/{id}/ws", s.handleWebSocket)

		// Providers & models
		r.Get("/providers", s.handleListProviders)
		r.Get("/models/{provider}", s.handleListModels)
	})

	r.Get("/", s.handleInfo)
}

// jsonContentType sets Content-Type to application/json for API routes.
func jsonContentType(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

// handleInfo reports basic service information at the root path.
func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, http.StatusOK, map[string]any{
		"service":    "herald",
		"version":    "0.1.0",
		"guardrails": string(s.cfg.GuardrailMode()),
	})
}

// Start begins listening on the given port.
func (s *Server) Start(port int) error {
	addr := fmt.Sprintf(":%d", port)
	s.http = &http.Server{
		Addr:    addr,
		Handler: s.router,
	}

	log.Printf("Herald server starting on http://localhost%s", addr)
	return s.http.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	log.Println("Shutting down server...")
	s.sessions.CloseAll()

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	return s.http.Shutdown(shutdownCtx)
}
