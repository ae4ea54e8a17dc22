package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dgallion1/bookvoice/internal/config"
	"github.com/dgallion1/bookvoice/internal/metrics"
	"github.com/dgallion1/bookvoice/internal/pipeline"
)

// Server is the HTTP API server for bookvoice.
type Server struct {
	router   chi.Router
	sessions *pipeline.Sessions
	metrics  *metrics.Metrics
	log      *slog.Logger
	cfg      config.Config
}

// NewServer creates and configures the HTTP server.
func NewServer(sessions *pipeline.Sessions, m *metrics.Metrics, log *slog.Logger, cfg config.Config) *Server {
	s := &Server{
		sessions: sessions,
		metrics:  m,
		log:      log,
		cfg:      cfg,
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
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler())
	}

	// Authenticated endpoints (open when no API key is configured).
	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(s.cfg.APIKey, s.log))

		r.Post("/sessions", s.handleCreateSession)
		r.Delete("/sessions/{sessionID}", s.handleDeleteSession)

		r.Post("/upload", s.handleUpload)
		r.Get("/books", s.handleListBooks)
		r.Delete("/books/{filename}", s.handleDeleteBook)
		r.Post("/books/{filename}/load", s.handleLoadBook)

		r.Get("/process/{page}", s.handleProcessPage)
		r.Get("/audio/{page}", s.handleAudio)
		r.Get("/status", s.handleStatus)

		r.Get("/api/stats", s.handleStats)
	})

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"healthy"}`))
}
