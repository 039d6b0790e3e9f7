package api

import (
	"context"
	"log/slog"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dgallion1/bratgest/internal/config"
	"github.com/dgallion1/bratgest/internal/dataset"
	"github.com/dgallion1/bratgest/internal/store"
)

// Server is the HTTP API server for bratgest. It owns the only reference to
// its Dataset and serializes access with mu.
type Server struct {
	router  chi.Router
	mu      sync.RWMutex
	ds      *dataset.Dataset
	store   store.Store
	metrics http.Handler
	log     *slog.Logger
	cfg     config.Config
}

// NewServer creates and configures the HTTP server. A nil gatherer exposes
// the default Prometheus registry.
func NewServer(ds *dataset.Dataset, st store.Store, gatherer prometheus.Gatherer, log *slog.Logger, cfg config.Config) *Server {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	s := &Server{
		ds:      ds,
		store:   st,
		metrics: promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}),
		log:     log,
		cfg:     cfg,
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
	r.Handle("/metrics", s.metrics)

	// Authenticated endpoints.
	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(s.cfg.APIKey, s.log))

		r.Get("/api/documents", s.handleListDocuments)
		r.Post("/api/documents", s.handleUpload)
		r.Get("/api/documents/{key}", s.handleGetDocument)
		r.Delete("/api/documents/{key}", s.handleDeleteDocument)
		r.Get("/api/documents/{key}/html", s.handleDocumentHTML)
		r.Get("/api/documents/{key}/records/{tag}", s.handleGetRecord)
		r.Delete("/api/documents/{key}/records/{tag}", s.handleDeleteRecord)

		r.Get("/api/stats", s.handleStats)
		r.Get("/api/report", s.handleReport)

		r.Get("/api/snapshots", s.handleListSnapshots)
		r.Post("/api/snapshots/{name}", s.handleSaveSnapshot)
		r.Post("/api/snapshots/{name}/restore", s.handleRestoreSnapshot)
	})

	s.router = r
}

// SaveSnapshot writes the current dataset to the configured store. Used by
// the server on shutdown.
func (s *Server) SaveSnapshot(ctx context.Context, name string) (dataset.SnapshotInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ctx, cancel := context.WithTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()
	return s.ds.Save(ctx, s.store, name)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	n := s.ds.Len()
	s.mu.RUnlock()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"documents": n,
		"store":     s.store.Driver(),
	})
}
