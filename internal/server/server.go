// Package server provides the HTTP API for tcmkb.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/hyperjump/tcmkb/internal/config"
	"github.com/hyperjump/tcmkb/internal/indexer"
	"github.com/hyperjump/tcmkb/internal/metrics"
	"github.com/hyperjump/tcmkb/internal/search"
	"github.com/hyperjump/tcmkb/internal/storage"
	"github.com/hyperjump/tcmkb/pkg/utils"
)

// Server is the HTTP server for the tcmkb API.
type Server struct {
	engine    *search.Engine
	processor *indexer.Processor
	pool      *indexer.Pool
	storage   storage.Storage
	config    *config.Config
	logger    *zap.Logger
	server    *http.Server
}

// NewServer creates a server with the given dependencies. Uploaded documents
// are queued on pool.
func NewServer(
	engine *search.Engine,
	processor *indexer.Processor,
	pool *indexer.Pool,
	st storage.Storage,
	cfg *config.Config,
	logger *zap.Logger,
) *Server {
	return &Server{
		engine:    engine,
		processor: processor,
		pool:      pool,
		storage:   st,
		config:    cfg,
		logger:    utils.LoggerOrNop(logger),
	}
}

// Handler returns the API router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	if s.config.Debug {
		r.Use(middleware.Logger)
	}

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		if secs := s.config.Server.RequestTimeoutSeconds; secs > 0 {
			r.Use(middleware.Timeout(time.Duration(secs) * time.Second))
		}
		r.Get("/status", s.handleStatus)

		r.Route("/knowledge-bases", func(r chi.Router) {
			r.Post("/", s.handleCreateKnowledgeBase)
			r.Get("/", s.handleListKnowledgeBases)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetKnowledgeBase)
				r.Put("/active", s.handleSetKnowledgeBaseActive)
				r.Get("/stats", s.handleKnowledgeBaseStats)
				r.Post("/index", s.handleCreateIndex)
				r.Delete("/index", s.handleDropIndex)
				r.Post("/documents", s.handleUploadDocument)
				r.Get("/documents", s.handleListDocuments)
				r.Patch("/paragraphs/{paragraphID}", s.handleUpdateParagraph)
			})
		})

		r.Get("/documents/{id}", s.handleGetDocument)
		r.Post("/documents/{id}/reprocess", s.handleReprocessDocument)
		r.Delete("/documents/{id}", s.handleDeleteDocument)

		r.Post("/embeddings/operations", s.handleEmbeddingOperation)
		r.Post("/search", s.handleSearch)
		r.Post("/retrieve", s.handleRetrieve)
	})
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
