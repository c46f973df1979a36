// Package server provides the HTTP API for meishi.
package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/hyperjump/meishi/internal/config"
	"github.com/hyperjump/meishi/internal/indexer"
	"github.com/hyperjump/meishi/internal/search"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

// maxBodyBytes caps request bodies; card records are small.
const maxBodyBytes = 4 << 20

// InboxService manages the watched inbox directories. *watcher.Watcher implements it.
type InboxService interface {
	Directories() []string
	AddDirectory(path string, syncExisting bool) error
	RemoveDirectory(path string) error
}

// Server is the HTTP server for the meishi API.
type Server struct {
	engine  *search.Engine
	indexer *indexer.Indexer
	config  *config.Config
	logger  *zap.Logger
	server  *http.Server

	inbox      InboxService
	configPath string
	configMu   sync.Mutex
}

// NewServer creates a server with the given dependencies. inbox may be nil when no
// inbox is watched; configPath, when set, is where inbox changes are persisted.
func NewServer(
	engine *search.Engine,
	idx *indexer.Indexer,
	cfg *config.Config,
	logger *zap.Logger,
	inbox InboxService,
	configPath string,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		engine:     engine,
		indexer:    idx,
		config:     cfg,
		logger:     logger,
		inbox:      inbox,
		configPath: configPath,
	}
}

// Handler returns the API routes wrapped in the middleware stack.
func (s *Server) Handler() http.Handler {
	timeout := time.Duration(s.config.Server.RequestTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(timeout))
	r.Use(middleware.Compress(5))

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/cards", s.handleIndexCard)
		r.Post("/cards/image", s.handleIndexImage)
		r.Get("/cards/{id}", s.handleGetCard)
		r.Delete("/cards/{id}", s.handleDeleteCard)
		r.Post("/search", s.handleSearch)
		r.Post("/lookup", s.handleLookup)
		r.Get("/status", s.handleStatus)

		r.Get("/inbox", s.handleInboxList)
		r.Post("/inbox", s.handleInboxAdd)
		r.Delete("/inbox", s.handleInboxRemove)
	})
	r.Get("/health", s.handleHealth)

	return otelhttp.NewHandler(r, "meishi")
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
