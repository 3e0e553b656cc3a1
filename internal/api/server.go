package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"

	"github.com/ignite/table-engine/internal/config"
	"github.com/ignite/table-engine/internal/engine"
	"github.com/ignite/table-engine/internal/intake"
	"github.com/ignite/table-engine/internal/pkg/httpretry"
	"github.com/ignite/table-engine/internal/presets"
)

// Server represents the API server
type Server struct {
	cfg          *config.Config
	eng          *engine.Engine
	orchestrator *intake.Orchestrator
	store        *intake.Store
	presets      *presets.Store
	auth         *intake.Authenticator
	redisClient  *redis.Client
	// fetcher downloads file_url payloads with retry/backoff
	fetcher   httpretry.HTTPDoer
	handler   http.Handler
	router    *chi.Mux
	server    *http.Server
	startTime time.Time
}

// NewServer creates a new API server
func NewServer(
	cfg *config.Config,
	eng *engine.Engine,
	orchestrator *intake.Orchestrator,
	store *intake.Store,
	presetStore *presets.Store,
	auth *intake.Authenticator,
	redisClient *redis.Client,
) *Server {
	s := &Server{
		cfg:          cfg,
		eng:          eng,
		orchestrator: orchestrator,
		store:        store,
		presets:      presetStore,
		auth:         auth,
		redisClient:  redisClient,
		fetcher:      httpretry.NewRetryClient(nil, 3),
		startTime:    time.Now(),
	}
	s.router = SetupRoutes(s)
	s.handler = s.router
	return s
}

// ListenAndServe starts the HTTP server
func (s *Server) ListenAndServe(addr string) error {
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.handler,
		// Timeouts sized for large file uploads; individual endpoints
		// use context deadlines for tighter control.
		ReadTimeout:       5 * time.Minute,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      5 * time.Minute,
		IdleTimeout:       120 * time.Second,
	}

	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Handler returns the HTTP handler for testing
func (s *Server) Handler() http.Handler {
	return s.handler
}
