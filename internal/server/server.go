// Package server provides the HTTP server and routing for Autopilot.
package server

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/aristath/autopilot/internal/config"
	"github.com/aristath/autopilot/internal/di"
	markethourshandlers "github.com/aristath/autopilot/internal/modules/market_hours/handlers"
	reflectionshandlers "github.com/aristath/autopilot/internal/modules/reflections/handlers"
	snapshotshandlers "github.com/aristath/autopilot/internal/modules/snapshots/handlers"
	tradinghandlers "github.com/aristath/autopilot/internal/modules/trading/handlers"
)

// Config holds server configuration
type Config struct {
	Log       zerolog.Logger
	Config    *config.Config
	Container *di.Container // DI container with all services
	Port      int
	DevMode   bool
}

// Server represents the HTTP server
type Server struct {
	router    *chi.Mux
	server    *http.Server
	log       zerolog.Logger
	cfg       *config.Config
	container *di.Container
	broker    BrokerStatus
	db        DatabaseHealth
	port      int
}

// New creates a new HTTP server
func New(cfg Config) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		log:       cfg.Log.With().Str("component", "server").Logger(),
		cfg:       cfg.Config,
		container: cfg.Container,
		broker:    cfg.Container.Bridge,
		port:      cfg.Port,
	}
	if cfg.Container.DB != nil {
		s.db = cfg.Container.DB
	}

	s.setupMiddleware()
	s.setupRoutes(cfg.DevMode)

	s.server = &http.Server{
		Addr:        fmt.Sprintf(":%d", cfg.Port),
		Handler:     s.router,
		ReadTimeout: 15 * time.Second,
		// No WriteTimeout: the websocket and the event stream stay open
		IdleTimeout: 60 * time.Second,
	}

	return s
}

// Handler exposes the router, mainly for httptest
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupMiddleware configures middleware shared by every route, streaming
// endpoints included
func (s *Server) setupMiddleware() {
	// Recovery from panics
	s.router.Use(middleware.Recoverer)

	// Request ID
	s.router.Use(middleware.RequestID)

	// Real IP
	s.router.Use(middleware.RealIP)

	// Logging
	s.router.Use(s.loggingMiddleware)

	// CORS
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.allowedOrigins(),
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
}

// requestMiddleware applies to plain request/response routes only.
// The websocket and the event stream would be cut off by the timeout and
// buffered by the compressor.
func requestMiddleware(r chi.Router, devMode bool) {
	r.Use(middleware.Timeout(60 * time.Second))
	if !devMode {
		r.Use(middleware.Compress(5))
	}
}

// setupRoutes configures all routes
func (s *Server) setupRoutes(devMode bool) {
	c := s.container

	ws := NewWebSocketHandler(c.Hub, c.Scheduler, c.TradingLoop, c.Bridge, s.originPatterns(devMode), s.log)
	s.router.Get("/ws", ws.ServeHTTP)

	s.router.Group(func(r chi.Router) {
		requestMiddleware(r, devMode)
		r.Get("/health", s.handleHealth)
	})

	s.router.Route("/api", func(r chi.Router) {
		// Unified events stream (SSE)
		r.Get("/events/stream", NewEventsStreamHandler(c.Hub, s.log).ServeHTTP)

		r.Group(func(r chi.Router) {
			requestMiddleware(r, devMode)

			markethourshandlers.NewHandler(c.Clock, s.log).RegisterRoutes(r)
			tradinghandlers.NewTradingHandlers(c.TradingLoop, c.Bridge, c.TradeRepo, s.log).RegisterRoutes(r)
			reflectionshandlers.NewHandler(c.ReflectionService, s.log).RegisterRoutes(r)
			snapshotshandlers.NewHandler(c.SnapshotService, c.Bridge, s.log).RegisterRoutes(r)
			NewSchedulerHandlers(c.Scheduler, s.log).RegisterRoutes(r)
			NewLogHandlers(c.LogService, s.log).RegisterRoutes(r)
			NewSystemHandlers(s.log, s.cfg.DataDir, c.DB, c.Bridge, c.Hub, c.Clock).RegisterRoutes(r)
		})
	})
}

// allowedOrigins returns the CORS origins. Without a configured frontend
// every origin is accepted.
func (s *Server) allowedOrigins() []string {
	if s.cfg == nil || s.cfg.FrontendURL == "" {
		return []string{"*"}
	}
	return []string{s.cfg.FrontendURL}
}

// originPatterns returns the websocket origin allow-list. Dev mode and an
// unset frontend accept any origin.
func (s *Server) originPatterns(devMode bool) []string {
	if devMode || s.cfg == nil || s.cfg.FrontendURL == "" {
		return nil
	}
	u, err := url.Parse(s.cfg.FrontendURL)
	if err != nil || u.Host == "" {
		s.log.Warn().Str("frontend_url", s.cfg.FrontendURL).Msg("Invalid frontend URL, accepting any websocket origin")
		return nil
	}
	return []string{u.Host}
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.log.Info().Int("port", s.port).Msg("Starting HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration_ms", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}
