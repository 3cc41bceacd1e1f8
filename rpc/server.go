// Package rpc serves the settlement engine's HTTP query and admin API.
package rpc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"flashsettle/core"
	"flashsettle/indexer"
	"flashsettle/observability"
)

// AdminHeader carries the hex admin token on admin requests.
const AdminHeader = "X-Flash-Admin"

// Config tunes the HTTP server.
type Config struct {
	ListenAddress      string
	RateLimitPerSecond float64
	RateLimitBurst     int
	ReadTimeout        time.Duration
	WriteTimeout       time.Duration
}

// Server exposes a node over HTTP.
type Server struct {
	cfg     Config
	node    *core.Node
	archive *indexer.Indexer
	hub     *Hub
	limiter *RateLimiter
	logger  *slog.Logger

	router http.Handler
}

// New builds the server. archive may be nil, in which case settlement
// history is unavailable.
func New(cfg Config, node *core.Node, archive *indexer.Indexer, logger *slog.Logger) (*Server, error) {
	if node == nil {
		return nil, fmt.Errorf("rpc: node required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 15 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 15 * time.Second
	}
	logger = logger.With(slog.String("component", "rpc"))
	srv := &Server{
		cfg:     cfg,
		node:    node,
		archive: archive,
		hub:     NewHub(logger),
		limiter: NewRateLimiter(cfg.RateLimitPerSecond, cfg.RateLimitBurst),
		logger:  logger,
	}
	node.AddEmitter(srv.hub)
	srv.router = srv.buildRouter()
	return srv, nil
}

// Handler exposes the configured HTTP router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Hub returns the websocket broadcaster fed by committed events.
func (s *Server) Hub() *Hub {
	return s.hub
}

func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(observe)
	r.Use(s.limiter.Middleware)

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(api chi.Router) {
		api.Get("/config", s.handleConfig)
		api.Get("/config/history", s.handleConfigHistory)
		api.Get("/protocols", s.handleProtocols)
		api.Get("/quote", s.handleQuote)
		api.Get("/balance", s.handleBalance)
		api.Get("/settlements", s.handleSettlements)
		api.Get("/settlements/totals", s.handleTotals)
		api.Get("/stream", s.hub.ServeHTTP)

		api.Route("/admin", func(admin chi.Router) {
			admin.Use(s.requireAdmin)
			admin.Post("/fee", s.handleSetFee)
			admin.Post("/pause", s.handleSetPaused)
			admin.Post("/treasury", s.handleSetTreasury)
			admin.Post("/assets", s.handleAddAsset)
			admin.Post("/adapters", s.handleSetAdapter)
			admin.Post("/registry", s.handleRegistry)
			admin.Post("/rotate", s.handleRotate)
		})
	})

	return otelhttp.NewHandler(r, "flashd.rpc")
}

func observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		route := ""
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		observability.API().Observe(route, r.Method, status, time.Since(start))
	})
}

// Serve listens on the configured address until ctx is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.cfg.ListenAddress,
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.hub.Close()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info("rpc server listening", slog.String("address", s.cfg.ListenAddress))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("rpc: listen and serve: %w", err)
	}
	return nil
}
