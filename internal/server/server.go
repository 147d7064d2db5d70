// Package server runs the gormscope HTTP API. Every request served here runs
// inside a database session, so shutting the server down drains those
// sessions before the engines are closed.
package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/gormscope/gormscope/internal/api/router"
	"github.com/gormscope/gormscope/internal/config"
	"github.com/gormscope/gormscope/internal/database"
	"github.com/gormscope/gormscope/pkg/logger"
)

const (
	readTimeout  = 30 * time.Second
	writeTimeout = 30 * time.Second
	idleTimeout  = 60 * time.Second
	// drainTimeout bounds how long in-flight requests may keep their sessions
	drainTimeout = 30 * time.Second
)

// Option customizes New
type Option func(*Server)

// WithMetrics mounts h on the API router at the configured Prometheus path
func WithMetrics(h http.Handler) Option {
	return func(s *Server) { s.metrics = h }
}

// Server serves the API over one database adapter
type Server struct {
	cfg        *config.Config
	db         *database.DB
	router     *gin.Engine
	metrics    http.Handler
	httpServer *http.Server
	listener   net.Listener
}

// New creates a server for db. Routes are added by SetupRoutes.
func New(cfg *config.Config, db *database.DB, opts ...Option) *Server {
	if cfg.Server.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.RedirectTrailingSlash = false
	r.RedirectFixedPath = false

	s := &Server{cfg: cfg, db: db, router: r}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetupRoutes installs the middleware chain and the API routes
func (s *Server) SetupRoutes() {
	router.Setup(s.router, s.db, s.cfg)
	if s.metrics != nil {
		path := s.cfg.Telemetry.Prometheus.Path
		if path == "" {
			path = "/metrics"
		}
		s.router.GET(path, gin.WrapH(s.metrics))
	}
}

// Start binds the configured address and serves in the background.
// A bind failure is returned instead of surfacing later from the goroutine.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.Server.Address())
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.cfg.Server.Address(), err)
	}
	s.listener = ln
	s.httpServer = &http.Server{
		Handler:      s.router,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  idleTimeout,
	}

	logger.Info("Starting HTTP server",
		zap.String("address", ln.Addr().String()),
		zap.Bool("debug", s.cfg.Server.Debug),
		zap.String("engine", s.db.Engine().String()),
	)
	go func() {
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server stopped unexpectedly", zap.Error(err))
		}
	}()
	return nil
}

// Addr returns the bound address, empty before Start
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Shutdown stops accepting connections and waits for in-flight requests,
// whose sessions commit or roll back as their handlers return
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("drain requests: %w", err)
	}
	logger.Info("HTTP server stopped")
	return nil
}

// WaitForShutdown blocks until SIGINT or SIGTERM, then drains the server.
// A second signal exits without waiting for the drain.
func (s *Server) WaitForShutdown() {
	quit := make(chan os.Signal, 2)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	sig := <-quit
	logger.Info("Shutdown requested, draining requests (signal again to exit now)",
		zap.String("signal", sig.String()))

	ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	go func() {
		select {
		case sig := <-quit:
			logger.Warn("Exiting without draining", zap.String("signal", sig.String()))
			os.Exit(1)
		case <-ctx.Done():
		}
	}()

	if err := s.Shutdown(ctx); err != nil {
		logger.Error("Server did not drain in time", zap.Error(err))
	}
}

// Router returns the gin engine
func (s *Server) Router() *gin.Engine {
	return s.router
}
