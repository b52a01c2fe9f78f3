package gin

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/jonesrussell/north-cloud/resource-cache/infrastructure/logger"
)

// Server is an HTTP server with lifecycle management.
type Server struct {
	router *gin.Engine
	server *http.Server
	logger logger.Logger
	config *Config
	// onShutdown runs after the listener has drained.
	onShutdown []func(context.Context)
}

// NewServer creates an HTTP server from cfg. The standard middleware chain is
// applied first, then setupRoutes registers the service routes on top of it.
func NewServer(cfg *Config, log logger.Logger, setupRoutes func(*gin.Engine)) *Server {
	cfg.SetDefaults()

	// Gin mode follows the debug flag
	if cfg.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Middleware order matters:
	// 1. Recovery first so a panic anywhere below still gets a 500
	router.Use(RecoveryMiddleware(log))

	// 2. Request ID plus a request-scoped logger in the context
	router.Use(RequestIDLoggerMiddleware(log))

	// 3. Access logging, which reads the request_id set by step 2
	router.Use(LoggerMiddleware(log))

	// Service routes, including the proxy catch-all
	if setupRoutes != nil {
		setupRoutes(router)
	}

	return &Server{
		router: router,
		server: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      router,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  cfg.IdleTimeout,
		},
		logger: log,
		config: cfg,
	}
}

// Router returns the underlying Gin engine, mainly for tests that drive it
// with httptest.
func (s *Server) Router() *gin.Engine {
	return s.router
}

// OnShutdown registers fn to run during Shutdown, after HTTP traffic stops.
func (s *Server) OnShutdown(fn func(context.Context)) {
	s.onShutdown = append(s.onShutdown, fn)
}

// OnDrain registers fn to run as soon as Shutdown begins. Long-lived
// handlers such as SSE streams must be closed here or Shutdown waits for
// them until its timeout.
func (s *Server) OnDrain(fn func()) {
	s.server.RegisterOnShutdown(fn)
}

// Start serves until the server is shut down. It returns nil after a
// graceful shutdown and the listener error otherwise.
func (s *Server) Start() error {
	s.logger.Info("Starting HTTP server",
		logger.String("address", s.server.Addr),
		logger.String("service", s.config.ServiceName),
		logger.String("version", s.config.ServiceVersion),
	)

	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// StartAsync runs Start in a goroutine. The channel receives a start error, if any.
func (s *Server) StartAsync() <-chan error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.Start(); err != nil {
			errCh <- err
		}
		close(errCh)
	}()
	return errCh
}

// Shutdown drains connections within the configured timeout and runs the
// registered shutdown hooks.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down HTTP server", logger.Duration("timeout", s.config.ShutdownTimeout))

	shutdownCtx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
	defer cancel()

	// Drain hooks fire inside Shutdown; OnShutdown hooks wait for it
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}

	for _, fn := range s.onShutdown {
		fn(shutdownCtx)
	}

	s.logger.Info("HTTP server stopped gracefully")
	return nil
}

// RunWithGracefulShutdown serves until SIGINT, SIGTERM or ctx cancellation.
func (s *Server) RunWithGracefulShutdown(ctx context.Context) error {
	errCh := s.StartAsync()

	// SIGINT for local runs, SIGTERM from the container runtime
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		s.logger.Info("Shutdown signal received", logger.String("signal", sig.String()))
	case <-ctx.Done():
		s.logger.Info("Context cancelled, shutting down")
	}

	// Fresh context: the caller's may be cancelled already
	//nolint:contextcheck // ctx may already be cancelled; shutdown needs a live context
	return s.Shutdown(context.Background())
}

// Run serves with graceful shutdown on a background context.
func (s *Server) Run() error {
	return s.RunWithGracefulShutdown(context.Background())
}
