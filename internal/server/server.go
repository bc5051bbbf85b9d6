package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	sentrygin "github.com/getsentry/sentry-go/gin"
	"github.com/gin-gonic/gin"

	"github.com/cbegin/axml-go/internal/config"
)

const (
	sentryFlushTimeout = 2 * time.Second
	maxDocumentBytes   = 1 << 20
	shutdownTimeout    = 30 * time.Second
)

// Server exposes parsing and offline rendering over HTTP.
type Server struct {
	config *config.Config
	router *gin.Engine
	logger *slog.Logger
	sentry bool
}

type Option func(*Server)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// WithSentry installs the Sentry middleware. The SDK must be initialized.
func WithSentry() Option {
	return func(s *Server) { s.sentry = true }
}

func New(cfg *config.Config, opts ...Option) *Server {
	s := &Server{config: cfg, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	s.router = gin.New()
	s.setupRoutes()
	return s
}

// Handler returns the HTTP handler, mainly for tests.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) setupRoutes() {
	r := s.router

	// Recovery middleware (must be first)
	r.Use(gin.Recovery())
	if s.sentry {
		r.Use(sentrygin.New(sentrygin.Options{
			Repanic: true,
			Timeout: sentryFlushTimeout,
		}))
	}
	r.Use(s.requestTracking())

	r.GET("/health", s.handleHealth)

	v1 := r.Group("/v1")
	{
		v1.POST("/parse", s.handleParse)
		v1.POST("/render", s.handleRender)
	}
}

// Run serves until SIGINT or SIGTERM, then shuts down gracefully.
func (s *Server) Run() error {
	srv := &http.Server{
		Addr:         ":" + s.config.Port,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute, // long renders
		IdleTimeout:  60 * time.Second,
	}

	done := make(chan struct{})
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		<-sigCh

		s.logger.Info("shutting down server")
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			s.logger.Error("shutdown error", slog.Any("error", err))
		}
		close(done)
	}()

	s.logger.Info("server starting", slog.String("port", s.config.Port), slog.String("env", s.config.Environment))
	if err := srv.ListenAndServe(); err != http.ErrServerClosed {
		return fmt.Errorf("listen: %w", err)
	}
	<-done
	return nil
}
