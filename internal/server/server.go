package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/semaphore"

	"github.com/e7canasta/signbridge/internal/types"
)

// Translator is the translation service behind the API
type Translator interface {
	TranslateFrames(ctx context.Context, batch types.FrameBatch) (types.Translation, error)
	TranslateFile(ctx context.Context, path string) (types.Translation, error)
	TranslateVideo(ctx context.Context, traceID, path string) (types.Translation, error)
}

// ReadinessFunc reports whether the service can take traffic, with a body
// describing why
type ReadinessFunc func(ctx context.Context) (ready bool, body any)

// Config contains HTTP API settings
type Config struct {
	Addr           string
	MaxUploadBytes int64
	MaxFrames      int
	MaxConcurrent  int64
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	TempDir        string
	Debug          bool
}

// Server exposes the translation API and health endpoints
type Server struct {
	cfg        Config
	translator Translator
	sem        *semaphore.Weighted
	readiness  ReadinessFunc
	metrics    http.Handler
	started    time.Time

	router *gin.Engine
	http   *http.Server
}

// Option configures a Server
type Option func(*Server)

// WithReadiness installs the /readiness check
func WithReadiness(f ReadinessFunc) Option {
	return func(s *Server) { s.readiness = f }
}

// WithMetrics mounts a handler at /metrics
func WithMetrics(h http.Handler) Option {
	return func(s *Server) { s.metrics = h }
}

// New creates a Server and registers its routes
func New(cfg Config, t Translator, opts ...Option) *Server {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 4
	}
	if cfg.MaxFrames <= 0 {
		cfg.MaxFrames = 240
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 64 << 20
	}

	s := &Server{
		cfg:        cfg,
		translator: t,
		sem:        semaphore.NewWeighted(cfg.MaxConcurrent),
		readiness: func(context.Context) (bool, any) {
			return true, gin.H{"status": "ready"}
		},
		started: time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	s.router = gin.New()
	s.router.Use(gin.Recovery())
	s.router.Use(AccessLog())
	s.registerRoutes()

	return s
}

func (s *Server) registerRoutes() {
	s.router.GET("/health", s.handleLiveness)
	s.router.GET("/readiness", s.handleReadiness)
	if s.metrics != nil {
		s.router.GET("/metrics", gin.WrapH(s.metrics))
	}

	api := s.router.Group("/api/v1")
	{
		api.POST("/translate/frames", s.handleTranslateFrames)
		api.POST("/translate/file", s.handleTranslateFile)
		api.POST("/translate/video", s.handleTranslateVideo)
	}
}

// Handler returns the HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens on the configured address in a separate goroutine and does
// not block
func (s *Server) Start() error {
	s.http = &http.Server{
		Addr:         s.cfg.Addr,
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	slog.Info("starting http server",
		"addr", s.cfg.Addr,
		"max_concurrent", s.cfg.MaxConcurrent,
		"max_frames", s.cfg.MaxFrames,
		"max_upload_bytes", s.cfg.MaxUploadBytes,
	)

	go func() {
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server failed", "error", err)
		}
	}()

	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	if err := s.http.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown http server: %w", err)
	}
	slog.Info("http server stopped")
	return nil
}

func (s *Server) handleLiveness(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "alive",
		"uptime": int64(time.Since(s.started).Seconds()),
	})
}

func (s *Server) handleReadiness(c *gin.Context) {
	ready, body := s.readiness(c.Request.Context())
	status := http.StatusOK
	if !ready {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, body)
}
