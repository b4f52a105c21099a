package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/e7canasta/signbridge/internal/cache"
	"github.com/e7canasta/signbridge/internal/config"
	"github.com/e7canasta/signbridge/internal/control"
	"github.com/e7canasta/signbridge/internal/emitter"
	"github.com/e7canasta/signbridge/internal/extract"
	"github.com/e7canasta/signbridge/internal/gateway"
	"github.com/e7canasta/signbridge/internal/metrics"
	"github.com/e7canasta/signbridge/internal/server"
	"github.com/e7canasta/signbridge/internal/translator"
)

// Signbridge is the main service orchestrator
type Signbridge struct {
	cfg        *config.Config
	configPath string

	// Core components
	gateway    *gateway.Gateway
	metrics    *metrics.Metrics
	cache      cache.Store
	emitter    *emitter.MQTTEmitter // nil when no broker is configured
	control    *control.Handler
	translator *translator.Service
	server     *server.Server

	// Lifecycle management
	started   time.Time
	mu        sync.RWMutex
	wg        sync.WaitGroup
	isRunning bool
	debug     bool
	runCtx    context.Context
	cancelCtx context.CancelFunc // For MQTT shutdown command
}

// Option configures a Signbridge instance
type Option func(*Signbridge)

// WithDebug enables gin debug mode on the HTTP server
func WithDebug(debug bool) Option {
	return func(s *Signbridge) { s.debug = debug }
}

// New loads the configuration at configPath and builds the service
func New(configPath string, opts ...Option) (*Signbridge, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	slog.Info("configuration loaded",
		"instance_id", cfg.InstanceID,
		"program", cfg.Classifier.Program,
		"cache", cfg.Cache.Type,
	)

	return NewFromConfig(cfg, configPath, opts...)
}

// NewFromConfig builds the service from an already validated configuration.
// configPath is watched for changes while running; empty disables hot reload.
func NewFromConfig(cfg *config.Config, configPath string, opts ...Option) (*Signbridge, error) {
	s := &Signbridge{
		cfg:        cfg,
		configPath: configPath,
		metrics:    metrics.New(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.gateway = gateway.New(gatewaySettings(cfg.Classifier), gateway.WithObserver(s.metrics))

	store, err := cache.New(cacheConfig(cfg.Cache))
	if err != nil {
		return nil, fmt.Errorf("failed to create cache: %w", err)
	}
	s.cache = store

	var publisher emitter.Publisher = emitter.NopPublisher{}
	if cfg.MQTT.Broker != "" {
		s.emitter = emitter.NewMQTTEmitter(cfg.MQTT)
		publisher = s.emitter
	}

	s.translator = translator.New(translatorConfig(cfg.Classifier), s.gateway,
		translator.WithCache(s.cache),
		translator.WithPublisher(publisher),
		translator.WithFrameSource(extract.New(extractConfig(cfg.Extract))),
		translator.WithRecorder(s.metrics),
	)

	s.server = server.New(serverConfig(cfg.Server, s.debug), s.translator,
		server.WithReadiness(s.readiness),
		server.WithMetrics(s.metrics.Handler()),
	)

	slog.Info("components initialized",
		"classifier", s.translator.Config().String(),
		"timeout", cfg.Classifier.Timeout(),
		"events", cfg.MQTT.Broker != "",
	)

	return s, nil
}

// Run starts the service and blocks until ctx is cancelled
func (s *Signbridge) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return fmt.Errorf("service is already running")
	}
	s.isRunning = true
	s.started = time.Now()
	s.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	s.mu.Lock()
	s.runCtx = ctx
	s.cancelCtx = cancel
	s.mu.Unlock()

	slog.Info("signbridge service starting", "instance_id", s.cfg.InstanceID)

	if s.emitter != nil {
		if err := s.emitter.Connect(ctx); err != nil {
			return fmt.Errorf("failed to connect mqtt: %w", err)
		}

		s.control = control.NewHandler(s.cfg.MQTT, s.emitter.Client, control.CommandCallbacks{
			OnGetStatus:    s.getStatus,
			OnSetTimeout:   s.setTimeout,
			OnSetTailLines: s.setTailLines,
			OnShutdown:     s.shutdownViaControl,
		})
		if err := s.control.Start(ctx); err != nil {
			return fmt.Errorf("failed to start control plane: %w", err)
		}
	}

	if err := s.server.Start(); err != nil {
		return fmt.Errorf("failed to start http server: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	if s.configPath != "" {
		g.Go(func() error {
			return config.Watch(gctx, s.configPath, config.DefaultDebounce, s.applyConfig)
		})
	}

	s.wg.Add(1)
	defer s.wg.Done()

	slog.Info("signbridge service running", "addr", s.cfg.Server.Addr)

	if err := g.Wait(); err != nil {
		return fmt.Errorf("config watcher failed: %w", err)
	}
	<-ctx.Done()

	slog.Info("signbridge service run loop exiting")
	return nil
}

// Shutdown performs graceful shutdown of all components
func (s *Signbridge) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	slog.Info("shutting down signbridge service")

	// 1. Stop accepting requests and let in-flight translations finish
	if err := s.server.Shutdown(ctx); err != nil {
		slog.Error("failed to shutdown http server", "error", err)
	}

	// 2. Stop control plane
	if s.control != nil {
		if err := s.control.Stop(); err != nil {
			slog.Error("failed to stop control handler", "error", err)
		}
	}

	// 3. Wait for the run loop
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		slog.Warn("run loop did not exit before shutdown deadline")
	}

	// 4. Disconnect MQTT
	if s.emitter != nil {
		if err := s.emitter.Disconnect(); err != nil {
			slog.Error("failed to disconnect mqtt", "error", err)
		}
	}

	// 5. Close cache
	if err := s.cache.Close(); err != nil {
		slog.Error("failed to close cache", "error", err)
	}

	s.mu.Lock()
	uptime := time.Since(s.started)
	s.isRunning = false
	s.mu.Unlock()

	slog.Info("signbridge service shutdown complete", "uptime", uptime)
	return nil
}

// runContext returns the run loop context, or Background before Run
func (s *Signbridge) runContext() context.Context {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.runCtx == nil {
		return context.Background()
	}
	return s.runCtx
}

// ShutdownTimeout returns the configured graceful shutdown budget
func (s *Signbridge) ShutdownTimeout() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.ShutdownTimeout()
}

func gatewaySettings(c config.ClassifierConfig) gateway.Settings {
	return gateway.Settings{
		Timeout:        c.Timeout(),
		TailLines:      c.TailLines,
		MaxOutputBytes: c.MaxOutputBytes,
		WaitDelay:      c.WaitDelay(),
	}
}

func translatorConfig(c config.ClassifierConfig) translator.Config {
	return translator.Config{
		Program:       c.Program,
		Args:          c.Args,
		ScriptProgram: c.ScriptProgram,
		Script:        c.Script,
		Dir:           c.Dir,
		Env:           c.Env,
	}
}

func cacheConfig(c config.CacheConfig) cache.Config {
	return cache.Config{
		Type:     cache.StoreType(c.Type),
		TTL:      c.TTL(),
		MaxBytes: c.MaxBytes(),
		Redis: cache.RedisConfig{
			Addr:      c.Redis.Addr,
			Password:  c.Redis.Password,
			DB:        c.Redis.DB,
			KeyPrefix: c.Redis.KeyPrefix,
			TTL:       c.TTL(),
		},
	}
}

func extractConfig(c config.ExtractConfig) extract.Config {
	return extract.Config{
		Width:     c.Width,
		Height:    c.Height,
		FPS:       c.FPS,
		MaxFrames: c.MaxFrames,
		Quality:   c.Quality,
		Timeout:   time.Duration(c.TimeoutS) * time.Second,
	}
}

func serverConfig(c config.ServerConfig, debug bool) server.Config {
	return server.Config{
		Addr:           c.Addr,
		MaxUploadBytes: c.MaxUploadBytes,
		MaxFrames:      c.MaxFrames,
		MaxConcurrent:  c.MaxConcurrent,
		ReadTimeout:    time.Duration(c.ReadTimeoutS) * time.Second,
		WriteTimeout:   time.Duration(c.WriteTimeoutS) * time.Second,
		TempDir:        c.TempDir,
		Debug:          debug,
	}
}
