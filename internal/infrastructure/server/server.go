package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	apihttp "github.com/GriffinCanCode/browserrelay/internal/api/http"
	"github.com/GriffinCanCode/browserrelay/internal/api/middleware"
	"github.com/GriffinCanCode/browserrelay/internal/api/ws"
	"github.com/GriffinCanCode/browserrelay/internal/domain/browser"
	"github.com/GriffinCanCode/browserrelay/internal/domain/session"
	"github.com/GriffinCanCode/browserrelay/internal/infrastructure/config"
	"github.com/GriffinCanCode/browserrelay/internal/infrastructure/logging"
	"github.com/GriffinCanCode/browserrelay/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/browserrelay/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/browserrelay/internal/infrastructure/tracing"
)

// Server wraps the HTTP server and dependencies
type Server struct {
	router     *gin.Engine
	httpServer *http.Server
	registry   *session.Registry
	logger     *logging.Logger
	config     *config.Config
	metrics    *monitoring.Metrics
	tracer     *tracing.Tracer

	shutdownOnce sync.Once
	shutdownErr  error
}

// Option customizes server construction.
type Option func(*options)

type options struct {
	launcher browser.Launcher
	logger   *logging.Logger
}

// WithLauncher replaces the Chrome launcher.
func WithLauncher(l browser.Launcher) Option {
	return func(o *options) { o.launcher = l }
}

// WithLogger replaces the logger built from configuration.
func WithLogger(l *logging.Logger) Option {
	return func(o *options) { o.logger = l }
}

// NewServer creates a new server instance
func NewServer(cfg *config.Config, opts ...Option) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	logger := o.logger
	if logger == nil {
		var err error
		logger, err = logging.New(logging.Config{
			Level:       cfg.Logging.Level,
			Development: cfg.Logging.Development,
			OutputPaths: []string{"stdout"},
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create logger: %w", err)
		}
	}

	logger.Info("Initializing browser relay",
		zap.String("port", cfg.Server.Port),
		zap.String("mode", cfg.Relay.Mode),
		zap.String("start_url", cfg.Browser.StartURL),
	)

	// Initialize metrics first (needed by other components)
	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := monitoring.NewMetrics(promRegistry)

	tracer := tracing.New("browserrelay", logger.Named("tracing").Logger)

	launcher := o.launcher
	if launcher == nil {
		launcher = browser.NewChromeLauncher(logger.Named("browser").Logger)
	}
	launcher = browser.NewGuardedLauncher(launcher, resilience.Settings{
		MaxRequests: 1,
		Timeout:     cfg.Launch.BreakerTimeout,
		ReadyToTrip: resilience.TripAfter(uint32(cfg.Launch.BreakerFailures)),
	}, logger.Named("browser").Logger)

	registry := session.NewRegistry(launcher, session.Options{
		Mode: session.Mode(cfg.Relay.Mode),
		Launch: browser.LaunchOptions{
			Width:         cfg.Browser.Width,
			Height:        cfg.Browser.Height,
			Headless:      cfg.Browser.Headless,
			ExecPath:      cfg.Browser.ExecPath,
			RemoteURL:     cfg.Browser.RemoteURL,
			Format:        cfg.Browser.ScreenshotFormat,
			Quality:       cfg.Browser.ScreenshotQuality,
			ActionTimeout: cfg.Browser.ActionTimeout,
		},
		DefaultFrameRate: cfg.Session.DefaultFrameRate,
		CommandBuffer:    cfg.Session.CommandBuffer,
		CommandTimeout:   cfg.Session.CommandTimeout,
	}, logger.Named("session").Logger, metrics, tracer)

	// Create router
	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	// Add middleware
	router.Use(middleware.Recovery(logger.Named("http").Logger))
	router.Use(middleware.Logger(logger.Named("http").Logger))
	router.Use(tracing.HTTPMiddleware(tracer))
	router.Use(monitoring.Middleware(metrics))
	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
	if cfg.RateLimit.Enabled {
		logger.Info("Rate limiting enabled",
			zap.Int("rps", cfg.RateLimit.RequestsPerSecond),
			zap.Int("burst", cfg.RateLimit.Burst),
		)
		rl := middleware.DefaultRateLimitConfig()
		rl.RequestsPerSecond = cfg.RateLimit.RequestsPerSecond
		rl.Burst = cfg.RateLimit.Burst
		router.Use(middleware.RateLimit(rl))
	}

	// Register routes
	handlers := apihttp.NewHandlers(registry, metrics, promRegistry)
	handlers.Register(router)

	wsHandler := ws.NewHandler(registry, ws.Options{
		DefaultURL:      cfg.Browser.StartURL,
		SendBuffer:      cfg.WebSocket.SendBuffer,
		MaxMessageBytes: cfg.WebSocket.MaxMessageBytes,
		PongWait:        cfg.WebSocket.PongWait,
		WriteWait:       cfg.WebSocket.WriteWait,
	}, logger.Named("ws").Logger, metrics)
	router.GET("/ws", wsHandler.HandleConnection)

	addr := net.JoinHostPort(cfg.Server.Host, cfg.Server.Port)
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Server initialized successfully")

	return &Server{
		router:     router,
		httpServer: httpServer,
		registry:   registry,
		logger:     logger,
		config:     cfg,
		metrics:    metrics,
		tracer:     tracer,
	}, nil
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Registry returns the session registry.
func (s *Server) Registry() *session.Registry {
	return s.registry
}

// Start launches the auto-started shared browser when configured. A launch
// failure is logged; clients can still start the browser themselves.
func (s *Server) Start(ctx context.Context) {
	if !s.config.Browser.AutoStart {
		return
	}
	sess, err := s.registry.AutoStart(ctx, s.config.Browser.StartURL)
	if err != nil {
		s.logger.Warn("Failed to auto-start shared browser", zap.Error(err))
		return
	}
	s.logger.Info("Shared browser auto-started",
		zap.String("session_id", sess.ID()),
		zap.String("url", s.config.Browser.StartURL),
	)
}

// Run starts background sessions and serves HTTP until Shutdown.
func (s *Server) Run(ctx context.Context) error {
	s.Start(ctx)

	s.logger.Info("Starting HTTP server", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown stops accepting connections, then stops every browser session.
func (s *Server) Shutdown(ctx context.Context) error {
	s.shutdownOnce.Do(func() {
		s.logger.Info("Shutting down server")

		var errs []error
		if err := s.httpServer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("http shutdown: %w", err))
		}
		if err := s.registry.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("session shutdown: %w", err))
		}
		s.tracer.Close()
		s.metrics.Close()
		_ = s.logger.Sync()

		s.shutdownErr = errors.Join(errs...)
	})
	return s.shutdownErr
}
