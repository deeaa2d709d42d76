package server

import (
	"context"
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/ThuyDang88/webview/internal/api/http"
	"github.com/ThuyDang88/webview/internal/api/middleware"
	"github.com/ThuyDang88/webview/internal/api/ws"
	"github.com/ThuyDang88/webview/internal/engine"
	"github.com/ThuyDang88/webview/internal/engine/chromium"
	"github.com/ThuyDang88/webview/internal/engine/inproc"
	"github.com/ThuyDang88/webview/internal/infrastructure/config"
	"github.com/ThuyDang88/webview/internal/infrastructure/logging"
	"github.com/ThuyDang88/webview/internal/infrastructure/monitoring"
	"github.com/ThuyDang88/webview/internal/infrastructure/tracing"
	"github.com/ThuyDang88/webview/internal/manifest"
	"github.com/ThuyDang88/webview/internal/views"
)

// Server wraps the HTTP server and dependencies
type Server struct {
	router  *gin.Engine
	eng     engine.Engine
	views   *views.Manager
	logger  *logging.Logger
	config  *config.Config
	metrics *monitoring.Metrics
}

// NewServer creates a new server instance
func NewServer(cfg *config.Config) (*Server, error) {
	// Initialize logger
	logCfg := logging.DefaultConfig()
	if cfg.Logging.Development {
		logCfg = logging.DevelopmentConfig()
	}
	if cfg.Logging.Level != "" {
		logCfg.Level = cfg.Logging.Level
	}
	logCfg.File = cfg.Logging.File
	logger, err := logging.New(logCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to configure logging: %w", err)
	}

	logger.Info("Initializing webview daemon",
		zap.String("port", cfg.Server.Port),
		zap.String("engine", cfg.Engine.Backend),
	)

	// Initialize metrics first (needed by other components)
	metrics := monitoring.NewMetrics()
	logger.Info("Performance monitoring initialized")

	// Initialize request tracing
	tracer := tracing.New("webviewd", logger.Logger)
	logger.Info("Request tracing initialized")

	// Initialize the browser engine backend
	eng, err := buildEngine(cfg, logger, metrics)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize engine: %w", err)
	}
	logger.Info("Engine initialized", zap.String("backend", eng.Name()))

	// Initialize view manager
	mgr := views.NewManager(views.Config{
		Engine:      eng,
		MaxViews:    cfg.Views.MaxConcurrent,
		IdleTimeout: cfg.Views.IdleTimeout,
		Logger:      logger,
		Metrics:     metrics,
	})

	// Seed views declared in the manifest, if one is configured. A manifest
	// that cannot be loaded is an operator error and aborts startup.
	if cfg.Views.ManifestPath != "" {
		m, err := manifest.Load(cfg.Views.ManifestPath)
		if err != nil {
			mgr.Stop()
			eng.Close()
			return nil, fmt.Errorf("failed to load manifest: %w", err)
		}
		seeded, err := manifest.Seed(context.Background(), mgr, m, logger)
		if err != nil {
			mgr.Stop()
			eng.Close()
			return nil, fmt.Errorf("failed to seed manifest views: %w", err)
		}
		logger.Info("Seeded manifest views",
			zap.Int("count", seeded),
			zap.String("path", cfg.Views.ManifestPath),
		)
	}

	// Create router
	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	// Add middleware
	router.Use(gin.Recovery())
	router.Use(tracing.HTTPMiddleware(tracer))
	router.Use(monitoring.Middleware(metrics))
	router.Use(middleware.CORS(middleware.CORSForOrigins(cfg.Server.AllowedOrigins)))
	if cfg.RateLimit.Enabled {
		logger.Info("Rate limiting enabled",
			zap.Int("rps", cfg.RateLimit.RequestsPerSecond),
			zap.Int("burst", cfg.RateLimit.Burst),
		)
		router.Use(middleware.RateLimit(middleware.RateLimitConfig{
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			Burst:             cfg.RateLimit.Burst,
		}))
	}

	// Create handlers
	handlers := http.NewHandlers(mgr, logger, metrics, cfg.Logging.File)
	streams := ws.NewHandler(mgr, logger, metrics)

	// Register routes
	router.GET("/", handlers.Root)
	router.GET("/health", handlers.Health)
	router.GET("/stats", handlers.Stats)

	// View management
	router.POST("/views", handlers.CreateView)
	router.GET("/views", handlers.ListViews)
	router.GET("/views/:id", handlers.GetView)
	router.DELETE("/views/:id", handlers.DeleteView)

	// View operations
	router.POST("/views/:id/navigate", handlers.Navigate)
	router.POST("/views/:id/back", handlers.Back)
	router.POST("/views/:id/forward", handlers.Forward)
	router.POST("/views/:id/reload", handlers.Reload)
	router.POST("/views/:id/stop", handlers.Stop)
	router.POST("/views/:id/inject", handlers.Inject)
	router.POST("/views/:id/post", handlers.Post)

	// Event stream
	router.GET("/views/:id/events", streams.HandleEvents)

	// Client log ingestion and log tailing
	router.POST("/logs", handlers.StreamLogs)
	router.GET("/logs", handlers.GetLogs)

	// Metrics endpoint
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	logger.Info("Server initialized successfully")

	return &Server{
		router:  router,
		eng:     eng,
		views:   mgr,
		logger:  logger,
		config:  cfg,
		metrics: metrics,
	}, nil
}

// buildEngine constructs the backend named by the configuration.
func buildEngine(cfg *config.Config, logger *logging.Logger, metrics *monitoring.Metrics) (engine.Engine, error) {
	switch cfg.Engine.Backend {
	case "", "inproc":
		return inproc.New(inproc.Config{
			UserAgent:    cfg.Engine.UserAgent,
			FetchTimeout: cfg.Engine.FetchTimeout,
			ScriptBudget: cfg.Engine.ScriptBudget,
			Logger:       logger,
			Metrics:      metrics,
		}), nil
	case "chromium":
		return chromium.New(chromium.Config{
			Headful:    !cfg.Engine.Headless,
			Install:    cfg.Engine.Install,
			UserAgent:  cfg.Engine.UserAgent,
			NavTimeout: cfg.Engine.FetchTimeout,
			Logger:     logger,
			Metrics:    metrics,
		})
	default:
		return nil, fmt.Errorf("unknown engine backend %q", cfg.Engine.Backend)
	}
}

// Run starts the HTTP server
func (s *Server) Run() error {
	addr := s.config.Server.Host + ":" + s.config.Server.Port
	s.logger.Info("Starting HTTP server", zap.String("addr", addr))
	return s.router.Run(addr)
}

// Close gracefully shuts down the server
func (s *Server) Close() error {
	s.logger.Info("Shutting down server...")

	// Stop destroys every live view before the engine goes away.
	s.views.Stop()
	if err := s.eng.Close(); err != nil {
		s.logger.Error("Failed to close engine", zap.Error(err))
		return fmt.Errorf("failed to close engine: %w", err)
	}
	s.logger.Info("Engine closed")

	// Sync logger before exit
	s.logger.Sync()

	return nil
}
