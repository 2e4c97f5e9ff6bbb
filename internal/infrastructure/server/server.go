// Package server wires configuration, stores, the VFS service, the change
// broadcaster, and the HTTP surface into one runnable unit.
package server

import (
	"fmt"
	"path/filepath"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/crusadeos/backend/internal/api/http"
	"github.com/crusadeos/backend/internal/api/middleware"
	"github.com/crusadeos/backend/internal/domain/apps"
	"github.com/crusadeos/backend/internal/domain/session"
	"github.com/crusadeos/backend/internal/domain/share"
	"github.com/crusadeos/backend/internal/domain/user"
	"github.com/crusadeos/backend/internal/infrastructure/config"
	"github.com/crusadeos/backend/internal/infrastructure/logging"
	"github.com/crusadeos/backend/internal/infrastructure/monitoring"
	"github.com/crusadeos/backend/internal/vfs"
	"github.com/crusadeos/backend/internal/ws"
)

// Server wraps the HTTP server and its dependencies.
type Server struct {
	router   *gin.Engine
	sessions *session.Store
	hub      *ws.Hub
	logger   *logging.Logger
	config   *config.Config
	metrics  *monitoring.Metrics
}

// NewServer creates a server instance from configuration.
func NewServer(cfg *config.Config) (*Server, error) {
	var logger *logging.Logger
	var err error
	if cfg.Logging.Development {
		logger, err = logging.New(logging.DevelopmentConfig())
	} else {
		logCfg := logging.DefaultConfig()
		logCfg.Level = cfg.Logging.Level
		logger, err = logging.New(logCfg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	logger.Info("Initializing Crusade VFS server",
		zap.String("port", cfg.Server.Port),
		zap.String("data_dir", cfg.Storage.DataDir),
	)

	metrics := monitoring.NewMetrics()

	// Virtual filesystem: one sandbox root, one service on top of it.
	sandbox := vfs.NewSandbox(filepath.Join(cfg.Storage.DataDir, "vfs_data"))
	vfsService := vfs.NewService(sandbox, nil, logger.Logger)

	// Change broadcaster. The service and the hub reference each other, so
	// the notifier is bound after both exist.
	hub := ws.NewHub(vfsService, cfg.Watch.RefreshInterval, logger.Logger).
		WithMetrics(metrics.WSConnections, metrics.WSPushes)
	vfsService.SetNotifier(hub)

	users, err := user.NewStore(filepath.Join(cfg.Storage.DataDir, "users.json"), vfsService, logger.Logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open user store: %w", err)
	}

	sessions := session.NewStore(cfg.Session.TTL, cfg.Session.SweepInterval, logger.Logger).
		WithMetrics(metrics.SessionsActive, metrics.SessionsSwept)

	shares := share.NewStore(vfsService, logger.Logger)

	appManager, err := apps.NewManager(filepath.Join(cfg.Storage.DataDir, "apps_manifest.json"), vfsService, logger.Logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open app manifest: %w", err)
	}

	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(monitoring.Middleware(metrics))
	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
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

	handlers := http.NewHandlers(users, sessions, vfsService, shares, appManager, hub, metrics, logger.Logger)
	wsHandler := ws.NewHandler(hub, sessions, logger.Logger)

	router.GET("/", handlers.Root)
	router.GET("/health", handlers.Health)
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	// Authentication does not require a session; everything else does.
	authRoutes := router.Group("/api/auth")
	{
		authRoutes.POST("/signup", handlers.Signup)
		authRoutes.POST("/login", handlers.Login)
		authRoutes.POST("/logout", handlers.Logout)
		authRoutes.POST("/refresh", handlers.Refresh)
	}

	authed := router.Group("/api", middleware.Auth(sessions))
	{
		authed.GET("/users", handlers.ListUsers)

		cvfs := authed.Group("/cvfs")
		{
			cvfs.GET("/list", handlers.List)
			cvfs.POST("/create", handlers.Create)
			cvfs.GET("/file", handlers.ReadFile)
			cvfs.PUT("/file", handlers.WriteFile)
			cvfs.DELETE("/delete", handlers.Delete)
			cvfs.DELETE("/delete-recursive", handlers.DeleteRecursive)
			cvfs.POST("/move", handlers.Move)
			cvfs.POST("/copy", handlers.Copy)
			cvfs.GET("/metadata", handlers.Metadata)
			cvfs.POST("/upload", handlers.Upload)

			cvfs.POST("/share", handlers.Share)
			cvfs.GET("/pending-shares", handlers.ListPendingShares)
			cvfs.POST("/accept-share", handlers.AcceptShare)
			cvfs.POST("/deny-share", handlers.DenyShare)
		}

		appRoutes := authed.Group("/apps")
		{
			appRoutes.GET("/installed", handlers.ListInstalledApps)
			appRoutes.POST("/install", handlers.InstallApp)
			appRoutes.DELETE("/uninstall", handlers.UninstallApp)
		}
	}

	// WebSocket endpoint. The token rides in the query string because
	// browser WebSocket clients cannot set headers.
	router.GET("/ws", wsHandler.HandleConnection)

	logger.Info("Server initialized")

	return &Server{
		router:   router,
		sessions: sessions,
		hub:      hub,
		logger:   logger,
		config:   cfg,
		metrics:  metrics,
	}, nil
}

// Router exposes the gin engine for tests.
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Run starts the HTTP server.
func (s *Server) Run() error {
	addr := s.config.Server.Host + ":" + s.config.Server.Port
	s.logger.Info("Starting HTTP server", zap.String("addr", addr))
	return s.router.Run(addr)
}

// Close shuts down background work.
func (s *Server) Close() error {
	s.logger.Info("Shutting down server...")
	s.sessions.Close()
	s.logger.Sync()
	return nil
}
