package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/RichardFellows/data-refresh/internal/config"
	"github.com/RichardFellows/data-refresh/internal/controller"
	"github.com/RichardFellows/data-refresh/internal/database"
	"github.com/RichardFellows/data-refresh/internal/middleware"
	"github.com/RichardFellows/data-refresh/internal/refresh"
	"github.com/RichardFellows/data-refresh/internal/repository"
	"github.com/RichardFellows/data-refresh/internal/security"
	"github.com/RichardFellows/data-refresh/internal/service"
)

const version = "1.0.0"

func main() {
	// Load configuration
	cfg, err := config.Load(os.Getenv("DATA_REFRESH_CONFIG"))
	if err != nil {
		log.Fatal("Failed to load configuration:", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal("Invalid configuration:", err)
	}

	setupLogging(cfg)

	// Set Gin mode
	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	// Initialize Prometheus metrics
	middleware.InitMetrics()

	// Initialize SQL Server connection pools
	pool := database.NewConnectionPool(&cfg.Databases.Source, &cfg.Databases.Target, cfg.Settings.ConnectionTimeout)
	defer pool.CloseAll()

	// Background endpoint monitoring keeps the health gauges current between
	// scrapes and surfaces dead endpoints before a trigger arrives.
	monitorCtx, stopMonitor := context.WithCancel(context.Background())
	defer stopMonitor()
	go watchEndpointHealth(monitorCtx, database.NewHealthChecker(pool))

	// Run history: MySQL when enabled, in-memory ring otherwise
	var historyDB *gorm.DB
	var runRepo repository.RunRepository
	if cfg.History.Enabled {
		historyDB, err = config.InitHistoryDatabase(cfg)
		if err != nil {
			log.Fatal("Failed to initialize history database:", err)
		}
		runRepo = repository.NewRunRepository(historyDB)
	} else {
		runRepo = repository.NewMemoryRunRepository(0)
	}

	// Shared engine state. The lock registry must outlive individual
	// requests so concurrent triggers contend on the same per-table locks.
	locks := refresh.NewLockRegistry()
	collector := service.NewMetricsCollector()

	// Initialize services
	refreshService := service.NewRefreshService(cfg, pool, locks, runRepo, collector)
	statusService := service.NewStatusService(cfg, pool)

	// Initialize security
	jwtManager := security.NewJWTManager(cfg.Security.JWTSecret, cfg.Security.JWTExpiration)
	authMiddleware := security.NewAuthMiddleware(jwtManager)

	// Initialize rate limiting
	rateLimiter := middleware.NewRateLimiter(middleware.RateLimiterConfig{
		RPM:             cfg.Security.RateLimitPerMinute,
		Burst:           cfg.Security.RateLimitBurst,
		CleanupInterval: 5 * time.Minute,
	})

	// Initialize controllers
	refreshController := controller.NewRefreshController(refreshService)
	statusController := controller.NewStatusController(statusService, collector)
	healthController := controller.NewHealthController(pool, historyDB, version)

	// Create Gin router
	router := gin.New()

	// Add middleware
	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(middleware.Cors())
	router.Use(middleware.CorrelationID())
	router.Use(middleware.PrometheusMiddleware())

	// Add rate limiting if enabled
	if cfg.Security.EnableRateLimit {
		router.Use(rateLimiter.RateLimit())
	}

	// Health and metrics endpoints (always available)
	router.GET("/health", healthController.HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API v1 group
	api := router.Group("/api/v1")

	// Public endpoints (no authentication required)
	public := api.Group("")
	{
		public.GET("/health", healthController.HealthCheck)
	}

	// Read endpoints (authentication required when enabled)
	auth := api.Group("")
	if cfg.Security.EnableAuth {
		auth.Use(authMiddleware.RequireAuth())
	}
	{
		auth.GET("/status", statusController.GetTableStatuses)
		auth.GET("/status/:table", statusController.GetTableStatus)
		auth.GET("/connections", statusController.TestConnections)
		auth.GET("/stats", statusController.GetServiceStats)

		auth.GET("/runs", refreshController.ListRuns)
		auth.GET("/runs/stats", refreshController.GetRunStats)
		auth.GET("/runs/:id", refreshController.GetRun)
	}

	// Trigger endpoint: writes production data, so it gets the operator
	// role gate and a tight dedicated rate limit.
	trigger := api.Group("/refresh")
	if cfg.Security.EnableAuth {
		trigger.Use(authMiddleware.RequireAnyRole(security.RoleAdmin, security.RoleOperator))
	}
	trigger.Use(middleware.TriggerRateLimit(10, 2))
	{
		trigger.POST("", refreshController.TriggerRefresh)
	}

	// Start server
	srv := &http.Server{
		Addr:    cfg.Server.Host + ":" + cfg.Server.Port,
		Handler: router,
	}

	go func() {
		logrus.WithFields(logrus.Fields{
			"addr":    srv.Addr,
			"version": version,
		}).Info("Starting data refresh server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server:", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	// Refreshes stop at the next chunk or step boundary once their request
	// context is cancelled by the shutdown.
	logrus.Info("Shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logrus.WithError(err).Error("Server forced to shut down")
	}
	logrus.Info("Server stopped")
}

func watchEndpointHealth(ctx context.Context, checker *database.HealthChecker) {
	for summary := range checker.PeriodicHealthCheck(ctx, 30*time.Second) {
		for _, result := range summary.Results {
			healthy := result.Status == "healthy"
			middleware.UpdateDatabaseHealth(result.Role, healthy)
			if !healthy {
				logrus.WithFields(logrus.Fields{
					"role":    result.Role,
					"latency": result.Latency,
				}).Warn(result.Message)
			}
		}
	}
}

func setupLogging(cfg *config.Config) {
	level, err := logrus.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)

	if cfg.Logging.Format == "json" {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
}
