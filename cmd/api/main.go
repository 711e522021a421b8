package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	sentrygin "github.com/getsentry/sentry-go/gin"
	"github.com/gin-contrib/gzip"
	_ "github.com/joho/godotenv/autoload"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"github.com/ulule/limiter/v3"

	_ "github.com/sjperalta/tesoreria-api/docs" // Swagger docs
	"github.com/sjperalta/tesoreria-api/internal/amqp"
	"github.com/sjperalta/tesoreria-api/internal/config"
	"github.com/sjperalta/tesoreria-api/internal/database"
	"github.com/sjperalta/tesoreria-api/internal/events"
	"github.com/sjperalta/tesoreria-api/internal/handlers"
	"github.com/sjperalta/tesoreria-api/internal/jobs"
	"github.com/sjperalta/tesoreria-api/internal/middleware"
	"github.com/sjperalta/tesoreria-api/internal/repository"
	"github.com/sjperalta/tesoreria-api/internal/services"
	"github.com/sjperalta/tesoreria-api/internal/storage"
	"github.com/sjperalta/tesoreria-api/pkg/logger"

	"github.com/gin-gonic/gin"
)

const streamPath = "/api/v1/debts/stream"

// @title Tesorería API
// @version 1.0
// @description REST API for the debt and payment (abono) ledger

// @host localhost:8081
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize logger
	logger.Setup(cfg.Environment, cfg.LogLevel)

	// Initialize Sentry (GlitchTip) when DSN is configured
	if cfg.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:              cfg.SentryDSN,
			TracesSampleRate: 0.2,
			Environment:      cfg.Environment,
		}); err != nil {
			logger.Error("Sentry initialization failed", "error", err)
		} else {
			logger.Info("Sentry initialized")
		}
	}

	// Set Gin mode
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	// Connect to the ledger store
	var (
		repos       *repository.Repositories
		healthCheck func(ctx context.Context) error
	)
	if cfg.DatabaseDriver == config.DriverMemory {
		repos = repository.NewMemoryRepositories()
		logger.Warn("Using in-memory ledger store, data is lost on restart")
	} else {
		db, err := database.Connect(cfg.DatabaseDriver, cfg.DatabaseURL, cfg.IsProduction())
		if err != nil {
			logger.Error("Failed to connect to database", "error", err)
			os.Exit(1)
		}
		if err := repository.AutoMigrate(db); err != nil {
			logger.Error("Failed to migrate database", "error", err)
			os.Exit(1)
		}
		logger.Info("Connected to database", "driver", cfg.DatabaseDriver)

		repos = repository.NewRepositories(db)
		healthCheck = func(ctx context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		}
	}

	// Initialize storage
	store, err := storage.NewLocalStorage(cfg.StoragePath)
	if err != nil {
		logger.Error("Failed to initialize storage", "error", err)
		os.Exit(1)
	}
	logger.Info("Initialized local storage")

	// Initialize background worker
	worker := jobs.NewWorker(cfg.WorkerCount)
	logger.Info("Started background worker", "goroutines", cfg.WorkerCount)

	// Ledger events fan out to stream clients and, when configured, to AMQP
	broker := events.NewBroker()
	var amqpClient *amqp.Client
	if cfg.AMQPURL != "" {
		amqpClient, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Error("AMQP disabled, failed to connect", "error", err)
		} else {
			broker.Subscribe(amqp.EventHandler(amqpClient, worker.EnqueueAsync))
			logger.Info("Publishing ledger events to AMQP", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
		}
	}

	// Initialize services
	svcs := services.NewServices(repos, worker, store, broker, cfg)

	// Schedule recurring jobs
	svcs.Job.ScheduleLedgerJobs()

	// Initialize handlers
	h := handlers.NewHandlers(svcs, broker, healthCheck)

	exportLimiter, err := middleware.NewMemoryLimiter(cfg.ExportRateLimit)
	if err != nil {
		logger.Error("Invalid EXPORT_RATE_LIMIT", "value", cfg.ExportRateLimit, "error", err)
		os.Exit(1)
	}

	// Setup router
	router := setupRouter(h, cfg, exportLimiter)

	// Create HTTP server. No write timeout: event stream connections stay open.
	server := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     router,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("Server starting", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Failed to start server", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
	}

	// Shutdown background worker
	worker.Shutdown()
	logger.Info("Background worker stopped")

	if amqpClient != nil {
		if err := amqpClient.Close(); err != nil {
			logger.Error("Failed to close AMQP connection", "error", err)
		}
	}

	// Flush Sentry events before exit
	if cfg.SentryDSN != "" {
		sentry.Flush(5 * time.Second)
	}

	logger.Info("Server exited gracefully")
}

func setupRouter(h *handlers.Handlers, cfg *config.Config, exportLimiter *limiter.Limiter) *gin.Engine {
	router := gin.New()

	// Global middleware
	if cfg.SentryDSN != "" {
		router.Use(sentrygin.New(sentrygin.Options{Repanic: true}))
	}
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.RequestLogger())
	router.Use(middleware.CORS(cfg.AllowedOrigins))
	router.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{streamPath})))

	// Redirect root to swagger
	router.GET("/", func(c *gin.Context) {
		c.Redirect(http.StatusMovedPermanently, "/swagger/index.html")
	})

	// Swagger documentation
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// API v1 routes
	v1 := router.Group("/api/v1")
	{
		// Health check (public)
		v1.GET("/health", h.Health.Index)

		// Protected routes (requires authentication)
		protected := v1.Group("")
		protected.Use(middleware.Auth(cfg.JWTSecret))
		{
			// Read access for every role
			protected.GET("/debts", h.Debt.Index)
			protected.GET("/debts/summary", h.Debt.Summary)
			protected.GET("/debts/stream", h.Debt.Stream)
			protected.GET("/debts/:debt_id", h.Debt.Show)
			protected.GET("/debts/:debt_id/payments", h.Debt.Payments)

			// Exports are rate limited per user
			exports := protected.Group("")
			exports.Use(middleware.RateLimit(exportLimiter))
			{
				exports.GET("/debts/export", h.Debt.Export)
				exports.GET("/debts/:debt_id/export", h.Debt.ExportDebt)
			}

			// Ledger changes (admin and treasurer)
			writers := protected.Group("")
			writers.Use(middleware.RequireRole(middleware.RoleAdmin, middleware.RoleTreasurer))
			{
				writers.POST("/debts", h.Debt.Create)
				writers.PUT("/debts/:debt_id", h.Debt.Update)
				writers.PATCH("/debts/:debt_id", h.Debt.Update)
				writers.POST("/debts/:debt_id/payments", h.Debt.AddPayment)
			}

			// Admin-only routes
			admin := protected.Group("")
			admin.Use(middleware.RequireRole(middleware.RoleAdmin))
			{
				admin.DELETE("/debts/:debt_id", h.Debt.Delete)
				admin.GET("/jobs/status", h.Job.Status)
				admin.POST("/jobs/archive", h.Job.Archive)
				admin.GET("/reports", h.Report.Index)
				admin.GET("/reports/*path", h.Report.Download)
				admin.DELETE("/reports/*path", h.Report.Delete)
			}
		}
	}

	return router
}
