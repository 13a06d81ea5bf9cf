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

	_ "github.com/sjperalta/pharmavault-api/docs" // Swagger docs
	"github.com/sjperalta/pharmavault-api/internal/config"
	"github.com/sjperalta/pharmavault-api/internal/database"
	"github.com/sjperalta/pharmavault-api/internal/handlers"
	"github.com/sjperalta/pharmavault-api/internal/jobs"
	"github.com/sjperalta/pharmavault-api/internal/middleware"
	"github.com/sjperalta/pharmavault-api/internal/repository"
	"github.com/sjperalta/pharmavault-api/internal/services"
	"github.com/sjperalta/pharmavault-api/internal/storage"
	"github.com/sjperalta/pharmavault-api/pkg/logger"

	"github.com/gin-gonic/gin"
)

// @title PharmaVault API
// @version 1.0
// @description Controlled document management for regulated pharmaceutical content: approval workflows, audit trail and electronic signatures
// @termsOfService http://swagger.io/terms/

// @contact.name API Support
// @contact.email support@pharmavault.app

// @license.name Apache 2.0
// @license.url http://www.apache.org/licenses/LICENSE-2.0.html

// @host localhost:8080
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger.Setup(cfg.Environment, cfg.LogLevel)

	// Sentry is optional; without a DSN panics are only logged
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

	if cfg.EnableEmailNotifications && cfg.ResendAPIKey == "" {
		logger.Warn("Email notifications enabled but RESEND_API_KEY is not set; emails will be skipped")
	}

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.Connect(cfg.DatabaseURL,
		database.WithSlowQueryThreshold(cfg.SlowQueryThreshold),
		database.WithSQLTrace(cfg.LogSQL),
	)
	if err != nil {
		logger.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	if err := database.Migrate(db); err != nil {
		logger.Error("Failed to migrate database", "error", err)
		os.Exit(1)
	}
	logger.Info("Connected to database")

	store, err := storage.NewLocalStorage(cfg.StoragePath)
	if err != nil {
		logger.Error("Failed to initialize storage", "error", err)
		os.Exit(1)
	}
	logger.Info("Initialized blob storage", "path", cfg.StoragePath)

	repos := repository.NewRepositories(db)

	worker := jobs.NewWorker(cfg.WorkerCount)
	logger.Info("Started background worker", "goroutines", cfg.WorkerCount)

	svcs := services.NewServices(repos, worker, store, cfg, db)

	scheduleJobs(worker, svcs)

	h := handlers.NewHandlers(svcs, cfg.MaxUploadBytes())
	router := setupRouter(h, cfg)

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       2 * time.Minute,
		WriteTimeout:      2 * time.Minute,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("Server starting", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Failed to start server", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
	}

	worker.Shutdown()
	logger.Info("Background worker stopped")

	if cfg.SentryDSN != "" {
		sentry.Flush(5 * time.Second)
	}

	logger.Info("Server exited gracefully")
}

func setupRouter(h *handlers.Handlers, cfg *config.Config) *gin.Engine {
	router := gin.New()

	if cfg.SentryDSN != "" {
		router.Use(sentrygin.New(sentrygin.Options{Repanic: true}))
	}
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger())
	router.Use(middleware.CORS(cfg.AllowedOrigins))
	// Blob streams go out as stored
	router.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPathsRegexs([]string{`/download$`, `/preview$`})))

	router.GET("/", func(c *gin.Context) {
		c.Redirect(http.StatusMovedPermanently, "/swagger/index.html")
	})
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	h.Register(router.Group("/api/v1"), cfg.JWTSecret)
	return router
}

func scheduleJobs(worker *jobs.Worker, svcs *services.Services) {
	// Recompute every stored signature hash once a day; mismatches alert the admins
	worker.ScheduleEvery("signature-sweep", 24*time.Hour, func(ctx context.Context) error {
		logger.Info("[Job] Verifying stored signatures...")
		return svcs.Signature.SweepSignatures(ctx)
	})

	logger.Info("Scheduled recurring jobs")
}
