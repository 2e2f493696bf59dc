package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/okandemir/whatsapp-campaign-service/environments"
	"github.com/okandemir/whatsapp-campaign-service/handlers"
	"github.com/okandemir/whatsapp-campaign-service/internal/dispatch"
	"github.com/okandemir/whatsapp-campaign-service/internal/repository"
	"github.com/okandemir/whatsapp-campaign-service/internal/service"
	"github.com/okandemir/whatsapp-campaign-service/pkg/database"
	"github.com/okandemir/whatsapp-campaign-service/pkg/logger"
	"github.com/okandemir/whatsapp-campaign-service/pkg/redis"
	"github.com/okandemir/whatsapp-campaign-service/pkg/validator"
	"github.com/okandemir/whatsapp-campaign-service/pkg/whatsapp"
	"github.com/okandemir/whatsapp-campaign-service/routes"

	_ "github.com/okandemir/whatsapp-campaign-service/docs" // swagger docs
)

// @title WhatsApp Campaign Service API
// @version 1.0
// @description Bulk WhatsApp campaign dispatch with per-recipient delivery tracking

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:8080
// @BasePath /

// @schemes http https
func main() {
	logger.Init()

	// .env is optional; real deployments set the environment directly.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		logger.Warnf("Failed to load .env file: %v", err)
	}

	cfg := environments.Load()

	if cfg.Auth.APIKey == "" {
		logger.Fatalf("API_KEY is required but not set")
	}
	if cfg.WhatsApp.PhoneNumberID == "" || cfg.WhatsApp.AccessToken == "" {
		logger.Warnf("WhatsApp credentials not configured; sends will fail until WHATSAPP_PHONE_NUMBER_ID and WHATSAPP_ACCESS_TOKEN are set")
	}

	logger.Infof("Starting WhatsApp Campaign Service...")

	// Init DB
	db, err := database.NewMySQLDB(cfg.Database)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}

	// Run migrations
	if err := database.RunMigrations(db); err != nil {
		logger.Fatalf("Failed to run migrations: %v", err)
	}

	// Seed data
	if os.Getenv("SEED_DATA") == "true" {
		if err := database.SeedTestData(db); err != nil {
			logger.Warnf("Failed to seed test data: %v", err)
		}
	}

	// Init redis
	var redisClient *redis.Client
	redisClient, err = redis.NewRedisClient(cfg.Redis)
	if err != nil {
		logger.Warnf("Redis not available, caching disabled: %v", err)
		redisClient = nil
	}

	// Initialize WhatsApp client
	whatsappClient := whatsapp.NewClient(cfg.WhatsApp)
	logger.Infof("WhatsApp API configured: %s", whatsappClient.GetURL())

	// Initialize repositories
	campaignRepo := repository.NewCampaignRepository(db)
	logRepo := repository.NewMessageLogRepository(db)

	// A typed nil *redis.Client inside a non-nil interface would defeat the
	// nil checks downstream, so the interfaces are only assigned when Redis
	// is actually up.
	var sentCache dispatch.SentCache
	var cacheReader service.SentCacheReader
	if redisClient != nil {
		sentCache = redisClient
		cacheReader = redisClient
	}

	// Initialize service
	campaignService := service.NewCampaignService(campaignRepo, logRepo, cacheReader)

	// Create context for graceful shutdown; dispatch runs hang off it.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize dispatcher
	dispatcher := dispatch.NewDispatcher(
		campaignRepo,
		logRepo,
		whatsappClient,
		sentCache,
		cfg.Dispatch.MessageDelay,
	)

	// Initialize handlers
	healthHandler := handlers.NewHealthHandler(db, redisClient)
	campaignHandler := handlers.NewCampaignHandler(campaignService, dispatcher, whatsappClient, ctx)
	templateHandler := handlers.NewTemplateHandler()
	uploadHandler := handlers.NewUploadHandler(cfg.Upload)

	e := echo.New()
	e.HideBanner = true
	e.Validator = validator.New()

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.RequestID())
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{
			echo.HeaderOrigin,
			echo.HeaderContentType,
			echo.HeaderAccept,
			echo.HeaderAuthorization,
			"x-api-key",
		},
	}))

	// Setup routes
	routes.RegisterRoutes(e, healthHandler, campaignHandler, templateHandler, uploadHandler, cfg)

	// Start server in goroutine
	go func() {
		addr := ":" + cfg.Server.Port
		logger.Infof("Server starting on http://localhost%s", addr)
		logger.Infof("Swagger docs available at http://localhost%s/swagger/index.html", addr)
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Infof("Shutting down gracefully...")

	// Cancel context to signal in-flight dispatch runs to stop
	cancel()

	// Give active runs a bounded window to persist their terminal state
	waitCtx, waitCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer waitCancel()

	done := make(chan struct{})
	go func() {
		dispatcher.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Infof("Dispatch runs stopped")
	case <-waitCtx.Done():
		logger.Warnf("Dispatch stop timeout, forcing shutdown")
	}

	// Shutdown HTTP server (with timeout)
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	logger.Infof("Shutting down HTTP server...")
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("Server forced to shutdown: %v", err)
	} else {
		logger.Infof("HTTP server stopped successfully")
	}

	// Close database connection
	logger.Infof("Closing database connection...")
	if err := db.Close(); err != nil {
		logger.Errorf("Error closing database: %v", err)
	}

	// Close Redis connection
	if redisClient != nil {
		logger.Infof("Closing Redis connection...")
		if err := redisClient.Close(); err != nil {
			logger.Errorf("Error closing Redis: %v", err)
		}
	}

	logger.Infof("Graceful shutdown completed")
}
